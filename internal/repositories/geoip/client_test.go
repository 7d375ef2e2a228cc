package geoip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "k3y", time.Second, lib.NewTestLogger())
	require.NoError(t, err)
	return client
}

func TestResolveHost(t *testing.T) {
	calls := atomic.NewInt32(0)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		require.Equal(t, "/json/10.0.0.1", r.URL.Path)
		require.Equal(t, "k3y", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{"latitude":52.52,"longitude":13.4,"city":"Berlin","country_name":"Germany"}`)
	})

	loc, err := client.Resolve(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, chain.Location{Latitude: 52.52, Longitude: 13.4, City: "Berlin", Country: "Germany"}, *loc)

	_, err = client.Resolve(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestResolveOwnIsNotCached(t *testing.T) {
	calls := atomic.NewInt32(0)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		fmt.Fprint(w, `{"latitude":0,"longitude":0}`)
	})

	for i := 0; i < 2; i++ {
		loc, err := client.Resolve(context.Background(), "")
		require.NoError(t, err)
		require.Equal(t, 0.0, loc.Latitude)
	}
	require.EqualValues(t, 2, calls.Load())
}

func TestResolveUnknown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"city":"nowhere"}`)
	})

	_, err := client.Resolve(context.Background(), "missing")
	require.True(t, errors.Is(err, chain.ErrLocationUnknown))

	_, err = client.Resolve(context.Background(), "partial")
	require.True(t, errors.Is(err, chain.ErrLocationUnknown))
}

func TestResolveBadResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json/broken" {
			fmt.Fprint(w, `{not json`)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	})

	_, err := client.Resolve(context.Background(), "broken")
	require.True(t, errors.Is(err, ErrBadResponse))

	_, err = client.Resolve(context.Background(), "limited")
	require.True(t, errors.Is(err, ErrBadResponse))
	require.Contains(t, err.Error(), "slow down")
}

func TestResolveCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Resolve(ctx, "10.0.0.2")
	require.Error(t, err)
}

func TestDisabledResolver(t *testing.T) {
	_, err := Disabled{}.Resolve(context.Background(), "1.2.3.4")
	require.ErrorIs(t, err, chain.ErrLocationUnknown)
}
