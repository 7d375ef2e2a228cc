package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
)

const (
	cacheSize = 256
	ownKey    = "" // own public address, never cached
)

var ErrBadResponse = errors.New("bad geoip response")

type locationResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	Country   string   `json:"country_name"`
}

// Client resolves hosts with a json geoip service exposing GET /json/{host}
type Client struct {
	baseUrl *url.URL
	apiKey  string
	http    *http.Client
	log     interfaces.ILogger

	mu    sync.Mutex
	cache *lib.BoundRandomMap[chain.Location]
}

func NewClient(baseUrlStr string, apiKey string, timeout time.Duration, log interfaces.ILogger) (*Client, error) {
	baseUrl, err := url.Parse(baseUrlStr)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseUrl: baseUrl,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		cache:   lib.NewBoundRandomMap[chain.Location](cacheSize, rand.New(rand.NewSource(time.Now().UnixNano()))),
	}, nil
}

func (c *Client) Resolve(ctx context.Context, host string) (*chain.Location, error) {
	if loc, ok := c.cached(host); ok {
		return &loc, nil
	}

	targetUrl := c.baseUrl.JoinPath("json", host)
	if c.apiKey != "" {
		qs := url.Values{}
		qs.Add("key", c.apiKey)
		targetUrl.RawQuery = qs.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetUrl.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, chain.ErrLocationUnknown
	}
	if err := checkStatus(resp); err != nil {
		return nil, lib.WrapError(ErrBadResponse, err)
	}

	var body locationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, lib.WrapError(ErrBadResponse, err)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return nil, chain.ErrLocationUnknown
	}

	loc := chain.Location{
		Latitude:  *body.Latitude,
		Longitude: *body.Longitude,
		City:      body.City,
		Country:   body.Country,
	}
	c.store(host, loc)
	c.log.Debugf("resolved %q to %.2f,%.2f", host, loc.Latitude, loc.Longitude)
	return &loc, nil
}

func (c *Client) cached(host string) (chain.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(host)
}

func (c *Client) store(host string, loc chain.Location) {
	if host == ownKey {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Put(host, loc)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		b, err := io.ReadAll(resp.Body)
		var errStr string
		if err != nil {
			errStr = err.Error()
		} else {
			errStr = string(b)
		}
		return fmt.Errorf("response status code(%d): %s", resp.StatusCode, errStr)
	}
	return nil
}

// Disabled is used when no geoip service is configured, every lookup fails
type Disabled struct{}

func (Disabled) Resolve(ctx context.Context, host string) (*chain.Location, error) {
	return nil, chain.ErrLocationUnknown
}
