package mining

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineKindText(t *testing.T) {
	b, err := json.Marshal(struct {
		Kind  EngineKind      `json:"kind"`
		State ConnectionState `json:"state"`
	}{KindPool, ConnectionConnecting})
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"pool","state":"connecting"}`, string(b))

	var k EngineKind
	require.NoError(t, k.UnmarshalText([]byte("solo")))
	require.Equal(t, KindSolo, k)

	_, err = ParseEngineKind("gpu")
	require.ErrorIs(t, err, ErrUnknownEngineKind)
}
