package engine

import (
	"encoding/json"
	"errors"

	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
)

const (
	MethodMiningSubscribe     = "mining.subscribe"
	MethodMiningAuthorize     = "mining.authorize"
	MethodMiningSubmit        = "mining.submit"
	MethodMiningSetDifficulty = "mining.set_difficulty"
	MethodMiningSetBalance    = "mining.set_balance"
)

var (
	ErrPoolMessageUnmarshal = errors.New("cannot unmarshal pool message")
	ErrPoolMessageParams    = errors.New("invalid pool message params")
)

// PoolMessage is a line delimited json-rpc message exchanged with the pool
type PoolMessage struct {
	ID     *int              `json:"id"`
	Method string            `json:"method,omitempty"`
	Params []json.RawMessage `json:"params"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  json.RawMessage   `json:"error,omitempty"`
}

func ParsePoolMessage(raw []byte) (*PoolMessage, error) {
	msg := &PoolMessage{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, lib.WrapError(ErrPoolMessageUnmarshal, err)
	}
	return msg, nil
}

func NewPoolRequest(id int, method string, params ...interface{}) ([]byte, error) {
	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	b, err := json.Marshal(PoolMessage{ID: &id, Method: method, Params: raw})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// FloatParam decodes the i-th param as a number
func (m *PoolMessage) FloatParam(i int) (float64, error) {
	if i >= len(m.Params) {
		return 0, ErrPoolMessageParams
	}
	var v float64
	if err := json.Unmarshal(m.Params[i], &v); err != nil {
		return 0, lib.WrapError(ErrPoolMessageParams, err)
	}
	return v, nil
}

// Uint64Param decodes the i-th param as an unsigned integer
func (m *PoolMessage) Uint64Param(i int) (uint64, error) {
	if i >= len(m.Params) {
		return 0, ErrPoolMessageParams
	}
	var v uint64
	if err := json.Unmarshal(m.Params[i], &v); err != nil {
		return 0, lib.WrapError(ErrPoolMessageParams, err)
	}
	return v, nil
}
