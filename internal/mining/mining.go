package mining

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/event"
)

var ErrUnknownEngineKind = errors.New("unknown engine kind")

type EngineKind int

const (
	KindSolo EngineKind = iota
	KindPool
)

func (k EngineKind) String() string {
	switch k {
	case KindSolo:
		return "solo"
	case KindPool:
		return "pool"
	}
	return "unknown"
}

func ParseEngineKind(s string) (EngineKind, error) {
	switch s {
	case "solo":
		return KindSolo, nil
	case "pool":
		return KindPool, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownEngineKind, s)
}

type ConnectionState int

const (
	ConnectionClosed ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionClosed:
		return "closed"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	}
	return "unknown"
}

type EngineEventType int

const (
	EngineStarted EngineEventType = iota
	EngineStopped
	HashrateChanged
)

type EngineEvent struct {
	Kind     EngineKind
	Type     EngineEventType
	Hashrate float64 // H/s, set for HashrateChanged
}

type PoolEventType int

const (
	PoolConnectionState PoolEventType = iota
	PoolConfirmedBalance
)

type PoolEvent struct {
	Type    PoolEventType
	State   ConnectionState
	Attempt uint64 // connection attempt the state belongs to, set for PoolConnectionState
	Balance uint64
}

// Engine is a mining backend. Methods must not block the caller for longer than it takes to signal the workers
type Engine interface {
	Kind() EngineKind
	StartWork()
	StopWork()
	Working() bool
	// Hashrate in H/s
	Hashrate() float64
	SetThreads(n int)
	Threads() int
	SubscribeEngine(ch chan<- EngineEvent) event.Subscription
}

// PoolEngine shares work with a remote pool and needs a connection before it can start
type PoolEngine interface {
	Engine
	// Connect starts a new connection attempt if the engine is closed and returns the id of
	// the current attempt. Attempt ids increase and are never 0
	Connect(host string, port int) uint64
	Disconnect()
	ConnectionState() ConnectionState
	ConfirmedBalance() uint64
	SubscribePool(ch chan<- PoolEvent) event.Subscription
}

// Factory creates engines on first use
type Factory interface {
	NewSolo() Engine
	NewPool() PoolEngine
}

func (k EngineKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EngineKind) UnmarshalText(b []byte) error {
	v, err := ParseEngineKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
