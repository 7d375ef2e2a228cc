package session

import (
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/google/uuid"
)

type State int

const (
	Paused State = iota
	WaitingForConsensus
	StartingSolo
	MiningSolo
	StartingPool
	MiningPool
	PoolUnreachable
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case WaitingForConsensus:
		return "waiting-for-consensus"
	case StartingSolo:
		return "starting-solo"
	case MiningSolo:
		return "mining-solo"
	case StartingPool:
		return "starting-pool"
	case MiningPool:
		return "mining-pool"
	case PoolUnreachable:
		return "pool-unreachable"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot describes the session for the display layer
type Snapshot struct {
	ID      uuid.UUID         `json:"id"`
	State   State             `json:"state"`
	Engine  mining.EngineKind `json:"engine"`
	Paused  bool              `json:"paused"`
	Threads int               `json:"threads"`
}

// Settings are the user choices that survive restarts
type Settings struct {
	PoolEnabled bool   `yaml:"pool_enabled" json:"poolEnabled"`
	PoolHost    string `yaml:"pool_host" json:"poolHost"`
	PoolPort    int    `yaml:"pool_port" json:"poolPort"`
	Threads     int    `yaml:"threads" json:"threads"`
}

func (s Settings) EngineKind() mining.EngineKind {
	if s.PoolEnabled {
		return mining.KindPool
	}
	return mining.KindSolo
}
