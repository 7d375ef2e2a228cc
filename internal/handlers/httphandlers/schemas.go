package httphandlers

import (
	"github.com/Lumerin-protocol/miner-dashboard/internal/session"
)

type ConfigResponse struct {
	Version string
	Config  interface{}
}

type SessionResponse struct {
	Session          session.Snapshot `json:"session"`
	MinerButtonLabel string           `json:"minerButtonLabel"`
}
