package engine

import (
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/benbjohnson/clock"
)

type FactoryConfig struct {
	Address             string // reward address, also the pool worker name
	HashesPerDifficulty float64
	DialTimeout         time.Duration
}

type Factory struct {
	cfg   FactoryConfig
	head  HeadSource
	sink  BlockSink
	clock clock.Clock
	log   interfaces.ILogger
}

// NewFactory creates engines for the session controller, sink may be nil when found
// blocks are submitted by an external node
func NewFactory(cfg FactoryConfig, head HeadSource, sink BlockSink, clk clock.Clock, log interfaces.ILogger) *Factory {
	return &Factory{cfg: cfg, head: head, sink: sink, clock: clk, log: log}
}

func (f *Factory) NewSolo() mining.Engine {
	return NewSoloEngine(f.head, f.sink, f.cfg.Address, f.cfg.HashesPerDifficulty, f.clock, f.log.Named("SOLO"))
}

func (f *Factory) NewPool() mining.PoolEngine {
	return NewPoolEngine(f.cfg.Address, f.cfg.DialTimeout, f.cfg.HashesPerDifficulty, f.clock, f.log.Named("POOL"))
}
