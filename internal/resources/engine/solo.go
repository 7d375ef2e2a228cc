package engine

import (
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

type HeadSource interface {
	HeadDifficulty() float64
}

// BlockSink accepts blocks found by the solo engine
type BlockSink interface {
	SubmitBlock(address string) bool
}

// SoloEngine mines against the difficulty of the current head
type SoloEngine struct {
	*cpuMiner

	head                HeadSource
	sink                BlockSink
	address             string
	hashesPerDifficulty float64
	found               atomic.Uint64
}

func NewSoloEngine(head HeadSource, sink BlockSink, address string, hashesPerDifficulty float64, clk clock.Clock, log interfaces.ILogger) *SoloEngine {
	e := &SoloEngine{
		cpuMiner:            newCPUMiner(mining.KindSolo, clk, log),
		head:                head,
		sink:                sink,
		address:             address,
		hashesPerDifficulty: hashesPerDifficulty,
	}
	e.threshold = func() uint64 {
		return HitThreshold(e.head.HeadDifficulty(), e.hashesPerDifficulty)
	}
	e.onHit = e.onBlock
	return e
}

// BlocksFound counts blocks accepted by the sink
func (e *SoloEngine) BlocksFound() uint64 {
	return e.found.Load()
}

func (e *SoloEngine) onBlock(nonce uint64) {
	if e.sink == nil {
		e.log.Infof("block candidate found, nonce %d, no sink configured", nonce)
		return
	}
	if e.sink.SubmitBlock(e.address) {
		e.found.Inc()
		e.log.Infof("block found, nonce %d", nonce)
	}
}
