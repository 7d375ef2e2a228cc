package chain

import (
	"sort"
	"sync"
	"time"
)

// Policy describes the economic parameters needed to estimate rewards
type Policy interface {
	BlockRewardAt(height uint32) uint64
	BlockTime() time.Duration
	// GlobalHashrate estimates the network hashrate in H/s from the head difficulty
	GlobalHashrate(difficulty float64) float64
}

type EmissionParams struct {
	TotalSupply         uint64
	InitialSupply       uint64
	EmissionSpeed       uint64
	TailStart           uint32
	TailReward          uint64
	BlockTime           time.Duration
	HashesPerDifficulty float64
}

var DefaultEmissionParams = EmissionParams{
	TotalSupply:         2_100_000_000_000_000,
	InitialSupply:       252_000_000_000_000,
	EmissionSpeed:       1 << 22,
	TailStart:           48_692_960,
	TailReward:          4000,
	BlockTime:           60 * time.Second,
	HashesPerDifficulty: 1 << 16,
}

const supplyCheckpointInterval = 1000

// EmissionPolicy derives block rewards from a decaying emission curve.
// Supply is computed incrementally and cached at checkpoints
type EmissionPolicy struct {
	params EmissionParams

	mu          sync.Mutex
	checkpoints map[uint32]uint64 // supply after height
}

func NewEmissionPolicy(params EmissionParams) *EmissionPolicy {
	return &EmissionPolicy{
		params:      params,
		checkpoints: make(map[uint32]uint64),
	}
}

func (p *EmissionPolicy) BlockRewardAt(height uint32) uint64 {
	if height == 0 {
		return 0
	}
	return p.rewardAt(p.SupplyAfter(height-1), height)
}

// SupplyAfter returns the circulating supply after the block at height was mined
func (p *EmissionPolicy) SupplyAfter(height uint32) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	start, supply := uint32(0), p.params.InitialSupply
	if cp := height / supplyCheckpointInterval * supplyCheckpointInterval; cp > 0 {
		// nearest cached checkpoint at or below height
		keys := make([]uint32, 0, len(p.checkpoints))
		for k := range p.checkpoints {
			if k <= height {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		if len(keys) > 0 {
			start = keys[len(keys)-1]
			supply = p.checkpoints[start]
			if start == height {
				return supply
			}
			start++
		}
	}

	for h := start; h <= height; h++ {
		supply += p.rewardAt(supply, h)
		if h > 0 && h%supplyCheckpointInterval == 0 {
			p.checkpoints[h] = supply
		}
	}
	return supply
}

func (p *EmissionPolicy) rewardAt(supply uint64, height uint32) uint64 {
	if height == 0 || supply >= p.params.TotalSupply {
		return 0
	}
	remaining := p.params.TotalSupply - supply
	if height >= p.params.TailStart && remaining >= p.params.TailReward {
		return p.params.TailReward
	}
	return remaining / p.params.EmissionSpeed
}

func (p *EmissionPolicy) BlockTime() time.Duration {
	return p.params.BlockTime
}

func (p *EmissionPolicy) GlobalHashrate(difficulty float64) float64 {
	return globalHashrate(difficulty, p.params.HashesPerDifficulty, p.params.BlockTime)
}

// FixedRewardPolicy pays the same reward for every block, used by chains without emission curve
type FixedRewardPolicy struct {
	Reward              uint64
	Interval            time.Duration
	HashesPerDifficulty float64
}

func (p FixedRewardPolicy) BlockRewardAt(height uint32) uint64 {
	if height == 0 {
		return 0
	}
	return p.Reward
}

func (p FixedRewardPolicy) BlockTime() time.Duration {
	return p.Interval
}

func (p FixedRewardPolicy) GlobalHashrate(difficulty float64) float64 {
	return globalHashrate(difficulty, p.HashesPerDifficulty, p.Interval)
}

func globalHashrate(difficulty, hashesPerDifficulty float64, blockTime time.Duration) float64 {
	if blockTime <= 0 || difficulty <= 0 {
		return 0
	}
	return difficulty * hashesPerDifficulty / blockTime.Seconds()
}
