package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmissionPolicyFirstBlocks(t *testing.T) {
	p := NewEmissionPolicy(DefaultEmissionParams)

	require.Equal(t, uint64(0), p.BlockRewardAt(0))
	require.Equal(t, uint64(440597534), p.BlockRewardAt(1))
	require.Equal(t, uint64(440597429), p.BlockRewardAt(2))
}

func TestEmissionPolicyCheckpointsAreConsistent(t *testing.T) {
	cold := NewEmissionPolicy(DefaultEmissionParams)
	warm := NewEmissionPolicy(DefaultEmissionParams)

	// populates checkpoints 1000 and 2000
	warm.SupplyAfter(2100)

	require.Equal(t, uint64(253101165759845), cold.SupplyAfter(2500))
	require.Equal(t, cold.SupplyAfter(2500), warm.SupplyAfter(2500))
	require.Equal(t, uint64(440334995), warm.BlockRewardAt(2501))
	require.Equal(t, cold.SupplyAfter(2000), warm.SupplyAfter(2000))
}

func TestEmissionPolicyTail(t *testing.T) {
	params := DefaultEmissionParams
	params.TailStart = 10
	p := NewEmissionPolicy(params)

	require.Equal(t, params.TailReward, p.BlockRewardAt(10))
	require.Equal(t, params.TailReward, p.BlockRewardAt(11))
}

func TestGlobalHashrate(t *testing.T) {
	p := NewEmissionPolicy(DefaultEmissionParams)

	require.InDelta(t, 65536.0/60, p.GlobalHashrate(1), 1e-9)
	require.Equal(t, 0.0, p.GlobalHashrate(0))

	fixed := FixedRewardPolicy{Reward: 5, Interval: 10 * time.Second, HashesPerDifficulty: 10}
	require.InDelta(t, 100.0, fixed.GlobalHashrate(100), 1e-9)
	require.Equal(t, uint64(5), fixed.BlockRewardAt(3))
	require.Equal(t, uint64(0), fixed.BlockRewardAt(0))
}

func TestCompactToDifficulty(t *testing.T) {
	require.InDelta(t, 1.0000152590218967, CompactToDifficulty(0x1f00ffff), 1e-9)
	require.InDelta(t, 256.00390630960555, CompactToDifficulty(0x1e00ffff), 1e-6)

	bits := DifficultyToCompact(256)
	require.InDelta(t, 256.0, CompactToDifficulty(bits), 0.01)
}
