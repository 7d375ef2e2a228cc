package chain

import (
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
)

// maxTarget is the easiest block target, difficulty 1
var maxTarget = new(big.Int).Lsh(big.NewInt(1), 240)

// CompactToDifficulty converts compact target bits of a block header to its difficulty
func CompactToDifficulty(bits uint32) float64 {
	target := blockchain.CompactToBig(bits)
	if target.Sign() <= 0 {
		return math.Inf(1)
	}
	d, _ := new(big.Float).Quo(new(big.Float).SetInt(maxTarget), new(big.Float).SetInt(target)).Float64()
	return d
}

// DifficultyToCompact is the inverse of CompactToDifficulty, precision is limited by the compact encoding
func DifficultyToCompact(difficulty float64) uint32 {
	if difficulty <= 0 || math.IsNaN(difficulty) || math.IsInf(difficulty, 0) {
		return blockchain.BigToCompact(maxTarget)
	}
	t, _ := new(big.Float).Quo(new(big.Float).SetInt(maxTarget), big.NewFloat(difficulty)).Int(nil)
	return blockchain.BigToCompact(t)
}
