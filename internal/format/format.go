package format

import (
	"fmt"
	"math"
	"strconv"
)

// Quantity is a value scaled to a unit
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Text formats the value with prec decimals followed by the unit
func (q Quantity) Text(prec int) string {
	return strconv.FormatFloat(q.Value, 'f', prec, 64) + " " + q.Unit
}

const HashrateUnit = "H/s"

var hashratePrefixes = []string{"k", "M", "G", "T", "P", "E"}

// Hashrate scales v (in H/s) by powers of 1000 until it drops below 1000 or the exa prefix is reached.
// Returns false for negative or non-finite input
func Hashrate(v float64) (Quantity, bool) {
	if !isFinite(v) || v < 0 {
		return Quantity{}, false
	}
	prefix := ""
	for _, p := range hashratePrefixes {
		if v/1000 < 1 {
			break
		}
		v /= 1000
		prefix = p
	}
	return Quantity{Value: v, Unit: prefix + HashrateUnit}, true
}

type timeStep struct {
	unit   string
	factor float64
}

var timeSteps = []timeStep{
	{"minutes", 60},
	{"hours", 60},
	{"days", 24},
	{"months", 365.0 / 12},
	{"years", 12},
	{"decades", 10},
}

// Duration converts seconds up the ladder minutes, hours, days, months, years, decades.
// Returns false for non-finite input so the caller keeps the previous value
func Duration(seconds float64) (Quantity, bool) {
	if !isFinite(seconds) {
		return Quantity{}, false
	}
	unit := "seconds"
	for _, s := range timeSteps {
		if seconds/s.factor < 1 {
			break
		}
		seconds /= s.factor
		unit = s.unit
	}
	return Quantity{Value: seconds, Unit: unit}, true
}

// Denomination converts integer base units into coins
type Denomination struct {
	Symbol   string
	BaseUnit string
	Decimals int
}

// MinDisplayCoins is the smallest coin amount shown in coins, anything below is shown in base units
const MinDisplayCoins = 0.01

func (d Denomination) ToCoins(units float64) float64 {
	return units / math.Pow10(d.Decimals)
}

// Amount formats a possibly fractional amount of base units, such as an expected reward
func (d Denomination) Amount(units float64) string {
	if units == 0 || !isFinite(units) || units < 0 {
		return "0 " + d.Symbol
	}
	coins := d.ToCoins(units)
	if coins < MinDisplayCoins {
		if units < 0.005 {
			return "< 0.01 " + d.BaseUnit
		}
		return fmt.Sprintf("%.2f %s", units, d.BaseUnit)
	}
	return fmt.Sprintf("%.2f %s", coins, d.Symbol)
}

// Coins formats a balance with two decimals and no unit
func (d Denomination) Coins(units uint64) string {
	return fmt.Sprintf("%.2f", d.ToCoins(float64(units)))
}

// WholeCoins formats the integer part of the amount in coins
func (d Denomination) WholeCoins(units uint64) string {
	div := uint64(1)
	for i := 0; i < d.Decimals; i++ {
		div *= 10
	}
	return strconv.FormatUint(units/div, 10)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
