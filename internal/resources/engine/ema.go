package engine

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// EMA is an exponential moving average counter primed with the arithmetic
// average of the first observations
type EMA struct {
	avgInterval time.Duration
	obsCount    int
	clock       clock.Clock

	lk            sync.RWMutex
	lastValue     float64
	lastTime      time.Time
	startedAt     time.Time
	initSum       float64
	primedObsLeft int
}

func NewEMA(avgInterval time.Duration, obsCount int, clk clock.Clock) *EMA {
	return &EMA{
		avgInterval:   avgInterval,
		obsCount:      obsCount,
		clock:         clk,
		primedObsLeft: obsCount,
	}
}

// Value returns the current value of the counter
func (c *EMA) Value() float64 {
	c.lk.RLock()
	defer c.lk.RUnlock()
	return c.value()
}

// ValuePer returns the current value of the counter normalized to the given interval
func (c *EMA) ValuePer(interval time.Duration) float64 {
	return c.Value() * float64(interval) / float64(c.avgInterval)
}

func (c *EMA) Add(v float64) {
	c.lk.Lock()
	defer c.lk.Unlock()

	now := c.clock.Now()
	if c.startedAt.IsZero() {
		c.startedAt = now
	}

	if c.primedObsLeft > 0 {
		c.primedObsLeft--
		c.initSum += v
		if c.primedObsLeft > 0 {
			return
		}
		elapsed := now.Sub(c.startedAt)
		if elapsed <= 0 {
			c.primedObsLeft = 1
			return
		}
		c.lastValue = c.initSum * (float64(c.avgInterval) / float64(elapsed))
		c.lastTime = now
		return
	}

	c.lastValue = c.value() + v
	c.lastTime = now
}

// Reset forgets every observation, the priming period starts now
func (c *EMA) Reset() {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.lastValue, c.initSum = 0, 0
	c.lastTime = time.Time{}
	c.startedAt = c.clock.Now()
	c.primedObsLeft = c.obsCount
}

func (c *EMA) value() float64 {
	if c.lastValue == 0 {
		return 0
	}
	elapsed := c.clock.Now().Sub(c.lastTime)
	return c.lastValue * math.Exp(-float64(elapsed)/float64(c.avgInterval))
}
