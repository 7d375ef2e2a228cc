package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	batchSize      = 1024
	reportInterval = time.Second
	emaInterval    = 30 * time.Second
	emaPrimingObs  = 3
)

// HitThreshold is the largest leading hash word that counts as a hit when a hit is
// expected every difficulty*hashesPerDifficulty hashes. Unknown difficulty never hits
func HitThreshold(difficulty, hashesPerDifficulty float64) uint64 {
	expected := difficulty * hashesPerDifficulty
	if expected <= 0 || math.IsNaN(expected) {
		return 0
	}
	if expected <= 1 {
		return math.MaxUint64
	}
	return uint64(math.MaxUint64 / expected)
}

// cpuMiner hashes random headers with sha256 on a number of goroutines and reports
// the hashrate. Hits below the threshold are handed to onHit from the worker goroutines
type cpuMiner struct {
	kind  mining.EngineKind
	clock clock.Clock
	log   interfaces.ILogger

	threshold func() uint64
	onHit     func(nonce uint64)

	mu      sync.Mutex // serializes start and stop
	threads atomic.Int64
	task    *lib.Task

	hashes   atomic.Uint64
	hashrate atomic.Float64
	ema      *EMA
	feed     event.Feed
}

func newCPUMiner(kind mining.EngineKind, clk clock.Clock, log interfaces.ILogger) *cpuMiner {
	m := &cpuMiner{
		kind:      kind,
		clock:     clk,
		log:       log,
		ema:       NewEMA(emaInterval, emaPrimingObs, clk),
		threshold: func() uint64 { return 0 },
		onHit:     func(uint64) {},
	}
	m.threads.Store(1)
	m.task = lib.NewTaskFunc(m.run)
	return m
}

func (m *cpuMiner) Kind() mining.EngineKind {
	return m.kind
}

func (m *cpuMiner) StartWork() {
	m.mu.Lock()
	m.ema.Reset()
	m.hashes.Store(0)
	started := m.task.Start(context.Background())
	m.mu.Unlock()

	if started {
		m.log.Infof("%s mining started", m.kind)
		m.feed.Send(mining.EngineEvent{Kind: m.kind, Type: mining.EngineStarted})
	}
}

func (m *cpuMiner) StopWork() {
	m.mu.Lock()
	working := m.task.IsRunning()
	<-m.task.Stop()
	m.mu.Unlock()

	if working {
		m.hashrate.Store(0)
		m.log.Infof("%s mining stopped", m.kind)
		m.feed.Send(mining.EngineEvent{Kind: m.kind, Type: mining.EngineStopped})
	}
}

func (m *cpuMiner) Working() bool {
	return m.task.IsRunning()
}

func (m *cpuMiner) Hashrate() float64 {
	return m.hashrate.Load()
}

// SetThreads restarts the workers if they are running
func (m *cpuMiner) SetThreads(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threads.Swap(int64(n)) == int64(n) {
		return
	}
	if m.task.IsRunning() {
		<-m.task.Stop()
		m.task.Start(context.Background())
	}
}

func (m *cpuMiner) Threads() int {
	return int(m.threads.Load())
}

func (m *cpuMiner) SubscribeEngine(ch chan<- mining.EngineEvent) event.Subscription {
	return m.feed.Subscribe(ch)
}

func (m *cpuMiner) run(ctx context.Context) error {
	threads := int(m.threads.Load())

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		seed := rand.Int63()
		g.Go(func() error {
			return m.work(ctx, seed)
		})
	}
	g.Go(func() error {
		return m.report(ctx)
	})
	return g.Wait()
}

func (m *cpuMiner) work(ctx context.Context, seed int64) error {
	var header [40]byte
	rnd := rand.New(rand.NewSource(seed))
	_, _ = rnd.Read(header[:32])
	nonce := uint64(0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		threshold := m.threshold()
		for i := 0; i < batchSize; i++ {
			binary.LittleEndian.PutUint64(header[32:], nonce)
			sum := sha256.Sum256(header[:])
			if binary.BigEndian.Uint64(sum[:8]) < threshold {
				m.onHit(nonce)
			}
			nonce++
		}
		m.hashes.Add(batchSize)
	}
}

func (m *cpuMiner) report(ctx context.Context) error {
	ticker := m.clock.Ticker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *cpuMiner) sample() {
	m.ema.Add(float64(m.hashes.Swap(0)))
	rate := m.ema.ValuePer(time.Second)
	if rate == 0 {
		return
	}
	m.hashrate.Store(rate)
	m.feed.Send(mining.EngineEvent{Kind: m.kind, Type: mining.HashrateChanged, Hashrate: rate})
}
