package peermap

import (
	"context"
	"math/rand"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/gammazero/deque"
)

type View interface {
	HighlightCell(cell Cell, category Category)
	UnhighlightCell(cell Cell)
}

type Addresses interface {
	KnownAddresses() []chain.Peer
}

type Config struct {
	CellSize       float64       // degrees
	KnownMax       int           // highlighted known peers
	SampleInterval time.Duration // one known address is sampled per tick
	SampleBatch    int
	Jitter         float64 // max random offset in degrees
	LookupTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		CellSize:       2,
		KnownMax:       20,
		SampleInterval: time.Second,
		SampleBatch:    10,
		Jitter:         0.5,
		LookupTimeout:  10 * time.Second,
	}
}

// Presenter keeps the highlighted map cells for the own node, connected peers and
// a sample of known addresses. Methods must be called from the loop goroutine
type Presenter struct {
	cfg       Config
	geo       chain.GeoResolver
	addresses Addresses
	exec      lib.Executor
	view      View
	log       interfaces.ILogger
	rnd       *rand.Rand

	joined    lib.Set[string]
	connected map[string]Cell
	known     *lib.BoundRandomMap[Cell]
	counts    map[Cell]*[categoryCount]int
	polled    *deque.Deque[chain.Peer]
	sampler   *lib.TimerSlot
	running   bool
	ownQueued bool
}

func NewPresenter(cfg Config, geo chain.GeoResolver, addresses Addresses, exec lib.Executor, scheduler lib.Scheduler, view View, rnd *rand.Rand, log interfaces.ILogger) *Presenter {
	return &Presenter{
		cfg:       cfg,
		geo:       geo,
		addresses: addresses,
		exec:      exec,
		view:      view,
		log:       log,
		rnd:       rnd,
		joined:    lib.NewSet[string](),
		connected: make(map[string]Cell),
		known:     lib.NewBoundRandomMap[Cell](cfg.KnownMax, rnd),
		counts:    make(map[Cell]*[categoryCount]int),
		polled:    deque.New[chain.Peer](),
		sampler:   lib.NewTimerSlot(scheduler),
	}
}

// Start highlights the own location and starts probing known addresses
func (p *Presenter) Start() {
	if p.running {
		return
	}
	p.running = true
	if !p.ownQueued {
		p.ownQueued = true
		p.resolve("", func(loc *chain.Location) {
			p.inc(CellAt(loc.Latitude, loc.Longitude, p.cfg.CellSize), Own)
		})
	}
	p.scheduleSample()
}

func (p *Presenter) Stop() {
	p.running = false
	p.sampler.Stop()
}

func (p *Presenter) OnPeerJoined(peer chain.Peer) {
	if peer.Host == "" || p.joined.Contains(peer.ID) {
		return
	}
	p.joined.Add(peer.ID)

	p.resolve(peer.Host, func(loc *chain.Location) {
		if !p.joined.Contains(peer.ID) {
			p.log.Debugf("peer %s left before its location was resolved", peer.ID)
			return
		}
		if _, ok := p.connected[peer.ID]; ok {
			return
		}
		if cell, ok := p.known.Remove(peer.ID); ok {
			p.dec(cell, Known)
		}
		cell := p.jitteredCell(loc)
		p.connected[peer.ID] = cell
		p.inc(cell, Connected)
	})
}

func (p *Presenter) OnPeerLeft(peer chain.Peer) {
	p.joined.Remove(peer.ID)
	if cell, ok := p.connected[peer.ID]; ok {
		delete(p.connected, peer.ID)
		p.dec(cell, Connected)
	}
}

func (p *Presenter) KnownCount() int {
	return p.known.Count()
}

func (p *Presenter) ConnectedCount() int {
	return len(p.connected)
}

func (p *Presenter) scheduleSample() {
	p.sampler.Reset(p.cfg.SampleInterval, func() {
		if !p.running {
			return
		}
		p.sample()
		p.scheduleSample()
	})
}

// sample looks up one address per tick. Once the queue runs dry a new batch of
// consecutive addresses is taken from a random offset of the known list
func (p *Presenter) sample() {
	if p.polled.Len() == 0 {
		addrs := p.addresses.KnownAddresses()
		start := p.rnd.Intn(len(addrs) + 1)
		for i := start; i < len(addrs) && i < start+p.cfg.SampleBatch; i++ {
			p.polled.PushBack(addrs[i])
		}
	}
	if p.polled.Len() == 0 {
		return
	}

	peer := p.polled.PopFront()
	if peer.Host == "" || p.joined.Contains(peer.ID) {
		return
	}
	p.resolve(peer.Host, func(loc *chain.Location) {
		if !p.running || p.joined.Contains(peer.ID) {
			return
		}
		p.highlightKnown(peer.ID, p.jitteredCell(loc))
	})
}

func (p *Presenter) highlightKnown(id string, cell Cell) {
	if old, ok := p.known.Get(id); ok {
		if old == cell {
			return
		}
		p.dec(old, Known)
	}
	evictedID, evicted, ok := p.known.Put(id, cell)
	p.inc(cell, Known)
	if ok {
		p.log.Debugf("known peer %s evicted from the map", evictedID)
		p.dec(evicted, Known)
	}
}

// resolve looks up host off-loop, apply runs on the loop only when a location was found
func (p *Presenter) resolve(host string, apply func(loc *chain.Location)) {
	p.exec.Async(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.LookupTimeout)
		defer cancel()

		loc, err := p.geo.Resolve(ctx, host)
		if err != nil {
			return func() { p.log.Debugf("geo lookup for %q failed: %s", host, err) }
		}
		if loc == nil {
			return nil
		}
		return func() { apply(loc) }
	})
}

func (p *Presenter) jitteredCell(loc *chain.Location) Cell {
	return CellAt(loc.Latitude+p.noise(), loc.Longitude+p.noise(), p.cfg.CellSize)
}

func (p *Presenter) noise() float64 {
	if p.cfg.Jitter == 0 {
		return 0
	}
	return (1 - p.rnd.Float64()*2) * p.cfg.Jitter
}

func (p *Presenter) inc(cell Cell, category Category) {
	c, ok := p.counts[cell]
	if !ok {
		c = new([categoryCount]int)
		p.counts[cell] = c
	}
	c[category]++
	p.refresh(cell)
}

func (p *Presenter) dec(cell Cell, category Category) {
	c, ok := p.counts[cell]
	if !ok || c[category] == 0 {
		return
	}
	c[category]--
	p.refresh(cell)
}

// refresh highlights the cell with the highest category still referencing it
func (p *Presenter) refresh(cell Cell) {
	c := p.counts[cell]
	for category := categoryCount - 1; category >= 0; category-- {
		if c[category] > 0 {
			p.view.HighlightCell(cell, category)
			return
		}
	}
	delete(p.counts, cell)
	p.view.UnhighlightCell(cell)
}
