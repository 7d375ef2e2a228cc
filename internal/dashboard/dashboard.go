package dashboard

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/banner"
	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/facts"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/Lumerin-protocol/miner-dashboard/internal/peermap"
	"github.com/Lumerin-protocol/miner-dashboard/internal/session"
	"github.com/Lumerin-protocol/miner-dashboard/internal/view"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var ErrNotRunning = errors.New("dashboard is not running")

const eventBuffer = 64

type Config struct {
	Facts       facts.Config
	Map         peermap.Config
	Settings    session.Settings
	BannerGrace time.Duration
}

type Deps struct {
	Blockchain chain.BlockchainClient
	Consensus  chain.ConsensusClient
	Network    chain.NetworkClient
	Accounts   chain.AccountService
	Geo        chain.GeoResolver
	Policy     chain.Policy
	Engines    mining.Factory
	Settings   session.SettingsStore
	Clock      clock.Clock
	Rand       *rand.Rand
}

// Dispatcher routes collaborator events into a single loop goroutine that owns every presenter
type Dispatcher struct {
	loop    *lib.Loop
	deps    Deps
	state   *view.State
	banners *banner.Debouncer
	facts   *facts.Presenter
	session *session.Controller
	peers   *peermap.Presenter
	log     interfaces.ILogger
	running atomic.Bool

	established bool // last consensus state seen by the loop

	heads     chan chain.HeadChangedEvent
	consensus chan chain.ConsensusEvent
	peerCh    chan chain.PeerEvent
	engineCh  chan mining.EngineEvent
	poolCh    chan mining.PoolEvent
	scope     event.SubscriptionScope
}

func New(cfg Config, deps Deps, state *view.State, log interfaces.ILogger) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	loop := lib.NewLoop(log.Named("LOOP"))
	scheduler := lib.NewLoopScheduler(deps.Clock, loop)

	d := &Dispatcher{
		loop:      loop,
		deps:      deps,
		state:     state,
		log:       log,
		heads:     make(chan chain.HeadChangedEvent, eventBuffer),
		consensus: make(chan chain.ConsensusEvent, eventBuffer),
		peerCh:    make(chan chain.PeerEvent, eventBuffer),
		engineCh:  make(chan mining.EngineEvent, eventBuffer),
		poolCh:    make(chan mining.PoolEvent, eventBuffer),
	}
	d.banners = banner.NewDebouncer(cfg.BannerGrace, scheduler, state, log.Named("BANNER"))
	d.facts = facts.NewPresenter(cfg.Facts, deps.Blockchain, deps.Consensus, deps.Accounts, deps.Policy, loop, scheduler, state, log.Named("FACTS"))
	d.session = session.NewController(cfg.Settings, deps.Settings, deps.Engines, deps.Consensus, deps.Network, d.banners, d.facts, state, log.Named("CTRL"))
	d.peers = peermap.NewPresenter(cfg.Map, deps.Geo, deps.Network, loop, scheduler, state, deps.Rand, log.Named("MAP"))
	d.session.OnEngineCreated(d.attachEngine)
	return d
}

func (d *Dispatcher) Run(ctx context.Context) error {
	d.scope.Track(d.deps.Blockchain.SubscribeHeadChanged(d.heads))
	d.scope.Track(d.deps.Consensus.SubscribeConsensus(d.consensus))
	d.scope.Track(d.deps.Network.SubscribePeers(d.peerCh))
	defer d.scope.Close()

	d.loop.Post(d.start)
	d.running.Store(true)
	defer d.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.forward(ctx)
	})
	g.Go(func() error {
		return d.loop.Run(ctx)
	})
	err := g.Wait()

	// loop has exited, the presenters can be closed from here
	d.peers.Stop()
	d.facts.Close()
	d.banners.Close()
	d.log.Info("dispatcher stopped")
	return err
}

func (d *Dispatcher) start() {
	d.log.Infof("session %s started", d.session.ID())
	d.session.Start()
	d.peers.Start()
	d.facts.OnHeadChanged(false)
	if d.deps.Consensus.Established() {
		d.onConsensus(chain.ConsensusEvent{Type: chain.ConsensusEstablished})
	}
}

// attachEngine subscribes to an engine created by the session, it runs on the loop
func (d *Dispatcher) attachEngine(e mining.Engine) {
	d.scope.Track(e.SubscribeEngine(d.engineCh))
	if pool, ok := e.(mining.PoolEngine); ok {
		d.scope.Track(pool.SubscribePool(d.poolCh))
	}
}

func (d *Dispatcher) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.heads:
			d.loop.Post(func() { d.facts.OnHeadChanged(ev.Branching) })
		case ev := <-d.consensus:
			d.loop.Post(func() { d.onConsensus(ev) })
		case ev := <-d.peerCh:
			d.loop.Post(func() { d.onPeer(ev) })
		case ev := <-d.engineCh:
			d.loop.Post(func() { d.onEngine(ev) })
		case ev := <-d.poolCh:
			d.loop.Post(func() { d.onPool(ev) })
		}
	}
}

func (d *Dispatcher) onConsensus(ev chain.ConsensusEvent) {
	d.log.Debugf("consensus %s", ev.Type)
	switch ev.Type {
	case chain.ConsensusEstablished:
		// start() reports an already established consensus, the node may deliver it again
		if d.established {
			return
		}
		d.established = true
		d.facts.OnConsensusEstablished()
		d.session.OnConsensusEstablished()
	case chain.ConsensusLost:
		d.established = false
		d.session.OnConsensusLost()
		d.facts.OnConsensusLost()
	case chain.ConsensusSyncing:
		d.established = false
		d.facts.OnSyncing(ev.TargetHeight)
	case chain.ConsensusSyncPhase:
		d.facts.OnSyncPhase(ev.Phase)
	}
}

func (d *Dispatcher) onPeer(ev chain.PeerEvent) {
	switch ev.Type {
	case chain.PeerJoined:
		d.facts.OnPeerJoined()
		d.peers.OnPeerJoined(ev.Peer)
	case chain.PeerLeft:
		d.peers.OnPeerLeft(ev.Peer)
	case chain.PeersChanged:
		d.session.OnPeersChanged(ev.Count)
		d.facts.OnPeersChanged(ev.Count)
	}
}

func (d *Dispatcher) onEngine(ev mining.EngineEvent) {
	switch ev.Type {
	case mining.EngineStarted, mining.EngineStopped:
		d.session.OnEngineStateChanged(ev.Kind)
	case mining.HashrateChanged:
		d.session.OnHashrateChanged(ev.Kind)
	}
}

func (d *Dispatcher) onPool(ev mining.PoolEvent) {
	switch ev.Type {
	case mining.PoolConnectionState:
		d.session.OnPoolConnectionState(ev.Attempt, ev.State)
	case mining.PoolConfirmedBalance:
		d.session.OnPoolBalance(ev.Balance)
	}
}

func (d *Dispatcher) Snapshot() view.Snapshot {
	return d.state.Snapshot()
}

func (d *Dispatcher) ToggleMining(ctx context.Context) error {
	return d.do(ctx, d.session.ToggleMining)
}

func (d *Dispatcher) ResumeMining(ctx context.Context) error {
	return d.do(ctx, d.session.StartMining)
}

func (d *Dispatcher) SetEngine(ctx context.Context, kind mining.EngineKind) error {
	return d.do(ctx, func() { d.session.SetCurrentMiner(kind) })
}

func (d *Dispatcher) SetThreads(ctx context.Context, n int) error {
	errCh := make(chan error, 1)
	if err := d.do(ctx, func() { errCh <- d.session.SetThreads(n) }); err != nil {
		return err
	}
	return <-errCh
}

func (d *Dispatcher) Reconnect(ctx context.Context) error {
	return d.do(ctx, d.session.Reconnect)
}

func (d *Dispatcher) do(ctx context.Context, f func()) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	return d.loop.Do(ctx, f)
}
