package session

import (
	"errors"
	"testing"

	"github.com/Lumerin-protocol/miner-dashboard/internal/banner"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/Lumerin-protocol/miner-dashboard/internal/testlib"
	"github.com/stretchr/testify/require"
)

type fakeBanners struct {
	wanted map[banner.Kind]bool
	shows  map[banner.Kind]int
}

func newFakeBanners() *fakeBanners {
	return &fakeBanners{wanted: make(map[banner.Kind]bool), shows: make(map[banner.Kind]int)}
}

func (b *fakeBanners) Show(k banner.Kind) {
	b.wanted[k] = true
	b.shows[k]++
}
func (b *fakeBanners) Hide(k banner.Kind)    { b.wanted[k] = false }
func (b *fakeBanners) HideNow(k banner.Kind) { b.wanted[k] = false }

type fakeFacts struct {
	own          []float64
	stopped      int
	poolBalance  uint64
	poolDisabled bool
}

func (f *fakeFacts) OnOwnHashrateChanged(h float64) { f.own = append(f.own, h) }
func (f *fakeFacts) OnMinerStopped()                { f.stopped++ }
func (f *fakeFacts) OnPoolBalance(b uint64) {
	f.poolBalance = b
	f.poolDisabled = false
}
func (f *fakeFacts) OnPoolDisabled() { f.poolDisabled = true }

type fakeView struct {
	label   string
	session Snapshot
}

func (v *fakeView) SetMinerButtonLabel(l string) { v.label = l }
func (v *fakeView) SetSession(s Snapshot)        { v.session = s }

type fakeStore struct {
	saved []Settings
	err   error
}

func (s *fakeStore) Save(settings Settings) error {
	s.saved = append(s.saved, settings)
	return s.err
}

type fixture struct {
	ctrl      *Controller
	factory   *testlib.FakeFactory
	consensus *testlib.FakeConsensus
	network   *testlib.FakeNetwork
	banners   *fakeBanners
	facts     *fakeFacts
	view      *fakeView
	store     *fakeStore
	created   []mining.EngineKind

	// pool events wait here until deliver, like behind the dispatcher channel
	poolEvents chan mining.PoolEvent
}

func newFixture(settings Settings) *fixture {
	f := &fixture{
		factory:   testlib.NewFakeFactory(),
		consensus: &testlib.FakeConsensus{},
		network:   testlib.NewFakeNetwork(),
		banners:   newFakeBanners(),
		facts:     &fakeFacts{},
		view:      &fakeView{},
		store:     &fakeStore{},

		poolEvents: make(chan mining.PoolEvent, 64),
	}
	f.factory.Pool.SubscribePool(f.poolEvents)
	f.ctrl = NewController(settings, f.store, f.factory, f.consensus, f.network, f.banners, f.facts, f.view, lib.NewTestLogger())
	f.ctrl.OnEngineCreated(func(e mining.Engine) { f.created = append(f.created, e.Kind()) })
	return f
}

// deliver hands every queued pool event to the controller in order
func (f *fixture) deliver() {
	for {
		select {
		case ev := <-f.poolEvents:
			switch ev.Type {
			case mining.PoolConnectionState:
				f.ctrl.OnPoolConnectionState(ev.Attempt, ev.State)
			case mining.PoolConfirmedBalance:
				f.ctrl.OnPoolBalance(ev.Balance)
			}
		default:
			return
		}
	}
}

func (f *fixture) poolState(s mining.ConnectionState) {
	f.factory.Pool.SetConnectionState(s)
	f.deliver()
}

func (f *fixture) establish() {
	f.consensus.SetEstablished(true)
	f.ctrl.OnConsensusEstablished()
}

var poolSettings = Settings{PoolEnabled: true, PoolHost: "pool.example.org", PoolPort: 8443, Threads: 4}

func TestStartSoloWaitsForConsensus(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()

	require.Equal(t, 1, f.network.ConnectCalls())
	require.Equal(t, []mining.EngineKind{mining.KindSolo}, f.created)
	require.Equal(t, 0, f.factory.PoolCalls)
	require.Equal(t, 0, f.factory.Solo.StartCalls())
	require.Equal(t, WaitingForConsensus, f.view.session.State)
	require.Equal(t, 1, f.view.session.Threads)
	require.Equal(t, LabelPause, f.view.label)

	f.establish()
	require.Equal(t, 1, f.factory.Solo.StartCalls())
	require.Equal(t, MiningSolo, f.ctrl.State())
}

func TestToggle(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()
	f.establish()

	f.ctrl.ToggleMining()
	require.True(t, f.ctrl.Paused())
	require.Equal(t, Paused, f.view.session.State)
	require.Equal(t, 1, f.factory.Solo.StopCalls())
	require.Equal(t, LabelResume, f.view.label)
	require.True(t, f.banners.wanted[banner.MinerStopped])
	require.Equal(t, 1, f.facts.stopped)

	f.ctrl.ToggleMining()
	require.False(t, f.ctrl.Paused())
	require.Equal(t, 2, f.factory.Solo.StartCalls())
	require.False(t, f.banners.wanted[banner.MinerStopped])
	require.Equal(t, MiningSolo, f.view.session.State)
}

func TestConsensusLostKeepsPausedFlag(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()
	f.establish()

	f.consensus.SetEstablished(false)
	f.ctrl.OnConsensusLost()
	require.Equal(t, 1, f.factory.Solo.StopCalls())
	require.False(t, f.ctrl.Paused())
	require.False(t, f.factory.Solo.Working())

	f.establish()
	require.Equal(t, 2, f.factory.Solo.StartCalls())
	require.True(t, f.factory.Solo.Working())
}

func TestConsensusRegainedStaysPausedWhenUserPaused(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()
	f.establish()
	f.ctrl.StopMining(true)

	f.consensus.SetEstablished(false)
	f.ctrl.OnConsensusLost()
	f.establish()

	require.True(t, f.ctrl.Paused())
	require.Equal(t, 1, f.factory.Solo.StartCalls())
	require.False(t, f.factory.Solo.Working())
}

func TestPoolStartDeferredUntilConnected(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()

	host, port := f.factory.Pool.Address()
	require.Equal(t, "pool.example.org", host)
	require.Equal(t, 8443, port)
	require.Equal(t, 4, f.factory.Pool.Threads())
	f.deliver()
	require.Equal(t, 0, f.factory.Pool.StartCalls())
	require.Equal(t, StartingPool, f.ctrl.State())

	f.factory.Pool.SetConfirmedBalance(700)
	f.poolState(mining.ConnectionConnected)
	require.Equal(t, 1, f.factory.Pool.StartCalls())
	require.Equal(t, uint64(700), f.facts.poolBalance)
	require.Equal(t, MiningPool, f.ctrl.State())

	// listener was one-shot
	f.poolState(mining.ConnectionClosed)
	f.poolState(mining.ConnectionConnected)
	require.Equal(t, 1, f.factory.Pool.StartCalls())
}

func TestPoolDeferredStartDiscardedWhenPaused(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()

	f.ctrl.ToggleMining()
	require.Equal(t, 1, f.factory.Pool.DisconnectCalls())
	f.deliver()
	f.poolState(mining.ConnectionConnected)

	require.Equal(t, 0, f.factory.Pool.StartCalls())
	require.False(t, f.banners.wanted[banner.PoolUnreachable])
}

func TestPoolDeferredStartDiscardedOnSwitch(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()

	f.ctrl.SetCurrentMiner(mining.KindSolo)
	require.Equal(t, 1, f.factory.Solo.StartCalls())
	require.True(t, f.facts.poolDisabled)

	f.poolState(mining.ConnectionConnected)
	require.Equal(t, 0, f.factory.Pool.StartCalls())
	require.Equal(t, MiningSolo, f.ctrl.State())
	require.False(t, f.store.saved[len(f.store.saved)-1].PoolEnabled)
}

func TestDeferredListenerDoesNotStack(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()

	f.ctrl.StartMining()
	f.ctrl.StartMining()
	f.poolState(mining.ConnectionConnected)

	require.Equal(t, 1, f.factory.Pool.StartCalls())
	require.Equal(t, 1, f.factory.Pool.ConnectCalls())
}

func TestPoolUnreachable(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()

	f.poolState(mining.ConnectionClosed)
	require.True(t, f.banners.wanted[banner.PoolUnreachable])
	require.Equal(t, PoolUnreachable, f.ctrl.State())
	require.Equal(t, []float64{0}, f.facts.own)
	require.Equal(t, 0, f.factory.Pool.StartCalls())

	f.ctrl.Reconnect()
	require.Equal(t, 2, f.factory.Pool.ConnectCalls())
	f.deliver()
	f.poolState(mining.ConnectionConnected)

	require.False(t, f.banners.wanted[banner.PoolUnreachable])
	require.Equal(t, 1, f.factory.Pool.StartCalls())
	require.Equal(t, MiningPool, f.ctrl.State())
}

func TestDisconnectAfterConnectedIsNotUnreachable(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()
	f.poolState(mining.ConnectionConnected)

	f.poolState(mining.ConnectionClosed)
	require.False(t, f.banners.wanted[banner.PoolUnreachable])
}

func TestSwitchStopsPreviousEngineFirst(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()
	f.establish()

	f.ctrl.SetCurrentMiner(mining.KindPool)
	require.Equal(t, 1, f.factory.Solo.StopCalls())
	require.False(t, f.factory.Solo.Working())
	require.Equal(t, 1, f.factory.Pool.ConnectCalls())
	require.True(t, f.store.saved[len(f.store.saved)-1].PoolEnabled)

	f.ctrl.SetCurrentMiner(mining.KindPool)
	require.Equal(t, 1, f.factory.PoolCalls)
	require.Equal(t, 1, f.factory.Pool.ConnectCalls())
}

func TestSwitchWhilePausedDoesNotStart(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()
	f.establish()
	f.ctrl.ToggleMining()

	f.ctrl.SetCurrentMiner(mining.KindPool)
	require.Equal(t, 0, f.factory.Pool.StartCalls())
	require.Equal(t, 0, f.factory.Pool.ConnectCalls())
	require.Equal(t, Paused, f.ctrl.State())
	require.Equal(t, mining.KindPool, f.view.session.Engine)
}

func TestPeersChangedBanner(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()

	f.ctrl.OnPeersChanged(0)
	require.True(t, f.banners.wanted[banner.NetworkDisconnected])

	f.ctrl.OnPeersChanged(3)
	require.False(t, f.banners.wanted[banner.NetworkDisconnected])
}

func TestHashrateFromCurrentEngineOnly(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()
	f.factory.Solo.SetHashrate(1500)

	f.ctrl.OnHashrateChanged(mining.KindPool)
	require.Empty(t, f.facts.own)

	f.ctrl.OnHashrateChanged(mining.KindSolo)
	require.Equal(t, []float64{1500}, f.facts.own)
}

func TestSetThreads(t *testing.T) {
	f := newFixture(Settings{})
	f.ctrl.Start()
	f.ctrl.SetCurrentMiner(mining.KindPool)

	require.NoError(t, f.ctrl.SetThreads(6))
	require.Equal(t, 6, f.factory.Solo.Threads())
	require.Equal(t, 6, f.factory.Pool.Threads())
	require.Equal(t, 6, f.view.session.Threads)
	require.Equal(t, 6, f.store.saved[len(f.store.saved)-1].Threads)

	err := f.ctrl.SetThreads(0)
	require.ErrorIs(t, err, ErrInvalidThreads)
}

func TestSaveErrorIsNotFatal(t *testing.T) {
	f := newFixture(Settings{})
	f.store.err = errors.New("read-only filesystem")
	f.ctrl.Start()

	require.NoError(t, f.ctrl.SetThreads(2))
	require.Equal(t, 2, f.view.session.Threads)
}

func TestPoolConnectedAfterSwitchKeepsBalanceOff(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()
	f.ctrl.SetCurrentMiner(mining.KindSolo)

	f.factory.Pool.SetConfirmedBalance(700)
	f.poolState(mining.ConnectionConnected)
	f.ctrl.OnPoolBalance(700)

	require.True(t, f.facts.poolDisabled)
	require.Equal(t, uint64(0), f.facts.poolBalance)
}

func TestPauseResumeWhileConnecting(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()

	// both commands run before the events they cause reach the controller
	f.ctrl.ToggleMining()
	f.ctrl.ToggleMining()
	require.Equal(t, 2, f.factory.Pool.ConnectCalls())
	f.factory.Pool.SetConnectionState(mining.ConnectionConnected)
	f.deliver()

	require.False(t, f.ctrl.Paused())
	require.Equal(t, 0, f.banners.shows[banner.PoolUnreachable])
	require.Empty(t, f.facts.own)
	require.Equal(t, 1, f.factory.Pool.StartCalls())
	require.Equal(t, MiningPool, f.ctrl.State())
}

func TestConnectedOfDroppedAttemptIgnored(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()
	f.deliver()

	// the first attempt connects but the user pauses before the event arrives
	f.factory.Pool.SetConnectionState(mining.ConnectionConnected)
	f.ctrl.ToggleMining()
	f.ctrl.ToggleMining()
	f.deliver()

	require.Equal(t, 0, f.factory.Pool.StartCalls())
	require.Equal(t, StartingPool, f.ctrl.State())

	f.poolState(mining.ConnectionConnected)
	require.Equal(t, 1, f.factory.Pool.StartCalls())
	require.Equal(t, MiningPool, f.ctrl.State())
	require.Equal(t, 0, f.banners.shows[banner.PoolUnreachable])
}

func TestSwitchPoolSoloPoolWhileConnecting(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()

	f.ctrl.SetCurrentMiner(mining.KindSolo)
	f.ctrl.SetCurrentMiner(mining.KindPool)
	require.Equal(t, 2, f.factory.Pool.ConnectCalls())
	require.Equal(t, 1, f.factory.Solo.StartCalls())
	require.Equal(t, 1, f.factory.Solo.StopCalls())
	f.deliver()

	require.Equal(t, 0, f.banners.shows[banner.PoolUnreachable])
	require.Equal(t, StartingPool, f.ctrl.State())

	f.poolState(mining.ConnectionConnected)
	require.Equal(t, 1, f.factory.Pool.StartCalls())
	require.Equal(t, MiningPool, f.ctrl.State())
}

func TestFailureOfFollowedAttemptAfterResume(t *testing.T) {
	f := newFixture(poolSettings)
	f.ctrl.Start()
	f.establish()

	f.ctrl.ToggleMining()
	f.ctrl.ToggleMining()
	f.poolState(mining.ConnectionClosed)

	require.Equal(t, 1, f.banners.shows[banner.PoolUnreachable])
	require.Equal(t, PoolUnreachable, f.ctrl.State())
	require.Equal(t, []float64{0}, f.facts.own)
}
