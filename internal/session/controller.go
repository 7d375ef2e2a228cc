package session

import (
	"errors"
	"fmt"

	"github.com/Lumerin-protocol/miner-dashboard/internal/banner"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/google/uuid"
)

var ErrInvalidThreads = errors.New("invalid thread count")

const (
	LabelPause  = "Pause Mining"
	LabelResume = "Resume Mining"
)

type SettingsStore interface {
	Save(s Settings) error
}

type Banners interface {
	Show(kind banner.Kind)
	Hide(kind banner.Kind)
	HideNow(kind banner.Kind)
}

type MinerFacts interface {
	OnOwnHashrateChanged(hashrate float64)
	OnMinerStopped()
	OnPoolBalance(balance uint64)
	OnPoolDisabled()
}

type View interface {
	SetMinerButtonLabel(label string)
	SetSession(s Snapshot)
}

type Consensus interface {
	Established() bool
}

type Network interface {
	Connect()
}

// Controller owns the active mining engine, it is the only component that starts or stops it.
// Methods must be called from the loop goroutine
type Controller struct {
	id        uuid.UUID
	settings  Settings
	store     SettingsStore
	factory   mining.Factory
	consensus Consensus
	network   Network
	banners   Banners
	facts     MinerFacts
	view      View
	log       interfaces.ILogger

	onEngineCreated func(e mining.Engine)

	paused          bool
	current         mining.Engine
	solo            mining.Engine
	pool            mining.PoolEngine
	prevPoolState   mining.ConnectionState
	poolUnreachable bool
	poolAttempt     uint64 // connection attempt the controller follows, 0 after Disconnect
	poolStates      lib.Emitter[mining.ConnectionState]
	offDeferred     func()
}

func NewController(
	settings Settings,
	store SettingsStore,
	factory mining.Factory,
	consensus Consensus,
	network Network,
	banners Banners,
	facts MinerFacts,
	view View,
	log interfaces.ILogger,
) *Controller {
	return &Controller{
		id:        uuid.New(),
		settings:  settings,
		store:     store,
		factory:   factory,
		consensus: consensus,
		network:   network,
		banners:   banners,
		facts:     facts,
		view:      view,
		log:       log,
	}
}

// OnEngineCreated registers a hook called once per engine right after it was instantiated
func (c *Controller) OnEngineCreated(fn func(e mining.Engine)) {
	c.onEngineCreated = fn
}

func (c *Controller) ID() uuid.UUID {
	return c.id
}

// Start selects the engine stored in the settings and connects to the network
func (c *Controller) Start() {
	c.selectEngine(c.settings.EngineKind())
	if c.settings.Threads <= 0 {
		c.settings.Threads = c.current.Threads()
	}
	c.network.Connect()
	c.publish()
}

// SetCurrentMiner switches the engine, the previous one is always stopped first
func (c *Controller) SetCurrentMiner(kind mining.EngineKind) {
	c.settings.PoolEnabled = kind == mining.KindPool
	c.save()
	c.selectEngine(kind)
	c.publish()
}

func (c *Controller) selectEngine(kind mining.EngineKind) {
	next := c.engine(kind)
	if next == c.current {
		return
	}
	if c.current != nil {
		c.log.Infof("switching from %s to %s engine", c.current.Kind(), kind)
		c.StopMining(false)
	}
	c.current = next

	if kind != mining.KindPool {
		c.facts.OnPoolDisabled()
		c.poolUnreachable = false
		c.banners.HideNow(banner.PoolUnreachable)
	}

	if !c.paused {
		c.StartMining()
	} else {
		c.StopMining(false)
	}
}

func (c *Controller) ToggleMining() {
	if !c.paused {
		c.StopMining(true)
	} else {
		c.StartMining()
	}
}

// StartMining clears the paused flag, the engine starts once consensus is established
func (c *Controller) StartMining() {
	c.paused = false
	if !c.consensus.Established() {
		c.log.Debug("waiting for consensus to start mining")
		c.onMinerChanged()
		return
	}
	if c.current.Kind() == mining.KindPool {
		c.startPool()
	} else {
		c.current.StartWork()
	}
	c.onMinerChanged()
}

// StopMining stops the engine. With disableRestart the session stays paused
// until the user resumes, otherwise it resumes on the next consensus
func (c *Controller) StopMining(disableRestart bool) {
	if disableRestart {
		c.paused = true
	}
	if c.current == nil {
		return
	}
	c.current.StopWork()
	if c.current.Kind() == mining.KindPool {
		c.cancelDeferredStart()
		// events of the dropped attempt may still be queued, they are ignored from now on
		c.poolAttempt = 0
		c.prevPoolState = mining.ConnectionClosed
		c.pool.Disconnect()
	}
	c.onMinerChanged()
}

// startPool starts the pool engine right away if it is connected, otherwise
// once the connection is established
func (c *Controller) startPool() {
	if c.pool.ConnectionState() == mining.ConnectionConnected {
		c.pool.StartWork()
		return
	}

	if c.offDeferred == nil {
		c.offDeferred = c.poolStates.On(func(state mining.ConnectionState) {
			if state == mining.ConnectionConnecting {
				return
			}
			c.cancelDeferredStart()
			if state == mining.ConnectionConnected && !c.paused && c.current == c.pool && c.consensus.Established() {
				c.pool.StartWork()
			}
		})
	}

	if c.pool.ConnectionState() == mining.ConnectionClosed {
		c.log.Infof("connecting to pool %s:%d", c.settings.PoolHost, c.settings.PoolPort)
		c.poolAttempt = c.pool.Connect(c.settings.PoolHost, c.settings.PoolPort)
		c.prevPoolState = mining.ConnectionConnecting
	}
}

func (c *Controller) cancelDeferredStart() {
	if c.offDeferred != nil {
		c.offDeferred()
		c.offDeferred = nil
	}
}

func (c *Controller) SetThreads(n int) error {
	if n <= 0 {
		return lib.WrapError(ErrInvalidThreads, fmt.Errorf("got %d", n))
	}
	c.settings.Threads = n
	if c.solo != nil {
		c.solo.SetThreads(n)
	}
	if c.pool != nil {
		c.pool.SetThreads(n)
	}
	c.save()
	c.publish()
	return nil
}

// Reconnect asks the network client to connect again and retries an unreachable pool
func (c *Controller) Reconnect() {
	c.network.Connect()
	if c.poolUnreachable && !c.paused && c.current == c.pool && c.consensus.Established() {
		c.startPool()
	}
	c.publish()
}

func (c *Controller) OnConsensusEstablished() {
	c.banners.Hide(banner.NetworkDisconnected)
	if !c.paused {
		c.StartMining()
	}
	c.publish()
}

// OnConsensusLost stops the engine and keeps the paused flag as it was
func (c *Controller) OnConsensusLost() {
	c.StopMining(false)
	c.publish()
}

func (c *Controller) OnPeersChanged(count int) {
	if count > 0 {
		c.banners.Hide(banner.NetworkDisconnected)
	} else {
		c.banners.Show(banner.NetworkDisconnected)
	}
	c.publish()
}

// OnEngineStateChanged handles start and stop notifications of the current engine
func (c *Controller) OnEngineStateChanged(kind mining.EngineKind) {
	if c.current == nil || c.current.Kind() != kind {
		return
	}
	c.onMinerChanged()
}

func (c *Controller) OnHashrateChanged(kind mining.EngineKind) {
	if c.current == nil || c.current.Kind() != kind {
		return
	}
	c.facts.OnOwnHashrateChanged(c.current.Hashrate())
}

// OnPoolConnectionState handles a state of the pool connection attempt. States of
// attempts other than the followed one are stale and dropped
func (c *Controller) OnPoolConnectionState(attempt uint64, state mining.ConnectionState) {
	if attempt == 0 || attempt != c.poolAttempt {
		c.log.Debugf("dropped pool state %s of attempt %d", state, attempt)
		return
	}
	switch {
	case state == mining.ConnectionConnected:
		c.poolUnreachable = false
		if c.current == c.pool {
			c.facts.OnPoolBalance(c.pool.ConfirmedBalance())
		}
		c.banners.Hide(banner.PoolUnreachable)
	case state == mining.ConnectionClosed && c.current == c.pool && c.prevPoolState == mining.ConnectionConnecting:
		c.log.Warn("pool connection failed")
		c.poolUnreachable = true
		c.facts.OnOwnHashrateChanged(0)
		c.banners.Show(banner.PoolUnreachable)
	}
	c.prevPoolState = state
	c.poolStates.Emit(state)
	c.publish()
}

func (c *Controller) OnPoolBalance(balance uint64) {
	if c.current != c.pool {
		return
	}
	c.facts.OnPoolBalance(balance)
}

func (c *Controller) Paused() bool {
	return c.paused
}

func (c *Controller) State() State {
	switch {
	case c.paused || c.current == nil:
		return Paused
	case !c.consensus.Established():
		return WaitingForConsensus
	case c.current.Kind() == mining.KindSolo:
		if c.current.Working() {
			return MiningSolo
		}
		return StartingSolo
	case c.poolUnreachable:
		return PoolUnreachable
	case c.pool.ConnectionState() == mining.ConnectionConnected && c.pool.Working():
		return MiningPool
	}
	return StartingPool
}

func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		ID:      c.id,
		State:   c.State(),
		Paused:  c.paused,
		Threads: c.settings.Threads,
	}
	if c.current != nil {
		s.Engine = c.current.Kind()
	}
	return s
}

// onMinerChanged reflects the paused flag rather than the engine state, an unpaused
// engine that is not working yet will start on its own
func (c *Controller) onMinerChanged() {
	if !c.paused {
		c.view.SetMinerButtonLabel(LabelPause)
		c.banners.Hide(banner.MinerStopped)
	} else {
		c.view.SetMinerButtonLabel(LabelResume)
		c.facts.OnMinerStopped()
		c.banners.Show(banner.MinerStopped)
	}
	c.publish()
}

func (c *Controller) engine(kind mining.EngineKind) mining.Engine {
	if kind == mining.KindPool {
		if c.pool == nil {
			c.pool = c.factory.NewPool()
			c.prevPoolState = c.pool.ConnectionState()
			c.initEngine(c.pool)
		}
		return c.pool
	}
	if c.solo == nil {
		c.solo = c.factory.NewSolo()
		c.initEngine(c.solo)
	}
	return c.solo
}

func (c *Controller) initEngine(e mining.Engine) {
	c.log.Infof("%s engine instantiated", e.Kind())
	if c.settings.Threads > 0 {
		e.SetThreads(c.settings.Threads)
	}
	if c.onEngineCreated != nil {
		c.onEngineCreated(e)
	}
}

func (c *Controller) save() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.settings); err != nil {
		c.log.Warnf("failed to save settings: %s", err)
	}
}

func (c *Controller) publish() {
	c.view.SetSession(c.Snapshot())
}
