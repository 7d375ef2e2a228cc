package testlib

import (
	"sync"

	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/ethereum/go-ethereum/event"
)

type FakeEngine struct {
	mu         sync.Mutex
	kind       mining.EngineKind
	working    bool
	hashrate   float64
	threads    int
	startCalls int
	stopCalls  int
	feed       event.Feed
}

func NewFakeEngine(kind mining.EngineKind) *FakeEngine {
	return &FakeEngine{kind: kind, threads: 1}
}

func (f *FakeEngine) Kind() mining.EngineKind {
	return f.kind
}

func (f *FakeEngine) StartWork() {
	f.mu.Lock()
	f.working = true
	f.startCalls++
	f.mu.Unlock()
	f.feed.Send(mining.EngineEvent{Kind: f.kind, Type: mining.EngineStarted})
}

func (f *FakeEngine) StopWork() {
	f.mu.Lock()
	f.working = false
	f.stopCalls++
	f.mu.Unlock()
	f.feed.Send(mining.EngineEvent{Kind: f.kind, Type: mining.EngineStopped})
}

func (f *FakeEngine) Working() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.working
}

func (f *FakeEngine) Hashrate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashrate
}

func (f *FakeEngine) SetHashrate(v float64) {
	f.mu.Lock()
	f.hashrate = v
	f.mu.Unlock()
	f.feed.Send(mining.EngineEvent{Kind: f.kind, Type: mining.HashrateChanged, Hashrate: v})
}

func (f *FakeEngine) SetThreads(n int) {
	f.mu.Lock()
	f.threads = n
	f.mu.Unlock()
}

func (f *FakeEngine) Threads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threads
}

func (f *FakeEngine) StartCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func (f *FakeEngine) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

func (f *FakeEngine) SubscribeEngine(ch chan<- mining.EngineEvent) event.Subscription {
	return f.feed.Subscribe(ch)
}

type FakePoolEngine struct {
	*FakeEngine
	mu              sync.Mutex
	sendMu          sync.Mutex // orders a state change with its notification
	state           mining.ConnectionState
	attempt         uint64
	host            string
	port            int
	balance         uint64
	connectCalls    int
	disconnectCalls int
	poolFeed        event.Feed
}

func NewFakePoolEngine() *FakePoolEngine {
	return &FakePoolEngine{FakeEngine: NewFakeEngine(mining.KindPool)}
}

// Connect starts a new attempt in Connecting when closed, the test decides how the attempt ends
func (f *FakePoolEngine) Connect(host string, port int) uint64 {
	f.mu.Lock()
	f.host, f.port = host, port
	f.connectCalls++
	if f.state != mining.ConnectionClosed {
		attempt := f.attempt
		f.mu.Unlock()
		return attempt
	}
	f.attempt++
	attempt := f.attempt
	f.mu.Unlock()
	f.SetConnectionState(mining.ConnectionConnecting)
	return attempt
}

func (f *FakePoolEngine) Disconnect() {
	f.mu.Lock()
	f.disconnectCalls++
	state := f.state
	f.mu.Unlock()
	if state != mining.ConnectionClosed {
		f.SetConnectionState(mining.ConnectionClosed)
	}
}

func (f *FakePoolEngine) ConnectionState() mining.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakePoolEngine) SetConnectionState(s mining.ConnectionState) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	f.mu.Lock()
	f.state = s
	attempt := f.attempt
	f.mu.Unlock()
	f.poolFeed.Send(mining.PoolEvent{Type: mining.PoolConnectionState, State: s, Attempt: attempt})
}

// Attempt is the id of the latest connection attempt
func (f *FakePoolEngine) Attempt() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempt
}

func (f *FakePoolEngine) ConfirmedBalance() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}

func (f *FakePoolEngine) SetConfirmedBalance(b uint64) {
	f.mu.Lock()
	f.balance = b
	f.mu.Unlock()
	f.poolFeed.Send(mining.PoolEvent{Type: mining.PoolConfirmedBalance, Balance: b})
}

func (f *FakePoolEngine) Address() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host, f.port
}

func (f *FakePoolEngine) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *FakePoolEngine) DisconnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectCalls
}

func (f *FakePoolEngine) SubscribePool(ch chan<- mining.PoolEvent) event.Subscription {
	return f.poolFeed.Subscribe(ch)
}

type FakeFactory struct {
	Solo      *FakeEngine
	Pool      *FakePoolEngine
	SoloCalls int
	PoolCalls int
}

func NewFakeFactory() *FakeFactory {
	return &FakeFactory{Solo: NewFakeEngine(mining.KindSolo), Pool: NewFakePoolEngine()}
}

func (f *FakeFactory) NewSolo() mining.Engine {
	f.SoloCalls++
	return f.Solo
}

func (f *FakeFactory) NewPool() mining.PoolEngine {
	f.PoolCalls++
	return f.Pool
}
