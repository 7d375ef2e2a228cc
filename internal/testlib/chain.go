package testlib

import (
	"context"
	"sync"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/ethereum/go-ethereum/event"
)

type FakeBlockchain struct {
	mu         sync.Mutex
	height     uint32
	difficulty float64
	feed       event.Feed
}

func NewFakeBlockchain(height uint32, difficulty float64) *FakeBlockchain {
	return &FakeBlockchain{height: height, difficulty: difficulty}
}

func (f *FakeBlockchain) Height() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height
}

func (f *FakeBlockchain) HeadDifficulty() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.difficulty
}

// SetHead updates the head and notifies subscribers
func (f *FakeBlockchain) SetHead(height uint32, difficulty float64, branching bool) {
	f.mu.Lock()
	f.height, f.difficulty = height, difficulty
	f.mu.Unlock()
	f.feed.Send(chain.HeadChangedEvent{Height: height, Branching: branching})
}

func (f *FakeBlockchain) SubscribeHeadChanged(ch chan<- chain.HeadChangedEvent) event.Subscription {
	return f.feed.Subscribe(ch)
}

type FakeConsensus struct {
	mu           sync.Mutex
	established  bool
	targetHeight uint32
	feed         event.Feed
}

func (f *FakeConsensus) Established() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.established
}

func (f *FakeConsensus) TargetHeight() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targetHeight
}

func (f *FakeConsensus) SetEstablished(v bool) {
	f.mu.Lock()
	f.established = v
	f.mu.Unlock()
}

func (f *FakeConsensus) SetTargetHeight(h uint32) {
	f.mu.Lock()
	f.targetHeight = h
	f.mu.Unlock()
}

// Send updates the established flag the way the event implies and notifies subscribers
func (f *FakeConsensus) Send(ev chain.ConsensusEvent) {
	switch ev.Type {
	case chain.ConsensusEstablished:
		f.SetEstablished(true)
	case chain.ConsensusLost, chain.ConsensusSyncing:
		f.SetEstablished(false)
	}
	f.feed.Send(ev)
}

func (f *FakeConsensus) SubscribeConsensus(ch chan<- chain.ConsensusEvent) event.Subscription {
	return f.feed.Subscribe(ch)
}

type FakeNetwork struct {
	mu           sync.Mutex
	peers        map[string]chain.Peer
	known        []chain.Peer
	connectCalls int
	feed         event.Feed
}

func NewFakeNetwork(known ...chain.Peer) *FakeNetwork {
	return &FakeNetwork{peers: make(map[string]chain.Peer), known: known}
}

func (f *FakeNetwork) PeerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *FakeNetwork) KnownAddresses() []chain.Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.Peer(nil), f.known...)
}

func (f *FakeNetwork) SetKnown(known ...chain.Peer) {
	f.mu.Lock()
	f.known = known
	f.mu.Unlock()
}

func (f *FakeNetwork) Connect() {
	f.mu.Lock()
	f.connectCalls++
	f.mu.Unlock()
}

func (f *FakeNetwork) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *FakeNetwork) Join(p chain.Peer) {
	f.mu.Lock()
	f.peers[p.ID] = p
	count := len(f.peers)
	f.mu.Unlock()
	f.feed.Send(chain.PeerEvent{Type: chain.PeerJoined, Peer: p, Count: count})
	f.feed.Send(chain.PeerEvent{Type: chain.PeersChanged, Count: count})
}

func (f *FakeNetwork) Leave(p chain.Peer) {
	f.mu.Lock()
	delete(f.peers, p.ID)
	count := len(f.peers)
	f.mu.Unlock()
	f.feed.Send(chain.PeerEvent{Type: chain.PeerLeft, Peer: p, Count: count})
	f.feed.Send(chain.PeerEvent{Type: chain.PeersChanged, Count: count})
}

func (f *FakeNetwork) SubscribePeers(ch chan<- chain.PeerEvent) event.Subscription {
	return f.feed.Subscribe(ch)
}

type FakeAccounts struct {
	mu       sync.Mutex
	balances map[string]uint64
	tier     chain.AccountTier
	err      error
}

func NewFakeAccounts() *FakeAccounts {
	return &FakeAccounts{balances: make(map[string]uint64)}
}

func (f *FakeAccounts) SetBalance(address string, balance uint64) {
	f.mu.Lock()
	f.balances[address] = balance
	f.mu.Unlock()
}

func (f *FakeAccounts) SetTier(tier chain.AccountTier) {
	f.mu.Lock()
	f.tier = tier
	f.mu.Unlock()
}

func (f *FakeAccounts) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeAccounts) GetBalance(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.balances[address], nil
}

func (f *FakeAccounts) AccountTier(_ context.Context, _ string) (chain.AccountTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tier, f.err
}

type FakeGeo struct {
	mu        sync.Mutex
	locations map[string]chain.Location
	calls     []string
}

func NewFakeGeo() *FakeGeo {
	return &FakeGeo{locations: make(map[string]chain.Location)}
}

func (f *FakeGeo) Set(host string, lat, lng float64) {
	f.mu.Lock()
	f.locations[host] = chain.Location{Latitude: lat, Longitude: lng}
	f.mu.Unlock()
}

func (f *FakeGeo) Resolve(_ context.Context, host string) (*chain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, host)
	loc, ok := f.locations[host]
	if !ok {
		return nil, chain.ErrLocationUnknown
	}
	return &loc, nil
}

func (f *FakeGeo) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
