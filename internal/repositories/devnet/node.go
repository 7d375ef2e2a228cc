package devnet

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
)

const (
	ChainID           = 1337
	DefaultDifficulty = 1e4

	tickInterval  = time.Second
	churnChance   = 0.05
	branchChance  = 0.02
	diffDrift     = 0.05
	syncChunks    = 5
	knownPerPeer  = 3
	lowTierPrefix = "LOW"
)

var syncPhases = []chain.SyncPhase{
	chain.SyncChainProof,
	chain.VerifyChainProof,
	chain.SyncAccountsTree,
	chain.VerifyAccountsTree,
	chain.SyncFinalize,
}

type Config struct {
	BlockInterval time.Duration
	Peers         int
	SyncBlocks    uint32
	Difficulty    float64
}

// Node is an in-process chain used when no node address is configured. It syncs
// a fixed number of blocks after Connect, produces blocks on a timer and churns peers
type Node struct {
	cfg    Config
	clock  clock.Clock
	rnd    *rand.Rand
	policy chain.Policy
	log    interfaces.ILogger

	mu          sync.Mutex
	connecting  bool
	height      uint32
	bits        uint32 // compact difficulty target of the head
	target      uint32
	phase       int
	established bool
	peers       []chain.Peer
	known       []chain.Peer
	balances    map[string]uint64

	headFeed      event.Feed
	consensusFeed event.Feed
	peerFeed      event.Feed
}

func NewNode(cfg Config, policy chain.Policy, clk clock.Clock, rnd *rand.Rand, log interfaces.ILogger) *Node {
	if cfg.Difficulty <= 0 {
		cfg.Difficulty = DefaultDifficulty
	}
	n := &Node{
		cfg:      cfg,
		clock:    clk,
		rnd:      rnd,
		policy:   policy,
		log:      log,
		bits:     chain.DifficultyToCompact(cfg.Difficulty),
		target:   cfg.SyncBlocks,
		balances: make(map[string]uint64),
	}
	for i := 0; i < cfg.Peers*knownPerPeer; i++ {
		n.known = append(n.known, n.newPeer())
	}
	return n
}

func (n *Node) Run(ctx context.Context) error {
	ticker := n.clock.Ticker(tickInterval)
	defer ticker.Stop()
	blocks := n.clock.Ticker(n.cfg.BlockInterval)
	defer blocks.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.tick()
		case <-blocks.C:
			n.produceBlock("")
		}
	}
}

func (n *Node) ChainID() uint64 {
	return ChainID
}

func (n *Node) Height() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

func (n *Node) HeadDifficulty() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return chain.CompactToDifficulty(n.bits)
}

func (n *Node) Established() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.established
}

func (n *Node) TargetHeight() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

func (n *Node) PeerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

func (n *Node) KnownAddresses() []chain.Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]chain.Peer(nil), n.known...)
}

func (n *Node) Connect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connecting {
		n.log.Info("connecting to devnet")
	}
	n.connecting = true
}

// Disconnect drops every peer, consensus is lost
func (n *Node) Disconnect() {
	var events []func()

	n.mu.Lock()
	n.connecting = false
	for len(n.peers) > 0 {
		events = append(events, n.removePeer(0)...)
	}
	if n.established {
		n.established = false
		events = append(events, n.sendConsensus(chain.ConsensusEvent{Type: chain.ConsensusLost}))
	}
	n.mu.Unlock()

	emit(events)
}

func (n *Node) SubscribeHeadChanged(ch chan<- chain.HeadChangedEvent) event.Subscription {
	return n.headFeed.Subscribe(ch)
}

func (n *Node) SubscribeConsensus(ch chan<- chain.ConsensusEvent) event.Subscription {
	return n.consensusFeed.Subscribe(ch)
}

func (n *Node) SubscribePeers(ch chan<- chain.PeerEvent) event.Subscription {
	return n.peerFeed.Subscribe(ch)
}

func (n *Node) GetBalance(ctx context.Context, address string) (uint64, error) {
	if address == "" {
		return 0, chain.ErrAccountNotFound
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balances[address], nil
}

// AccountTier reports addresses starting with LOW as not backed up
func (n *Node) AccountTier(ctx context.Context, address string) (chain.AccountTier, error) {
	if address == "" {
		return chain.TierHigh, chain.ErrAccountNotFound
	}
	if len(address) >= len(lowTierPrefix) && address[:len(lowTierPrefix)] == lowTierPrefix {
		return chain.TierLow, nil
	}
	return chain.TierHigh, nil
}

// SubmitBlock appends a block mined by address and credits its reward
func (n *Node) SubmitBlock(address string) bool {
	n.mu.Lock()
	ok := n.established
	n.mu.Unlock()
	if !ok {
		return false
	}
	n.produceBlock(address)
	return true
}

func (n *Node) tick() {
	var events []func()

	n.mu.Lock()
	if !n.connecting {
		n.mu.Unlock()
		return
	}

	if len(n.peers) < n.cfg.Peers {
		events = append(events, n.addPeer()...)
	} else if n.established && len(n.peers) > 0 && n.rnd.Float64() < churnChance {
		events = append(events, n.removePeer(n.rnd.Intn(len(n.peers)))...)
	}

	if !n.established && len(n.peers) > 0 {
		events = append(events, n.syncStep()...)
	}
	n.mu.Unlock()

	emit(events)
}

// syncStep fetches a chunk of blocks and advances the sync phase, must hold mu
func (n *Node) syncStep() []func() {
	var events []func()

	if n.phase == 0 {
		events = append(events, n.sendConsensus(chain.ConsensusEvent{Type: chain.ConsensusSyncing, TargetHeight: n.target}))
	}
	if n.phase < len(syncPhases) {
		events = append(events, n.sendConsensus(chain.ConsensusEvent{Type: chain.ConsensusSyncPhase, Phase: syncPhases[n.phase]}))
		n.phase++
	}

	if n.height < n.target {
		chunk := n.target / syncChunks
		if chunk == 0 {
			chunk = 1
		}
		n.height += chunk
		if n.height > n.target {
			n.height = n.target
		}
		events = append(events, n.sendHead(false))
	}

	if n.height >= n.target && n.phase >= len(syncPhases) {
		n.established = true
		n.log.Infof("devnet consensus established at height %d", n.height)
		events = append(events, n.sendConsensus(chain.ConsensusEvent{Type: chain.ConsensusEstablished}))
	}
	return events
}

func (n *Node) produceBlock(miner string) {
	n.mu.Lock()
	if !n.established {
		n.mu.Unlock()
		return
	}

	n.height++
	n.target = n.height
	diff := chain.CompactToDifficulty(n.bits) * (1 + diffDrift*(2*n.rnd.Float64()-1))
	n.bits = chain.DifficultyToCompact(diff)
	if miner != "" {
		n.balances[miner] += n.policy.BlockRewardAt(n.height)
		n.log.Infof("block %d mined by %s", n.height, miner)
	}
	branching := miner == "" && n.rnd.Float64() < branchChance
	send := n.sendHead(branching)
	n.mu.Unlock()

	send()
}

// addPeer connects a known address that is not connected yet, must hold mu
func (n *Node) addPeer() []func() {
	connected := make(map[string]bool, len(n.peers))
	for _, p := range n.peers {
		connected[p.ID] = true
	}
	var candidates []chain.Peer
	for _, p := range n.known {
		if !connected[p.ID] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	peer := candidates[n.rnd.Intn(len(candidates))]
	n.peers = append(n.peers, peer)
	count := len(n.peers)
	return []func(){
		func() { n.peerFeed.Send(chain.PeerEvent{Type: chain.PeerJoined, Peer: peer, Count: count}) },
		func() { n.peerFeed.Send(chain.PeerEvent{Type: chain.PeersChanged, Count: count}) },
	}
}

// removePeer must hold mu
func (n *Node) removePeer(i int) []func() {
	peer := n.peers[i]
	n.peers = append(n.peers[:i], n.peers[i+1:]...)
	count := len(n.peers)
	return []func(){
		func() { n.peerFeed.Send(chain.PeerEvent{Type: chain.PeerLeft, Peer: peer, Count: count}) },
		func() { n.peerFeed.Send(chain.PeerEvent{Type: chain.PeersChanged, Count: count}) },
	}
}

func (n *Node) sendHead(branching bool) func() {
	ev := chain.HeadChangedEvent{Height: n.height, Branching: branching}
	return func() { n.headFeed.Send(ev) }
}

func (n *Node) sendConsensus(ev chain.ConsensusEvent) func() {
	return func() { n.consensusFeed.Send(ev) }
}

func (n *Node) newPeer() chain.Peer {
	host := fmt.Sprintf("%d.%d.%d.%d", 1+n.rnd.Intn(223), n.rnd.Intn(256), n.rnd.Intn(256), 1+n.rnd.Intn(254))
	return chain.Peer{ID: uuid.NewString(), Host: host}
}

// emit sends events outside of the lock, feeds block until every subscriber receives
func emit(events []func()) {
	for _, e := range events {
		e()
	}
}
