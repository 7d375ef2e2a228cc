package ethnode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrNodeUnreachable = errors.New("node unreachable")
	ErrWrongChain      = errors.New("node serves a different chain")
	ErrBadBootnode     = errors.New("invalid bootnode")
)

type EthereumClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Client adapts a json-rpc node to the chain clients by polling it
type Client struct {
	// config
	pollInterval time.Duration
	bootnodes    []*enode.Node

	// deps
	eth EthereumClient
	rpc RPCCaller
	log interfaces.ILogger

	// state
	mu             sync.Mutex
	connecting     bool
	bootstrapped   bool
	adminAvailable bool
	height         uint32
	hash           common.Hash
	difficulty     float64
	established    bool
	syncing        bool
	target         uint32
	peers          map[string]chain.Peer
	peerCount      int

	headFeed      event.Feed
	consensusFeed event.Feed
	peerFeed      event.Feed
}

func DialContext(ctx context.Context, url string, pollInterval time.Duration, bootnodes []string, log interfaces.ILogger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, lib.WrapError(ErrNodeUnreachable, err)
	}
	return NewClient(ethclient.NewClient(rpcClient), rpcClient, pollInterval, bootnodes, log)
}

func NewClient(eth EthereumClient, rpc RPCCaller, pollInterval time.Duration, bootnodes []string, log interfaces.ILogger) (*Client, error) {
	if len(bootnodes) == 0 {
		bootnodes = params.MainnetBootnodes
	}
	nodes, err := ParseBootnodes(bootnodes)
	if err != nil {
		return nil, err
	}
	return &Client{
		pollInterval:   pollInterval,
		bootnodes:      nodes,
		eth:            eth,
		rpc:            rpc,
		log:            log,
		adminAvailable: true,
		peers:          make(map[string]chain.Peer),
	}, nil
}

// ParseBootnodes parses enode urls, empty entries are skipped
func ParseBootnodes(urls []string) ([]*enode.Node, error) {
	var nodes []*enode.Node
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		node, err := enode.ParseV4(u)
		if err != nil {
			return nil, lib.WrapError(ErrBadBootnode, fmt.Errorf("%s: %w", u, err))
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// CheckCompatibility verifies that the node is reachable and serves the expected chain,
// expectedChainID 0 accepts any chain
func (c *Client) CheckCompatibility(ctx context.Context, expectedChainID uint64) error {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return lib.WrapError(ErrNodeUnreachable, err)
	}
	if expectedChainID != 0 && (!id.IsUint64() || id.Uint64() != expectedChainID) {
		return lib.WrapError(ErrWrongChain, fmt.Errorf("expected %d, got %s", expectedChainID, id))
	}
	return nil
}

func (c *Client) Run(ctx context.Context) error {
	for {
		c.poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) Height() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *Client) HeadDifficulty() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.difficulty
}

func (c *Client) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

func (c *Client) TargetHeight() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *Client) PeerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerCount
}

func (c *Client) KnownAddresses() []chain.Peer {
	peers := make([]chain.Peer, 0, len(c.bootnodes))
	for _, n := range c.bootnodes {
		peer := chain.Peer{ID: n.ID().String()}
		if ip := n.IP(); ip != nil && !ip.IsUnspecified() {
			peer.Host = ip.String()
		}
		peers = append(peers, peer)
	}
	return peers
}

func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = true
}

func (c *Client) SubscribeHeadChanged(ch chan<- chain.HeadChangedEvent) event.Subscription {
	return c.headFeed.Subscribe(ch)
}

func (c *Client) SubscribeConsensus(ch chan<- chain.ConsensusEvent) event.Subscription {
	return c.consensusFeed.Subscribe(ch)
}

func (c *Client) SubscribePeers(ch chan<- chain.PeerEvent) event.Subscription {
	return c.peerFeed.Subscribe(ch)
}

// GetBalance returns the balance in wei, saturated at MaxUint64
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	if !common.IsHexAddress(address) {
		return 0, lib.WrapError(chain.ErrAccountNotFound, fmt.Errorf("invalid address %q", address))
	}
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, err
	}
	if !balance.IsUint64() {
		return math.MaxUint64, nil
	}
	return balance.Uint64(), nil
}

// AccountTier is always high, keys are managed outside of the node
func (c *Client) AccountTier(ctx context.Context, address string) (chain.AccountTier, error) {
	if !common.IsHexAddress(address) {
		return chain.TierHigh, lib.WrapError(chain.ErrAccountNotFound, fmt.Errorf("invalid address %q", address))
	}
	return chain.TierHigh, nil
}

func (c *Client) poll(ctx context.Context) {
	c.mu.Lock()
	connecting := c.connecting
	c.mu.Unlock()
	if !connecting {
		return
	}

	c.bootstrap(ctx)

	if err := c.pollPeers(ctx); err != nil {
		c.log.Warnf("peer poll failed: %s", err)
	}
	if err := c.pollHead(ctx); err != nil {
		c.log.Warnf("head poll failed: %s", err)
	}
	if err := c.pollSync(ctx); err != nil {
		c.log.Warnf("sync poll failed: %s", err)
	}
}

// bootstrap asks the node to dial the bootnodes once, nodes without admin api are left alone
func (c *Client) bootstrap(ctx context.Context) {
	c.mu.Lock()
	done := c.bootstrapped
	c.bootstrapped = true
	c.mu.Unlock()
	if done {
		return
	}

	for _, n := range c.bootnodes {
		var ok bool
		if err := c.rpc.CallContext(ctx, &ok, "admin_addPeer", n.URLv4()); err != nil {
			c.log.Debugf("admin_addPeer unavailable: %s", err)
			return
		}
	}
}

func (c *Client) pollHead(ctx context.Context) error {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return err
	}
	if !header.Number.IsUint64() || header.Number.Uint64() > math.MaxUint32 {
		return fmt.Errorf("block number out of range: %s", header.Number)
	}
	height := uint32(header.Number.Uint64())
	hash := header.Hash()

	c.mu.Lock()
	if hash == c.hash {
		c.mu.Unlock()
		return nil
	}
	known := c.hash != (common.Hash{})
	branching := known && (height <= c.height || (height == c.height+1 && header.ParentHash != c.hash))
	c.height, c.hash = height, hash
	if header.Difficulty != nil {
		c.difficulty, _ = new(big.Float).SetInt(header.Difficulty).Float64()
	}
	c.mu.Unlock()

	c.headFeed.Send(chain.HeadChangedEvent{Height: height, Branching: branching})
	return nil
}

func (c *Client) pollSync(ctx context.Context) error {
	progress, err := c.eth.SyncProgress(ctx)
	if err != nil {
		return err
	}

	var events []chain.ConsensusEvent

	c.mu.Lock()
	switch {
	case progress != nil:
		target := uint32(progress.HighestBlock)
		if !c.syncing || target != c.target {
			events = append(events, chain.ConsensusEvent{Type: chain.ConsensusSyncing, TargetHeight: target})
		}
		if c.established {
			events = append(events, chain.ConsensusEvent{Type: chain.ConsensusLost})
		}
		c.syncing, c.established, c.target = true, false, target
	case c.peerCount == 0:
		if c.established {
			events = append(events, chain.ConsensusEvent{Type: chain.ConsensusLost})
		}
		c.established = false
	case !c.established:
		c.syncing, c.established, c.target = false, true, c.height
		events = append(events, chain.ConsensusEvent{Type: chain.ConsensusEstablished})
	}
	c.mu.Unlock()

	for _, ev := range events {
		c.consensusFeed.Send(ev)
	}
	return nil
}

func (c *Client) pollPeers(ctx context.Context) error {
	c.mu.Lock()
	admin := c.adminAvailable
	c.mu.Unlock()

	if admin {
		var infos []*p2p.PeerInfo
		err := c.rpc.CallContext(ctx, &infos, "admin_peers")
		if err == nil {
			c.updatePeers(infos)
			return nil
		}
		c.log.Infof("admin_peers unavailable, falling back to net_peerCount: %s", err)
		c.mu.Lock()
		c.adminAvailable = false
		c.mu.Unlock()
	}

	var count hexutil.Uint
	if err := c.rpc.CallContext(ctx, &count, "net_peerCount"); err != nil {
		return err
	}

	c.mu.Lock()
	changed := int(count) != c.peerCount
	c.peerCount = int(count)
	c.mu.Unlock()

	if changed {
		c.peerFeed.Send(chain.PeerEvent{Type: chain.PeersChanged, Count: int(count)})
	}
	return nil
}

func (c *Client) updatePeers(infos []*p2p.PeerInfo) {
	current := make(map[string]chain.Peer, len(infos))
	for _, info := range infos {
		current[info.ID] = chain.Peer{ID: info.ID, Host: remoteHost(info.Network.RemoteAddress)}
	}

	var events []chain.PeerEvent

	c.mu.Lock()
	for id, p := range c.peers {
		if _, ok := current[id]; !ok {
			delete(c.peers, id)
			events = append(events, chain.PeerEvent{Type: chain.PeerLeft, Peer: p, Count: len(c.peers)})
		}
	}
	for id, p := range current {
		if _, ok := c.peers[id]; !ok {
			c.peers[id] = p
			events = append(events, chain.PeerEvent{Type: chain.PeerJoined, Peer: p, Count: len(c.peers)})
		}
	}
	if len(events) > 0 || c.peerCount != len(c.peers) {
		events = append(events, chain.PeerEvent{Type: chain.PeersChanged, Count: len(c.peers)})
	}
	c.peerCount = len(c.peers)
	c.mu.Unlock()

	for _, ev := range events {
		c.peerFeed.Send(ev)
	}
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
