package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/event"
)

var (
	ErrLocationUnknown = errors.New("location unknown")
	ErrAccountNotFound = errors.New("account not found")
)

type BlockchainClient interface {
	Height() uint32
	// HeadDifficulty is the difficulty of the current head block
	HeadDifficulty() float64
	SubscribeHeadChanged(ch chan<- HeadChangedEvent) event.Subscription
}

type ConsensusClient interface {
	Established() bool
	// TargetHeight is the best height announced by the peers while syncing
	TargetHeight() uint32
	SubscribeConsensus(ch chan<- ConsensusEvent) event.Subscription
}

type NetworkClient interface {
	PeerCount() int
	// KnownAddresses lists addresses the node knows about but is not necessarily connected to
	KnownAddresses() []Peer
	// Connect starts connecting to the network, it does not wait for any peer
	Connect()
	SubscribePeers(ch chan<- PeerEvent) event.Subscription
}

type AccountTier int

const (
	TierHigh AccountTier = iota
	TierLow              // key material is not backed up, the user should be asked to upgrade
)

func (t AccountTier) String() string {
	if t == TierLow {
		return "low"
	}
	return "high"
}

type AccountService interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
	AccountTier(ctx context.Context, address string) (AccountTier, error)
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

type GeoResolver interface {
	// Resolve looks up the location of host, an empty host resolves the own public address
	Resolve(ctx context.Context, host string) (*Location, error)
}
