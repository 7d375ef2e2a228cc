package chain

type HeadChangedEvent struct {
	Height    uint32
	Branching bool // head moved to a different fork
}

type ConsensusEventType int

const (
	ConsensusEstablished ConsensusEventType = iota
	ConsensusLost
	ConsensusSyncing
	ConsensusSyncPhase
)

func (t ConsensusEventType) String() string {
	switch t {
	case ConsensusEstablished:
		return "established"
	case ConsensusLost:
		return "lost"
	case ConsensusSyncing:
		return "syncing"
	case ConsensusSyncPhase:
		return "sync-phase"
	}
	return "unknown"
}

type SyncPhase string

const (
	SyncChainProof     SyncPhase = "sync-chain-proof"
	VerifyChainProof   SyncPhase = "verify-chain-proof"
	SyncAccountsTree   SyncPhase = "sync-accounts-tree"
	VerifyAccountsTree SyncPhase = "verify-accounts-tree"
	SyncFinalize       SyncPhase = "sync-finalize"
)

type ConsensusEvent struct {
	Type         ConsensusEventType
	Phase        SyncPhase // set for ConsensusSyncPhase
	TargetHeight uint32    // set for ConsensusSyncing, 0 if unknown
}

type PeerEventType int

const (
	PeerJoined PeerEventType = iota
	PeerLeft
	PeersChanged
)

func (t PeerEventType) String() string {
	switch t {
	case PeerJoined:
		return "peer-joined"
	case PeerLeft:
		return "peer-left"
	case PeersChanged:
		return "peers-changed"
	}
	return "unknown"
}

// Peer identifies a network participant. Host is empty if the address is not routable
type Peer struct {
	ID   string
	Host string
}

type PeerEvent struct {
	Type  PeerEventType
	Peer  Peer // unset for PeersChanged
	Count int  // peer count after the change
}
