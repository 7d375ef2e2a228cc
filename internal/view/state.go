package view

import (
	"sync"

	"github.com/Lumerin-protocol/miner-dashboard/internal/banner"
	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/facts"
	"github.com/Lumerin-protocol/miner-dashboard/internal/format"
	"github.com/Lumerin-protocol/miner-dashboard/internal/peermap"
	"github.com/Lumerin-protocol/miner-dashboard/internal/session"
	"golang.org/x/exp/slices"
)

var (
	_ banner.View  = (*State)(nil)
	_ facts.View   = (*State)(nil)
	_ session.View = (*State)(nil)
	_ peermap.View = (*State)(nil)
)

type Facts struct {
	Peers               int              `json:"peers"`
	Disconnected        bool             `json:"disconnected"`
	BlockHeight         uint32           `json:"blockHeight"`
	OwnHashrate         format.Quantity  `json:"ownHashrate"`
	GlobalHashrate      format.Quantity  `json:"globalHashrate"`
	AverageBlockReward  string           `json:"averageBlockReward"`
	ExpectedTimeToBlock *format.Quantity `json:"expectedTimeToBlock,omitempty"`
	BlockReward         string           `json:"blockReward"`
	Balance             string           `json:"balance"`
	PoolBalance         string           `json:"poolBalance"`
	NeedsUpgrade        bool             `json:"needsUpgrade"`
	Synced              bool             `json:"synced"`
	ProcessingLabel     string           `json:"processingLabel"`
	ProgressLabel       string           `json:"progressLabel"`
	SyncPhase           chain.SyncPhase  `json:"syncPhase,omitempty"`
	SyncProgress        float64          `json:"syncProgress"`
	MinerButtonLabel    string           `json:"minerButtonLabel"`
}

type HighlightedCell struct {
	peermap.Cell
	Category peermap.Category `json:"category"`
}

type Snapshot struct {
	Facts    Facts             `json:"facts"`
	Banners  map[string]bool   `json:"banners"`
	Session  session.Snapshot  `json:"session"`
	Cells    []HighlightedCell `json:"cells"`
	Advisory string            `json:"advisory,omitempty"`
}

// State is the display state written by the presenters on the loop goroutine
// and read concurrently by the HTTP handlers
type State struct {
	mu       sync.RWMutex
	facts    Facts
	banners  map[banner.Kind]bool
	session  session.Snapshot
	cells    map[peermap.Cell]peermap.Category
	advisory string
}

func NewState() *State {
	s := &State{
		banners: make(map[banner.Kind]bool),
		cells:   make(map[peermap.Cell]peermap.Category),
	}
	s.facts.OwnHashrate = format.Quantity{Unit: format.HashrateUnit}
	s.facts.GlobalHashrate = format.Quantity{Unit: format.HashrateUnit}
	s.facts.PoolBalance = facts.PoolBalanceOff
	s.facts.ProgressLabel = facts.LabelSynchronizing
	return s
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Facts:    s.facts,
		Banners:  make(map[string]bool, len(banner.Kinds())),
		Session:  s.session,
		Cells:    make([]HighlightedCell, 0, len(s.cells)),
		Advisory: s.advisory,
	}
	if s.facts.ExpectedTimeToBlock != nil {
		q := *s.facts.ExpectedTimeToBlock
		snap.Facts.ExpectedTimeToBlock = &q
	}
	for _, k := range banner.Kinds() {
		snap.Banners[k.String()] = s.banners[k]
	}
	for cell, category := range s.cells {
		snap.Cells = append(snap.Cells, HighlightedCell{Cell: cell, Category: category})
	}
	slices.SortFunc(snap.Cells, func(a, b HighlightedCell) bool {
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return snap
}

// SetAdvisory shows a static message that replaces the dashboard, used when the environment is unusable
func (s *State) SetAdvisory(msg string) {
	s.update(func() { s.advisory = msg })
}

func (s *State) SetBannerVisible(kind banner.Kind, visible bool) {
	s.update(func() { s.banners[kind] = visible })
}

func (s *State) SetPeers(count int) {
	s.update(func() { s.facts.Peers = count })
}

func (s *State) SetDisconnected(disconnected bool) {
	s.update(func() { s.facts.Disconnected = disconnected })
}

func (s *State) SetBlockHeight(height uint32) {
	s.update(func() { s.facts.BlockHeight = height })
}

func (s *State) SetOwnHashrate(q format.Quantity) {
	s.update(func() { s.facts.OwnHashrate = q })
}

func (s *State) SetGlobalHashrate(q format.Quantity) {
	s.update(func() { s.facts.GlobalHashrate = q })
}

func (s *State) SetAverageBlockReward(amount string) {
	s.update(func() { s.facts.AverageBlockReward = amount })
}

func (s *State) SetExpectedTimeToBlock(q format.Quantity) {
	s.update(func() { s.facts.ExpectedTimeToBlock = &q })
}

func (s *State) SetBlockReward(amount string) {
	s.update(func() { s.facts.BlockReward = amount })
}

func (s *State) SetBalance(amount string) {
	s.update(func() { s.facts.Balance = amount })
}

func (s *State) SetPoolBalance(amount string) {
	s.update(func() { s.facts.PoolBalance = amount })
}

func (s *State) SetNeedsUpgrade(needsUpgrade bool) {
	s.update(func() { s.facts.NeedsUpgrade = needsUpgrade })
}

func (s *State) SetSynced(synced bool) {
	s.update(func() { s.facts.Synced = synced })
}

func (s *State) SetProcessingLabel(label string) {
	s.update(func() { s.facts.ProcessingLabel = label })
}

func (s *State) SetProgressLabel(label string) {
	s.update(func() { s.facts.ProgressLabel = label })
}

func (s *State) SetSyncPhase(phase chain.SyncPhase) {
	s.update(func() { s.facts.SyncPhase = phase })
}

func (s *State) SetSyncProgress(progress float64) {
	s.update(func() { s.facts.SyncProgress = progress })
}

func (s *State) SetMinerButtonLabel(label string) {
	s.update(func() { s.facts.MinerButtonLabel = label })
}

func (s *State) SetSession(snap session.Snapshot) {
	s.update(func() { s.session = snap })
}

func (s *State) HighlightCell(cell peermap.Cell, category peermap.Category) {
	s.update(func() { s.cells[cell] = category })
}

func (s *State) UnhighlightCell(cell peermap.Cell) {
	s.update(func() { delete(s.cells, cell) })
}

func (s *State) update(f func()) {
	s.mu.Lock()
	f()
	s.mu.Unlock()
}
