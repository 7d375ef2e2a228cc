package facts

import (
	"context"
	"math"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/format"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
)

const (
	LabelMiningOn      = "Mining on"
	LabelCurrent       = "Current"
	LabelFetching      = "Fetching"
	LabelSynchronizing = "Synchronizing"
	LabelEstablished   = "Consensus established"
	PoolBalanceOff     = "Off"

	DefaultSyncedLabelDelay  = 1500 * time.Millisecond
	DefaultTargetHeightDelay = 150 * time.Millisecond
	DefaultLookupTimeout     = 10 * time.Second
)

type View interface {
	SetPeers(count int)
	SetDisconnected(disconnected bool)
	SetBlockHeight(height uint32)
	SetOwnHashrate(q format.Quantity)
	SetGlobalHashrate(q format.Quantity)
	SetAverageBlockReward(amount string)
	SetExpectedTimeToBlock(q format.Quantity)
	SetBlockReward(amount string)
	SetBalance(amount string)
	SetPoolBalance(amount string)
	SetNeedsUpgrade(needsUpgrade bool)
	SetSynced(synced bool)
	SetProcessingLabel(label string)
	SetProgressLabel(label string)
	SetSyncPhase(phase chain.SyncPhase)
	SetSyncProgress(progress float64)
}

type Chain interface {
	Height() uint32
	HeadDifficulty() float64
}

type Consensus interface {
	Established() bool
	TargetHeight() uint32
}

type Config struct {
	Address           string
	Denomination      format.Denomination
	SyncedLabelDelay  time.Duration
	TargetHeightDelay time.Duration
	LookupTimeout     time.Duration
}

// Presenter projects chain and mining events onto formatted dashboard fields.
// Methods must be called from the loop goroutine
type Presenter struct {
	cfg       Config
	chain     Chain
	consensus Consensus
	accounts  chain.AccountService
	policy    chain.Policy
	exec      lib.Executor
	view      View
	log       interfaces.ILogger

	syncedLabel  *lib.TimerSlot
	targetHeight *lib.TimerSlot

	ownHashrate    float64
	globalHashrate float64
	syncing        bool
	syncTarget     uint32
	balanceSeq     uint64
}

func NewPresenter(
	cfg Config,
	chainClient Chain,
	consensus Consensus,
	accounts chain.AccountService,
	policy chain.Policy,
	exec lib.Executor,
	scheduler lib.Scheduler,
	view View,
	log interfaces.ILogger,
) *Presenter {
	if cfg.SyncedLabelDelay == 0 {
		cfg.SyncedLabelDelay = DefaultSyncedLabelDelay
	}
	if cfg.TargetHeightDelay == 0 {
		cfg.TargetHeightDelay = DefaultTargetHeightDelay
	}
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	return &Presenter{
		cfg:          cfg,
		chain:        chainClient,
		consensus:    consensus,
		accounts:     accounts,
		policy:       policy,
		exec:         exec,
		view:         view,
		log:          log,
		syncedLabel:  lib.NewTimerSlot(scheduler),
		targetHeight: lib.NewTimerSlot(scheduler),
	}
}

func (p *Presenter) OnPeersChanged(count int) {
	p.view.SetPeers(count)
	p.view.SetDisconnected(count == 0)
}

func (p *Presenter) OnHeadChanged(branching bool) {
	height := p.chain.Height()
	p.view.SetBlockHeight(height)

	if p.syncing && p.syncTarget > 0 {
		p.view.SetSyncProgress(math.Min(1, float64(height)/float64(p.syncTarget)))
	}

	if p.consensus.Established() && !branching {
		p.OnGlobalHashrateChanged()
		p.refreshBlockReward()
		p.RefreshBalance()
	}
}

func (p *Presenter) OnConsensusEstablished() {
	p.RefreshBalance()
	p.setSynced(true, LabelMiningOn)
	p.refreshBlockReward()
	p.OnGlobalHashrateChanged()
}

func (p *Presenter) OnConsensusLost() {
	p.setSynced(false, LabelCurrent)
}

// OnSyncing is called when the node starts catching up, targetHeight is 0 if not known yet
func (p *Presenter) OnSyncing(targetHeight uint32) {
	p.syncTarget = targetHeight
	p.setSynced(false, LabelFetching)
	if targetHeight > 0 {
		p.view.SetSyncProgress(math.Min(1, float64(p.chain.Height())/float64(targetHeight)))
	}
}

func (p *Presenter) OnSyncPhase(phase chain.SyncPhase) {
	if p.consensus.Established() {
		return
	}
	p.view.SetSyncPhase(phase)
}

// OnPeerJoined shows the best height announced by peers while syncing.
// The refresh is delayed to let the consensus client process the new peer
func (p *Presenter) OnPeerJoined() {
	if p.consensus.Established() {
		return
	}
	p.targetHeight.Reset(p.cfg.TargetHeightDelay, func() {
		if p.consensus.Established() {
			return
		}
		if target := p.consensus.TargetHeight(); target > 0 {
			p.view.SetBlockHeight(target)
		}
	})
}

func (p *Presenter) OnOwnHashrateChanged(hashrate float64) {
	if q, ok := format.Hashrate(hashrate); ok {
		p.ownHashrate = hashrate
		p.view.SetOwnHashrate(q)
	}
	p.updateRewardEstimates()
}

func (p *Presenter) OnGlobalHashrateChanged() {
	global := p.policy.GlobalHashrate(p.chain.HeadDifficulty())
	if q, ok := format.Hashrate(global); ok {
		p.globalHashrate = global
		p.view.SetGlobalHashrate(q)
	}
	p.updateRewardEstimates()
}

// OnMinerStopped resets the own hashrate and the reward estimate
func (p *Presenter) OnMinerStopped() {
	p.ownHashrate = 0
	p.view.SetOwnHashrate(format.Quantity{Value: 0, Unit: format.HashrateUnit})
	p.view.SetAverageBlockReward(p.cfg.Denomination.Amount(0))
}

func (p *Presenter) OnPoolBalance(balance uint64) {
	p.view.SetPoolBalance(p.cfg.Denomination.Coins(balance))
}

func (p *Presenter) OnPoolDisabled() {
	p.view.SetPoolBalance(PoolBalanceOff)
}

// RefreshBalance looks up the balance off-loop, only the result of the latest lookup is applied
func (p *Presenter) RefreshBalance() {
	p.balanceSeq++
	seq := p.balanceSeq
	address := p.cfg.Address

	p.exec.Async(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.LookupTimeout)
		defer cancel()

		balance, err := p.accounts.GetBalance(ctx, address)
		if err != nil {
			return func() { p.log.Warnf("balance lookup failed: %s", err) }
		}
		tier, tierErr := p.accounts.AccountTier(ctx, address)

		return func() {
			if seq != p.balanceSeq {
				p.log.Debugf("discarding stale balance %d", balance)
				return
			}
			if tierErr != nil {
				p.log.Warnf("account tier lookup failed: %s", tierErr)
				tier = chain.TierHigh
			}
			p.view.SetBalance(p.cfg.Denomination.Coins(balance))
			p.view.SetNeedsUpgrade(balance > 0 && tier == chain.TierLow)
		}
	})
}

// Close cancels pending delayed label updates
func (p *Presenter) Close() {
	p.syncedLabel.Stop()
	p.targetHeight.Stop()
}

func (p *Presenter) setSynced(synced bool, label string) {
	p.syncing = !synced
	p.view.SetProcessingLabel(label)
	p.view.SetSynced(synced)

	if !synced {
		p.syncedLabel.Stop()
		p.view.SetProgressLabel(LabelSynchronizing)
		return
	}

	p.targetHeight.Stop()
	p.view.SetSyncProgress(1)
	p.syncedLabel.Reset(p.cfg.SyncedLabelDelay, func() {
		p.view.SetProgressLabel(LabelEstablished)
	})
}

func (p *Presenter) refreshBlockReward() {
	reward := p.policy.BlockRewardAt(p.chain.Height())
	p.view.SetBlockReward(p.cfg.Denomination.WholeCoins(reward))
}

func (p *Presenter) updateRewardEstimates() {
	reward := p.policy.BlockRewardAt(p.chain.Height())
	avg := AverageBlockReward(p.ownHashrate, p.globalHashrate, reward)
	p.view.SetAverageBlockReward(p.cfg.Denomination.Amount(avg))

	expected := ExpectedTimeToBlock(p.ownHashrate, p.globalHashrate, p.policy.BlockTime())
	if q, ok := format.Duration(expected); ok {
		p.view.SetExpectedTimeToBlock(q)
	}
}

// AverageBlockReward is the share of the block reward matching the share of the hashrate.
// A zero global hashrate yields 0
func AverageBlockReward(own, global float64, reward uint64) float64 {
	if global <= 0 || own <= 0 {
		return 0
	}
	return own / global * float64(reward)
}

// ExpectedTimeToBlock returns seconds until the own hashrate is expected to find a block,
// +Inf when either hashrate is zero
func ExpectedTimeToBlock(own, global float64, blockTime time.Duration) float64 {
	if global <= 0 || own <= 0 {
		return math.Inf(1)
	}
	return blockTime.Seconds() * global / own
}
