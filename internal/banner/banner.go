package banner

import (
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
)

// Kind is ordered by priority, a visible banner suppresses every banner of a lower kind
type Kind int

const (
	MinerStopped Kind = iota
	PoolUnreachable
	NetworkDisconnected
	kindCount
)

const DefaultGracePeriod = time.Second

func Kinds() []Kind {
	return []Kind{MinerStopped, PoolUnreachable, NetworkDisconnected}
}

func (k Kind) String() string {
	switch k {
	case MinerStopped:
		return "miner-stopped"
	case PoolUnreachable:
		return "pool-unreachable"
	case NetworkDisconnected:
		return "network-disconnected"
	}
	return "unknown"
}

type View interface {
	SetBannerVisible(kind Kind, visible bool)
}

type bannerState struct {
	visible bool
	wanted  bool // underlying condition is currently true
	hide    *lib.TimerSlot
}

// Debouncer shows banners immediately and hides them after a grace period,
// so a condition that flips back quickly does not make the banner flicker.
// All methods must be called from the loop goroutine
type Debouncer struct {
	grace   time.Duration
	view    View
	log     interfaces.ILogger
	banners [kindCount]*bannerState
}

func NewDebouncer(grace time.Duration, scheduler lib.Scheduler, view View, log interfaces.ILogger) *Debouncer {
	d := &Debouncer{grace: grace, view: view, log: log}
	for i := range d.banners {
		d.banners[i] = &bannerState{hide: lib.NewTimerSlot(scheduler)}
	}
	return d
}

func (d *Debouncer) Show(kind Kind) {
	b := d.banners[kind]
	b.wanted = true

	if higher, ok := d.visibleAbove(kind); ok {
		d.log.Debugf("%s suppressed by %s", kind, higher)
		return
	}

	b.hide.Stop()
	if !b.visible {
		b.visible = true
		d.view.SetBannerVisible(kind, true)
		d.log.Debugf("%s shown", kind)
	}

	for lower := kind - 1; lower >= 0; lower-- {
		d.hideImmediately(lower)
	}
}

// Hide clears the condition, the banner disappears after the grace period unless shown again
func (d *Debouncer) Hide(kind Kind) {
	b := d.banners[kind]
	b.wanted = false
	if !b.visible {
		b.hide.Stop()
		return
	}
	b.hide.Reset(d.grace, func() {
		d.log.Debugf("%s hidden", kind)
		d.setHidden(kind)
	})
}

// HideNow clears the condition and hides the banner without grace period
func (d *Debouncer) HideNow(kind Kind) {
	d.banners[kind].wanted = false
	if d.hideImmediately(kind) {
		d.restoreBelow(kind)
	}
}

func (d *Debouncer) Visible(kind Kind) bool {
	return d.banners[kind].visible
}

func (d *Debouncer) Wanted(kind Kind) bool {
	return d.banners[kind].wanted
}

// Close cancels pending hides
func (d *Debouncer) Close() {
	for _, b := range d.banners {
		b.hide.Stop()
	}
}

func (d *Debouncer) setHidden(kind Kind) {
	b := d.banners[kind]
	b.visible = false
	d.view.SetBannerVisible(kind, false)
	d.restoreBelow(kind)
}

// hideImmediately makes the banner invisible but keeps its wanted flag
func (d *Debouncer) hideImmediately(kind Kind) bool {
	b := d.banners[kind]
	b.hide.Stop()
	if !b.visible {
		return false
	}
	b.visible = false
	d.view.SetBannerVisible(kind, false)
	return true
}

// restoreBelow shows the highest lower banner whose condition still holds
func (d *Debouncer) restoreBelow(kind Kind) {
	for lower := kind - 1; lower >= 0; lower-- {
		if d.banners[lower].wanted {
			d.Show(lower)
			return
		}
	}
}

func (d *Debouncer) visibleAbove(kind Kind) (Kind, bool) {
	for higher := kindCount - 1; higher > kind; higher-- {
		if d.banners[higher].visible {
			return higher, true
		}
	}
	return 0, false
}
