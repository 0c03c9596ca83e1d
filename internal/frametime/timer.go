// Package frametime implements the per-frame time budget tracker
// (spec §5's "Frame Timer"). It exposes four named section budgets
// and lets callers poll whether a section's budget has been exceeded
// since the frame started, enabling the mid-upload interrupt behavior
// required by C4 and the offscreen-buffer render budget polled by C5.
package frametime

import (
	"time"

	"github.com/ramses-go/renderer/internal/config"
)

// Section names one of the four budgeted frame phases.
type Section int

const (
	SectionSceneResourceUpload Section = iota
	SectionResourceUpload
	SectionOffscreenBufferRender
	SectionTotal
)

// Timer tracks elapsed wall time against the configured per-section
// budgets for the current frame. Not safe for concurrent use; owned by
// a single display bundle's thread.
type Timer struct {
	limits    config.FrameTimerLimits
	frameStart time.Time
	now       func() time.Time
}

// New creates a Timer from the given limits, reading wall time via
// time.Now.
func New(limits config.FrameTimerLimits) *Timer {
	return &Timer{limits: limits, now: time.Now}
}

// StartFrame marks the beginning of a new frame, resetting elapsed time.
func (t *Timer) StartFrame() {
	t.frameStart = t.now()
}

// ElapsedSinceFrameStart returns the wall time elapsed since StartFrame.
func (t *Timer) ElapsedSinceFrameStart() time.Duration {
	return t.now().Sub(t.frameStart)
}

// IsTimeBudgetExceededForSection reports whether the elapsed time
// since StartFrame has passed the given section's configured budget.
// A zero budget means "unbounded" (never exceeded), matching the
// convention used elsewhere in this module for "no limit."
func (t *Timer) IsTimeBudgetExceededForSection(s Section) bool {
	budget := t.budgetFor(s)
	if budget <= 0 {
		return false
	}
	return t.ElapsedSinceFrameStart() >= budget
}

func (t *Timer) budgetFor(s Section) time.Duration {
	switch s {
	case SectionSceneResourceUpload:
		return t.limits.SceneResourceUpload
	case SectionResourceUpload:
		return t.limits.ResourceUpload
	case SectionOffscreenBufferRender:
		return t.limits.OffscreenBufferRender
	case SectionTotal:
		return t.limits.Total
	default:
		return 0
	}
}
