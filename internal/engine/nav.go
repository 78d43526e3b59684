package engine

import (
	"time"

	"github.com/boothlabs/boothflow/internal/models"
)

const (
	// DefaultDebounce is the window after a committed navigation during which
	// further user navigation is silently dropped. It absorbs double-taps and
	// duplicate event fires without UI-level disabling.
	DefaultDebounce = 150 * time.Millisecond

	// DefaultConfirmDelay is the pause the ai-transform step holds after a
	// successful trigger before advancing unconditionally.
	DefaultConfirmDelay = 500 * time.Millisecond
)

// availability computes the navigation flags from the committed position and
// config policy. Recomputed after every transition.
func availability(status models.EngineStatus, index, total int, allowBack, allowSkip, autoAdvancing bool) (canGoBack, canGoNext, canSkip bool) {
	if status != models.EngineStatusRunning || autoAdvancing {
		return false, false, false
	}
	canGoBack = allowBack && index > 0
	canGoNext = index < total
	canSkip = allowSkip
	return canGoBack, canGoNext, canSkip
}
