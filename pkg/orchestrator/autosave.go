package orchestrator

import (
	"sync"
	"time"
)

// minAutosaveDebounce is the floor spec §4.4 requires ("a debounce timer
// (≥2 s)").
const minAutosaveDebounce = 2 * time.Second

// DraftAutosaver flushes a dirty draft block to storage after debounce
// has elapsed with no further edits. Each MarkDirty call resets the timer,
// so rapid typing never triggers more than one flush per idle period.
type DraftAutosaver struct {
	mu       sync.Mutex
	timer    *time.Timer
	debounce time.Duration
	flush    func()
}

// NewDraftAutosaver returns a DraftAutosaver that calls flush no sooner
// than debounce after the last MarkDirty call. debounce is raised to the
// 2s floor if given a smaller (or zero) value.
func NewDraftAutosaver(debounce time.Duration, flush func()) *DraftAutosaver {
	if debounce < minAutosaveDebounce {
		debounce = minAutosaveDebounce
	}
	return &DraftAutosaver{debounce: debounce, flush: flush}
}

// MarkDirty (re)starts the debounce timer.
func (d *DraftAutosaver) MarkDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

// Stop cancels any pending flush, e.g. when the draft is sent or
// discarded before the debounce elapses.
func (d *DraftAutosaver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
