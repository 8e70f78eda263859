package gate

// #region imports
import (
	"sync"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
)

// #endregion imports

// #region entry

// entry is one accepted composite reduced to what the checks need:
// the full vector for centroid distance and the per-modality segment
// norms, aligned with the canonical modality order, for correlation.
type entry struct {
	vector [fingerprint.Dim]float32
	norms  [4]float64
}

func newEntry(v [fingerprint.Dim]float32) entry {
	e := entry{vector: v}
	for i, m := range fingerprint.Modalities() {
		e.norms[i] = fingerprint.SegmentNorm(v, m)
	}
	return e
}

// #endregion entry

// #region window-set

// windowSet keeps a bounded rolling window of accepted composites per
// agent, each tagged with the template evolution count it was observed
// under. A count change invalidates the window: the evolution event
// legitimizes the behavioral jump, so stale history must not flag it.
type windowSet struct {
	mu      sync.Mutex
	size    int
	windows map[string]*agentWindow
}

type agentWindow struct {
	entries []entry
	evCount int64
}

func newWindowSet(size int) *windowSet {
	if size < 1 {
		size = 1
	}
	return &windowSet{size: size, windows: make(map[string]*agentWindow)}
}

// snapshot returns a copy of the agent's window under the given
// evolution count. An outdated window is discarded, not returned.
func (w *windowSet) snapshot(agentID string, evCount int64) []entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	win, ok := w.windows[agentID]
	if !ok {
		return nil
	}
	if win.evCount != evCount {
		delete(w.windows, agentID)
		return nil
	}
	out := make([]entry, len(win.entries))
	copy(out, win.entries)
	return out
}

// observe appends an accepted composite, trimming the oldest entry at
// capacity. An evolution count change restarts the window.
func (w *windowSet) observe(agentID string, e entry, evCount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	win, ok := w.windows[agentID]
	if !ok || win.evCount != evCount {
		win = &agentWindow{evCount: evCount}
		w.windows[agentID] = win
	}
	win.entries = append(win.entries, e)
	if over := len(win.entries) - w.size; over > 0 {
		win.entries = win.entries[over:]
	}
}

// forget drops an agent's window entirely.
func (w *windowSet) forget(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.windows, agentID)
}

// #endregion window-set
