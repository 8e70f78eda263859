package auth

// #region imports
import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlindqvist/agentprint/go-engine/internal/clock"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
)

// #endregion imports

// #region collector

// Collector buffers incoming samples per stream and flushes them as
// one attempt when the window closes. Extractors emit single-modality
// samples at different rates; a short buffering window lets one
// attempt see every channel.
type Collector struct {
	window time.Duration
	clk    clock.Clock
	submit func(Attempt)

	mu      sync.Mutex
	pending map[string]*pendingStream
}

type pendingStream struct {
	claim   string
	samples []fingerprint.Sample
	timer   *clock.Timer
}

// NewCollector creates a collector flushing each stream window to
// submit. A nil clk uses the wall clock.
func NewCollector(window time.Duration, clk clock.Clock, submit func(Attempt)) *Collector {
	if window <= 0 {
		window = DefaultConfig().SampleWindow
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Collector{
		window:  window,
		clk:     clk,
		submit:  submit,
		pending: make(map[string]*pendingStream),
	}
}

// #endregion collector

// #region add

// Add buffers one sample. streamID groups samples from one source
// connection; the first sample arms the flush timer. claim may be
// empty for pure identification, and the first non-empty claim on a
// stream wins.
func (c *Collector) Add(streamID, claim string, sample fingerprint.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[streamID]
	if !ok {
		p = &pendingStream{}
		p.timer = c.clk.AfterFunc(c.window, func() { c.Flush(streamID) })
		c.pending[streamID] = p
	}
	if p.claim == "" {
		p.claim = claim
	}
	p.samples = append(p.samples, sample)
}

// Pending returns the number of open stream windows.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// #endregion add

// #region flush

// Flush closes a stream's window immediately and submits the buffered
// samples as one attempt. Flushing an unknown stream is a no-op.
func (c *Collector) Flush(streamID string) {
	c.mu.Lock()
	p := c.pending[streamID]
	delete(c.pending, streamID)
	c.mu.Unlock()

	if p == nil {
		return
	}
	p.timer.Stop()

	c.submit(Attempt{
		ID:          uuid.New().String(),
		AgentClaim:  p.claim,
		Samples:     p.samples,
		SubmittedAt: c.clk.Now().UTC(),
	})
}

// FlushAll closes every open window. Called at shutdown so buffered
// samples still produce decisions.
func (c *Collector) FlushAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Flush(id)
	}
}

// #endregion flush
