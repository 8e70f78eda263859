package logging

import "time"

// #region decision-entry

// DecisionEntry is a single row in the decision_log table. One row is
// written per authentication attempt, terminal outcomes included, so
// the log is a complete audit trail of everything the engine decided.
type DecisionEntry struct {
	DecisionID     string
	AgentID        string  // empty when no agent was resolved
	Outcome        string  // "authenticated" | "rejected" | "timeout" | "insufficient_modalities" | "error"
	Confidence     float64 // fused confidence scaled by match similarity
	Similarity     float64 // negative when matching never ran
	ValidationJSON string  // serialized validation trace, empty when the gate never ran
	Evolution      string  // "evolved" | "deferred" | "no_op" | "anomaly" | ""
	Reason         string
	Latency        time.Duration
	Digest         string // BLAKE3 content address, filled on insert when empty
	CreatedAt      time.Time
}

// #endregion decision-entry
