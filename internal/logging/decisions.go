package logging

// #region imports
import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// #endregion imports

// #region encoding

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2) so
// two entries with identical content always carry identical digests.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("logging: CBOR encoder initialization failed: " + err.Error())
	}
}

// digestBody is the canonical digest payload. The digest itself is
// excluded; CreatedAt is included so re-running the same attempt at a
// different time stays distinguishable in the audit trail.
type digestBody struct {
	DecisionID     string
	AgentID        string
	Outcome        string
	Confidence     float64
	Similarity     float64
	ValidationJSON string
	Evolution      string
	Reason         string
	LatencyNS      int64
	CreatedAt      string
}

// #endregion encoding

// #region log-decision

// LogDecision writes an audit row to the decision_log table. A zero
// CreatedAt is filled with the current UTC time and an empty Digest is
// computed from the entry content before the insert.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Digest == "" {
		d, err := EntryDigest(entry)
		if err != nil {
			return err
		}
		entry.Digest = d
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (decision_id, agent_id, outcome, confidence, similarity, validation_json, evolution, reason, latency_ns, digest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.DecisionID,
		nullIfEmpty(entry.AgentID),
		entry.Outcome,
		entry.Confidence,
		nullIfNegative(entry.Similarity),
		nullIfEmpty(entry.ValidationJSON),
		nullIfEmpty(entry.Evolution),
		nullIfEmpty(entry.Reason),
		entry.Latency.Nanoseconds(),
		entry.Digest,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region digest

// EntryDigest content-addresses an entry with deterministic CBOR and
// BLAKE3. Verifiers recompute it from the row columns to detect
// after-the-fact edits to the audit trail.
func EntryDigest(entry DecisionEntry) (string, error) {
	body := digestBody{
		DecisionID:     entry.DecisionID,
		AgentID:        entry.AgentID,
		Outcome:        entry.Outcome,
		Confidence:     entry.Confidence,
		Similarity:     entry.Similarity,
		ValidationJSON: entry.ValidationJSON,
		Evolution:      entry.Evolution,
		Reason:         entry.Reason,
		LatencyNS:      entry.Latency.Nanoseconds(),
		CreatedAt:      entry.CreatedAt.Format(time.RFC3339Nano),
	}
	raw, err := encMode.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode decision: %w", err)
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// #endregion digest

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullIfNegative maps the "not computed" sentinel to NULL. Similarity
// is only meaningful once matching has run.
func nullIfNegative(f float64) interface{} {
	if f < 0 {
		return nil
	}
	return f
}

// #endregion helpers
