package replay

// #region imports
import (
	"context"
	"fmt"

	"github.com/mlindqvist/agentprint/go-engine/internal/auth"
	"github.com/mlindqvist/agentprint/go-engine/internal/evolve"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #endregion imports

// #region types

// RunResult captures the decision for one replayed attempt.
type RunResult struct {
	AttemptID  string        `json:"attempt_id"`
	Outcome    string        `json:"outcome"`
	AgentID    string        `json:"agent_id,omitempty"`
	Similarity float64       `json:"similarity"`
	Confidence float64       `json:"confidence"`
	Evolution  evolve.Action `json:"evolution,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// RunSummary aggregates a replay run against the fixture expectations.
type RunSummary struct {
	TotalAttempts int        `json:"total_attempts"`
	Authenticated int        `json:"authenticated"`
	Rejected      int        `json:"rejected"`
	Timeouts      int        `json:"timeouts"`
	Insufficient  int        `json:"insufficient"`
	Errors        int        `json:"errors"`
	Mismatches    []Mismatch `json:"mismatches,omitempty"`
}

// Mismatch is one attempt whose decision deviated from the fixture.
type Mismatch struct {
	AttemptID string `json:"attempt_id"`
	Field     string `json:"field"` // "outcome" | "evolution"
	Want      string `json:"want"`
	Got       string `json:"got"`
}

// #endregion types

// #region run

// Run replays a fixture through a fresh in-memory engine: enroll every
// agent, then authenticate the attempts in order. Evolution carries
// template state across attempts exactly as in live operation.
func Run(f *Fixture) ([]RunResult, error) {
	ctx := context.Background()
	backend := template.NewMemoryBackend(f.Config.HistoryCap)
	o := auth.NewOrchestrator(auth.DefaultConfig(), f.Config.ToComponents(), backend, nil, nil)

	for _, e := range f.Enrollments {
		samples := make([]fingerprint.Sample, len(e.Samples))
		for i := range e.Samples {
			samples[i] = e.Samples[i].ToSample()
		}
		if _, err := o.Enroll(ctx, e.AgentID, samples); err != nil {
			return nil, fmt.Errorf("enroll %s: %w", e.AgentID, err)
		}
	}

	results := make([]RunResult, 0, len(f.Attempts))
	for i := range f.Attempts {
		attempt := f.Attempts[i].ToAttempt()
		// Failures surface as outcomes; the replay records them rather
		// than aborting the run.
		d, _ := o.Authenticate(ctx, attempt)
		results = append(results, RunResult{
			AttemptID:  d.ID,
			Outcome:    d.Outcome,
			AgentID:    d.AgentID,
			Similarity: d.Similarity,
			Confidence: d.Confidence,
			Evolution:  d.Evolution,
			Reason:     d.Reason,
		})
	}
	return results, nil
}

// Summarize tallies outcomes and compares each result against the
// fixture expectations.
func Summarize(results []RunResult, expected []FixtureExpected) RunSummary {
	s := RunSummary{TotalAttempts: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case auth.OutcomeAuthenticated:
			s.Authenticated++
		case auth.OutcomeRejected:
			s.Rejected++
		case auth.OutcomeTimeout:
			s.Timeouts++
		case auth.OutcomeInsufficient:
			s.Insufficient++
		default:
			s.Errors++
		}
	}

	byID := make(map[string]RunResult, len(results))
	for _, r := range results {
		byID[r.AttemptID] = r
	}
	for _, e := range expected {
		r, ok := byID[e.AttemptID]
		if !ok {
			s.Mismatches = append(s.Mismatches, Mismatch{
				AttemptID: e.AttemptID, Field: "outcome", Want: e.Outcome, Got: "missing",
			})
			continue
		}
		if r.Outcome != e.Outcome {
			s.Mismatches = append(s.Mismatches, Mismatch{
				AttemptID: e.AttemptID, Field: "outcome", Want: e.Outcome, Got: r.Outcome,
			})
		}
		if e.Evolution != "" && string(r.Evolution) != e.Evolution {
			s.Mismatches = append(s.Mismatches, Mismatch{
				AttemptID: e.AttemptID, Field: "evolution", Want: e.Evolution, Got: string(r.Evolution),
			})
		}
	}
	return s
}

// #endregion run
