// Command replay runs a recorded fixture through a fresh in-memory
// engine and compares every outcome against the fixture's
// expectations. Divergence exits nonzero, so fixtures double as
// regression checks in CI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/mlindqvist/agentprint/go-engine/internal/replay"
)

// #region main

func main() {
	fixturePath := pflag.String("fixture", "", "fixture JSON file (required)")
	jsonOut := pflag.Bool("json", false, "output results as JSON instead of a table")
	pflag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture session.json [--json]")
		os.Exit(2)
	}

	f, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	results, err := replay.Run(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	summary := replay.Summarize(results, f.Expected)

	if *jsonOut {
		out := struct {
			Description string             `json:"description,omitempty"`
			Results     []replay.RunResult `json:"results"`
			Summary     replay.RunSummary  `json:"summary"`
		}{f.Description, results, summary}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: marshal json: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		if f.Description != "" {
			fmt.Printf("Fixture: %s\n\n", f.Description)
		}
		printComparison(f, results, summary)
	}

	if len(summary.Mismatches) > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region comparison

func printComparison(f *replay.Fixture, results []replay.RunResult, summary replay.RunSummary) {
	expected := make(map[string]replay.FixtureExpected, len(f.Expected))
	for _, e := range f.Expected {
		expected[e.AttemptID] = e
	}
	diverged := make(map[string][]replay.Mismatch)
	for _, m := range summary.Mismatches {
		diverged[m.AttemptID] = append(diverged[m.AttemptID], m)
	}

	fmt.Printf("%-20s  %-23s  %-23s  %-9s  %s\n",
		"Attempt", "Expected", "Outcome", "Evolution", "Match")
	fmt.Printf("%-20s+-%-23s+-%-23s+-%-9s+-%s\n",
		"--------------------", "-----------------------", "-----------------------", "---------", "-----")

	for _, r := range results {
		want := "—"
		if e, ok := expected[r.AttemptID]; ok {
			want = e.Outcome
		}
		evo := string(r.Evolution)
		if evo == "" {
			evo = "—"
		}
		match := "OK"
		if len(diverged[r.AttemptID]) > 0 {
			match = "DIFF"
		}
		fmt.Printf("%-20s  %-23s  %-23s  %-9s  %s\n",
			r.AttemptID, want, r.Outcome, evo, match)
	}

	for _, m := range summary.Mismatches {
		fmt.Printf("  DIFF %s: %s want=%s got=%s\n", m.AttemptID, m.Field, m.Want, m.Got)
	}

	fmt.Printf("\nSummary: %d attempts, %d authenticated, %d rejected, %d mismatches\n",
		summary.TotalAttempts, summary.Authenticated, summary.Rejected, len(summary.Mismatches))
}

// #endregion comparison
