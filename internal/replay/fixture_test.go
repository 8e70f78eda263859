package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// #region fixture-tests

// TestFixture_BaselineSession loads the baseline fixture, runs it, and
// compares every decision against the expected results. This is the
// primary regression test: if fusion, matching, or gate parameters
// change behavior, this catches the drift.
func TestFixture_BaselineSession(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "baseline_session.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := Run(f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(f.Attempts) {
		t.Fatalf("expected %d results, got %d", len(f.Attempts), len(results))
	}
	for i := range results {
		if results[i].AttemptID != f.Attempts[i].ID {
			t.Errorf("result %d: expected attempt_id=%s, got %s", i, f.Attempts[i].ID, results[i].AttemptID)
		}
	}

	summary := Summarize(results, f.Expected)
	for _, m := range summary.Mismatches {
		t.Errorf("attempt %s: expected %s=%s, got %s", m.AttemptID, m.Field, m.Want, m.Got)
	}
	if summary.Authenticated != 2 || summary.Rejected != 1 || summary.Insufficient != 1 {
		t.Errorf("unexpected tallies: %+v", summary)
	}
}

// TestFixture_DriftSession replays an anomaly, an absorbed drift step,
// and a settled attempt on the evolved baseline.
func TestFixture_DriftSession(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "drift_session.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := Run(f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary := Summarize(results, f.Expected)
	for _, m := range summary.Mismatches {
		t.Errorf("attempt %s: expected %s=%s, got %s", m.AttemptID, m.Field, m.Want, m.Got)
	}
	if summary.Authenticated != 3 {
		t.Errorf("expected 3 authenticated, got %d", summary.Authenticated)
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// TestLoadFixture_UnknownModality verifies the post-parse check.
func TestLoadFixture_UnknownModality(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unknown.json")
	body := `{
		"description": "typo",
		"enrollments": [
			{"agent_id": "a", "samples": [{"modality": "telepathy", "features": [1, 2]}]}
		]
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for unknown modality, got nil")
	}
	if !strings.Contains(err.Error(), "unknown modality") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestWriteFixture_RoundTrip verifies exported fixtures load back.
func TestWriteFixture_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rt.json")

	f := &Fixture{
		Description: "round trip",
		Config:      DefaultFixtureConfig(),
	}
	if err := WriteFixture(path, f); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if got.Description != f.Description {
		t.Errorf("description: expected %q, got %q", f.Description, got.Description)
	}
	if got.Config.Matching.Seed != f.Config.Matching.Seed {
		t.Errorf("seed: expected %d, got %d", f.Config.Matching.Seed, got.Config.Matching.Seed)
	}
}

// #endregion fixture-tests
