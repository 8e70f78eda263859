// Command enroll batch-registers agents from a JSON file of
// enrollment records, each an agent id plus one capture session of
// fixture-format samples. Agents already enrolled are skipped.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/mlindqvist/agentprint/go-engine/internal/auth"
	"github.com/mlindqvist/agentprint/go-engine/internal/config"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/replay"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #region main
func main() {
	configPath := pflag.String("config", "agentprint.toml", "TOML config file (defaults apply when absent)")
	dbPath := pflag.String("db", "", "override the template database path")
	filePath := pflag.String("file", "", "enrollment JSON file (required)")
	pflag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: enroll --file enrollments.json [--db agentprint.db]")
		os.Exit(2)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	enrollments, err := loadEnrollments(*filePath)
	if err != nil {
		log.Fatalf("load enrollments: %v", err)
	}

	fmt.Println("=== Agent Enrollment Tool ===")
	fmt.Printf("  DB: %s | File: %s | Agents: %d\n", cfg.Storage.Path, *filePath, len(enrollments))

	store, err := template.NewStore(cfg.Storage.Path, cfg.Storage.HistoryCap)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	comp := auth.Components{
		Fusion: cfg.Fuser(),
		Match:  cfg.Matcher(),
		Gate:   cfg.Gate(),
		Evolve: cfg.Evolver(),
	}
	orch := auth.NewOrchestrator(cfg.Orchestrator(), comp, store, nil, nil)

	ctx := context.Background()
	enrolled, skipped, failed := 0, 0, 0
	now := time.Now().UTC()
	for i, e := range enrollments {
		samples := make([]fingerprint.Sample, 0, len(e.Samples))
		for _, f := range e.Samples {
			s := f.ToSample()
			if s.CapturedAt.IsZero() {
				s.CapturedAt = now
			}
			samples = append(samples, s)
		}
		tpl, err := orch.Enroll(ctx, e.AgentID, samples)
		switch {
		case errors.Is(err, template.ErrExists):
			log.Printf("skip %s: already enrolled", e.AgentID)
			skipped++
		case err != nil:
			log.Printf("enroll %s: %v", e.AgentID, err)
			failed++
		default:
			fmt.Printf("  [%d/%d] %s norm=%.4f\n", i+1, len(enrollments), tpl.AgentID, fingerprint.Norm(tpl.Vector))
			enrolled++
		}
	}

	fmt.Printf("\n=== Enrollment Complete ===\n")
	fmt.Printf("  Enrolled: %d\n", enrolled)
	fmt.Printf("  Skipped:  %d\n", skipped)
	fmt.Printf("  Failed:   %d\n", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region helpers

// loadEnrollments parses and validates the enrollment file.
func loadEnrollments(path string) ([]replay.FixtureEnrollment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var enrollments []replay.FixtureEnrollment
	if err := json.Unmarshal(raw, &enrollments); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(enrollments) == 0 {
		return nil, fmt.Errorf("%s: no enrollments", path)
	}
	for _, e := range enrollments {
		if e.AgentID == "" {
			return nil, fmt.Errorf("%s: enrollment missing agent_id", path)
		}
		for _, s := range e.Samples {
			if _, ok := fingerprint.Segment(fingerprint.Modality(s.Modality)); !ok {
				return nil, fmt.Errorf("%s: agent %s: unknown modality %q", path, e.AgentID, s.Modality)
			}
		}
	}
	return enrollments, nil
}

// #endregion helpers
