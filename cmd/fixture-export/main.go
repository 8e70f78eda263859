// Command fixture-export builds a replay fixture from a live template
// database. For each exported agent it synthesizes one capture session
// per modality from the stored template vector, then replays the
// fixture in memory and records the observed outcomes as the
// expectations. The result is a self-consistent regression fixture:
// replaying it later must reproduce exactly what it captured.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/replay"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #region main

func main() {
	dbPath := pflag.String("db", "", "path to the template database")
	outPath := pflag.String("out", "", "output fixture JSON path")
	agents := pflag.String("agents", "", "comma-separated agent ids (default: all)")
	description := pflag.String("description", "", "fixture description")
	pflag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db agentprint.db --out fixture.json [--agents a,b] [--description text]")
		os.Exit(2)
	}

	if err := run(*dbPath, *outPath, *agents, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, outPath, agentFilter, description string) error {
	store, err := template.NewStore(dbPath, 0)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	ids, err := selectAgents(ctx, store, agentFilter)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no agents to export")
	}
	fmt.Printf("Exporting %d agents\n", len(ids))

	exportedAt := time.Now().UTC().Truncate(time.Second)
	fixture := &replay.Fixture{
		Description: description,
		Config:      replay.DefaultFixtureConfig(),
	}
	if fixture.Description == "" {
		fixture.Description = fmt.Sprintf("Template export: %d agents from %s", len(ids), dbPath)
	}

	for _, id := range ids {
		tpl, err := store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
		samples := synthesizeSamples(tpl, exportedAt)
		fixture.Enrollments = append(fixture.Enrollments, replay.FixtureEnrollment{
			AgentID: id,
			Samples: samples,
		})
		fixture.Attempts = append(fixture.Attempts, replay.FixtureAttempt{
			ID:      id + "-verify",
			Claim:   id,
			Samples: samples,
		})
	}

	// Replay in memory and snapshot the outcomes as expectations.
	results, err := replay.Run(fixture)
	if err != nil {
		return fmt.Errorf("calibrate fixture: %w", err)
	}
	for _, r := range results {
		fixture.Expected = append(fixture.Expected, replay.FixtureExpected{
			AttemptID: r.AttemptID,
			Outcome:   r.Outcome,
			Evolution: string(r.Evolution),
		})
	}
	fmt.Printf("Calibrated %d expected results\n", len(fixture.Expected))

	if err := replay.WriteFixture(outPath, fixture); err != nil {
		return err
	}
	fmt.Printf("Wrote fixture to %s (%d enrollments, %d attempts)\n",
		outPath, len(fixture.Enrollments), len(fixture.Attempts))
	return nil
}

func selectAgents(ctx context.Context, store *template.Store, filter string) ([]string, error) {
	if filter == "" {
		ids, err := store.Agents(ctx)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		return ids, nil
	}
	var ids []string
	for _, id := range strings.Split(filter, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// #endregion extract

// #region synthesize

// synthesizeSamples inverts fusion for one template: each modality
// gets its template segment scaled back up by the modality count, so
// re-fusing the four samples lands close to the stored vector. The
// inversion is only exact under equal weights, which is why the
// expectations come from a calibration run rather than from here.
func synthesizeSamples(tpl template.Template, capturedAt time.Time) []replay.FixtureSample {
	modalities := fingerprint.Modalities()
	scale := float32(len(modalities))
	samples := make([]replay.FixtureSample, 0, len(modalities))
	for _, m := range modalities {
		seg, _ := fingerprint.Segment(m)
		features := make([]float32, 0, seg[1]-seg[0])
		for i := seg[0]; i < seg[1]; i++ {
			features = append(features, tpl.Vector[i]*scale)
		}
		samples = append(samples, replay.FixtureSample{
			Modality:   string(m),
			Features:   features,
			CapturedAt: capturedAt,
		})
	}
	return samples
}

// #endregion synthesize
