// Command inspect reads a template database and prints enrolled
// agents, per-agent template detail with archived history, or the
// decision audit log. With --verify it recomputes each decision
// digest to detect edited audit rows.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/logging"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #region main

func main() {
	dbPath := pflag.String("db", "", "path to the template database")
	agent := pflag.String("agent", "", "show single agent detail with history")
	decisions := pflag.Int("decisions", 0, "show N most recent decisions")
	verify := pflag.Bool("verify", false, "recompute decision digests (with --decisions)")
	segment := pflag.String("segment", "", "filter segment breakdown to one modality")
	jsonOut := pflag.Bool("json", false, "output as JSON instead of table")
	pflag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db agentprint.db [--agent id] [--decisions N [--verify]] [--segment name] [--json]")
		os.Exit(2)
	}

	store, err := template.NewStore(*dbPath, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *decisions > 0:
		err = runDecisionsMode(store.DB(), *decisions, *verify, *jsonOut)
	case *agent != "":
		err = runDetailMode(store, *agent, *segment, *jsonOut)
	default:
		err = runListMode(store, *segment, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type agentRow struct {
	AgentID       string   `json:"agent_id"`
	Norm          float64  `json:"norm"`
	Evolutions    int64    `json:"evolutions"`
	Stability     float64  `json:"stability"`
	LastEvolvedAt string   `json:"last_evolved_at"`
	SegNorm       *float64 `json:"seg_norm,omitempty"`
}

func runListMode(store *template.Store, segFilter string, jsonOut bool) error {
	ctx := context.Background()
	ids, err := store.Agents(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no agents enrolled")
		return nil
	}

	rows := make([]agentRow, 0, len(ids))
	for _, id := range ids {
		tpl, err := store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
		ar := agentRow{
			AgentID:       tpl.AgentID,
			Norm:          fingerprint.Norm(tpl.Vector),
			Evolutions:    tpl.EvolutionCount,
			Stability:     tpl.Stability,
			LastEvolvedAt: tpl.LastEvolvedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if segFilter != "" {
			n := fingerprint.SegmentNorm(tpl.Vector, fingerprint.Modality(segFilter))
			ar.SegNorm = &n
		}
		rows = append(rows, ar)
	}

	if jsonOut {
		return printJSON(rows)
	}
	return printAgentTable(rows, segFilter)
}

func printAgentTable(rows []agentRow, segFilter string) error {
	if segFilter != "" {
		fmt.Printf("%-20s  %8s  %10s  %9s  %-8s  %s\n",
			"Agent", "Norm", "Evolutions", "Stability", "Seg Norm", "Last Evolved")
		fmt.Printf("%-20s+-%8s+-%10s+-%9s+-%-8s+-%s\n",
			"--------------------", "--------", "----------", "---------", "--------", "--------------------")
	} else {
		fmt.Printf("%-20s  %8s  %10s  %9s  %s\n",
			"Agent", "Norm", "Evolutions", "Stability", "Last Evolved")
		fmt.Printf("%-20s+-%8s+-%10s+-%9s+-%s\n",
			"--------------------", "--------", "----------", "---------", "--------------------")
	}
	for _, r := range rows {
		if segFilter != "" {
			fmt.Printf("%-20s  %8.4f  %10d  %9.3f  %8.4f  %s\n",
				r.AgentID, r.Norm, r.Evolutions, r.Stability, *r.SegNorm, r.LastEvolvedAt)
		} else {
			fmt.Printf("%-20s  %8.4f  %10d  %9.3f  %s\n",
				r.AgentID, r.Norm, r.Evolutions, r.Stability, r.LastEvolvedAt)
		}
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	AgentID       string             `json:"agent_id"`
	CreatedAt     string             `json:"created_at"`
	LastEvolvedAt string             `json:"last_evolved_at"`
	Evolutions    int64              `json:"evolutions"`
	Stability     float64            `json:"stability"`
	Norm          float64            `json:"norm"`
	Segments      map[string]float64 `json:"segments"`
	History       []historyRow       `json:"history,omitempty"`
}

type historyRow struct {
	HistoryID  int64   `json:"history_id"`
	Evolutions int64   `json:"evolutions"`
	Stability  float64 `json:"stability"`
	Norm       float64 `json:"norm"`
	ArchivedAt string  `json:"archived_at"`
}

func runDetailMode(store *template.Store, agentID, segFilter string, jsonOut bool) error {
	ctx := context.Background()
	tpl, err := store.Load(ctx, agentID)
	if err != nil {
		return err
	}
	archived, err := store.LoadHistory(ctx, agentID)
	if err != nil {
		return err
	}

	out := detailOutput{
		AgentID:       tpl.AgentID,
		CreatedAt:     tpl.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		LastEvolvedAt: tpl.LastEvolvedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Evolutions:    tpl.EvolutionCount,
		Stability:     tpl.Stability,
		Norm:          fingerprint.Norm(tpl.Vector),
		Segments:      computeSegmentNorms(tpl.Vector),
	}
	for _, a := range archived {
		out.History = append(out.History, historyRow{
			HistoryID:  a.HistoryID,
			Evolutions: a.Template.EvolutionCount,
			Stability:  a.Template.Stability,
			Norm:       fingerprint.Norm(a.Template.Vector),
			ArchivedAt: a.ArchivedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Agent:        %s\n", out.AgentID)
	fmt.Printf("Created:      %s\n", out.CreatedAt)
	fmt.Printf("Last Evolved: %s\n", out.LastEvolvedAt)
	fmt.Printf("Evolutions:   %d\n", out.Evolutions)
	fmt.Printf("Stability:    %.3f\n", out.Stability)
	fmt.Printf("Norm:         %.4f\n", out.Norm)

	fmt.Printf("\nSegment norms:\n")
	printSegments(out.Segments, segFilter)

	if len(out.History) > 0 {
		fmt.Printf("\nArchived versions:\n")
		for _, h := range out.History {
			fmt.Printf("  #%-4d evolutions=%-4d stability=%.3f norm=%.4f archived=%s\n",
				h.HistoryID, h.Evolutions, h.Stability, h.Norm, h.ArchivedAt)
		}
	}
	return nil
}

// #endregion detail-mode

// #region decisions-mode

type decisionRow struct {
	DecisionID string   `json:"decision_id"`
	AgentID    string   `json:"agent_id,omitempty"`
	Outcome    string   `json:"outcome"`
	Confidence float64  `json:"confidence"`
	Similarity *float64 `json:"similarity,omitempty"`
	Evolution  string   `json:"evolution,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	LatencyMs  float64  `json:"latency_ms"`
	Digest     string   `json:"digest"`
	DigestOK   *bool    `json:"digest_ok,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func runDecisionsMode(db *sql.DB, last int, verify, jsonOut bool) error {
	rows, err := db.Query(
		`SELECT decision_id, agent_id, outcome, confidence, similarity, validation_json, evolution, reason, latency_ns, digest, created_at
		 FROM decision_log ORDER BY id DESC LIMIT ?`, last)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []decisionRow
	for rows.Next() {
		var (
			decisionID, outcome, digest, createdAt string
			agentID, validationJSON, evo, reason   sql.NullString
			confidence                             float64
			similarity                             sql.NullFloat64
			latencyNS                              int64
		)
		if err := rows.Scan(&decisionID, &agentID, &outcome, &confidence, &similarity,
			&validationJSON, &evo, &reason, &latencyNS, &digest, &createdAt); err != nil {
			return fmt.Errorf("scan decision: %w", err)
		}
		dr := decisionRow{
			DecisionID: decisionID,
			AgentID:    agentID.String,
			Outcome:    outcome,
			Confidence: confidence,
			Evolution:  evo.String,
			Reason:     reason.String,
			LatencyMs:  float64(latencyNS) / 1e6,
			Digest:     digest,
			CreatedAt:  createdAt,
		}
		if similarity.Valid {
			dr.Similarity = &similarity.Float64
		}
		if verify {
			ok := verifyDigest(dr, validationJSON.String, latencyNS)
			dr.DigestOK = &ok
		}
		out = append(out, dr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read decisions: %w", err)
	}
	if len(out) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions logged")
		return nil
	}

	// Query returns newest first; reverse for chronological display.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	if jsonOut {
		return printJSON(out)
	}
	return printDecisionTable(out, verify)
}

// verifyDigest recomputes the content address from the row columns.
// A NULL similarity reads back as the -1 sentinel the writer nulled.
func verifyDigest(dr decisionRow, validationJSON string, latencyNS int64) bool {
	createdAt, err := time.Parse(time.RFC3339Nano, dr.CreatedAt)
	if err != nil {
		return false
	}
	similarity := -1.0
	if dr.Similarity != nil {
		similarity = *dr.Similarity
	}
	want, err := logging.EntryDigest(logging.DecisionEntry{
		DecisionID:     dr.DecisionID,
		AgentID:        dr.AgentID,
		Outcome:        dr.Outcome,
		Confidence:     dr.Confidence,
		Similarity:     similarity,
		ValidationJSON: validationJSON,
		Evolution:      dr.Evolution,
		Reason:         dr.Reason,
		Latency:        time.Duration(latencyNS),
		CreatedAt:      createdAt,
	})
	if err != nil {
		return false
	}
	return want == dr.Digest
}

func printDecisionTable(rows []decisionRow, verify bool) error {
	if verify {
		fmt.Printf("%-12s  %-16s  %-23s  %6s  %8s  %-8s  %9s  %-6s  %s\n",
			"Decision", "Agent", "Outcome", "Conf", "Similar", "Evolved", "Latency", "Digest", "Time")
		fmt.Printf("%-12s+-%-16s+-%-23s+-%6s+-%8s+-%-8s+-%9s+-%-6s+-%s\n",
			"------------", "----------------", "-----------------------", "------", "--------", "--------", "---------", "------", "--------------------")
	} else {
		fmt.Printf("%-12s  %-16s  %-23s  %6s  %8s  %-8s  %9s  %s\n",
			"Decision", "Agent", "Outcome", "Conf", "Similar", "Evolved", "Latency", "Time")
		fmt.Printf("%-12s+-%-16s+-%-23s+-%6s+-%8s+-%-8s+-%9s+-%s\n",
			"------------", "----------------", "-----------------------", "------", "--------", "--------", "---------", "--------------------")
	}

	for _, r := range rows {
		agent := r.AgentID
		if agent == "" {
			agent = "—"
		}
		similar := "—"
		if r.Similarity != nil {
			similar = fmt.Sprintf("%.4f", *r.Similarity)
		}
		evo := r.Evolution
		if evo == "" {
			evo = "—"
		}
		created := r.CreatedAt
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			created = t.UTC().Format("2006-01-02T15:04:05Z")
		}
		latency := fmt.Sprintf("%.2fms", r.LatencyMs)
		if verify {
			digest := "BAD"
			if r.DigestOK != nil && *r.DigestOK {
				digest = "OK"
			}
			fmt.Printf("%-12s  %-16s  %-23s  %6.4f  %8s  %-8s  %9s  %-6s  %s\n",
				shortID(r.DecisionID), agent, r.Outcome, r.Confidence, similar, evo, latency, digest, created)
		} else {
			fmt.Printf("%-12s  %-16s  %-23s  %6.4f  %8s  %-8s  %9s  %s\n",
				shortID(r.DecisionID), agent, r.Outcome, r.Confidence, similar, evo, latency, created)
		}
	}
	return nil
}

// #endregion decisions-mode

// #region output

func computeSegmentNorms(v [128]float32) map[string]float64 {
	segs := make(map[string]float64, 4)
	for _, m := range fingerprint.Modalities() {
		segs[string(m)] = fingerprint.SegmentNorm(v, m)
	}
	return segs
}

func printSegments(segs map[string]float64, filter string) {
	for _, m := range fingerprint.Modalities() {
		name := string(m)
		if filter != "" && name != filter {
			continue
		}
		fmt.Printf("  %-12s %.4f\n", name, segs[name])
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
