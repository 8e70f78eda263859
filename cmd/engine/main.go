// Command engine runs the authentication engine interactively. It
// opens the template store, warms the candidate index, and accepts
// enroll/auth/inspect commands on stdin. Sample payloads are JSON
// arrays in the replay fixture sample format.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/mlindqvist/agentprint/go-engine/internal/auth"
	"github.com/mlindqvist/agentprint/go-engine/internal/config"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/logging"
	"github.com/mlindqvist/agentprint/go-engine/internal/replay"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #region main
func main() {
	configPath := pflag.String("config", "agentprint.toml", "TOML config file (defaults apply when absent)")
	dbPath := pflag.String("db", "", "override the template database path")
	memory := pflag.Bool("memory", false, "use an in-memory template store (nothing persists)")
	logLevel := pflag.String("log-level", "", "override the configured log level")
	writeConfig := pflag.Bool("write-config", false, "write the effective config to --config and exit")
	pflag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *memory {
		cfg.Storage.Backend = "memory"
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *writeConfig {
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("write config: %v", err)
		}
		fmt.Printf("wrote %s\n", *configPath)
		return
	}

	logCfg, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	logger := logging.New(logCfg)

	var backend template.Backend
	var store *template.Store
	if cfg.Storage.Backend == "memory" {
		backend = template.NewMemoryBackend(cfg.Storage.HistoryCap)
	} else {
		store, err = template.NewStore(cfg.Storage.Path, cfg.Storage.HistoryCap)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer store.Close()
		backend = store
	}

	ctx := context.Background()

	// Rebuilding tears down gate windows and the match index, so the
	// forensic toggle pays for a full index rewarm.
	newOrch := func(forensic bool) (*auth.Orchestrator, int, error) {
		cfg.Validation.Forensic = forensic
		comp := auth.Components{
			Fusion: cfg.Fuser(),
			Match:  cfg.Matcher(),
			Gate:   cfg.Gate(),
			Evolve: cfg.Evolver(),
		}
		o := auth.NewOrchestrator(cfg.Orchestrator(), comp, backend, nil, logger)
		if store != nil {
			o.OnDecision(auth.NewAuditSink(store.DB(), logger))
		}
		n, err := o.Rebuild(ctx)
		if err != nil {
			return nil, 0, err
		}
		return o, n, nil
	}

	forensic := cfg.Validation.Forensic
	orch, indexed, err := newOrch(forensic)
	if err != nil {
		log.Fatalf("warm index: %v", err)
	}

	fmt.Println("Agentprint Engine ready.")
	if store != nil {
		fmt.Printf("  DB: %s | Templates: %d\n", cfg.Storage.Path, indexed)
	} else {
		fmt.Printf("  Store: memory | Templates: %d\n", indexed)
	}
	fmt.Println("Type 'help' for commands (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		args := strings.Fields(line)
		switch args[0] {
		case "help":
			printHelp()
		case "enroll":
			cmdEnroll(ctx, orch, args[1:])
		case "auth":
			cmdAuth(ctx, orch, args[1:])
		case "history":
			cmdHistory(ctx, backend, args[1:])
		case "rollback":
			cmdRollback(ctx, orch, args[1:])
		case "agents":
			cmdAgents(ctx, backend)
		case "forensic":
			if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
				fmt.Printf("forensic validation is %s (usage: forensic on|off)\n", onOff(forensic))
				continue
			}
			want := args[1] == "on"
			if want == forensic {
				fmt.Printf("forensic validation already %s\n", onOff(forensic))
				continue
			}
			next, n, err := newOrch(want)
			if err != nil {
				log.Printf("forensic: %v", err)
				continue
			}
			orch, forensic = next, want
			fmt.Printf("forensic validation %s (windows reset, %d templates indexed)\n", onOff(forensic), n)
		case "stats":
			idx, cached := orch.Stats()
			fmt.Printf("indexed=%d cached=%d forensic=%s\n", idx, cached, onOff(forensic))
		default:
			fmt.Printf("unknown command %q, try 'help'\n", args[0])
		}
	}
}

// #endregion main

// #region commands
func printHelp() {
	fmt.Println("  enroll <agent-id> <samples.json>     register a new agent")
	fmt.Println("  auth <samples.json> [agent-id]       authenticate, optionally claiming an identity")
	fmt.Println("  history <agent-id>                   list archived template versions")
	fmt.Println("  rollback <agent-id> <history-id>     restore an archived template")
	fmt.Println("  agents                               list enrolled agents")
	fmt.Println("  forensic on|off                      run all validation checks even after a failure")
	fmt.Println("  stats                                index and cache sizes")
	fmt.Println("  quit                                 exit")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func cmdEnroll(ctx context.Context, orch *auth.Orchestrator, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: enroll <agent-id> <samples.json>")
		return
	}
	samples, err := loadSamples(args[1])
	if err != nil {
		log.Printf("enroll: %v", err)
		return
	}
	tpl, err := orch.Enroll(ctx, args[0], samples)
	if err != nil {
		log.Printf("enroll: %v", err)
		return
	}
	fmt.Printf("enrolled %s norm=%.4f\n", tpl.AgentID, fingerprint.Norm(tpl.Vector))
}

func cmdAuth(ctx context.Context, orch *auth.Orchestrator, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Println("usage: auth <samples.json> [agent-id]")
		return
	}
	samples, err := loadSamples(args[0])
	if err != nil {
		log.Printf("auth: %v", err)
		return
	}
	claim := ""
	if len(args) == 2 {
		claim = args[1]
	}
	attempt := auth.Attempt{
		ID:          uuid.NewString(),
		AgentClaim:  claim,
		Samples:     samples,
		SubmittedAt: time.Now().UTC(),
	}
	// Failures come back as outcomes; the decision line says why.
	d, _ := orch.Authenticate(ctx, attempt)
	printDecision(d)
}

func cmdHistory(ctx context.Context, backend template.Backend, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: history <agent-id>")
		return
	}
	archived, err := backend.LoadHistory(ctx, args[0])
	if err != nil {
		log.Printf("history: %v", err)
		return
	}
	if len(archived) == 0 {
		fmt.Println("no archived versions")
		return
	}
	for _, a := range archived {
		fmt.Printf("  #%d evolutions=%d stability=%.3f archived=%s\n",
			a.HistoryID, a.Template.EvolutionCount, a.Template.Stability, a.ArchivedAt.Format(time.RFC3339))
	}
}

func cmdRollback(ctx context.Context, orch *auth.Orchestrator, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: rollback <agent-id> <history-id>")
		return
	}
	historyID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Printf("bad history id %q\n", args[1])
		return
	}
	tpl, err := orch.Rollback(ctx, args[0], historyID)
	if err != nil {
		log.Printf("rollback: %v", err)
		return
	}
	fmt.Printf("restored %s evolutions=%d stability=%.3f\n", tpl.AgentID, tpl.EvolutionCount, tpl.Stability)
}

func cmdAgents(ctx context.Context, backend template.Backend) {
	ids, err := backend.Agents(ctx)
	if err != nil {
		log.Printf("agents: %v", err)
		return
	}
	if len(ids) == 0 {
		fmt.Println("no enrolled agents")
		return
	}
	for _, id := range ids {
		fmt.Printf("  %s\n", id)
	}
}

func printDecision(d auth.Decision) {
	agent := d.AgentID
	if agent == "" {
		agent = "—"
	}
	fmt.Printf("[%s] outcome=%s agent=%s", shortID(d.ID), d.Outcome, agent)
	if d.Similarity >= 0 {
		fmt.Printf(" similarity=%.4f", d.Similarity)
	}
	if d.Confidence > 0 {
		fmt.Printf(" confidence=%.4f", d.Confidence)
	}
	if d.Evolution != "" {
		fmt.Printf(" evolution=%s", d.Evolution)
	}
	fmt.Printf(" latency=%s\n", d.Latency.Round(time.Microsecond))
	if d.Reason != "" && d.Outcome != auth.OutcomeAuthenticated {
		fmt.Printf("  reason: %s\n", d.Reason)
	}
}

// #endregion commands

// #region helpers

// loadSamples reads a JSON array of fixture-format samples. Samples
// without a capture time are stamped now.
func loadSamples(path string) ([]fingerprint.Sample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples %s: %w", path, err)
	}
	var fs []replay.FixtureSample
	if err := json.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("parse samples %s: %w", path, err)
	}
	if len(fs) == 0 {
		return nil, fmt.Errorf("samples %s: empty", path)
	}
	now := time.Now().UTC()
	samples := make([]fingerprint.Sample, 0, len(fs))
	for _, f := range fs {
		if _, ok := fingerprint.Segment(fingerprint.Modality(f.Modality)); !ok {
			return nil, fmt.Errorf("samples %s: unknown modality %q", path, f.Modality)
		}
		s := f.ToSample()
		if s.CapturedAt.IsZero() {
			s.CapturedAt = now
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
