// ABOUTME: Entry point for the demogen CLI
// ABOUTME: Routes run, smoke, plan, and reset commands from parsed flags
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"github.com/harperreed/demogen/config"
	"github.com/harperreed/demogen/content"
	"github.com/harperreed/demogen/crm"
	"github.com/harperreed/demogen/ledger"
	"github.com/harperreed/demogen/models"
	"github.com/harperreed/demogen/planner"
	"github.com/harperreed/demogen/runlog"
	"github.com/harperreed/demogen/runner"
)

const version = "0.2.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "demogen.yaml", "Path to YAML configuration")
	logDir := flag.String("log-dir", "./runs", "Directory for per-run logs")
	statePath := flag.String("state-path", "", "Ledger database path (default: XDG data dir)")
	concurrency := flag.Int("concurrency", 5, "Record-level worker pool size")
	maxRecords := flag.Int("max-records", 200, "Upper bound on records per run")
	dryRun := flag.Bool("dry-run", false, "Use the mock CRM and write no state")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("demogen version %s\n", version)
		os.Exit(0)
	}

	// Credentials come from the environment; .env is a convenience.
	_ = godotenv.Load()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	res, err := config.Load(*configPath, *logDir)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *dryRun {
		res.Config.Run.DryRun = true
	}

	ctx := context.Background()

	switch args[0] {
	case "run":
		r, cleanup := buildRunner(ctx, res, *statePath, *concurrency, *maxRecords)
		defer cleanup()
		stats, err := r.Run(ctx)
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		printJSON(stats)

	case "smoke":
		if len(args) < 2 {
			log.Fatal("Usage: demogen smoke <record-id>")
		}
		r, cleanup := buildRunner(ctx, res, *statePath, *concurrency, *maxRecords)
		defer cleanup()
		report, err := r.Smoke(ctx, args[1])
		if err != nil {
			log.Fatalf("Smoke test failed: %v", err)
		}
		printJSON(report)

	case "reset":
		if len(args) < 2 {
			log.Fatal("Usage: demogen reset <run-id>")
		}
		r, cleanup := buildRunner(ctx, res, *statePath, *concurrency, *maxRecords)
		defer cleanup()
		n, err := r.Reset(ctx, args[1])
		if err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Printf("Deleted %d ledger records for %s", n, args[1])

	case "plan":
		if len(args) < 2 {
			log.Fatal("Usage: demogen plan <record-id>")
		}
		printPlan(ctx, res, args[1])

	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// buildRunner wires the CRM client, content generator, ledger, and logger.
func buildRunner(ctx context.Context, res *config.Resolved, statePath string, concurrency, maxRecords int) (*runner.Runner, func()) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	dryRun := res.Config.Run.DryRun

	var crmClient crm.Client
	if dryRun {
		crmClient = crm.NewMock()
	} else {
		client, err := crm.NewREST(ctx, res.Config.CRM, crm.Credentials{
			ClientID:     os.Getenv("DEMOGEN_CRM_CLIENT_ID"),
			ClientSecret: os.Getenv("DEMOGEN_CRM_CLIENT_SECRET"),
			TokenURL:     os.Getenv("DEMOGEN_CRM_TOKEN_URL"),
		})
		if err != nil {
			log.Fatalf("CRM client error: %v", err)
		}
		if res.Config.Run.IdempotencyMode == config.IdempotencyTag {
			client.TagField = res.Config.Run.TagField
			client.RunID = res.RunID
		}
		crmClient = client
	}

	var gen content.Generator
	if res.Config.LLM.Enabled && !dryRun {
		client, err := content.NewClient(res.Config.LLM, os.Getenv("OPENAI_API_KEY"))
		if err != nil {
			log.Fatalf("Content client error: %v", err)
		}
		cache, err := content.OpenCache(filepath.Join(xdg.CacheHome, "demogen", "content"), client)
		if err != nil {
			log.Fatalf("Content cache error: %v", err)
		}
		closers = append(closers, func() { _ = cache.Close() })
		gen = cache
	}

	var db *sql.DB
	if res.Config.Run.IdempotencyMode == config.IdempotencyExternalState && !dryRun {
		path := statePath
		if path == "" {
			var err error
			path, err = xdg.DataFile("demogen/state.db")
			if err != nil {
				log.Fatalf("State path error: %v", err)
			}
		}
		var err error
		db, err = ledger.Open(path)
		if err != nil {
			log.Fatalf("Ledger error: %v", err)
		}
		closers = append(closers, func() { _ = db.Close() })
	}

	var rl *runlog.Logger
	if dryRun {
		rl = runlog.NewDryRun(res.RunID)
	} else {
		var err error
		rl, err = runlog.New(res.RunID, res.RunDir)
		if err != nil {
			log.Fatalf("Run log error: %v", err)
		}
		if err := res.SaveResolved(); err != nil {
			log.Fatalf("Resolved config error: %v", err)
		}
	}

	r, err := runner.New(res, crmClient, gen, db, rl)
	if err != nil {
		cleanup()
		log.Fatalf("Runner error: %v", err)
	}
	r.Concurrency = concurrency
	r.MaxRecords = maxRecords
	return r, cleanup
}

// printPlan renders the deterministic plan for one record without touching
// the CRM or the ledger.
func printPlan(ctx context.Context, res *config.Resolved, recordID string) {
	mock := crm.NewMock()
	contacts, _ := mock.ContactsForRecord(ctx, recordID)
	record := models.Record{ID: recordID, Name: recordID, Stage: "discovery", Contacts: contacts}

	p, err := planner.New(res.Config.Activity, res.Config.Run.Seed)
	if err != nil {
		log.Fatalf("Planner error: %v", err)
	}
	plan, err := p.Plan(record)
	if err != nil {
		log.Fatalf("Planning failed: %v", err)
	}
	printJSON(planner.Items(plan))
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Encoding error: %v", err)
	}
	fmt.Println(string(out))
}

func printUsage() {
	fmt.Println(`demogen - deterministic CRM seeding

Usage:
  demogen [flags] run                Seed activities and scorecards
  demogen [flags] smoke <record-id>  End-to-end check on one record
  demogen [flags] plan <record-id>   Print the deterministic plan for a record
  demogen [flags] reset <run-id>     Delete a run's records, remote and local

Flags:
  -config string       Path to YAML configuration (default "demogen.yaml")
  -log-dir string      Directory for per-run logs (default "./runs")
  -state-path string   Ledger database path (default: XDG data dir)
  -concurrency int     Record-level worker pool size (default 5)
  -max-records int     Upper bound on records per run (default 200)
  -dry-run             Use the mock CRM and write no state
  -version             Show version and exit`)
}
