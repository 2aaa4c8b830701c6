package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-moderation/pkg/moderation"
	"github.com/tendant/simple-moderation/pkg/moderation/config"
)

const usage = `Simple Moderation Admin CLI

An operator tool for the moderation queue that talks to the database directly.

USAGE:
  admin <command> [options]

COMMANDS:
  pending   List proposals awaiting a decision
  decide    Approve or reject a proposal
  sweep     Purge expired rejected proposals now

ENVIRONMENT VARIABLES:
  Same as the server: DATABASE_URL, MODERATION_DB_SCHEMA, STORAGE_URL, REDIS_URL, ...

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  # List pending proposals of every kind
  admin pending

  # List pending tag proposals as JSON
  admin pending --kind=tag --json

  # Approve article proposal 12
  admin decide --kind=article --id=12 --auth=A

  # Sweep rejected proposals older than two days
  admin sweep --retention=48h

OPTIONS:
  --kind=<article|category|tag>  Restrict to one kind (decide requires it)
  --id=<n>                       Proposal ID (decide only)
  --auth=<A|R>                   Decision (decide only)
  --retention=<duration>         Retention override (sweep only)
  --json                         Output as JSON
`

// operator is the actor the CLI acts as
var operator = moderation.Actor{ID: "admin-cli", Username: "admin-cli", Roles: []string{moderation.RoleAdmin}}

// pendingRow is one line of the pending listing
type pendingRow struct {
	Kind       moderation.Kind       `json:"kind"`
	ID         int64                 `json:"id"`
	Action     moderation.ActionCode `json:"action_code"`
	Slug       string                `json:"slug"`
	CreatedBy  string                `json:"created_by"`
	CreatedAt  time.Time             `json:"created_at"`
	StagedFile string                `json:"staged_asset,omitempty"`
}

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage + "\n")
		os.Exit(0)
	}

	flags, useJSON := parseFlags(os.Args[2:])

	var opts []config.Option
	opts = append(opts, config.WithEnv())
	if v := flags["retention"]; v != "" {
		retention, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("Invalid --retention: %v", err)
		}
		opts = append(opts, func(c *config.ServerConfig) error {
			c.SweepRetention = retention
			return nil
		})
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := cfg.Build(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}
	defer rt.Close()

	switch command {
	case "pending":
		handlePending(ctx, rt.Service, moderation.Kind(flags["kind"]), useJSON)
	case "decide":
		handleDecide(ctx, rt.Service, flags, useJSON)
	case "sweep":
		handleSweep(ctx, rt.Sweeper, useJSON)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
}

func parseFlags(args []string) (map[string]string, bool) {
	flags := map[string]string{}
	useJSON := false
	for _, arg := range args {
		if arg == "--json" {
			useJSON = true
			continue
		}
		key, value := parseFlag(arg)
		if key != "" {
			flags[key] = value
		}
	}
	return flags, useJSON
}

func parseFlag(arg string) (string, string) {
	if !strings.HasPrefix(arg, "--") {
		return "", ""
	}
	key, value, found := strings.Cut(arg[2:], "=")
	if !found {
		return key, "true"
	}
	return key, value
}

func handlePending(ctx context.Context, svc *moderation.Service, kind moderation.Kind, useJSON bool) {
	filter := moderation.ProposalFilter{AuthCode: moderation.AuthPending}
	var rows []pendingRow

	if kind == "" || kind == moderation.KindArticle {
		rows = append(rows, pendingRows(ctx, svc.Articles(), filter)...)
	}
	if kind == "" || kind == moderation.KindCategory {
		rows = append(rows, pendingRows(ctx, svc.Categories(), filter)...)
	}
	if kind == "" || kind == moderation.KindTag {
		rows = append(rows, pendingRows(ctx, svc.Tags(), filter)...)
	}

	if useJSON {
		printJSON(rows)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "KIND\tID\tACTION\tSLUG\tCREATED BY\tCREATED\n")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			row.Kind,
			row.ID,
			row.Action,
			truncate(row.Slug, 30),
			row.CreatedBy,
			row.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d\n", len(rows))
}

func pendingRows[T any](ctx context.Context, engine *moderation.Engine[T], filter moderation.ProposalFilter) []pendingRow {
	proposals, err := engine.ListProposals(ctx, operator, filter)
	if err != nil {
		log.Fatalf("Failed to list %s proposals: %v", engine.Kind(), err)
	}
	rows := make([]pendingRow, 0, len(proposals))
	for _, p := range proposals {
		rows = append(rows, pendingRow{
			Kind:       engine.Kind(),
			ID:         p.ID,
			Action:     p.ActionCode,
			Slug:       p.Slug,
			CreatedBy:  p.CreatedBy,
			CreatedAt:  p.CreatedAt,
			StagedFile: p.StagedAsset,
		})
	}
	return rows
}

func handleDecide(ctx context.Context, svc *moderation.Service, flags map[string]string, useJSON bool) {
	id, err := strconv.ParseInt(flags["id"], 10, 64)
	if err != nil {
		log.Fatalf("Invalid --id: %v", err)
	}
	req := moderation.DecideRequest{ProposalID: id, AuthCode: flags["auth"]}

	var result any
	switch moderation.Kind(flags["kind"]) {
	case moderation.KindArticle:
		result, err = svc.Articles().Decide(ctx, operator, req)
	case moderation.KindCategory:
		result, err = svc.Categories().Decide(ctx, operator, req)
	case moderation.KindTag:
		result, err = svc.Tags().Decide(ctx, operator, req)
	default:
		log.Fatalf("--kind must be article, category or tag")
	}
	if err != nil {
		log.Fatalf("Failed to decide proposal %d: %v", id, err)
	}

	if useJSON {
		printJSON(result)
		return
	}
	fmt.Printf("Proposal %d decided: %s\n", id, req.AuthCode)
}

func handleSweep(ctx context.Context, sweeper *moderation.Sweeper, useJSON bool) {
	report, err := sweeper.RunOnce(ctx)
	if err != nil {
		log.Printf("Sweep finished with errors: %v", err)
	}

	if useJSON {
		printJSON(report)
		return
	}
	if report.Skipped {
		fmt.Println("Sweep skipped: another run holds the lock")
		return
	}

	fmt.Printf("Cutoff: %s\n\n", report.Cutoff.Format(time.RFC3339))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "KIND\tDELETED\tFAILED\tASSET FAILURES\n")
	for _, res := range report.Results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", res.Kind, res.Deleted, res.Failed, res.AssetFailures)
	}
	w.Flush()
	fmt.Printf("\nTotal deleted: %d\n", report.Deleted())
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
