// Package main implements the job-runner CLI tool for running surfcast jobs
// directly, bypassing the AWS Lambda shim.
//
// This tool is intended for local development, checking a source after a
// site redesign, and replaying an alert run. It reads the same environment
// as the Lambda functions (or a .env file via godotenv).
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=fetch --region=hossegor --date=2026-03-14
//	go run ./cmd/tools/job-runner --task=run_alerts --date=2026-03-14 --regions=hossegor,ericeira --dry-run
//	go run ./cmd/tools/job-runner --task=run_alerts --print-payload
//	go run ./cmd/tools/job-runner --list
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"surfcast/internal/alerts"
	"surfcast/internal/app"
	"surfcast/internal/config"
	"surfcast/internal/db"
	"surfcast/internal/dispatch"
	"surfcast/internal/scheduler"
	"surfcast/internal/types"
)

// Task names accepted by --task.
const (
	taskFetch     = "fetch"
	taskRunAlerts = "run_alerts"
	taskRegions   = "list_regions"
)

var validTasks = map[string]string{
	taskFetch:     "Fetch and print one canonical forecast without touching the database",
	taskRunAlerts: "Evaluate active alerts for a date and queue the matches",
	taskRegions:   "Print the region catalog",
}

// options are the parsed command-line flags.
type options struct {
	Task         string
	Region       string
	Date         string
	Regions      []string
	DryRun       bool
	PrintPayload bool
}

func main() {
	taskFlag := flag.String("task", "", "Task to execute (fetch, run_alerts, list_regions)")
	regionFlag := flag.String("region", "", "Region for --task=fetch")
	dateFlag := flag.String("date", "", "Forecast date, YYYY-MM-DD (default: today UTC)")
	regionsFlag := flag.String("regions", "", "Comma-separated regions for --task=run_alerts (default: all with active alerts)")
	dryRunFlag := flag.Bool("dry-run", false, "Evaluate alerts without publishing")
	payloadFlag := flag.Bool("print-payload", false, "Print the Lambda event for --task=run_alerts without executing")
	listFlag := flag.Bool("list", false, "List all available tasks and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run surfcast jobs directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *listFlag {
		printAvailableTasks(os.Stderr)
		return
	}

	opts := options{
		Task:         *taskFlag,
		Region:       *regionFlag,
		Date:         *dateFlag,
		Regions:      parseRegions(*regionsFlag),
		DryRun:       *dryRunFlag,
		PrintPayload: *payloadFlag,
	}
	if err := opts.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if opts.PrintPayload {
		if err := printPayload(os.Stdout, opts.runInput()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: task %s failed: %v\n", opts.Task, err)
		os.Exit(1)
	}
}

func (o options) validate() error {
	if o.Task == "" {
		return fmt.Errorf("--task is required")
	}
	if _, ok := validTasks[o.Task]; !ok {
		return fmt.Errorf("unknown task %q", o.Task)
	}
	if o.Task == taskFetch && o.Region == "" {
		return fmt.Errorf("--region is required for --task=%s", taskFetch)
	}
	if o.Date != "" {
		if _, err := types.ParseDate(o.Date); err != nil {
			return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", o.Date)
		}
	}
	if o.PrintPayload && o.Task != taskRunAlerts {
		return fmt.Errorf("--print-payload only applies to --task=%s", taskRunAlerts)
	}
	return nil
}

func (o options) runInput() scheduler.RunInput {
	return scheduler.RunInput{Date: o.Date, Regions: o.Regions, DryRun: o.DryRun}
}

// parseRegions splits a comma-separated list, trimming whitespace and
// skipping empty entries.
func parseRegions(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// execute wires the same dependencies as the Lambda cold start and runs the
// task once.
func execute(ctx context.Context, opts options) error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)

	awsClients, err := app.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	stack, err := app.BuildForecastStack(cfg, app.ForecastStackDeps{S3: awsClients.S3, Logger: logger})
	if err != nil {
		return err
	}
	defer stack.Close()

	switch opts.Task {
	case taskRegions:
		return printJSON(os.Stdout, stack.Service.Catalog().Names())

	case taskFetch:
		date := opts.Date
		if date == "" {
			date = types.Today(types.RealClock{})
		}
		f, err := stack.Service.Get(ctx, opts.Region, date)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, f)

	case taskRunAlerts:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		profiles, err := db.NewBeachRepository(pool).ListAll(ctx)
		if err != nil {
			return fmt.Errorf("loading beach profiles: %w", err)
		}
		scorer, err := alerts.NewSuitabilityScorer(profiles)
		if err != nil {
			return err
		}

		runner := scheduler.NewAlertRunner(scheduler.AlertRunnerConfig{
			Forecasts: stack.Service,
			Alerts:    db.NewAlertRepository(pool),
			Matcher:   alerts.NewEngine(scorer),
			Publisher: dispatch.NewPublisher(awsClients.SQS, cfg.AWS.NotificationQueue, logger),
			Logger:    logger,
		})
		summary, err := runner.Run(ctx, opts.runInput())
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, summary)
	}
	return fmt.Errorf("unknown task %q", opts.Task)
}

func printAvailableTasks(w io.Writer) {
	fmt.Fprintf(w, "Available tasks:\n\n")

	tasks := make([]string, 0, len(validTasks))
	for t := range validTasks {
		tasks = append(tasks, t)
	}
	sort.Strings(tasks)

	maxLen := 0
	for _, t := range tasks {
		maxLen = max(maxLen, len(t))
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "  %-*s  %s\n", maxLen, t, validTasks[t])
	}
	fmt.Fprintln(w)
}

// printPayload writes the Lambda event for a manual invocation.
func printPayload(w io.Writer, input scheduler.RunInput) error {
	return printJSON(w, input)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
