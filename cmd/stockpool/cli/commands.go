package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// RunFX parses the fx subcommand arguments and executes them.
func RunFX(ctx context.Context, c *FXOpsCLI, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "revalue" {
		_, _ = fmt.Fprintln(stderr, "usage: stockpool fx revalue --currency <multiplier> [--dry-run|--async] [--actor id] [--json]")
		return 2
	}
	fs := flag.NewFlagSet("fx revalue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := RevalueOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.Currency, "currency", "", "new FX multiplier")
	fs.Int64Var(&opts.ActorID, "actor", 0, "actor recorded in the audit trail")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "print the repriced catalogue without saving")
	fs.BoolVar(&opts.Async, "async", false, "queue the run on the worker")
	fs.BoolVar(&opts.JSONOutput, "json", false, "emit JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	return c.RevalueCommand(ctx, opts)
}

// RunJobs parses the jobs subcommand arguments and executes them.
func RunJobs(ctx context.Context, c *JobsCLI, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: stockpool jobs trigger <task> | stats [--queue q] | scheduled [--queue q] [--size n]")
		return 2
	}
	fs := flag.NewFlagSet("jobs "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	queue := fs.String("queue", "", "queue name")
	size := fs.Int("size", 10, "page size")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	enc := json.NewEncoder(stdout)
	switch args[0] {
	case "trigger":
		if fs.NArg() != 1 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := c.Trigger(ctx, fs.Arg(0))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := c.InspectQueue(ctx, *queue)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_ = enc.Encode(stats)
	case "scheduled":
		tasks, err := c.ListScheduled(ctx, *queue, *size)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	default:
		_, _ = fmt.Fprintf(stderr, "jobs: unknown command %s\n", args[0])
		return 2
	}
	return 0
}
