// Command-line interface to the kns block merge pipeline.
// Provides the merge commands: pools, apply, merge, status, clean, plan.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/merge"
	"github.com/kuan-lab/kns/pipeline"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to the TOML configuration file.
	configPath = flag.String("config", "kns.toml", "")

	// Discard any existing pool and rebuild from scratch.
	restart = flag.Bool("restart", false, "")
)

const helpMessage = `
kns merges block-wise neuron segmentations into one globally labeled volume

Usage: kns [options] <command>

      -config  =string   Path to TOML configuration file (default "kns.toml").
      -restart (flag)    Discard any existing ID pool and rebuild from scratch.
      -verbose (flag)    Run in verbose mode.
  -h, -help    (flag)    Show help message

Commands:

	pools            build the ID pool over all completed blocks
	apply            relabel pooled blocks into the output volume
	merge            pools followed by apply
	status           report block states, pool info, and output size
	clean <blocks>   reset the given block indices (or "all") to pending
	plan             print block batches for external scheduling
`

var usage = func() {
	fmt.Print(helpMessage)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	if *runVerbose {
		kns.Verbose = true
		kns.SetLogMode(kns.DebugMode)
	}

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	cfg.Logging.SetLogger()
	defer kns.LogShutdown()

	// Capture ctrl+c and other interrupts for graceful cancellation.  Both
	// phases checkpoint through the ledger, so an interrupted run resumes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := DoCommand(ctx, cfg, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// DoCommand dispatches one pipeline operation.
func DoCommand(ctx context.Context, cfg *pipeline.Config, args []string) error {
	p, err := pipeline.Open(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	switch args[0] {
	case "pools":
		pool, err := p.Pools(ctx, *restart)
		if err != nil {
			return err
		}
		fmt.Printf("Built pool over %d blocks with %d merged labels.\n", len(pool.Offsets), len(pool.Rep))
	case "apply":
		return doApply(p.Apply(ctx))
	case "merge":
		return doApply(p.Merge(ctx, *restart))
	case "status":
		status, err := p.Status()
		if err != nil {
			return err
		}
		fmt.Print(status.String())
	case "clean":
		if len(args) < 2 {
			return fmt.Errorf("clean command must be followed by block indices or \"all\"")
		}
		if args[1] == "all" {
			return p.CleanAll()
		}
		indices, err := parseIndices(args[1:])
		if err != nil {
			return err
		}
		return p.Clean(indices)
	case "plan":
		pending, err := p.PendingBlocks()
		if err != nil {
			return err
		}
		for _, batch := range pipeline.PlanBatches(pending, cfg.Pipeline.BatchSize) {
			fmt.Printf("batch %d: blocks %v\n", batch.Num, batch.Indices)
		}
	default:
		return fmt.Errorf("unknown command %q; see kns -help", args[0])
	}
	return nil
}

func doApply(result merge.ApplyResult, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Applied %d blocks, skipped %d already applied.\n", result.Applied, result.Skipped)
	for _, blkErr := range result.Failed {
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", blkErr)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d blocks failed to apply", len(result.Failed))
	}
	return nil
}

func parseIndices(args []string) ([]int, error) {
	indices := make([]int, len(args))
	for i, arg := range args {
		index, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("bad block index %q: %v", arg, err)
		}
		indices[i] = index
	}
	return indices, nil
}
