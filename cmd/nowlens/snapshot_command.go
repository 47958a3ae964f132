package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nowlens/nowlens/internal/analysis"
	"github.com/nowlens/nowlens/internal/fetch"
	"github.com/nowlens/nowlens/internal/resolve"
)

func runSnapshot(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printSnapshotUsage(errOut)
		return 2
	}

	switch args[0] {
	case "capture":
		return runSnapshotCapture(args[1:], out, errOut)
	case "list":
		return runSnapshotList(args[1:], out, errOut)
	default:
		printSnapshotUsage(errOut)
		return 2
	}
}

func printSnapshotUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: nowlens snapshot <capture|list> [flags]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "  capture <id>  fetch every source for a trace and store the raw records locally")
	fmt.Fprintln(out, "  list          list locally captured traces")
}

func runSnapshotCapture(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("snapshot capture", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: nowlens snapshot capture [flags] <conversation-or-execution-plan-id>")
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		printConfigError(errOut, stage, err)
		return 1
	}

	logger := newCommandLogger(errOut)
	runtime := setupObservability(cfg, logger)
	defer shutdownObservability(logger, runtime)

	client, err := newInstanceClient(cfg, runtime)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize instance client: %v\n", err)
		return 1
	}
	store, err := openSnapshotStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize snapshot store: %v\n", err)
		return 1
	}
	defer closeSnapshotStoreWithWarning(store, errOut)

	analyzer := analysis.NewAnalyzer(resolve.NewResolver(client), fetch.NewInstanceFetcher(client), logger)
	result, err := analyzer.CaptureTrace(context.Background(), store, flagSet.Arg(0))
	if err != nil {
		switch {
		case errors.Is(err, resolve.ErrNotFound):
			fmt.Fprintf(errOut, "no trace found: %v\n", err)
		case errors.Is(err, resolve.ErrInvalidIdentifier):
			fmt.Fprintf(errOut, "invalid identifier: %v\n", err)
		default:
			fmt.Fprintf(errOut, "capture failed: %v\n", err)
		}
		return 1
	}

	fmt.Fprintf(out, "captured trace %s (%d records)\n", result.Info.TraceKey, result.Records)
	if result.Partial {
		fmt.Fprintln(out, "WARNING: one or more sources were unavailable; the snapshot is partial")
	}
	captureWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(captureWriter, "SOURCE\tRECORDS\tSTATUS")
	for _, status := range result.Sources {
		state := "ok"
		switch {
		case status.Skipped:
			state = "skipped"
		case status.Err != nil:
			state = fmt.Sprintf("unavailable (%s)", status.ErrClass)
		}
		fmt.Fprintf(captureWriter, "%s\t%d\t%s\n", status.Kind, status.Records, state)
	}
	return flushOrFail(captureWriter, errOut)
}

func runSnapshotList(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("snapshot list", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "snapshot list does not accept positional arguments")
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		printConfigError(errOut, stage, err)
		return 1
	}

	store, err := openSnapshotStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize snapshot store: %v\n", err)
		return 1
	}
	defer closeSnapshotStoreWithWarning(store, errOut)

	traces, err := store.ListTraces(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "failed to list snapshots: %v\n", err)
		return 1
	}
	if len(traces) == 0 {
		fmt.Fprintln(out, "(no captured traces)")
		return 0
	}

	listWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(listWriter, "TRACE\tUSECASE\tSTATE\tCAPTURED_AT")
	for _, info := range traces {
		fmt.Fprintf(listWriter, "%s\t%s\t%s\t%s\n",
			info.TraceKey, valueOr(info.Label, "(unknown)"),
			valueOr(info.State, "(unknown)"), timeOr(info.CapturedAt, "(unknown)"))
	}
	return flushOrFail(listWriter, errOut)
}

func flushOrFail(writer *tabwriter.Writer, errOut io.Writer) int {
	if err := writer.Flush(); err != nil {
		fmt.Fprintf(errOut, "failed to write output: %v\n", err)
		return 1
	}
	return 0
}
