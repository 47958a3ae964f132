package main

import (
	"fmt"
	"io"
	"os"

	"github.com/nowlens/nowlens/internal/version"
)

const defaultConfigPath = "nowlens.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "analyze":
		return runAnalyze(args[1:], os.Stdout, os.Stderr)
	case "compare":
		return runCompare(args[1:], os.Stdout, os.Stderr)
	case "trends":
		return runTrends(args[1:], os.Stdout, os.Stderr)
	case "snapshot":
		return runSnapshot(args[1:], os.Stdout, os.Stderr)
	case "doctor":
		return runDoctor(args[1:], os.Stdout, os.Stderr)
	default:
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: nowlens <command> [flags]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  analyze   analyze one execution trace end to end")
	fmt.Fprintln(out, "  compare   compare 2-10 traces against each other")
	fmt.Fprintln(out, "  trends    scan recent runs for performance drift")
	fmt.Fprintln(out, "  snapshot  capture or list locally stored traces")
	fmt.Fprintln(out, "  doctor    check config, connectivity, and source availability")
	fmt.Fprintln(out, "  version   print version information")
}
