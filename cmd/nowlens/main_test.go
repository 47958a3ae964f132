package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	if got := run(nil); got != 2 {
		t.Fatalf("run() exit=%d, want 2", got)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if got := run([]string{"bogus"}); got != 2 {
		t.Fatalf("run(bogus) exit=%d, want 2", got)
	}
}

func TestRunVersion(t *testing.T) {
	for _, arg := range []string{"version", "--version", "-v"} {
		if got := run([]string{arg}); got != 0 {
			t.Fatalf("run(%s) exit=%d, want 0", arg, got)
		}
	}
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)

	output := buf.String()
	for _, command := range []string{"analyze", "compare", "trends", "snapshot", "doctor", "version"} {
		if !strings.Contains(output, command) {
			t.Fatalf("usage output missing %q:\n%s", command, output)
		}
	}
}

func TestRunAnalyzeRequiresIdentifier(t *testing.T) {
	var out, errOut bytes.Buffer
	if got := runAnalyze(nil, &out, &errOut); got != 2 {
		t.Fatalf("runAnalyze() exit=%d, want 2", got)
	}
	if !strings.Contains(errOut.String(), "usage: nowlens analyze") {
		t.Fatalf("stderr=%q, want analyze usage", errOut.String())
	}
}

func TestRunAnalyzeRejectsBadFormat(t *testing.T) {
	var out, errOut bytes.Buffer
	if got := runAnalyze([]string{"--format", "xml", "plan1"}, &out, &errOut); got != 2 {
		t.Fatalf("runAnalyze() exit=%d, want 2", got)
	}
	if !strings.Contains(errOut.String(), "invalid analyze format") {
		t.Fatalf("stderr=%q, want format error", errOut.String())
	}
}
