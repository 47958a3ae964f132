package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nowlens/nowlens/internal/config"
	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/source"
)

const defaultDoctorFormat = "text"

const (
	doctorStatusPass = "pass"
	doctorStatusWarn = "warn"
	doctorStatusFail = "fail"
	doctorStatusSkip = "skip"
)

const doctorCheckTimeout = 5 * time.Second

type doctorDocument struct {
	GeneratedAt   time.Time     `json:"generated_at"`
	ConfigPath    string        `json:"config_path"`
	OverallStatus string        `json:"overall_status"`
	Checks        []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Summary string   `json:"summary"`
	Details []string `json:"details,omitempty"`
}

func runDoctor(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("doctor", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultDoctorFormat, "Output format: text or json")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "doctor does not accept positional arguments")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("doctor", *format, defaultDoctorFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	document := buildDoctorDocument(strings.TrimSpace(*configPath))
	if err := writeDoctor(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write doctor output: %v\n", err)
		return 1
	}
	if document.OverallStatus == doctorStatusFail {
		return 1
	}
	return 0
}

func buildDoctorDocument(configPath string) doctorDocument {
	doc := doctorDocument{
		GeneratedAt: time.Now().UTC(),
		ConfigPath:  configPath,
		Checks:      make([]doctorCheck, 0, 4),
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		doc.Checks = append(doc.Checks,
			doctorCheck{
				Name:    "config",
				Status:  doctorStatusFail,
				Summary: "failed to load config",
				Details: []string{err.Error()},
			},
			doctorSkippedCheck("storage", "skipped: config failed to load"),
			doctorSkippedCheck("instance", "skipped: config failed to load"),
			doctorSkippedCheck("sources", "skipped: config failed to load"),
		)
		doc.OverallStatus = doctorOverallStatus(doc.Checks)
		return doc
	}

	if err := config.Validate(cfg); err != nil {
		doc.Checks = append(doc.Checks,
			doctorCheck{
				Name:    "config",
				Status:  doctorStatusFail,
				Summary: "config is invalid",
				Details: []string{err.Error()},
			},
			doctorSkippedCheck("storage", "skipped: config validation failed"),
			doctorSkippedCheck("instance", "skipped: config validation failed"),
			doctorSkippedCheck("sources", "skipped: config validation failed"),
		)
		doc.OverallStatus = doctorOverallStatus(doc.Checks)
		return doc
	}

	doc.Checks = append(doc.Checks, doctorCheck{
		Name:    "config",
		Status:  doctorStatusPass,
		Summary: "loaded and validated configuration",
		Details: []string{fmt.Sprintf("config path: %s", valueOr(configPath, "(default lookup)"))},
	})
	doc.Checks = append(doc.Checks, runDoctorStorageCheck(cfg))

	instanceCheck, client := runDoctorInstanceCheck(cfg)
	doc.Checks = append(doc.Checks, instanceCheck)
	if client != nil {
		doc.Checks = append(doc.Checks, runDoctorSourcesCheck(client))
	} else {
		doc.Checks = append(doc.Checks, doctorSkippedCheck("sources", "skipped: instance is not reachable"))
	}

	doc.OverallStatus = doctorOverallStatus(doc.Checks)
	return doc
}

func doctorSkippedCheck(name, summary string) doctorCheck {
	return doctorCheck{
		Name:    name,
		Status:  doctorStatusSkip,
		Summary: summary,
	}
}

func runDoctorStorageCheck(cfg config.Config) doctorCheck {
	check := doctorCheck{Name: "storage"}
	store, err := openSnapshotStore(cfg)
	if err != nil {
		check.Status = doctorStatusFail
		check.Summary = "failed to initialize snapshot storage"
		check.Details = []string{err.Error()}
		return check
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()
	traces, err := store.ListTraces(ctx)
	if err != nil {
		check.Status = doctorStatusFail
		check.Summary = "snapshot storage connectivity check failed"
		check.Details = []string{err.Error()}
		if closeErr := store.Close(); closeErr != nil {
			check.Details = append(check.Details, fmt.Sprintf("close snapshot store: %v", closeErr))
		}
		return check
	}

	check.Status = doctorStatusPass
	switch strings.TrimSpace(cfg.Storage.Driver) {
	case "sqlite":
		path := strings.TrimSpace(cfg.Storage.Path)
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		check.Summary = "connected to sqlite snapshot storage"
		check.Details = []string{fmt.Sprintf("path: %s", path), fmt.Sprintf("captured traces: %d", len(traces))}
	case "postgres":
		check.Summary = "connected to postgres snapshot storage"
		check.Details = []string{fmt.Sprintf("captured traces: %d", len(traces))}
	}
	if closeErr := store.Close(); closeErr != nil {
		check.Status = doctorStatusWarn
		check.Summary = "snapshot storage connectivity succeeded with close warning"
		check.Details = append(check.Details, fmt.Sprintf("close snapshot store: %v", closeErr))
	}
	return check
}

func runDoctorInstanceCheck(cfg config.Config) (doctorCheck, *servicenow.Client) {
	check := doctorCheck{Name: "instance"}

	if err := config.ValidateInstance(cfg.Instance); err != nil {
		check.Status = doctorStatusWarn
		check.Summary = "instance credentials missing; live-instance commands will not work"
		check.Details = []string{err.Error()}
		return check, nil
	}

	client, err := servicenow.NewClient(servicenow.Options{
		InstanceURL: cfg.Instance.URL,
		Username:    cfg.Instance.Username,
		Password:    cfg.Instance.Password,
		Timeout:     cfg.Instance.Timeout(),
	})
	if err != nil {
		check.Status = doctorStatusFail
		check.Summary = "failed to initialize instance client"
		check.Details = []string{err.Error()}
		return check, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		check.Status = doctorStatusFail
		check.Summary = "instance is not reachable"
		check.Details = []string{
			fmt.Sprintf("url: %s", cfg.Instance.URL),
			err.Error(),
			fmt.Sprintf("error class: %s", servicenow.ClassifyFetchError(err)),
		}
		return check, nil
	}

	check.Status = doctorStatusPass
	check.Summary = "instance is reachable and credentials are accepted"
	check.Details = []string{fmt.Sprintf("url: %s", cfg.Instance.URL)}
	return check, client
}

// runDoctorSourcesCheck probes every registered record source table with a
// single-row read. Missing tables are a warning, not a failure: plugin
// availability varies by instance and analysis degrades per source.
func runDoctorSourcesCheck(client *servicenow.Client) doctorCheck {
	check := doctorCheck{Name: "sources"}

	available := 0
	var unavailable []string
	for _, spec := range source.Sources() {
		ctx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
		_, err := client.List(ctx, servicenow.ListOptions{Table: spec.Table, Limit: 1})
		cancel()
		if err != nil {
			unavailable = append(unavailable, fmt.Sprintf("%s (%s): %s",
				spec.Table, spec.Name, servicenow.ClassifyFetchError(err)))
			continue
		}
		available++
	}

	switch {
	case len(unavailable) == 0:
		check.Status = doctorStatusPass
		check.Summary = fmt.Sprintf("all %d record source tables are readable", available)
	case available == 0:
		check.Status = doctorStatusFail
		check.Summary = "no record source tables are readable"
		check.Details = unavailable
	default:
		check.Status = doctorStatusWarn
		check.Summary = fmt.Sprintf("%d of %d record source tables are readable", available, available+len(unavailable))
		check.Details = unavailable
	}
	return check
}

func doctorOverallStatus(checks []doctorCheck) string {
	hasWarn := false
	for _, check := range checks {
		switch check.Status {
		case doctorStatusFail:
			return doctorStatusFail
		case doctorStatusWarn:
			hasWarn = true
		}
	}
	if hasWarn {
		return doctorStatusWarn
	}
	return doctorStatusPass
}

func writeDoctor(out io.Writer, format string, doc doctorDocument) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	default:
		return writeDoctorText(out, doc)
	}
}

func writeDoctorText(out io.Writer, doc doctorDocument) error {
	fmt.Fprintln(out, "Nowlens Doctor")

	meta := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(meta, "Generated at\t%s\n", doc.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(meta, "Config path\t%s\n", valueOr(doc.ConfigPath, defaultConfigPath))
	fmt.Fprintf(meta, "Overall status\t%s\n", strings.ToUpper(doc.OverallStatus))
	if err := meta.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nChecks")
	for _, check := range doc.Checks {
		fmt.Fprintf(out, "- [%s] %s: %s\n", strings.ToUpper(check.Status), check.Name, check.Summary)
		for _, detail := range check.Details {
			fmt.Fprintf(out, "  %s\n", detail)
		}
	}
	return nil
}
