package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nowlens/nowlens/internal/analysis"
	"github.com/nowlens/nowlens/internal/config"
	"github.com/nowlens/nowlens/internal/report"
	"github.com/nowlens/nowlens/internal/resolve"
	"github.com/nowlens/nowlens/internal/summarize"
)

const (
	defaultAnalyzeFormat = "text"
	analyzeSchemaVersion = "analysis.v1"
)

type analysisDocument struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`

	Trace      analysisTraceInfo           `json:"trace"`
	Sources    []analysisSourceInfo        `json:"sources"`
	Overview   analysisOverviewInfo        `json:"overview"`
	Category   []analysisCategoryInfo      `json:"categories"`
	Bottleneck *analysisBottleneck         `json:"bottleneck,omitempty"`
	Breakdown  []analysisCategoryBreakdown `json:"category_breakdown"`
	Slowest    []analysisOperation         `json:"top_slowest"`
	Gaps       []analysisGapInfo           `json:"time_gaps"`
	Tokens     *analysisTokenInfo          `json:"token_growth,omitempty"`
	Errors     []analysisErrorInfo         `json:"errors"`

	Recommendations []string            `json:"recommendations"`
	Events          []analysisEventInfo `json:"events,omitempty"`
	Summary         string              `json:"summary,omitempty"`
}

type analysisTraceInfo struct {
	Input           string `json:"input"`
	ConversationID  string `json:"conversation_id,omitempty"`
	ExecutionPlanID string `json:"execution_plan_id,omitempty"`
	Usecase         string `json:"usecase,omitempty"`
	State           string `json:"state,omitempty"`
	Partial         bool   `json:"partial"`
}

type analysisSourceInfo struct {
	Source  string `json:"source"`
	Records int    `json:"records"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	Class   string `json:"error_class,omitempty"`
}

type analysisOverviewInfo struct {
	EventCount        int    `json:"event_count"`
	ErrorCount        int    `json:"error_count"`
	TotalProcessingMS int64  `json:"total_processing_ms"`
	WallClockMS       int64  `json:"wall_clock_ms"`
	WallClockKnown    bool   `json:"wall_clock_known"`
	FirstStart        string `json:"first_start,omitempty"`
	LastEnd           string `json:"last_end,omitempty"`
	UnknownDurations  int    `json:"unknown_durations"`
}

type analysisCategoryInfo struct {
	Category        string  `json:"category"`
	Count           int     `json:"count"`
	KnownCount      int     `json:"known_count"`
	TotalDurationMS int64   `json:"total_duration_ms"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
	MaxDurationMS   int64   `json:"max_duration_ms"`
	MinDurationMS   int64   `json:"min_duration_ms"`
	ErrorCount      int     `json:"error_count"`
	InputTokens     int64   `json:"input_tokens,omitempty"`
	OutputTokens    int64   `json:"output_tokens,omitempty"`
}

type analysisBottleneck struct {
	SlowestOperation        *analysisOperation `json:"slowest_operation,omitempty"`
	DominantCategory        string             `json:"dominant_category,omitempty"`
	DominantCategoryTotalMS int64              `json:"dominant_category_total_ms,omitempty"`
}

// analysisCategoryBreakdown lists one category's extremes and the
// operations slow enough to investigate on their own. One entry per
// reported category; Measured=false means nothing in the category
// carried a usable duration.
type analysisCategoryBreakdown struct {
	Category    string              `json:"category"`
	Measured    bool                `json:"measured"`
	Fastest     *analysisOperation  `json:"fastest,omitempty"`
	Slowest     *analysisOperation  `json:"slowest,omitempty"`
	Investigate []analysisOperation `json:"investigate,omitempty"`
}

type analysisOperation struct {
	Category   string `json:"category"`
	Label      string `json:"label"`
	DurationMS int64  `json:"duration_ms"`
	Start      string `json:"start,omitempty"`
	Error      string `json:"error,omitempty"`
}

type analysisGapInfo struct {
	DurationMS int64  `json:"duration_ms"`
	At         string `json:"at,omitempty"`
	After      string `json:"after"`
	Before     string `json:"before"`
}

type analysisTokenInfo struct {
	Turns          int     `json:"turns"`
	FirstTurnInput int64   `json:"first_turn_input"`
	LastTurnInput  int64   `json:"last_turn_input"`
	GrowthPct      float64 `json:"growth_pct"`
	Flagged        bool    `json:"flagged"`
}

type analysisErrorInfo struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Message  string `json:"message"`
	Time     string `json:"time,omitempty"`
}

type analysisEventInfo struct {
	Category   string `json:"category"`
	Source     string `json:"source"`
	Label      string `json:"label"`
	Start      string `json:"start,omitempty"`
	DurationMS *int64 `json:"duration_ms,omitempty"`
	Status     string `json:"status,omitempty"`
	Turn       int    `json:"turn,omitempty"`
	Error      string `json:"error,omitempty"`
}

func runAnalyze(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("analyze", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultAnalyzeFormat, "Output format: text or json")
	fromSnapshot := flagSet.Bool("snapshot", false, "Analyze from the local snapshot store instead of the live instance")
	showEvents := flagSet.Bool("events", false, "Include the full event timeline in the output")
	withSummary := flagSet.Bool("summarize", false, "Append a model-written synopsis (requires summarizer config)")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: nowlens analyze [flags] <conversation-or-execution-plan-id>")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("analyze", *format, defaultAnalyzeFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
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

	analyzer, _, cleanup, err := newAnalyzer(cfg, *fromSnapshot, logger, runtime, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize analyzer: %v\n", err)
		return 1
	}
	defer cleanup()

	result, err := analyzer.AnalyzeTrace(context.Background(), flagSet.Arg(0))
	if err != nil {
		switch {
		case errors.Is(err, resolve.ErrNotFound):
			fmt.Fprintf(errOut, "no trace found: %v\n", err)
		case errors.Is(err, resolve.ErrInvalidIdentifier):
			fmt.Fprintf(errOut, "invalid identifier: %v\n", err)
		default:
			fmt.Fprintf(errOut, "analysis failed: %v\n", err)
		}
		return 1
	}
	recordSourceFailures(runtime, result)

	document := buildAnalysisDocument(result, *showEvents)
	if *withSummary {
		document.Summary = summarizeOrWarn(cfg, result, errOut)
	}

	if err := writeAnalysis(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write analysis: %v\n", err)
		return 1
	}
	return 0
}

func summarizeOrWarn(cfg config.Config, result analysis.TraceAnalysis, errOut io.Writer) string {
	summarizer, err := summarize.New(cfg.Summarizer)
	if err != nil {
		fmt.Fprintf(errOut, "warning: summary skipped: %v\n", err)
		return ""
	}
	summary, err := summarizer.Summarize(context.Background(), result)
	if err != nil {
		fmt.Fprintf(errOut, "warning: summary skipped: %v\n", err)
		return ""
	}
	return summary
}

func buildAnalysisDocument(result analysis.TraceAnalysis, showEvents bool) analysisDocument {
	document := analysisDocument{
		SchemaVersion: analyzeSchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Trace: analysisTraceInfo{
			Input:           result.Input,
			ConversationID:  result.Resolution.Ident.ConversationID,
			ExecutionPlanID: result.Resolution.Ident.ExecutionPlanID,
			Usecase:         result.Resolution.Label,
			State:           result.Resolution.State,
			Partial:         result.Partial,
		},
		Overview: analysisOverviewInfo{
			EventCount:        result.Metrics.EventCount,
			ErrorCount:        result.Metrics.ErrorCount,
			TotalProcessingMS: result.Metrics.TotalProcessingMS,
			WallClockMS:       result.Metrics.WallClockMS,
			WallClockKnown:    result.Metrics.WallClockKnown,
			UnknownDurations:  result.Metrics.UnknownDurations,
		},
		Recommendations: result.Findings.Recommendations,
	}
	if result.Metrics.WallClockKnown {
		document.Overview.FirstStart = result.Metrics.FirstStart.UTC().Format(time.RFC3339)
		document.Overview.LastEnd = result.Metrics.LastEnd.UTC().Format(time.RFC3339)
	}

	for _, status := range result.Sources {
		info := analysisSourceInfo{
			Source:  status.Kind,
			Records: status.Records,
			Skipped: status.Skipped,
			Class:   status.ErrClass,
		}
		if status.Err != nil {
			info.Error = status.Err.Error()
		}
		document.Sources = append(document.Sources, info)
	}

	for _, aggregate := range result.Metrics.Aggregates {
		document.Category = append(document.Category, analysisCategoryInfo{
			Category:        string(aggregate.Category),
			Count:           aggregate.Count,
			KnownCount:      aggregate.KnownCount,
			TotalDurationMS: aggregate.TotalDurationMS,
			AvgDurationMS:   aggregate.AvgDurationMS,
			MaxDurationMS:   aggregate.MaxDurationMS,
			MinDurationMS:   aggregate.MinDurationMS,
			ErrorCount:      aggregate.ErrorCount,
			InputTokens:     aggregate.InputTokens,
			OutputTokens:    aggregate.OutputTokens,
		})
	}

	if result.Findings.SlowestOperationKnown || result.Findings.DominantCategoryKnown {
		bottleneck := &analysisBottleneck{}
		if result.Findings.SlowestOperationKnown {
			operation := asAnalysisOperation(result.Findings.SlowestOperation)
			bottleneck.SlowestOperation = &operation
		}
		if result.Findings.DominantCategoryKnown {
			bottleneck.DominantCategory = string(result.Findings.DominantCategory)
			bottleneck.DominantCategoryTotalMS = result.Findings.DominantCategoryTotalMS
		}
		document.Bottleneck = bottleneck
	}

	for _, finding := range result.Findings.Categories {
		entry := analysisCategoryBreakdown{
			Category: string(finding.Category),
			Measured: finding.Present,
		}
		if finding.Present {
			fastest := asAnalysisOperation(finding.Fastest)
			slowest := asAnalysisOperation(finding.Slowest)
			entry.Fastest = &fastest
			entry.Slowest = &slowest
		}
		for _, operation := range finding.Investigate {
			entry.Investigate = append(entry.Investigate, asAnalysisOperation(operation))
		}
		document.Breakdown = append(document.Breakdown, entry)
	}

	for _, operation := range result.Findings.TopSlowest {
		document.Slowest = append(document.Slowest, asAnalysisOperation(operation))
	}
	for _, gap := range result.Metrics.Gaps {
		document.Gaps = append(document.Gaps, analysisGapInfo{
			DurationMS: gap.DurationMS,
			At:         timeOr(gap.At, ""),
			After:      gap.AfterLabel,
			Before:     gap.BeforeLabel,
		})
	}
	if result.Findings.TokenWarningKnown || result.Metrics.TokenGrowthKnown {
		growth := result.Metrics.TokenGrowth
		document.Tokens = &analysisTokenInfo{
			Turns:          growth.Turns,
			FirstTurnInput: growth.FirstTurnInput,
			LastTurnInput:  growth.LastTurnInput,
			GrowthPct:      growth.GrowthPct,
			Flagged:        growth.Flagged,
		}
	}
	for _, entry := range result.Findings.Errors {
		info := analysisErrorInfo{
			Category: string(entry.Category),
			Label:    entry.Label,
			Message:  entry.Message,
		}
		if entry.TimeKnown {
			info.Time = entry.Time.UTC().Format(time.RFC3339)
		}
		document.Errors = append(document.Errors, info)
	}

	if showEvents {
		for _, event := range result.Timeline.Events {
			info := analysisEventInfo{
				Category: string(event.Category),
				Source:   event.SourceKind,
				Label:    event.Label,
				Status:   event.Status,
				Turn:     event.Turn,
				Error:    event.Error,
			}
			if event.StartKnown {
				info.Start = event.Start.UTC().Format(time.RFC3339)
			}
			if event.DurationKnown {
				duration := event.DurationMS
				info.DurationMS = &duration
			}
			document.Events = append(document.Events, info)
		}
	}

	return document
}

func asAnalysisOperation(operation report.Operation) analysisOperation {
	result := analysisOperation{
		Category:   string(operation.Category),
		Label:      operation.Label,
		DurationMS: operation.DurationMS,
		Error:      operation.Error,
	}
	if operation.StartKnown {
		result.Start = operation.Start.UTC().Format(time.RFC3339)
	}
	return result
}

func writeAnalysis(out io.Writer, format string, document analysisDocument) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	default:
		return writeAnalysisText(out, document)
	}
}

func writeAnalysisText(out io.Writer, document analysisDocument) error {
	fmt.Fprintln(out, "Trace Analysis")

	metadataWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(metadataWriter, "Generated at\t%s\n", document.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(metadataWriter, "Identifier\t%s\n", document.Trace.Input)
	if document.Trace.ExecutionPlanID != "" {
		fmt.Fprintf(metadataWriter, "Execution plan\t%s\n", document.Trace.ExecutionPlanID)
	}
	if document.Trace.ConversationID != "" {
		fmt.Fprintf(metadataWriter, "Conversation\t%s\n", document.Trace.ConversationID)
	}
	fmt.Fprintf(metadataWriter, "Usecase\t%s\n", valueOr(document.Trace.Usecase, "(unknown)"))
	fmt.Fprintf(metadataWriter, "State\t%s\n", valueOr(document.Trace.State, "(unknown)"))
	if err := metadataWriter.Flush(); err != nil {
		return err
	}
	if document.Trace.Partial {
		fmt.Fprintln(out, "\nWARNING: one or more record sources were unavailable; totals are partial")
	}

	fmt.Fprintln(out, "\nOverview")
	overviewWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(overviewWriter, "Events\t%d\n", document.Overview.EventCount)
	fmt.Fprintf(overviewWriter, "Errors\t%d\n", document.Overview.ErrorCount)
	fmt.Fprintf(overviewWriter, "Processing time\t%s\n", formatMS(document.Overview.TotalProcessingMS))
	if document.Overview.WallClockKnown {
		fmt.Fprintf(overviewWriter, "Wall clock\t%s\n", formatMS(document.Overview.WallClockMS))
		fmt.Fprintf(overviewWriter, "First start\t%s\n", document.Overview.FirstStart)
		fmt.Fprintf(overviewWriter, "Last end\t%s\n", document.Overview.LastEnd)
	} else {
		fmt.Fprintf(overviewWriter, "Wall clock\t(unknown)\n")
	}
	if document.Overview.UnknownDurations > 0 {
		fmt.Fprintf(overviewWriter, "Events without durations\t%d\n", document.Overview.UnknownDurations)
	}
	if err := overviewWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSources")
	sourceWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(sourceWriter, "SOURCE\tRECORDS\tSTATUS")
	for _, info := range document.Sources {
		status := "ok"
		switch {
		case info.Skipped:
			status = "skipped (no linked identifier)"
		case info.Error != "":
			status = fmt.Sprintf("unavailable (%s)", info.Class)
		}
		fmt.Fprintf(sourceWriter, "%s\t%d\t%s\n", info.Source, info.Records, status)
	}
	if err := sourceWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nCategory Summary")
	categoryWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(categoryWriter, "CATEGORY\tCOUNT\tMEASURED\tTOTAL\tAVG\tMAX\tERRORS\tIN_TOKENS\tOUT_TOKENS")
	for _, info := range document.Category {
		fmt.Fprintf(categoryWriter, "%s\t%d\t%d\t%s\t%.0fms\t%s\t%d\t%s\t%s\n",
			info.Category, info.Count, info.KnownCount,
			formatMS(info.TotalDurationMS), info.AvgDurationMS, formatMS(info.MaxDurationMS), info.ErrorCount,
			tokenCount(info.InputTokens), tokenCount(info.OutputTokens))
	}
	if err := categoryWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nBottleneck")
	if document.Bottleneck == nil {
		fmt.Fprintln(out, "(no measured operations)")
	} else {
		bottleneckWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		if operation := document.Bottleneck.SlowestOperation; operation != nil {
			fmt.Fprintf(bottleneckWriter, "Slowest operation\t%s (%s, %s)\n",
				truncateLabel(operation.Label), operation.Category, formatMS(operation.DurationMS))
		}
		if document.Bottleneck.DominantCategory != "" {
			fmt.Fprintf(bottleneckWriter, "Dominant category\t%s (%s total)\n",
				document.Bottleneck.DominantCategory, formatMS(document.Bottleneck.DominantCategoryTotalMS))
		}
		if err := bottleneckWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nCategory Breakdown")
	breakdownWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(breakdownWriter, "CATEGORY\tFASTEST\tSLOWEST\tINVESTIGATE")
	for _, entry := range document.Breakdown {
		if !entry.Measured {
			fmt.Fprintf(breakdownWriter, "%s\t(no measured events)\t\t\n", entry.Category)
			continue
		}
		fmt.Fprintf(breakdownWriter, "%s\t%s (%s)\t%s (%s)\t%d\n",
			entry.Category,
			truncateLabel(entry.Fastest.Label), formatMS(entry.Fastest.DurationMS),
			truncateLabel(entry.Slowest.Label), formatMS(entry.Slowest.DurationMS),
			len(entry.Investigate))
	}
	if err := breakdownWriter.Flush(); err != nil {
		return err
	}
	for _, entry := range document.Breakdown {
		for _, operation := range entry.Investigate {
			fmt.Fprintf(out, "- investigate %s: %s (%s)\n",
				entry.Category, truncateLabel(operation.Label), formatMS(operation.DurationMS))
		}
	}

	fmt.Fprintln(out, "\nTop Slowest Operations")
	if len(document.Slowest) == 0 {
		fmt.Fprintln(out, "(no measured operations)")
	} else {
		slowWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(slowWriter, "DURATION\tCATEGORY\tOPERATION\tSTART")
		for _, operation := range document.Slowest {
			fmt.Fprintf(slowWriter, "%s\t%s\t%s\t%s\n",
				formatMS(operation.DurationMS), operation.Category,
				truncateLabel(operation.Label), valueOr(operation.Start, "(unknown)"))
		}
		if err := slowWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nTime Gaps")
	if len(document.Gaps) == 0 {
		fmt.Fprintln(out, "(no significant gaps)")
	} else {
		gapWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(gapWriter, "DURATION\tAFTER\tBEFORE")
		for _, gap := range document.Gaps {
			fmt.Fprintf(gapWriter, "%s\t%s\t%s\n",
				formatMS(gap.DurationMS), truncateLabel(gap.After), truncateLabel(gap.Before))
		}
		if err := gapWriter.Flush(); err != nil {
			return err
		}
	}

	if document.Tokens != nil {
		fmt.Fprintln(out, "\nToken Growth")
		tokenWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tokenWriter, "Reasoning turns\t%d\n", document.Tokens.Turns)
		fmt.Fprintf(tokenWriter, "First turn input\t%d tokens\n", document.Tokens.FirstTurnInput)
		fmt.Fprintf(tokenWriter, "Last turn input\t%d tokens\n", document.Tokens.LastTurnInput)
		fmt.Fprintf(tokenWriter, "Growth\t%+.1f%%\n", document.Tokens.GrowthPct)
		if document.Tokens.Flagged {
			fmt.Fprintf(tokenWriter, "Flagged\tyes (context accumulating across turns)\n")
		}
		if err := tokenWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nErrors")
	if len(document.Errors) == 0 {
		fmt.Fprintln(out, "(no errors)")
	} else {
		errorWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(errorWriter, "TIME\tCATEGORY\tOPERATION\tERROR")
		for _, entry := range document.Errors {
			fmt.Fprintf(errorWriter, "%s\t%s\t%s\t%s\n",
				valueOr(entry.Time, "(unknown)"), entry.Category,
				truncateLabel(entry.Label), truncateLabel(entry.Message))
		}
		if err := errorWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nRecommendations")
	if len(document.Recommendations) == 0 {
		fmt.Fprintln(out, "(none)")
	} else {
		for _, recommendation := range document.Recommendations {
			fmt.Fprintf(out, "- %s\n", recommendation)
		}
	}

	if len(document.Events) > 0 {
		fmt.Fprintln(out, "\nTimeline")
		eventWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(eventWriter, "START\tCATEGORY\tSOURCE\tDURATION\tTURN\tOPERATION")
		for _, event := range document.Events {
			duration := "(unknown)"
			if event.DurationMS != nil {
				duration = formatMS(*event.DurationMS)
			}
			turn := ""
			if event.Turn > 0 {
				turn = fmt.Sprintf("%d", event.Turn)
			}
			fmt.Fprintf(eventWriter, "%s\t%s\t%s\t%s\t%s\t%s\n",
				valueOr(event.Start, "(unknown)"), event.Category, event.Source,
				duration, turn, truncateLabel(event.Label))
		}
		if err := eventWriter.Flush(); err != nil {
			return err
		}
	}

	if strings.TrimSpace(document.Summary) != "" {
		fmt.Fprintln(out, "\nSummary")
		fmt.Fprintln(out, document.Summary)
	}

	return nil
}

func tokenCount(n int64) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

func formatMS(ms int64) string {
	if ms >= 10_000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}

const maxLabelWidth = 60

func truncateLabel(label string) string {
	label = strings.TrimSpace(strings.ReplaceAll(label, "\n", " "))
	if len(label) <= maxLabelWidth {
		return label
	}
	return label[:maxLabelWidth-3] + "..."
}
