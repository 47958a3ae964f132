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
	"github.com/nowlens/nowlens/internal/metrics"
)

const (
	defaultCompareFormat = "text"
	compareSchemaVersion = "comparison.v1"
)

type comparisonDocument struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`

	Traces   []comparisonTraceInfo `json:"traces"`
	Mean     comparisonMeanInfo    `json:"mean"`
	Rankings *comparisonRankings   `json:"rankings,omitempty"`
	Outliers []comparisonOutlier   `json:"outliers"`
	Trend    *comparisonTrend      `json:"trend,omitempty"`
}

type comparisonTraceInfo struct {
	TraceID       string `json:"trace_id"`
	Usecase       string `json:"usecase,omitempty"`
	State         string `json:"state,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	DurationKnown bool   `json:"duration_known"`
	LLMCount      int    `json:"llm_count"`
	LLMTotalMS    int64  `json:"llm_total_ms"`
	ToolCount     int    `json:"tool_count"`
	ToolTotalMS   int64  `json:"tool_total_ms"`
	ErrorCount    int    `json:"error_count"`
	Failed        string `json:"failed,omitempty"`

	// Populated only when --detail is set.
	Categories []comparisonCategoryDetail `json:"categories,omitempty"`
}

type comparisonCategoryDetail struct {
	Category      string  `json:"category"`
	Count         int     `json:"count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	MaxDurationMS int64   `json:"max_duration_ms"`
	ErrorCount    int     `json:"error_count"`
}

type comparisonMeanInfo struct {
	Comparable   int     `json:"comparable"`
	DurationMS   float64 `json:"duration_ms"`
	AvgLLMCount  float64 `json:"avg_llm_count"`
	AvgToolCount float64 `json:"avg_tool_count"`
}

type comparisonRankings struct {
	Fastest   string `json:"fastest"`
	Slowest   string `json:"slowest"`
	MostCalls string `json:"most_calls"`
	MostErrs  string `json:"most_errors,omitempty"`
}

type comparisonOutlier struct {
	TraceID     string  `json:"trace_id"`
	DurationMS  int64   `json:"duration_ms"`
	RatioToMean float64 `json:"ratio_to_mean"`
	Direction   string  `json:"direction"`
}

type comparisonTrend struct {
	Quartiles     []comparisonQuartile `json:"quartiles"`
	FirstHalfAvg  float64              `json:"first_half_avg_ms"`
	SecondHalfAvg float64              `json:"second_half_avg_ms"`
	Direction     string               `json:"direction"`
}

type comparisonQuartile struct {
	Traces        int     `json:"traces"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	AvgLLMCount   float64 `json:"avg_llm_count"`
	ErrorCount    int     `json:"error_count"`
}

func runCompare(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("compare", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultCompareFormat, "Output format: text or json")
	fromSnapshot := flagSet.Bool("snapshot", false, "Compare from the local snapshot store instead of the live instance")
	showDetail := flagSet.Bool("detail", false, "Include a per-trace category breakdown")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	ids := splitCompareIDs(flagSet.Args())
	if len(ids) < analysis.MinBatchSize || len(ids) > analysis.MaxBatchSize {
		fmt.Fprintf(errOut, "usage: nowlens compare [flags] <id1,id2[,...]> (between %d and %d identifiers)\n",
			analysis.MinBatchSize, analysis.MaxBatchSize)
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("compare", *format, defaultCompareFormat)
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

	batch, err := analyzer.AnalyzeBatch(context.Background(), ids)
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidBatch) {
			fmt.Fprintln(errOut, err.Error())
			return 2
		}
		fmt.Fprintf(errOut, "comparison failed: %v\n", err)
		return 1
	}
	for _, entry := range batch.Entries {
		if entry.Analysis != nil {
			recordSourceFailures(runtime, *entry.Analysis)
		}
	}

	document := buildComparisonDocument(batch, *showDetail)
	if err := writeComparison(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write comparison: %v\n", err)
		return 1
	}
	return 0
}

// splitCompareIDs flattens the positional arguments into one identifier
// list. Identifiers arrive comma-separated; space-separated lists keep
// working because each argument is split independently.
func splitCompareIDs(args []string) []string {
	var ids []string
	for _, arg := range args {
		for _, id := range strings.Split(arg, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func buildComparisonDocument(batch analysis.BatchAnalysis, detail bool) comparisonDocument {
	document := comparisonDocument{
		SchemaVersion: compareSchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Mean: comparisonMeanInfo{
			Comparable:   batch.Batch.Comparable,
			DurationMS:   batch.Batch.MeanDuration,
			AvgLLMCount:  batch.Batch.AvgLLMCount,
			AvgToolCount: batch.Batch.AvgToolCount,
		},
	}

	for _, entry := range batch.Entries {
		if entry.Err != nil {
			document.Traces = append(document.Traces, comparisonTraceInfo{
				TraceID: entry.Input,
				Failed:  entry.Err.Error(),
			})
			continue
		}
		summary := entry.Analysis.Summary()
		row := comparisonTraceInfo{
			TraceID:       summary.TraceID,
			Usecase:       summary.Label,
			State:         summary.State,
			StartedAt:     timeOr(summary.StartedAt, ""),
			DurationMS:    summary.TotalDurationMS,
			DurationKnown: summary.DurationKnown,
			LLMCount:      summary.LLMCount,
			LLMTotalMS:    summary.LLMTotalMS,
			ToolCount:     summary.ToolCount,
			ToolTotalMS:   summary.ToolTotalMS,
			ErrorCount:    summary.ErrorCount,
		}
		if detail {
			for _, aggregate := range entry.Analysis.Metrics.Aggregates {
				if aggregate.Count == 0 {
					continue
				}
				row.Categories = append(row.Categories, comparisonCategoryDetail{
					Category:      string(aggregate.Category),
					Count:         aggregate.Count,
					AvgDurationMS: aggregate.AvgDurationMS,
					MaxDurationMS: aggregate.MaxDurationMS,
					ErrorCount:    aggregate.ErrorCount,
				})
			}
		}
		document.Traces = append(document.Traces, row)
	}

	if batch.Batch.RankingsKnown {
		document.Rankings = &comparisonRankings{
			Fastest:   batch.Batch.Rankings.FastestID,
			Slowest:   batch.Batch.Rankings.SlowestID,
			MostCalls: batch.Batch.Rankings.MostCallsID,
			MostErrs:  batch.Batch.Rankings.MostErrsID,
		}
	}
	for _, outlier := range batch.Batch.Outliers {
		document.Outliers = append(document.Outliers, comparisonOutlier{
			TraceID:     outlier.TraceID,
			DurationMS:  outlier.DurationMS,
			RatioToMean: outlier.RatioToMean,
			Direction:   string(outlier.Direction),
		})
	}
	if batch.Batch.TrendKnown {
		document.Trend = asComparisonTrend(batch.Batch.Trend)
	}

	return document
}

func asComparisonTrend(trend metrics.TrendReport) *comparisonTrend {
	result := &comparisonTrend{
		FirstHalfAvg:  trend.FirstHalfAvg,
		SecondHalfAvg: trend.SecondHalfAvg,
		Direction:     string(trend.Direction),
	}
	for _, bucket := range trend.Quartiles {
		result.Quartiles = append(result.Quartiles, comparisonQuartile{
			Traces:        bucket.Traces,
			AvgDurationMS: bucket.AvgDurationMS,
			AvgLLMCount:   bucket.AvgLLMCount,
			ErrorCount:    bucket.ErrorCount,
		})
	}
	return result
}

func writeComparison(out io.Writer, format string, document comparisonDocument) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	default:
		return writeComparisonText(out, document)
	}
}

func writeComparisonText(out io.Writer, document comparisonDocument) error {
	fmt.Fprintln(out, "Trace Comparison")

	traceWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(traceWriter, "TRACE\tSTARTED\tDURATION\tLLM\tLLM_TIME\tTOOLS\tTOOL_TIME\tERRORS")
	for _, row := range document.Traces {
		if row.Failed != "" {
			fmt.Fprintf(traceWriter, "%s\t(failed: %s)\t\t\t\t\t\t\n", row.TraceID, truncateLabel(row.Failed))
			continue
		}
		duration := "(unknown)"
		if row.DurationKnown {
			duration = formatMS(row.DurationMS)
		}
		fmt.Fprintf(traceWriter, "%s\t%s\t%s\t%d\t%s\t%d\t%s\t%d\n",
			row.TraceID, valueOr(row.StartedAt, "(unknown)"), duration,
			row.LLMCount, formatMS(row.LLMTotalMS),
			row.ToolCount, formatMS(row.ToolTotalMS), row.ErrorCount)
	}
	if err := traceWriter.Flush(); err != nil {
		return err
	}

	hasDetail := false
	for _, row := range document.Traces {
		if len(row.Categories) > 0 {
			hasDetail = true
			break
		}
	}
	if hasDetail {
		fmt.Fprintln(out, "\nPer-Trace Breakdown")
		detailWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(detailWriter, "TRACE\tCATEGORY\tCOUNT\tAVG\tMAX\tERRORS")
		for _, row := range document.Traces {
			for _, category := range row.Categories {
				fmt.Fprintf(detailWriter, "%s\t%s\t%d\t%.0fms\t%s\t%d\n",
					row.TraceID, category.Category, category.Count,
					category.AvgDurationMS, formatMS(category.MaxDurationMS), category.ErrorCount)
			}
		}
		if err := detailWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nBatch Averages")
	meanWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(meanWriter, "Comparable traces\t%d\n", document.Mean.Comparable)
	fmt.Fprintf(meanWriter, "Mean duration\t%.0fms\n", document.Mean.DurationMS)
	fmt.Fprintf(meanWriter, "Avg LLM calls\t%.1f\n", document.Mean.AvgLLMCount)
	fmt.Fprintf(meanWriter, "Avg tool calls\t%.1f\n", document.Mean.AvgToolCount)
	if err := meanWriter.Flush(); err != nil {
		return err
	}

	if document.Rankings != nil {
		fmt.Fprintln(out, "\nRankings")
		rankWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(rankWriter, "Fastest\t%s\n", document.Rankings.Fastest)
		fmt.Fprintf(rankWriter, "Slowest\t%s\n", document.Rankings.Slowest)
		fmt.Fprintf(rankWriter, "Most calls\t%s\n", document.Rankings.MostCalls)
		if document.Rankings.MostErrs != "" {
			fmt.Fprintf(rankWriter, "Most errors\t%s\n", document.Rankings.MostErrs)
		}
		if err := rankWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nOutliers")
	if len(document.Outliers) == 0 {
		fmt.Fprintln(out, "(none)")
	} else {
		outlierWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(outlierWriter, "TRACE\tDIRECTION\tDURATION\tVS_MEAN")
		for _, outlier := range document.Outliers {
			fmt.Fprintf(outlierWriter, "%s\t%s\t%s\t%.1fx\n",
				outlier.TraceID, outlier.Direction, formatMS(outlier.DurationMS), outlier.RatioToMean)
		}
		if err := outlierWriter.Flush(); err != nil {
			return err
		}
	}

	if document.Trend != nil {
		fmt.Fprintln(out, "\nTrend (time-ordered quartiles)")
		trendWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(trendWriter, "QUARTILE\tTRACES\tAVG_DURATION\tAVG_LLM\tERRORS")
		for i, bucket := range document.Trend.Quartiles {
			fmt.Fprintf(trendWriter, "Q%d\t%d\t%.0fms\t%.1f\t%d\n",
				i+1, bucket.Traces, bucket.AvgDurationMS, bucket.AvgLLMCount, bucket.ErrorCount)
		}
		fmt.Fprintf(trendWriter, "First half avg\t\t%.0fms\t\t\n", document.Trend.FirstHalfAvg)
		fmt.Fprintf(trendWriter, "Second half avg\t\t%.0fms\t\t\n", document.Trend.SecondHalfAvg)
		if err := trendWriter.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Direction: %s\n", document.Trend.Direction)
	}

	return nil
}
