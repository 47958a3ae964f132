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
	"github.com/nowlens/nowlens/internal/fetch"
	"github.com/nowlens/nowlens/internal/resolve"
)

const (
	defaultTrendsFormat = "text"
	defaultTrendsHours  = 24
	maxTrendsHours      = 24 * 30
	trendsSchemaVersion = "trends.v1"
)

type trendsDocument struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Since         time.Time `json:"since"`
	Usecase       string    `json:"usecase,omitempty"`

	Traces   []comparisonTraceInfo `json:"traces"`
	Mean     comparisonMeanInfo    `json:"mean"`
	Rankings *comparisonRankings   `json:"rankings,omitempty"`
	Outliers []comparisonOutlier   `json:"outliers"`
	Trend    *comparisonTrend      `json:"trend,omitempty"`
}

func runTrends(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("trends", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultTrendsFormat, "Output format: text or json")
	hours := flagSet.Int("hours", defaultTrendsHours, "Analyze runs created in the last N hours")
	usecase := flagSet.String("usecase", "", "Restrict the scan to one usecase sys_id")
	limit := flagSet.Int("limit", analysis.DefaultTrendLimit, "Maximum traces to scan")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "trends does not accept positional arguments")
		return 2
	}
	if *hours <= 0 || *hours > maxTrendsHours {
		fmt.Fprintf(errOut, "hours must be between 1 and %d\n", maxTrendsHours)
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("trends", *format, defaultTrendsFormat)
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

	client, err := newInstanceClient(cfg, runtime)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize instance client: %v\n", err)
		return 1
	}
	analyzer := analysis.NewAnalyzer(resolve.NewResolver(client), fetch.NewInstanceFetcher(client), logger)

	result, err := analyzer.AnalyzeTrends(context.Background(), client, analysis.TrendOptions{
		Since:   time.Now().UTC().Add(-time.Duration(*hours) * time.Hour),
		Usecase: strings.TrimSpace(*usecase),
		Limit:   *limit,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrNoRecentTraces) {
			fmt.Fprintln(errOut, err.Error())
			return 1
		}
		fmt.Fprintf(errOut, "trend scan failed: %v\n", err)
		return 1
	}

	document := buildTrendsDocument(result)
	if err := writeTrends(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write trends: %v\n", err)
		return 1
	}
	return 0
}

func buildTrendsDocument(result analysis.TrendAnalysis) trendsDocument {
	document := trendsDocument{
		SchemaVersion: trendsSchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Since:         result.Options.Since,
		Usecase:       result.Options.Usecase,
		Mean: comparisonMeanInfo{
			Comparable:   result.Batch.Comparable,
			DurationMS:   result.Batch.MeanDuration,
			AvgLLMCount:  result.Batch.AvgLLMCount,
			AvgToolCount: result.Batch.AvgToolCount,
		},
	}

	for _, summary := range result.Batch.Traces {
		document.Traces = append(document.Traces, comparisonTraceInfo{
			TraceID:       summary.TraceID,
			Usecase:       summary.Label,
			State:         summary.State,
			StartedAt:     timeOr(summary.StartedAt, ""),
			DurationMS:    summary.TotalDurationMS,
			DurationKnown: summary.DurationKnown,
			LLMCount:      summary.LLMCount,
			LLMTotalMS:    summary.LLMTotalMS,
			ErrorCount:    summary.ErrorCount,
		})
	}

	if result.Batch.RankingsKnown {
		document.Rankings = &comparisonRankings{
			Fastest:   result.Batch.Rankings.FastestID,
			Slowest:   result.Batch.Rankings.SlowestID,
			MostCalls: result.Batch.Rankings.MostCallsID,
			MostErrs:  result.Batch.Rankings.MostErrsID,
		}
	}
	for _, outlier := range result.Batch.Outliers {
		document.Outliers = append(document.Outliers, comparisonOutlier{
			TraceID:     outlier.TraceID,
			DurationMS:  outlier.DurationMS,
			RatioToMean: outlier.RatioToMean,
			Direction:   string(outlier.Direction),
		})
	}
	if result.Batch.TrendKnown {
		document.Trend = asComparisonTrend(result.Batch.Trend)
	}

	return document
}

func writeTrends(out io.Writer, format string, document trendsDocument) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	default:
		return writeTrendsText(out, document)
	}
}

func writeTrendsText(out io.Writer, document trendsDocument) error {
	fmt.Fprintln(out, "Performance Trends")

	metadataWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(metadataWriter, "Since\t%s\n", document.Since.Format(time.RFC3339))
	fmt.Fprintf(metadataWriter, "Usecase\t%s\n", valueOr(document.Usecase, "(all)"))
	fmt.Fprintf(metadataWriter, "Traces scanned\t%d\n", len(document.Traces))
	fmt.Fprintf(metadataWriter, "Comparable\t%d\n", document.Mean.Comparable)
	fmt.Fprintf(metadataWriter, "Mean duration\t%.0fms\n", document.Mean.DurationMS)
	fmt.Fprintf(metadataWriter, "Avg LLM calls\t%.1f\n", document.Mean.AvgLLMCount)
	if err := metadataWriter.Flush(); err != nil {
		return err
	}

	if document.Trend != nil {
		fmt.Fprintln(out, "\nQuartiles (oldest to newest)")
		trendWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(trendWriter, "QUARTILE\tTRACES\tAVG_DURATION\tAVG_LLM\tERRORS")
		for i, bucket := range document.Trend.Quartiles {
			fmt.Fprintf(trendWriter, "Q%d\t%d\t%.0fms\t%.1f\t%d\n",
				i+1, bucket.Traces, bucket.AvgDurationMS, bucket.AvgLLMCount, bucket.ErrorCount)
		}
		if err := trendWriter.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Direction: %s (first half %.0fms, second half %.0fms)\n",
			document.Trend.Direction, document.Trend.FirstHalfAvg, document.Trend.SecondHalfAvg)
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

	if document.Rankings != nil {
		fmt.Fprintln(out, "\nRankings")
		rankWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(rankWriter, "Fastest\t%s\n", document.Rankings.Fastest)
		fmt.Fprintf(rankWriter, "Slowest\t%s\n", document.Rankings.Slowest)
		if document.Rankings.MostErrs != "" {
			fmt.Fprintf(rankWriter, "Most errors\t%s\n", document.Rankings.MostErrs)
		}
		if err := rankWriter.Flush(); err != nil {
			return err
		}
	}

	return nil
}
