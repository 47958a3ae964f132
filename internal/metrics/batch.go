package metrics

import (
	"sort"
	"time"

	"github.com/nowlens/nowlens/internal/source"
)

const (
	// SlowOutlierRatio and FastOutlierRatio bound outlier classification.
	// Both comparisons are strict: a trace sitting exactly on a boundary
	// is not an outlier.
	SlowOutlierRatio = 1.5
	FastOutlierRatio = 0.5

	// TrendThresholdPct separates degrading/improving from stable when
	// comparing second-half and first-half averages.
	TrendThresholdPct = 10.0
)

// OutlierDirection marks which side of the mean a trace fell on.
type OutlierDirection string

const (
	OutlierSlow OutlierDirection = "slow"
	OutlierFast OutlierDirection = "fast"
)

// TrendDirection classifies drift across a chronologically ordered batch.
type TrendDirection string

const (
	TrendDegrading TrendDirection = "degrading"
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
)

// TraceSummary condenses one trace's metrics for cross-trace comparison.
type TraceSummary struct {
	TraceID   string
	Label     string
	State     string
	StartedAt time.Time

	TotalDurationMS int64
	DurationKnown   bool

	LLMCount    int
	LLMTotalMS  int64
	LLMMaxMS    int64
	ToolCount   int
	ToolTotalMS int64
	ToolMaxMS   int64
	ErrorCount  int
}

// Summarize reduces single-trace metrics to a TraceSummary.
func Summarize(traceID, label, state string, m TraceMetrics) TraceSummary {
	llm := m.Aggregate(source.CategoryLLM)
	tool := m.Aggregate(source.CategoryTool)
	return TraceSummary{
		TraceID:         traceID,
		Label:           label,
		State:           state,
		StartedAt:       m.FirstStart,
		TotalDurationMS: m.WallClockMS,
		DurationKnown:   m.WallClockKnown,
		LLMCount:        llm.Count,
		LLMTotalMS:      llm.TotalDurationMS,
		LLMMaxMS:        llm.MaxDurationMS,
		ToolCount:       tool.Count,
		ToolTotalMS:     tool.TotalDurationMS,
		ToolMaxMS:       tool.MaxDurationMS,
		ErrorCount:      m.ErrorCount,
	}
}

// Outlier is a trace whose total duration deviates from the batch mean
// beyond the fixed ratio thresholds.
type Outlier struct {
	TraceID     string
	DurationMS  int64
	RatioToMean float64
	Direction   OutlierDirection
}

// Rankings identify the extremes of a batch.
type Rankings struct {
	FastestID   string
	SlowestID   string
	MostCallsID string
	MostCalls   int
	MostErrsID  string
	MostErrs    int
}

// QuartileBucket averages one time-ordered quarter of a batch.
type QuartileBucket struct {
	Traces        int
	AvgDurationMS float64
	AvgLLMCount   float64
	ErrorCount    int
}

// TrendReport is the four-bucket drift analysis over a sorted batch.
type TrendReport struct {
	Quartiles     [4]QuartileBucket
	FirstHalfAvg  float64
	SecondHalfAvg float64
	Direction     TrendDirection
}

// BatchMetrics aggregates a batch of trace summaries.
type BatchMetrics struct {
	Traces        []TraceSummary
	Comparable    int
	MeanDuration  float64
	AvgLLMCount   float64
	AvgToolCount  float64
	Rankings      Rankings
	RankingsKnown bool
	Outliers      []Outlier
	Trend         TrendReport
	TrendKnown    bool
}

// ComputeBatch derives rankings, outliers, and the quartile trend from a
// batch of summaries. Traces without a known duration are listed but
// excluded from mean, outlier, and trend computations.
func ComputeBatch(summaries []TraceSummary) BatchMetrics {
	result := BatchMetrics{Traces: summaries}

	comparable := make([]TraceSummary, 0, len(summaries))
	for _, summary := range summaries {
		if summary.DurationKnown {
			comparable = append(comparable, summary)
		}
	}
	result.Comparable = len(comparable)
	if len(comparable) == 0 {
		return result
	}

	var totalDuration, totalLLM, totalTool int64
	for _, summary := range comparable {
		totalDuration += summary.TotalDurationMS
		totalLLM += int64(summary.LLMCount)
		totalTool += int64(summary.ToolCount)
	}
	result.MeanDuration = float64(totalDuration) / float64(len(comparable))
	result.AvgLLMCount = float64(totalLLM) / float64(len(comparable))
	result.AvgToolCount = float64(totalTool) / float64(len(comparable))

	result.Rankings = computeRankings(comparable)
	result.RankingsKnown = true
	result.Outliers = computeOutliers(comparable, result.MeanDuration)
	result.Trend, result.TrendKnown = computeTrend(comparable)

	return result
}

func computeRankings(comparable []TraceSummary) Rankings {
	rankings := Rankings{}
	fastest, slowest := comparable[0], comparable[0]
	for _, summary := range comparable {
		if summary.TotalDurationMS < fastest.TotalDurationMS {
			fastest = summary
		}
		if summary.TotalDurationMS > slowest.TotalDurationMS {
			slowest = summary
		}
		calls := summary.LLMCount + summary.ToolCount
		if calls > rankings.MostCalls || rankings.MostCallsID == "" {
			rankings.MostCalls = calls
			rankings.MostCallsID = summary.TraceID
		}
		if summary.ErrorCount > rankings.MostErrs {
			rankings.MostErrs = summary.ErrorCount
			rankings.MostErrsID = summary.TraceID
		}
	}
	rankings.FastestID = fastest.TraceID
	rankings.SlowestID = slowest.TraceID
	return rankings
}

func computeOutliers(comparable []TraceSummary, mean float64) []Outlier {
	if mean <= 0 {
		return nil
	}
	var outliers []Outlier
	for _, summary := range comparable {
		duration := float64(summary.TotalDurationMS)
		switch {
		case duration > mean*SlowOutlierRatio:
			outliers = append(outliers, Outlier{
				TraceID:     summary.TraceID,
				DurationMS:  summary.TotalDurationMS,
				RatioToMean: duration / mean,
				Direction:   OutlierSlow,
			})
		case duration < mean*FastOutlierRatio:
			outliers = append(outliers, Outlier{
				TraceID:     summary.TraceID,
				DurationMS:  summary.TotalDurationMS,
				RatioToMean: mean / duration,
				Direction:   OutlierFast,
			})
		}
	}
	sort.SliceStable(outliers, func(i, j int) bool {
		return outliers[i].RatioToMean > outliers[j].RatioToMean
	})
	return outliers
}

func computeTrend(comparable []TraceSummary) (TrendReport, bool) {
	if len(comparable) < 2 {
		return TrendReport{}, false
	}

	ordered := make([]TraceSummary, len(comparable))
	copy(ordered, comparable)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.Before(ordered[j].StartedAt)
	})

	report := TrendReport{}

	// Equal quartiles with the remainder in the last bucket.
	size := len(ordered) / 4
	if size > 0 {
		for q := 0; q < 4; q++ {
			lo := q * size
			hi := lo + size
			if q == 3 {
				hi = len(ordered)
			}
			report.Quartiles[q] = bucketOf(ordered[lo:hi])
		}
	}

	half := len(ordered) / 2
	report.FirstHalfAvg = avgDuration(ordered[:half])
	report.SecondHalfAvg = avgDuration(ordered[half:])

	switch {
	case report.SecondHalfAvg > report.FirstHalfAvg*(1+TrendThresholdPct/100):
		report.Direction = TrendDegrading
	case report.SecondHalfAvg < report.FirstHalfAvg*(1-TrendThresholdPct/100):
		report.Direction = TrendImproving
	default:
		report.Direction = TrendStable
	}

	return report, true
}

func bucketOf(traces []TraceSummary) QuartileBucket {
	bucket := QuartileBucket{Traces: len(traces)}
	if len(traces) == 0 {
		return bucket
	}
	var duration, llm int64
	for _, summary := range traces {
		duration += summary.TotalDurationMS
		llm += int64(summary.LLMCount)
		bucket.ErrorCount += summary.ErrorCount
	}
	bucket.AvgDurationMS = float64(duration) / float64(len(traces))
	bucket.AvgLLMCount = float64(llm) / float64(len(traces))
	return bucket
}

func avgDuration(traces []TraceSummary) float64 {
	if len(traces) == 0 {
		return 0
	}
	var total int64
	for _, summary := range traces {
		total += summary.TotalDurationMS
	}
	return float64(total) / float64(len(traces))
}
