// Package summarize turns a computed analysis into a short natural-language
// synopsis via an OpenAI-compatible chat-completions endpoint. It is an
// optional add-on: callers degrade to the plain report when it fails.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nowlens/nowlens/internal/analysis"
	"github.com/nowlens/nowlens/internal/config"
	"github.com/nowlens/nowlens/internal/source"
)

// ErrDisabled is returned when summarization is not configured.
var ErrDisabled = errors.New("summarize: summarizer is not enabled")

const systemPrompt = "You are a performance analyst reviewing execution traces of " +
	"AI agent runs. Summarize the supplied per-category timings, gaps, and " +
	"errors in at most five sentences. Name the dominant cost and the single " +
	"most actionable improvement. Do not invent numbers."

type Summarizer struct {
	client *openai.Client
	model  string
}

func New(cfg config.SummarizerConfig) (*Summarizer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}
	return &Summarizer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// Summarize renders the analysis as a compact digest and asks the model
// for a synopsis.
func (s *Summarizer) Summarize(ctx context.Context, a analysis.TraceAnalysis) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Digest(a)},
		},
		MaxTokens:   400,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarize: empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Digest flattens an analysis into the plain-text block sent to the model.
// Only aggregates go over the wire. Raw record payloads never do.
func Digest(a analysis.TraceAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trace: %s\n", a.Resolution.Ident.Canonical())
	if a.Resolution.Label != "" {
		fmt.Fprintf(&b, "usecase: %s\n", a.Resolution.Label)
	}
	fmt.Fprintf(&b, "events: %d, errors: %d\n", a.Metrics.EventCount, a.Metrics.ErrorCount)
	if a.Metrics.WallClockKnown {
		fmt.Fprintf(&b, "wall clock: %dms, processing: %dms\n", a.Metrics.WallClockMS, a.Metrics.TotalProcessingMS)
	} else {
		fmt.Fprintf(&b, "wall clock: unknown, processing: %dms\n", a.Metrics.TotalProcessingMS)
	}
	for _, agg := range a.Metrics.Aggregates {
		if agg.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: count=%d total=%dms avg=%.0fms max=%dms errors=%d\n",
			agg.Category, agg.Count, agg.TotalDurationMS, agg.AvgDurationMS, agg.MaxDurationMS, agg.ErrorCount)
		if agg.Category == source.CategoryLLM && (agg.InputTokens > 0 || agg.OutputTokens > 0) {
			fmt.Fprintf(&b, "tokens: in=%d out=%d\n", agg.InputTokens, agg.OutputTokens)
		}
	}
	if a.Metrics.TokenGrowthKnown && a.Metrics.TokenGrowth.Flagged {
		fmt.Fprintf(&b, "token growth: %+.1f%% first to last turn\n", a.Metrics.TokenGrowth.GrowthPct)
	}
	for i, gap := range a.Metrics.Gaps {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "gap: %dms after %s\n", gap.DurationMS, gap.AfterLabel)
	}
	if a.Partial {
		b.WriteString("note: some record sources were unavailable; totals are partial\n")
	}
	return b.String()
}
