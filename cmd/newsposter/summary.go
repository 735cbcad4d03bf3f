package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/usecase"
)

func renderSummaries(w io.Writer, summaries []usecase.Summary) {
	if len(summaries) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Stage", "Result", "Attempted", "Succeeded", "Failed", "Skipped", "Duration"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Stage,
			s.Result,
			s.Stats.Attempted,
			s.Stats.Succeeded,
			s.Stats.Failed,
			s.Stats.Skipped,
			s.Duration.Round(time.Millisecond),
		})
	}
	t.Render()

	for _, s := range summaries {
		if len(s.Categories) > 0 {
			renderCategories(w, s)
		}
		if s.Fatal != "" {
			fmt.Fprintf(w, "%s: fatal: %s\n", s.Stage, s.Fatal)
		}
		for _, msg := range s.Stats.Errors {
			fmt.Fprintf(w, "%s: error: %s\n", s.Stage, msg)
		}
		for _, note := range s.Notes {
			fmt.Fprintf(w, "%s: %s\n", s.Stage, note)
		}
	}
}

func renderCategories(w io.Writer, s usecase.Summary) {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Category", "Articles", "Avg words", "Sentiment", "Top topics"})
	for _, name := range names {
		stats := s.Categories[name]
		t.AppendRow(table.Row{
			name,
			stats.Articles,
			fmt.Sprintf("%.1f", stats.AvgWordCount),
			sentimentLine(stats.SentimentCounts),
			strings.Join(stats.TopTopics, ", "),
		})
	}
	t.Render()
}

func sentimentLine(counts map[domain.Sentiment]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[domain.Sentiment(k)]))
	}
	return strings.Join(parts, " ")
}
