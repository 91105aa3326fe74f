package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/arturn1/log-dashboard/internal/domain"
	"github.com/arturn1/log-dashboard/internal/stream"
)

const clearScreen = "\033[H\033[2J"

// renderView writes a text rendition of v. Lines are cut to width when
// width > 0.
func renderView(w io.Writer, v stream.View, width int) {
	var b strings.Builder
	header := fmt.Sprintf("Log Dashboard  [%s]", v.Status)
	if v.LastError != "" {
		header += "  " + v.LastError
	}
	line(&b, width, header)
	line(&b, width, "")

	line(&b, width, "Metrics")
	line(&b, width, fmt.Sprintf("  Total requests:   %d", v.Metrics.TotalRequests))
	line(&b, width, fmt.Sprintf("  Average duration: %.2fms", v.Metrics.AverageDuration))
	line(&b, width, "  By method:        "+formatCounts(v.Metrics.RequestsByMethod))
	line(&b, width, "  Status codes:     "+formatCounts(v.Metrics.StatusDistribution))
	line(&b, width, "")

	line(&b, width, fmt.Sprintf("Running actions (%d)", len(v.OpenActions)))
	if len(v.OpenActions) == 0 {
		line(&b, width, "  No actions running.")
	}
	for _, e := range v.OpenActions {
		line(&b, width, "  "+formatOpen(e))
	}
	line(&b, width, "")

	line(&b, width, fmt.Sprintf("Live logs (%d of %d buffered)", len(v.Logs), v.Stats.Buffered))
	for _, e := range v.Logs {
		line(&b, width, "  "+formatLog(e))
	}
	if v.Stats.DecodeFailures > 0 || v.Stats.ChannelErrors > 0 {
		line(&b, width, "")
		line(&b, width, fmt.Sprintf("discarded=%d channel_errors=%d duplicate_starts=%d orphan_terminals=%d",
			v.Stats.DecodeFailures, v.Stats.ChannelErrors, v.Stats.Anomalies.DuplicateStarts, v.Stats.Anomalies.OrphanTerminals))
	}
	_, _ = io.WriteString(w, b.String())
}

func formatOpen(e domain.LifecycleEvent) string {
	return strings.Join([]string{e.ActionID, string(e.Action), e.Method, e.Route, e.StatusLabel(), e.DisplaySession()}, " - ")
}

func formatLog(e domain.LifecycleEvent) string {
	fields := []string{e.ShortID(), string(e.Action), e.Method, e.Route, e.StatusLabel(), e.DisplaySession()}
	if e.Time != "" {
		fields = append(fields, e.Time)
	}
	return strings.Join(fields, " - ")
}

func formatCounts(c *domain.Counts) string {
	if c.Len() == 0 {
		return "-"
	}
	parts := make([]string, 0, c.Len())
	values := c.Values()
	for i, k := range c.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%d", k, values[i]))
	}
	return strings.Join(parts, " ")
}

func line(b *strings.Builder, width int, s string) {
	if width > 0 && utf8.RuneCountInString(s) > width {
		runes := []rune(s)
		s = string(runes[:width])
	}
	b.WriteString(s)
	b.WriteByte('\n')
}
