package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/deepaksharma/spanscope/internal/profiler"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func collectMetrics(ctx context.Context, reader *sdkmetric.ManualReader) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}
	return values, nil
}

func renderRunSummary(w io.Writer, iterations uint64, view *profiler.FrameView, metrics map[string]int64) error {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("spanscope: %d frames", iterations)))

	frames := view.Recent()
	slowest := newTable("frame", "duration", "goroutines", "scopes")
	sort.Slice(frames, func(i, j int) bool { return frames[i].Duration() > frames[j].Duration() })
	for i, f := range frames {
		if i == 5 {
			break
		}
		slowest.Row(
			fmt.Sprint(f.Index),
			f.Duration().Round(10*time.Microsecond).String(),
			fmt.Sprint(len(f.Threads)),
			fmt.Sprint(f.NumScopes()),
		)
	}
	fmt.Fprintln(w, dimStyle.Render("slowest recent frames"))
	fmt.Fprintln(w, slowest.Render())

	if len(metrics) > 0 {
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		counters := newTable("metric", "value")
		for _, name := range names {
			counters.Row(strings.TrimPrefix(name, "spanscope."), fmt.Sprint(metrics[name]))
		}
		fmt.Fprintln(w, counters.Render())
	}
	return nil
}
