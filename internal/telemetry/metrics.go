// Package telemetry publishes profiler, bridge, store and export counters as
// OpenTelemetry observable instruments.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/deepaksharma/spanscope/internal/profiler"
)

// MetricsManager handles registration of observable instruments. Values are
// read from atomic counters owned by the components they describe.
type MetricsManager struct {
	stats *profiler.Stats

	// Owned here, updated by framestore and frameexport
	storedFramesGauge   *atomic.Int64
	storeSizeGauge      *atomic.Int64
	compactionCounter   *atomic.Int64
	exportedFrames      *atomic.Int64
	exportErrorsCounter *atomic.Int64

	mismatches func() int64

	meter metric.Meter
}

// NewMetricsManager creates a metrics manager reading stats.
func NewMetricsManager(meter metric.Meter, stats *profiler.Stats) *MetricsManager {
	return &MetricsManager{
		stats:               stats,
		storedFramesGauge:   atomic.NewInt64(0),
		storeSizeGauge:      atomic.NewInt64(0),
		compactionCounter:   atomic.NewInt64(0),
		exportedFrames:      atomic.NewInt64(0),
		exportErrorsCounter: atomic.NewInt64(0),
		mismatches:          func() int64 { return 0 },
		meter:               meter,
	}
}

// ObserveMismatches reads the span exit mismatch count from fn, typically
// (*bridge.ScopeLayer).Mismatches.
func (m *MetricsManager) ObserveMismatches(fn func() int64) {
	m.mismatches = fn
}

type instrument struct {
	name        string
	description string
	unit        string
	counter     bool
	read        func() int64
}

func (m *MetricsManager) instruments() []instrument {
	return []instrument{
		{"spanscope.frames_sealed", "Number of profiler frames sealed", "{frames}", true, m.stats.FramesSealed.Load},
		{"spanscope.scopes_begun", "Number of profiler scopes begun", "{scopes}", true, m.stats.ScopesBegun.Load},
		{"spanscope.scopes_ended", "Number of profiler scopes ended", "{scopes}", true, m.stats.ScopesEnded.Load},
		{"spanscope.stream_bytes", "Bytes of scope stream reported to frames", "By", true, m.stats.StreamBytes.Load},
		{"spanscope.sink_drops", "Frames dropped by full asynchronous sinks", "{frames}", true, m.stats.SinkDrops.Load},
		{"spanscope.span_mismatches", "Span exits that did not match the innermost entered span", "{exits}", true, func() int64 { return m.mismatches() }},
		{"spanscope.store.frames", "Number of frames held in the frame store", "{frames}", false, m.storedFramesGauge.Load},
		{"spanscope.store.size", "Size of the frame store database in bytes", "By", false, m.storeSizeGauge.Load},
		{"spanscope.store.compactions", "Number of frame store compactions performed", "{compactions}", true, m.compactionCounter.Load},
		{"spanscope.export.frames", "Number of frames exported as traces", "{frames}", true, m.exportedFrames.Load},
		{"spanscope.export.errors", "Number of failed trace exports", "{errors}", true, m.exportErrorsCounter.Load},
	}
}

// RegisterMetrics registers all instruments with the meter.
func (m *MetricsManager) RegisterMetrics() error {
	for _, inst := range m.instruments() {
		read := inst.read
		callback := metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(read())
			return nil
		})

		var err error
		if inst.counter {
			_, err = m.meter.Int64ObservableCounter(inst.name,
				metric.WithDescription(inst.description),
				metric.WithUnit(inst.unit),
				callback,
			)
		} else {
			_, err = m.meter.Int64ObservableGauge(inst.name,
				metric.WithDescription(inst.description),
				metric.WithUnit(inst.unit),
				callback,
			)
		}
		if err != nil {
			return fmt.Errorf("failed to register %s: %w", inst.name, err)
		}
	}
	return nil
}

// GetStoredFramesGauge returns the stored frames gauge
func (m *MetricsManager) GetStoredFramesGauge() *atomic.Int64 {
	return m.storedFramesGauge
}

// GetStoreSizeGauge returns the store size gauge
func (m *MetricsManager) GetStoreSizeGauge() *atomic.Int64 {
	return m.storeSizeGauge
}

// GetCompactionCounter returns the compaction counter
func (m *MetricsManager) GetCompactionCounter() *atomic.Int64 {
	return m.compactionCounter
}

// GetExportedFramesCounter returns the exported frames counter
func (m *MetricsManager) GetExportedFramesCounter() *atomic.Int64 {
	return m.exportedFrames
}

// GetExportErrorsCounter returns the export errors counter
func (m *MetricsManager) GetExportErrorsCounter() *atomic.Int64 {
	return m.exportErrorsCounter
}
