// internal/syncer/metrics.go
package syncer

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// syncMetrics holds the resync instruments. Instruments that fail to register are left nil.
type syncMetrics struct {
	runs      metric.Int64Counter
	documents metric.Int64Counter
	duration  metric.Float64Histogram
}

func newSyncMetrics(meter metric.Meter, logger *slog.Logger) *syncMetrics {
	m := &syncMetrics{}
	var err error
	if m.runs, err = meter.Int64Counter("github_sync.runs",
		metric.WithDescription("Completed resync attempts by outcome")); err != nil {
		logger.Warn("Failed to register metric", "name", "github_sync.runs", "error", err)
	}
	if m.documents, err = meter.Int64Counter("github_sync.documents",
		metric.WithDescription("Documents written by resyncs"),
		metric.WithUnit("{document}")); err != nil {
		logger.Warn("Failed to register metric", "name", "github_sync.documents", "error", err)
	}
	if m.duration, err = meter.Float64Histogram("github_sync.duration",
		metric.WithDescription("Wall time of a resync"),
		metric.WithUnit("s")); err != nil {
		logger.Warn("Failed to register metric", "name", "github_sync.duration", "error", err)
	}
	return m
}

func (m *syncMetrics) recordRun(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
	if m.duration != nil && elapsed > 0 {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (m *syncMetrics) recordDocuments(ctx context.Context, entity string, n int) {
	if m.documents == nil || n == 0 {
		return
	}
	m.documents.Add(ctx, int64(n), metric.WithAttributes(attribute.String("entity", entity)))
}
