package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/coterm/coterm"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Runtime service metrics
	RuntimeUnreachableTotal metric.Int64Counter
	RuntimeStopsTotal       metric.Int64Counter
	RuntimeStopErrorsTotal  metric.Int64Counter
	RuntimeStatusDuration   metric.Float64Histogram

	// Access metrics
	AccessDeniedTotal        metric.Int64Counter
	TokenRedemptionsTotal    metric.Int64Counter
	TokenRejectionsTotal     metric.Int64Counter
	BulkTerminateItemsTotal  metric.Int64Counter
	BulkTerminateFailedTotal metric.Int64Counter

	// Presence metrics
	ActiveParticipants       metric.Int64UpDownCounter
	StaleParticipantsEvicted metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RuntimeUnreachableTotal, _ = meter.Int64Counter(
		"coterm.runtime.unreachable.total",
		metric.WithDescription("Status or stop calls degraded because the runtime service was unreachable"),
		metric.WithUnit("{call}"),
	)

	m.RuntimeStopsTotal, _ = meter.Int64Counter(
		"coterm.runtime.stops.total",
		metric.WithDescription("Total number of remote stop attempts"),
		metric.WithUnit("{call}"),
	)

	m.RuntimeStopErrorsTotal, _ = meter.Int64Counter(
		"coterm.runtime.stops.errors.total",
		metric.WithDescription("Remote stop attempts that failed"),
		metric.WithUnit("{error}"),
	)

	m.RuntimeStatusDuration, _ = meter.Float64Histogram(
		"coterm.runtime.status.duration",
		metric.WithDescription("Duration of runtime status checks"),
		metric.WithUnit("ms"),
	)

	m.AccessDeniedTotal, _ = meter.Int64Counter(
		"coterm.access.denied.total",
		metric.WithDescription("Requests rejected by the access policy"),
		metric.WithUnit("{request}"),
	)

	m.TokenRedemptionsTotal, _ = meter.Int64Counter(
		"coterm.share_tokens.redemptions.total",
		metric.WithDescription("Successful share token redemptions"),
		metric.WithUnit("{redemption}"),
	)

	m.TokenRejectionsTotal, _ = meter.Int64Counter(
		"coterm.share_tokens.rejections.total",
		metric.WithDescription("Share token redemptions rejected as expired, exhausted or unknown"),
		metric.WithUnit("{rejection}"),
	)

	m.BulkTerminateItemsTotal, _ = meter.Int64Counter(
		"coterm.bulk_terminate.items.total",
		metric.WithDescription("Sessions processed by bulk terminate batches"),
		metric.WithUnit("{session}"),
	)

	m.BulkTerminateFailedTotal, _ = meter.Int64Counter(
		"coterm.bulk_terminate.failed.total",
		metric.WithDescription("Sessions that failed to terminate in bulk batches"),
		metric.WithUnit("{session}"),
	)

	m.ActiveParticipants, _ = meter.Int64UpDownCounter(
		"coterm.presence.participants.active",
		metric.WithDescription("Participants currently joined across all sessions"),
		metric.WithUnit("{participant}"),
	)

	m.StaleParticipantsEvicted, _ = meter.Int64Counter(
		"coterm.presence.evicted.total",
		metric.WithDescription("Participants evicted for missing heartbeats"),
		metric.WithUnit("{participant}"),
	)

	return m
}
