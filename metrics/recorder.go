// Package metrics instruments job completion: the processing-time and
// waiting-time histograms and the error counter a negative duration
// falls back to, namespace-prefixed and toggleable.
//
// Recorder only creates and records against go.opentelemetry.io/otel/
// metric instruments; the caller wires the meter to whatever exporter
// it chooses.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Recorder records processing_time_ms, waiting_time_ms, and an error
// counter for negative durations, all namespace-prefixed.
type Recorder struct {
	enabled bool

	processingTime metric.Float64Histogram
	waitingTime    metric.Float64Histogram
	errors         metric.Int64Counter
}

// New builds a Recorder against meter. If enabled is false, every
// RecordCompletion call is a no-op. namespace prefixes every metric name,
// e.g. "<namespace>.processing_time_ms".
func New(meter metric.Meter, namespace string, enabled bool) (*Recorder, error) {
	r := &Recorder{enabled: enabled}
	if !enabled {
		return r, nil
	}
	var err error
	r.processingTime, err = meter.Float64Histogram(
		namespace+".processing_time_ms",
		metric.WithDescription("time from claim to terminal status update, in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	r.waitingTime, err = meter.Float64Histogram(
		namespace+".waiting_time_ms",
		metric.WithDescription("time from job creation to claim, in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	r.errors, err = meter.Int64Counter(
		namespace+".metric_errors",
		metric.WithDescription("count of negative processing/waiting durations suppressed instead of recorded"),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecordCompletion records processingTimeMs and waitingTimeMs. A
// negative value increments the error counter instead of the
// corresponding histogram: clock skew between writers can produce one,
// and a negative sample would corrupt the distribution.
func (r *Recorder) RecordCompletion(ctx context.Context, processingTimeMs, waitingTimeMs float64) {
	if !r.enabled {
		return
	}
	if processingTimeMs < 0 {
		r.errors.Add(ctx, 1)
	} else {
		r.processingTime.Record(ctx, processingTimeMs)
	}
	if waitingTimeMs < 0 {
		r.errors.Add(ctx, 1)
	} else {
		r.waitingTime.Record(ctx, waitingTimeMs)
	}
}
