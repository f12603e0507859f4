package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecorderRecordsHistograms(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	r, err := New(meter, "cpio", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.RecordCompletion(context.Background(), 120.5, 30.0)

	var data metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &data); err != nil {
		t.Fatalf("collect: %v", err)
	}

	names := map[string]bool{}
	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{"cpio.processing_time_ms", "cpio.waiting_time_ms"} {
		if !names[want] {
			t.Fatalf("missing metric %q, got %v", want, names)
		}
	}
	if names["cpio.metric_errors"] {
		t.Fatal("metric_errors should not have recorded a point for non-negative durations")
	}
}

func TestRecorderNegativeDurationIncrementsErrorCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	r, err := New(meter, "cpio", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.RecordCompletion(context.Background(), -1, -1)

	var data metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &data); err != nil {
		t.Fatalf("collect: %v", err)
	}

	var errorSum int64
	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "cpio.metric_errors" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				errorSum += dp.Value
			}
		}
	}
	if errorSum != 2 {
		t.Fatalf("error counter = %d, want 2 (one per negative duration)", errorSum)
	}
}

func TestRecorderDisabledIsNoOp(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	r, err := New(meter, "cpio", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.RecordCompletion(context.Background(), 100, 100) // must not panic on nil instruments

	var data metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &data); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range data.ScopeMetrics {
		if len(sm.Metrics) != 0 {
			t.Fatalf("disabled recorder should create no instruments, got %v", sm.Metrics)
		}
	}
}
