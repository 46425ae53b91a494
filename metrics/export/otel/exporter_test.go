package otel

import (
	"context"
	"maps"
	"sync"
	"testing"

	goShield "github.com/MrEthical07/goShield"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goShield.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goShield.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goShield.MetricsSnapshot{
		Counters:   maps.Clone(f.snapshot.Counters),
		Histograms: make(map[goShield.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporterCollectsCounters(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters:   map[goShield.MetricID]uint64{goShield.MetricLoginSuccess: 3},
			Histograms: map[goShield.MetricID][]uint64{},
		},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("goshield-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	sum, ok := got["goshield_login_success_total"].Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected login success data %+v", got["goshield_login_success_total"].Data)
	}
	dropped, ok := got["goshield_audit_dropped_total"].Data.(metricdata.Sum[int64])
	if !ok || dropped.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected audit dropped data %+v", got["goshield_audit_dropped_total"].Data)
	}
	if _, ok := got["goshield_attempt_latency_seconds_bucket"]; ok {
		t.Fatal("histogram must not report when disabled")
	}
}

func TestExporterCollectsHistogramBuckets(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters: map[goShield.MetricID]uint64{},
			Histograms: map[goShield.MetricID][]uint64{
				goShield.MetricAttemptLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
	}

	exp, err := NewExporter(provider.Meter("goshield-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	got := collect(t, reader)
	gauge, ok := got["goshield_attempt_latency_seconds_bucket"].Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 8 {
		t.Fatalf("expected 8 bucket points, got %+v", got["goshield_attempt_latency_seconds_bucket"].Data)
	}
	for _, dp := range gauge.DataPoints {
		le, _ := dp.Attributes.Value(attribute.Key("le"))
		if le.AsString() == "+Inf" && dp.Value != 8 {
			t.Fatalf("expected +Inf bucket 8, got %d", dp.Value)
		}
	}
	count, ok := got["goshield_attempt_latency_seconds_count"].Data.(metricdata.Gauge[int64])
	if !ok || count.DataPoints[0].Value != 8 {
		t.Fatalf("unexpected count %+v", got["goshield_attempt_latency_seconds_count"].Data)
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()
	if _, err := NewExporter(provider.Meter("goshield-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters:   map[goShield.MetricID]uint64{goShield.MetricLoginSuccess: 1},
			Histograms: map[goShield.MetricID][]uint64{goShield.MetricAttemptLatency: {1, 0, 0, 0, 0, 0, 0, 0}},
		},
	}

	exp, err := NewExporter(provider.Meter("goshield-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goShield.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
