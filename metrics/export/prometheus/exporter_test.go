package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goShield "github.com/MrEthical07/goShield"
)

type fakeSource struct {
	snapshot goShield.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goShield.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters:   map[goShield.MetricID]uint64{},
			Histograms: map[goShield.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters: map[goShield.MetricID]uint64{
				goShield.MetricLoginSuccess:  7,
				goShield.MetricRememberReuse: 1,
			},
			Histograms: map[goShield.MetricID][]uint64{
				goShield.MetricAttemptLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"goshield_login_success_total 7",
		"goshield_remember_reuse_total 1",
		"goshield_token_failure_total 0",
		`goshield_attempt_latency_seconds_bucket{le="0.025"} 1`,
		`goshield_attempt_latency_seconds_bucket{le="2.5"} 28`,
		`goshield_attempt_latency_seconds_bucket{le="+Inf"} 36`,
		"goshield_attempt_latency_seconds_count 36",
		"goshield_audit_dropped_total 2",
		"# TYPE goshield_attempt_latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderOmitsDisabledHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters:   map[goShield.MetricID]uint64{goShield.MetricLogout: 1},
			Histograms: map[goShield.MetricID][]uint64{},
		},
	})
	if out := exp.Render(); strings.Contains(out, "latency") {
		t.Fatalf("expected no histogram, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters:   map[goShield.MetricID]uint64{goShield.MetricLoginSuccess: 1},
			Histograms: map[goShield.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "goshield_login_success_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestWriteToReportsWriterErrors(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters:   map[goShield.MetricID]uint64{goShield.MetricLoginSuccess: 1},
			Histograms: map[goShield.MetricID][]uint64{},
		},
	})
	if _, err := exp.WriteTo(failingWriter{}); err == nil {
		t.Fatal("expected writer error")
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporter(fakeSource{
		snapshot: goShield.MetricsSnapshot{
			Counters: map[goShield.MetricID]uint64{
				goShield.MetricLoginSuccess:     1000,
				goShield.MetricLoginFailure:     40,
				goShield.MetricTokenSuccess:     800,
				goShield.MetricSessionCreated:   800,
				goShield.MetricSessionDestroyed: 20,
			},
			Histograms: map[goShield.MetricID][]uint64{
				goShield.MetricAttemptLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
