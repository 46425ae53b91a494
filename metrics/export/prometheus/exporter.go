package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/metrics/export/internaldefs"
)

// MetricsSource is satisfied by *goShield.Engine.
type MetricsSource interface {
	MetricsSnapshot() goShield.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in the Prometheus text exposition format.
type Exporter struct {
	source MetricsSource
}

// NewExporter reads from source on every scrape.
func NewExporter(source MetricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = p.WriteTo(w)
	})
}

// Render returns the exposition as a string. It is empty when metrics are
// disabled and nothing was dropped.
func (p *Exporter) Render() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes the exposition to w.
func (p *Exporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, def := range internaldefs.CounterDefs {
		writeCounter(cw, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		writeHistogram(cw, def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)))
	}
	writeCounter(cw, internaldefs.AuditDroppedName, "Audit events dropped under backpressure.", dropped)

	if err := cw.w.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) line(parts ...string) {
	if c.err != nil {
		return
	}
	for _, p := range parts {
		n, err := c.w.WriteString(p)
		c.n += int64(n)
		if err != nil {
			c.err = err
			return
		}
	}
	if err := c.w.WriteByte('\n'); err != nil {
		c.err = err
		return
	}
	c.n++
}

func writeCounter(w *countingWriter, name, help string, value uint64) {
	w.line("# HELP ", name, " ", escapeHelp(help))
	w.line("# TYPE ", name, " counter")
	w.line(name, " ", strconv.FormatUint(value, 10))
}

func writeHistogram(w *countingWriter, name, help string, cumulative [8]uint64) {
	w.line("# HELP ", name, " ", escapeHelp(help))
	w.line("# TYPE ", name, " histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.line(name, `_bucket{le="`, le, `"} `, strconv.FormatUint(cumulative[i], 10))
	}
	w.line(name, "_count ", strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	// Snapshots carry bucket counts only.
	w.line(name, "_sum 0")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
