package common

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts validation work. Counters are exported through Prometheus;
// Snapshot gives a cheap local view for progress output.
type Metrics struct {
	mu            sync.Mutex
	start         time.Time
	end           time.Time
	messages      int64
	totalMessages int64
	bytes         int64
	invalid       int64
	fixes         int64

	validations *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	applied     *prometheus.CounterVec
	duration    prometheus.Histogram
	sizes       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siwegate",
			Name:      "validations_total",
			Help:      "Messages validated, by profile and outcome.",
		}, []string{"profile", "result"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siwegate",
			Name:      "diagnostics_total",
			Help:      "Diagnostics reported after profile filtering.",
		}, []string{"code", "severity"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siwegate",
			Name:      "fixes_applied_total",
			Help:      "Automatic fixes applied, by diagnostic code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "siwegate",
			Name:      "validation_duration_seconds",
			Help:      "Time spent in a single validation.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025},
		}),
		sizes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "siwegate",
			Name:      "message_size_bytes",
			Help:      "Size of validated messages.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 9),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.validations, m.diagnostics, m.applied, m.duration, m.sizes)
	}
	return m
}

// ObserveValidation records one finished validation.
func (m *Metrics) ObserveValidation(profile string, valid bool, size int, d time.Duration) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.validations.WithLabelValues(profile, result).Inc()
	m.duration.Observe(d.Seconds())
	m.sizes.Observe(float64(size))
	m.mu.Lock()
	m.messages++
	m.bytes += int64(size)
	if !valid {
		m.invalid++
	}
	m.mu.Unlock()
}

func (m *Metrics) ObserveDiagnostic(code, severity string) {
	if m == nil {
		return
	}
	m.diagnostics.WithLabelValues(code, severity).Inc()
}

func (m *Metrics) ObserveFix(code string) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(code).Inc()
	m.mu.Lock()
	m.fixes++
	m.mu.Unlock()
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

func (m *Metrics) SetTotalMessages(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalMessages = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:      m.elapsedLocked(),
		Messages:      m.messages,
		TotalMessages: m.totalMessages,
		Bytes:         m.bytes,
		Invalid:       m.invalid,
		Fixes:         m.fixes,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration      time.Duration
	Messages      int64
	TotalMessages int64
	Bytes         int64
	Invalid       int64
	Fixes         int64
}

func (s MetricsSnapshot) MessagesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Messages) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalMessages <= 0 {
		return 0
	}
	ratio := float64(s.Messages) / float64(s.TotalMessages)
	if ratio > 1 {
		return 1
	}
	return ratio
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	if s.TotalMessages > 0 {
		return fmt.Sprintf("Progress: %6.2f%% (%d / %d messages, %d invalid) %.0f msg/s",
			s.Completion()*100, s.Messages, s.TotalMessages, s.Invalid, s.MessagesPerSecond())
	}
	return fmt.Sprintf("Processed: %d messages (%s) %.0f msg/s", s.Messages, FormatBytes(s.Bytes), s.MessagesPerSecond())
}

// StartProgressPrinter redraws a progress line on w every interval until the
// returned stop function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
