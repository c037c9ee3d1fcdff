package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	PID      process.Process
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})
	DetectTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detect_requests_total",
		Help: "Total number of hand/wrist detection requests processed",
	})
	ClassifyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "classify_requests_total",
		Help: "Total number of classification requests processed",
	})
	verdictTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classification_verdicts_total",
		Help: "Classification verdicts by category and method",
	}, []string{"category", "method"})
)

var srv *http.Server

// Stats are the process-wide aggregate counters. Increments are atomic, one
// per completed request, so concurrent requests never lose updates. The
// snapshot backs /api/stats; the prometheus counters mirror it for scraping.
type Stats struct {
	total         atomic.Int64
	recyclable    atomic.Int64
	nonRecyclable atomic.Int64
	model         atomic.Int64
	llm           atomic.Int64
	fallback      atomic.Int64
}

// StatsSnapshot is one consistent-enough read of the counters.
type StatsSnapshot struct {
	Total         int64 `json:"total_classifications"`
	Recyclable    int64 `json:"recyclable"`
	NonRecyclable int64 `json:"non_recyclable"`
	Model         int64 `json:"model_classifications"`
	LLM           int64 `json:"llm_classifications"`
	Fallback      int64 `json:"fallback_classifications"`
}

// RecordVerdict bumps the counters for one completed classification.
func (s *Stats) RecordVerdict(category, method string) {
	s.total.Add(1)
	switch category {
	case "Recyclable":
		s.recyclable.Add(1)
	default:
		s.nonRecyclable.Add(1)
	}
	switch method {
	case "yolo_model":
		s.model.Add(1)
	case "llm":
		s.llm.Add(1)
	default:
		s.fallback.Add(1)
	}
	ClassifyTotal.Inc()
	verdictTotal.WithLabelValues(category, method).Inc()
}

// Snapshot reads the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Total:         s.total.Load(),
		Recyclable:    s.recyclable.Load(),
		NonRecyclable: s.nonRecyclable.Load(),
		Model:         s.model.Load(),
		LLM:           s.llm.Load(),
		Fallback:      s.fallback.Load(),
	}
}

func prom(port int) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, DetectTotal, ClassifyTotal, verdictTotal)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}

func CheckProcessInfo() {
	MemInfo, _ := PID.MemoryInfo()
	var MemMB = MemInfo.RSS / 1024 / 1024
	CPUPercent, _ := PID.CPUPercent()
	CPUPercentFloat := math.Round(CPUPercent*100) / 100
	memUsage.Set(float64(MemMB))
	cpuUsage.Set(CPUPercentFloat)
}

func GotPID() {
	PID = process.Process{Pid: int32(os.Getpid())}
}

// StartMon serves /metrics and samples process usage until ctx is cancelled.
func StartMon(port int, ctx context.Context) {
	GotPID()
	// srv must exist before the serve goroutine and before any early cancel.
	srv = prom(port)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Prometheus server ListenAndServe error: %v\n", err)
		}
	}()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			CheckProcessInfo()
		}
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		fmt.Printf("Prometheus server Shutdown error: %v\n", err)
	}
}
