package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquapanel_jobs_total",
			Help: "Total number of capture jobs by final status",
		},
		[]string{"status"}, // status: completed, failed, retried
	)

	// Extraction metrics
	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aquapanel_extraction_duration_seconds",
			Help:    "Full panel extraction duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	NoReadingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquapanel_no_reading_total",
			Help: "Parameters that resolved to the no-reading sentinel",
		},
		[]string{"parameter"},
	)

	OCRConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aquapanel_ocr_confidence",
			Help:    "Confidence of selected readings on the 0-100 engine scale",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

// Pinger reports backing-store health for the /healthz endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewMux builds the HTTP mux with /metrics and /healthz endpoints.
func NewMux(store Pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		if store != nil {
			if err := store.Ping(ctx); err != nil {
				status = "storage unavailable: " + err.Error()
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	return mux
}

// Serve runs the metrics/health endpoint until the listener fails.
func Serve(addr string, store Pinger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewMux(store),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
