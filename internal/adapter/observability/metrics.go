package observability

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// appEnv mirrors APP_ENV for metric helpers that log extra detail in dev.
var appEnv string

// SetAppEnv records the runtime environment for metrics helpers.
func SetAppEnv(env string) { appEnv = strings.ToLower(env) }

func isDevEnv() bool { return appEnv == "dev" }

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Total number of tokens exchanged with AI providers",
		},
		[]string{"provider", "kind"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"type"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"type"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"type"},
	)
	JobsFailedByCodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_by_code_total",
			Help: "Total number of failed jobs by stable failure code",
		},
		[]string{"type", "code"},
	)

	// Grading outcome distributions
	GradingScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_score_percent",
			Help:    "Distribution of per-entry grading scores ([0,100])",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	GradingEntriesHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_entries_per_job",
			Help:    "Distribution of graded entries per job",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)
	ScoreDriftGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grading_score_drift",
			Help: "Absolute drift of recent average scores from baseline",
		},
		[]string{"metric", "model_version", "rubric_version"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AITokensTotal)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobsFailedByCodeTotal)
	prometheus.MustRegister(GradingScoreHistogram)
	prometheus.MustRegister(GradingEntriesHistogram)
	prometheus.MustRegister(ScoreDriftGauge)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func EnqueueJob(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func StartProcessingJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Inc()
}

func CompleteJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsCompletedTotal.WithLabelValues(jobType).Inc()
}

func FailJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsFailedTotal.WithLabelValues(jobType).Inc()
}

// ObserveGradingOutcome records the score distribution from a completed job.
// Entries without a numeric score (unprocessable files) are skipped.
func ObserveGradingOutcome(scores []*float64) {
	for _, s := range scores {
		if s == nil {
			continue
		}
		if *s >= 0 && *s <= 100 {
			GradingScoreHistogram.Observe(*s)
		}
	}
	if len(scores) > 0 {
		GradingEntriesHistogram.Observe(float64(len(scores)))
	}
}

// ObserveTokenUsage records prompt/completion token counts for a provider call.
func ObserveTokenUsage(provider string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		AITokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		AITokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordJobFailureByCode counts a job failure under its stable failure code.
// Empty codes fall back to UNKNOWN so the label set stays bounded.
func RecordJobFailureByCode(jobType, code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	JobsFailedByCodeTotal.WithLabelValues(jobType, code).Inc()
}

// RecordScoreDrift publishes the drift of recent average scores from baseline.
func RecordScoreDrift(metricType, modelVersion, rubricVersion string, drift float64) {
	ScoreDriftGauge.WithLabelValues(metricType, modelVersion, rubricVersion).Set(drift)
	if isDevEnv() {
		slog.Debug("score drift recorded",
			slog.String("metric_type", metricType),
			slog.String("model_version", modelVersion),
			slog.String("rubric_version", rubricVersion),
			slog.Float64("drift", drift))
	}
}
