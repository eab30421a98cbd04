package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal        *prometheus.CounterVec
	TriageSeverity      prometheus.Histogram
	ClarificationsTotal *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
	CacheEvictions      prometheus.Counter
	LLMCallsTotal       *prometheus.CounterVec
	LLMTokensIn         prometheus.Counter
	LLMTokensOut        prometheus.Counter
	LLMDuration         *prometheus.HistogramVec
	FallbacksTotal      *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	SubmitsTotal        *prometheus.CounterVec
	CacheEntries        prometheus.GaugeFunc
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseroute_triages_total",
			Help: "Total triages by care route and decision source.",
		}, []string{"route", "source"}),
		TriageSeverity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulseroute_triage_severity",
			Help:    "Distribution of normalized severity scores.",
			Buckets: prometheus.LinearBuckets(1, 1, 5), // 1 .. 5
		}),
		ClarificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseroute_clarifications_total",
			Help: "Total computed clarifications by care route and decision source.",
		}, []string{"route", "source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseroute_clarify_cache_lookups_total",
			Help: "Clarification cache lookups by result.",
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseroute_clarify_cache_evictions_total",
			Help: "Clarification cache entries evicted at capacity.",
		}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseroute_llm_calls_total",
			Help: "Total model gateway calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseroute_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseroute_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulseroute_llm_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 0.1s .. ~12.8s
		}, []string{"kind"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseroute_fallbacks_total",
			Help: "Heuristic fallbacks after a failed model call, by kind and reason.",
		}, []string{"kind", "reason"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseroute_notifications_total",
			Help: "Emergency route staff notifications by result.",
		}, []string{"result"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseroute_submits_total",
			Help: "Total API submissions by endpoint and result.",
		}, []string{"endpoint", "result"}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageSeverity,
		m.ClarificationsTotal,
		m.CacheLookups,
		m.CacheEvictions,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.FallbacksTotal,
		m.NotificationsTotal,
		m.SubmitsTotal,
	)

	return m
}

// ObserveTriage records a completed triage.
func (m *Metrics) ObserveTriage(r *Record) {
	m.TriagesTotal.WithLabelValues(string(r.CareRoute), string(r.Source)).Inc()
	m.TriageSeverity.Observe(float64(r.SeverityScore))
}

// ObserveClarification records a computed (not cached) clarification.
func (m *Metrics) ObserveClarification(r *ClarificationResult) {
	m.ClarificationsTotal.WithLabelValues(string(r.CareRoute), string(r.Source)).Inc()
}

// TrackCacheSize registers a gauge reading the clarification cache's live
// entry count from size on every scrape.
func (m *Metrics) TrackCacheSize(reg prometheus.Registerer, size func() int) {
	m.CacheEntries = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pulseroute_clarify_cache_entries",
		Help: "Clarification results currently cached.",
	}, func() float64 { return float64(size()) })
	reg.MustRegister(m.CacheEntries)
}

// OnEvict is suitable as a cache eviction callback.
func (m *Metrics) OnEvict() {
	m.CacheEvictions.Inc()
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnModelCall: func(kind CallKind, outcome string, duration float64, inputTokens, outputTokens int) {
			m.LLMCallsTotal.WithLabelValues(string(kind), outcome).Inc()
			m.LLMDuration.WithLabelValues(string(kind)).Observe(duration)
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
		},
		OnFallback: func(kind CallKind, reason string) {
			m.FallbacksTotal.WithLabelValues(string(kind), reason).Inc()
		},
	}
}
