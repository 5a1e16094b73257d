package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the collectors of the generation pipeline. A nil *Pipeline
// is valid and records nothing.
type Pipeline struct {
	stageDuration   *prometheus.HistogramVec
	jobsFinished    *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	textFallbacks   prometheus.Counter
	voiceFallbacks  prometheus.Counter
	textAttempts    prometheus.Histogram
	reclaimedJobs   prometheus.Counter
	artifactRejects prometheus.Counter
}

// New registers the pipeline collectors on reg
func New(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fairytale_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"stage", "outcome"},
		),
		jobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fairytale_jobs_finished_total",
				Help: "Pipeline runs by final status",
			},
			[]string{"pipeline", "status"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fairytale_submissions_total",
				Help: "Accepted submissions by kind",
			},
			[]string{"kind"},
		),
		textFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairytale_text_fallback_total",
			Help: "Stories served from the local fallback template",
		}),
		voiceFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairytale_voice_fallback_total",
			Help: "Narrations rendered with the fallback voice",
		}),
		textAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fairytale_text_attempts",
			Help:    "Provider attempts per text stage",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
		reclaimedJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairytale_reclaimed_total",
			Help: "Jobs failed by the stuck-job sweep",
		}),
		artifactRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairytale_artifact_rejected_total",
			Help: "Audio artifacts discarded by post-write validation",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStage records how long a stage took
func (m *Pipeline) ObserveStage(stage string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(err)).Observe(time.Since(started).Seconds())
}

// JobFinished counts a run that reached status
func (m *Pipeline) JobFinished(pipeline, status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(pipeline, status).Inc()
}

// Submitted counts an accepted submission
func (m *Pipeline) Submitted(kind string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind).Inc()
}

// TextGenerated records attempts spent and whether the fallback story was used
func (m *Pipeline) TextGenerated(attempts int, usedFallback bool) {
	if m == nil {
		return
	}
	m.textAttempts.Observe(float64(attempts))
	if usedFallback {
		m.textFallbacks.Inc()
	}
}

func (m *Pipeline) VoiceFallback() {
	if m == nil {
		return
	}
	m.voiceFallbacks.Inc()
}

func (m *Pipeline) Reclaimed(n int) {
	if m == nil {
		return
	}
	m.reclaimedJobs.Add(float64(n))
}

func (m *Pipeline) ArtifactRejected() {
	if m == nil {
		return
	}
	m.artifactRejects.Inc()
}
