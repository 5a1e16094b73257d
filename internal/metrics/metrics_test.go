package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPipeline_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobFinished("full", "completed")
	m.JobFinished("full", "completed")
	m.JobFinished("audio", "completed_no_audio")
	m.Submitted("generation")
	m.TextGenerated(3, true)
	m.TextGenerated(1, false)
	m.VoiceFallback()
	m.Reclaimed(2)
	m.ArtifactRejected()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("full", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("audio", "completed_no_audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("generation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.textFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.voiceFallbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reclaimedJobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactRejects))
}

func TestPipeline_ObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStage("text", time.Now(), nil)
	m.ObserveStage("audio", time.Now(), errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestPipeline_NilIsNoop(t *testing.T) {
	var m *Pipeline
	assert.NotPanics(t, func() {
		m.ObserveStage("text", time.Now(), nil)
		m.JobFinished("full", "failed")
		m.Submitted("generation")
		m.TextGenerated(1, false)
		m.VoiceFallback()
		m.Reclaimed(1)
		m.ArtifactRejected()
	})
}
