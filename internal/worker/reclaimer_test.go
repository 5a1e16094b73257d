package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talecraft/api/internal/metrics"
	"github.com/talecraft/api/internal/model"
)

func TestReclaimer_FailsJobsPastTimeout(t *testing.T) {
	fx := newFixture(t)
	t0 := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	stuck := fx.seed(t, func(f *model.Fairytale) { f.CreatedAt, f.UpdatedAt = t0, t0 })
	fresh := fx.seed(t, func(f *model.Fairytale) {
		f.CreatedAt = t0.Add(10 * time.Minute)
		f.UpdatedAt = f.CreatedAt
	})
	done := fx.seed(t, func(f *model.Fairytale) {
		f.CreatedAt, f.UpdatedAt = t0, t0
		f.TextContent = storyText
		f.Status = model.StatusCompletedNoAudio
	})

	reg := prometheus.NewRegistry()
	r := NewReclaimer(fx.repo, 30*time.Minute, metrics.New(reg), testLogger()).
		WithClock(func() time.Time { return t0.Add(31 * time.Minute) })

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := fx.get(t, stuck.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "did not finish")

	assert.Equal(t, model.StatusGenerating, fx.get(t, fresh.ID).Status)
	assert.Equal(t, model.StatusCompletedNoAudio, fx.get(t, done.ID).Status)

	expected := `
# HELP fairytale_reclaimed_total Jobs failed by the stuck-job sweep
# TYPE fairytale_reclaimed_total counter
fairytale_reclaimed_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fairytale_reclaimed_total"))
}

func TestReclaimer_NothingToReclaim(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, nil)

	r := NewReclaimer(fx.repo, 30*time.Minute, nil, testLogger())
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReclaimer_SecondSweepIsNoop(t *testing.T) {
	fx := newFixture(t)
	t0 := time.Now().UTC().Add(-2 * time.Hour)
	fx.seed(t, func(f *model.Fairytale) { f.CreatedAt, f.UpdatedAt = t0, t0 })

	r := NewReclaimer(fx.repo, 30*time.Minute, nil, testLogger())

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
