package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/service"
)

func TestPoolDispatcher_RunsBothPipelines(t *testing.T) {
	runner := &recordingRunner{}
	d, err := NewPoolDispatcher(context.Background(), 4, runner, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Release(time.Second) })

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.DispatchGeneration(context.Background(), id))
	}
	require.NoError(t, d.DispatchAudioRegeneration(context.Background(), "d"))
	d.Wait()

	full, audio := runner.counts()
	assert.Equal(t, 3, full)
	assert.Equal(t, 1, audio)
}

func TestPoolDispatcher_DetachedFromRequestContext(t *testing.T) {
	runner := &recordingRunner{started: make(chan struct{}, 1), block: make(chan struct{})}
	d, err := NewPoolDispatcher(context.Background(), 1, runner, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Release(time.Second) })

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.DispatchGeneration(reqCtx, "a"))
	<-runner.started
	cancel()
	close(runner.block)
	d.Wait()

	full, _ := runner.counts()
	assert.Equal(t, 1, full)
}

func TestPoolDispatcher_SaturatedPoolRejectsWithoutBlocking(t *testing.T) {
	runner := &recordingRunner{started: make(chan struct{}, 1), block: make(chan struct{})}
	d, err := NewPoolDispatcher(context.Background(), 1, runner, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Release(time.Second) })

	require.NoError(t, d.DispatchGeneration(context.Background(), "a"))
	<-runner.started

	done := make(chan error, 1)
	go func() { done <- d.DispatchGeneration(context.Background(), "b") }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, service.ErrOverloaded)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked while the pool was busy")
	}

	close(runner.block)
	d.Wait()

	full, _ := runner.counts()
	assert.Equal(t, 1, full)
}

func TestPoolDispatcher_SurvivesPanickingRun(t *testing.T) {
	runner := &recordingRunner{panics: true}
	d, err := NewPoolDispatcher(context.Background(), 2, runner, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Release(time.Second) })

	require.NoError(t, d.DispatchGeneration(context.Background(), "a"))
	d.Wait()

	require.NoError(t, d.DispatchAudioRegeneration(context.Background(), "b"))
	d.Wait()

	_, audio := runner.counts()
	assert.Equal(t, 1, audio)
}

func TestAsynqDispatcher_EnqueuesOnFairytaleQueue(t *testing.T) {
	fx := newFixture(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: fx.mr.Addr()})
	t.Cleanup(func() { client.Close() })

	d := NewAsynqDispatcher(client)
	require.NoError(t, d.DispatchGeneration(context.Background(), "job-1"))
	require.NoError(t, d.DispatchAudioRegeneration(context.Background(), "job-2"))

	pending, err := fx.mr.List("asynq:{" + model.TaskQueueFairytales + "}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestTaskHandler_RoutesTasks(t *testing.T) {
	runner := &recordingRunner{}
	h := NewTaskHandler(runner, testLogger())

	task, err := NewPipelineTask(model.TaskTypeGenerate, "job-1")
	require.NoError(t, err)
	require.NoError(t, h.ProcessGenerate(context.Background(), task))

	task, err = NewPipelineTask(model.TaskTypeRegenerateAudio, "job-1")
	require.NoError(t, err)
	require.NoError(t, h.ProcessRegenerateAudio(context.Background(), task))

	full, audio := runner.counts()
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, audio)

	var payload model.PipelineTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "job-1", payload.FairytaleID)
}

func TestTaskHandler_InvalidPayloadSkipsRetry(t *testing.T) {
	h := NewTaskHandler(&recordingRunner{}, testLogger())

	err := h.ProcessGenerate(context.Background(), asynq.NewTask(model.TaskTypeGenerate, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessRegenerateAudio(context.Background(), asynq.NewTask(model.TaskTypeRegenerateAudio, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestScheduler_RejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(testLogger())
	err := s.ScheduleSweep("not a schedule", NewReclaimer(nil, time.Minute, nil, testLogger()), time.Minute)
	assert.Error(t, err)
}

type countingSweeper struct {
	calls chan struct{}
}

func (s countingSweeper) Sweep(context.Context) (int, error) {
	s.calls <- struct{}{}
	return 0, nil
}

func TestScheduler_RunsSweep(t *testing.T) {
	s := NewScheduler(testLogger())
	sweeper := countingSweeper{calls: make(chan struct{}, 4)}
	require.NoError(t, s.ScheduleSweep("@every 1s", sweeper, time.Second))

	s.Start()
	defer s.Stop()

	select {
	case <-sweeper.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep did not run")
	}
}
