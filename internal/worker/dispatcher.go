package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/service"
)

const taskRetention = 24 * time.Hour

// PipelineRunner executes pipeline runs
type PipelineRunner interface {
	RunFullPipeline(ctx context.Context, id string) error
	RunAudioOnlyPipeline(ctx context.Context, id string) error
}

// AsynqDispatcher enqueues pipeline runs as asynq tasks. Providers are not
// idempotent, so tasks are never retried; the stuck-job sweep covers lost runs.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) DispatchGeneration(ctx context.Context, id string) error {
	return d.enqueue(ctx, model.TaskTypeGenerate, id)
}

func (d *AsynqDispatcher) DispatchAudioRegeneration(ctx context.Context, id string) error {
	return d.enqueue(ctx, model.TaskTypeRegenerateAudio, id)
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, taskType, id string) error {
	task, err := NewPipelineTask(taskType, id)
	if err != nil {
		return err
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(model.TaskQueueFairytales),
		asynq.MaxRetry(0),
		asynq.Retention(taskRetention),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// NewPipelineTask builds the asynq task for one pipeline run
func NewPipelineTask(taskType, id string) (*asynq.Task, error) {
	data, err := json.Marshal(model.PipelineTaskPayload{FairytaleID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

// PoolDispatcher runs pipelines in-process on a bounded goroutine pool
type PoolDispatcher struct {
	pool   *ants.Pool
	runner PipelineRunner
	ctx    context.Context
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewPoolDispatcher creates a pool of size workers. Runs use ctx, not the
// context of the submitting request. Submitting to a saturated pool fails
// with service.ErrOverloaded instead of blocking the caller.
func NewPoolDispatcher(ctx context.Context, size int, runner PipelineRunner, log zerolog.Logger) (*PoolDispatcher, error) {
	log = log.With().Str("component", "pool_dispatcher").Logger()

	panicHandler := func(p interface{}) {
		log.Error().Err(fmt.Errorf("%v", p)).Msg("panic in pipeline worker")
	}

	pool, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &PoolDispatcher{pool: pool, runner: runner, ctx: ctx, log: log}, nil
}

func (d *PoolDispatcher) DispatchGeneration(_ context.Context, id string) error {
	return d.submit(id, pipelineFull, d.runner.RunFullPipeline)
}

func (d *PoolDispatcher) DispatchAudioRegeneration(_ context.Context, id string) error {
	return d.submit(id, pipelineAudioOnly, d.runner.RunAudioOnlyPipeline)
}

func (d *PoolDispatcher) submit(id, pipeline string, run func(context.Context, string) error) error {
	d.wg.Add(1)
	err := d.pool.Submit(func() {
		defer d.wg.Done()
		if err := run(d.ctx, id); err != nil {
			d.log.Error().Err(err).Str("job_id", id).Str("pipeline", pipeline).Msg("pipeline run failed")
		}
	})
	if err != nil {
		d.wg.Done()
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("%w: %w", service.ErrOverloaded, err)
		}
		return fmt.Errorf("failed to submit pipeline run: %w", err)
	}
	return nil
}

// Wait blocks until every submitted run has returned
func (d *PoolDispatcher) Wait() {
	d.wg.Wait()
}

// Release stops the pool, waiting up to timeout for running pipelines
func (d *PoolDispatcher) Release(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}
