package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/model"
)

// TaskHandler processes pipeline tasks delivered by the asynq server
type TaskHandler struct {
	runner PipelineRunner
	log    zerolog.Logger
}

func NewTaskHandler(runner PipelineRunner, log zerolog.Logger) *TaskHandler {
	return &TaskHandler{runner: runner, log: log.With().Str("component", "task_handler").Logger()}
}

// Register binds the pipeline task types on mux
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(model.TaskTypeGenerate, h.ProcessGenerate)
	mux.HandleFunc(model.TaskTypeRegenerateAudio, h.ProcessRegenerateAudio)
}

// ProcessGenerate handles fairytale:generate tasks
func (h *TaskHandler) ProcessGenerate(ctx context.Context, t *asynq.Task) error {
	id, err := h.fairytaleID(t)
	if err != nil {
		return err
	}
	return h.runner.RunFullPipeline(ctx, id)
}

// ProcessRegenerateAudio handles fairytale:regenerate_audio tasks
func (h *TaskHandler) ProcessRegenerateAudio(ctx context.Context, t *asynq.Task) error {
	id, err := h.fairytaleID(t)
	if err != nil {
		return err
	}
	return h.runner.RunAudioOnlyPipeline(ctx, id)
}

func (h *TaskHandler) fairytaleID(t *asynq.Task) (string, error) {
	var payload model.PipelineTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.Error().Err(err).Str("type", t.Type()).Msg("invalid task payload")
		return "", fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.FairytaleID == "" {
		return "", fmt.Errorf("task payload without fairytale id: %w", asynq.SkipRetry)
	}
	return payload.FairytaleID, nil
}
