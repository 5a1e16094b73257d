package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/metrics"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/repository"
	"github.com/talecraft/api/internal/service"
	"github.com/talecraft/api/internal/storage"
)

const (
	pipelineFull      = "full"
	pipelineAudioOnly = "audio_only"
)

// TextStage produces story text for a brief
type TextStage interface {
	Generate(ctx context.Context, brief model.Brief) (service.TextResult, error)
}

// AudioStage narrates story text into a stored artifact
type AudioStage interface {
	Synthesize(ctx context.Context, text string) (service.AudioResult, error)
}

// Orchestrator drives a job through the text and audio stages and converges
// its record to a terminal status. Provider failures end in a state
// transition, only job-store failures are returned.
type Orchestrator struct {
	repo    repository.FairytaleRepository
	text    TextStage
	audio   AudioStage
	store   storage.ArtifactStore
	metrics *metrics.Pipeline
	log     zerolog.Logger
}

func NewOrchestrator(
	repo repository.FairytaleRepository,
	text TextStage,
	audio AudioStage,
	store storage.ArtifactStore,
	m *metrics.Pipeline,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		text:    text,
		audio:   audio,
		store:   store,
		metrics: m,
		log:     log.With().Str("component", "orchestrator").Logger(),
	}
}

// RunFullPipeline generates text and narration for a job in generating
func (o *Orchestrator) RunFullPipeline(ctx context.Context, id string) error {
	log := o.log.With().Str("job_id", id).Str("pipeline", pipelineFull).Logger()

	f, err := o.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn().Msg("fairytale no longer exists, skipping")
			return nil
		}
		return fmt.Errorf("failed to load fairytale: %w", err)
	}

	if f.Status == model.StatusPending {
		if err := f.Transition(model.StatusGenerating); err != nil {
			return err
		}
		if err := o.repo.Save(ctx, f); err != nil {
			return o.storeError(err, "failed to start generation")
		}
	}
	if f.Status != model.StatusGenerating {
		log.Warn().Str("status", string(f.Status)).Msg("fairytale is not generating, skipping")
		return nil
	}

	log.Info().Msg("text stage started")
	started := time.Now()
	textRes, err := o.text.Generate(ctx, f.Brief)
	o.metrics.ObserveStage("text", started, err)
	if err != nil {
		log.Error().Err(err).Msg("text stage failed")
		return o.fail(ctx, id, err, log)
	}
	o.metrics.TextGenerated(textRes.Attempts, textRes.UsedFallback)

	persistCtx := context.WithoutCancel(ctx)

	f, err = o.repo.Get(persistCtx, id)
	if err != nil {
		return o.vanished(err, "", log)
	}
	f.TextContent = textRes.Text
	f.TextAttempts = textRes.Attempts
	f.UsedFallbackText = textRes.UsedFallback
	if err := o.repo.Save(persistCtx, f); err != nil {
		return o.vanished(err, "", log)
	}
	log.Info().Int("attempts", textRes.Attempts).Bool("fallback", textRes.UsedFallback).Msg("story text stored")

	return o.runAudioStage(ctx, id, f.TextContent, pipelineFull, log)
}

// RunAudioOnlyPipeline replaces the narration of a job that already has text.
// The story text is never modified.
func (o *Orchestrator) RunAudioOnlyPipeline(ctx context.Context, id string) error {
	log := o.log.With().Str("job_id", id).Str("pipeline", pipelineAudioOnly).Logger()

	f, err := o.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn().Msg("fairytale no longer exists, skipping")
			return nil
		}
		return fmt.Errorf("failed to load fairytale: %w", err)
	}
	if !f.HasText() {
		log.Warn().Msg("fairytale has no text, audio regeneration refused")
		return service.ErrNoText
	}

	if f.HasAudio() {
		if err := o.store.Delete(ctx, f.AudioRef); err != nil {
			log.Warn().Err(err).Str("ref", f.AudioRef).Msg("failed to delete previous artifact")
		}
	}

	if f.Status == model.StatusRegeneratingAudio {
		f.AudioRef = ""
	} else if err := f.Transition(model.StatusRegeneratingAudio); err != nil {
		log.Warn().Err(err).Msg("cannot regenerate audio in current status")
		return nil
	}
	if err := o.repo.Save(ctx, f); err != nil {
		return o.storeError(err, "failed to start audio regeneration")
	}

	return o.runAudioStage(ctx, id, f.TextContent, pipelineAudioOnly, log)
}

func (o *Orchestrator) runAudioStage(ctx context.Context, id, text, pipeline string, log zerolog.Logger) error {
	log.Info().Msg("audio stage started")
	started := time.Now()
	audioRes, audioErr := o.audio.Synthesize(ctx, text)
	o.metrics.ObserveStage("audio", started, audioErr)
	if errors.Is(audioErr, service.ErrArtifactIntegrity) {
		o.metrics.ArtifactRejected()
	}

	persistCtx := context.WithoutCancel(ctx)

	f, err := o.repo.Get(persistCtx, id)
	if err != nil {
		return o.vanished(err, audioRes.Ref, log)
	}

	if audioErr == nil {
		f.AudioRef = audioRes.Ref
		f.UsedFallbackVoice = audioRes.UsedFallbackVoice
		err = f.Transition(model.StatusCompleted)
	} else {
		log.Warn().Err(audioErr).Msg("audio stage failed, keeping text only")
		f.Error = audioErr.Error()
		err = f.Transition(model.StatusCompletedNoAudio)
	}
	if err != nil {
		log.Error().Err(err).Str("status", string(f.Status)).Msg("cannot finish run")
		o.discard(audioRes.Ref, log)
		return nil
	}

	if err := o.repo.Save(persistCtx, f); err != nil {
		return o.vanished(err, audioRes.Ref, log)
	}

	if audioRes.UsedFallbackVoice {
		o.metrics.VoiceFallback()
	}
	o.metrics.JobFinished(pipeline, string(f.Status))
	log.Info().Str("status", string(f.Status)).Str("ref", f.AudioRef).Msg("pipeline finished")
	return nil
}

// fail moves the job to failed after a fatal text-stage error
func (o *Orchestrator) fail(ctx context.Context, id string, cause error, log zerolog.Logger) error {
	persistCtx := context.WithoutCancel(ctx)

	f, err := o.repo.Get(persistCtx, id)
	if err != nil {
		return o.vanished(err, "", log)
	}
	if err := f.Transition(model.StatusFailed); err != nil {
		log.Warn().Err(err).Msg("job already left generating")
		return nil
	}
	f.Error = cause.Error()
	if err := o.repo.Save(persistCtx, f); err != nil {
		return o.vanished(err, "", log)
	}
	o.metrics.JobFinished(pipelineFull, string(model.StatusFailed))
	return nil
}

// vanished handles a record lookup or write that failed mid-run. A record
// deleted by its owner ends the run and drops the artifact written for it.
func (o *Orchestrator) vanished(err error, artifactRef string, log zerolog.Logger) error {
	if errors.Is(err, repository.ErrNotFound) {
		log.Info().Msg("fairytale deleted during run")
		o.discard(artifactRef, log)
		return nil
	}
	o.discard(artifactRef, log)
	return fmt.Errorf("failed to persist fairytale: %w", err)
}

func (o *Orchestrator) discard(ref string, log zerolog.Logger) {
	if ref == "" {
		return
	}
	if err := o.store.Delete(context.Background(), ref); err != nil {
		log.Error().Err(err).Str("ref", ref).Msg("failed to delete orphaned artifact")
	}
}

func (o *Orchestrator) storeError(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
