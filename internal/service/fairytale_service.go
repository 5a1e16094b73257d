package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/metrics"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/repository"
	"github.com/talecraft/api/internal/storage"
)

// Dispatcher hands pipeline runs to background workers
type Dispatcher interface {
	DispatchGeneration(ctx context.Context, fairytaleID string) error
	DispatchAudioRegeneration(ctx context.Context, fairytaleID string) error
}

// StuckJobSweeper fails jobs that stayed in generating for too long
type StuckJobSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// FairytaleService is the API surface over generation jobs
type FairytaleService struct {
	repo       repository.FairytaleRepository
	store      storage.ArtifactStore
	dispatcher Dispatcher
	sweeper    StuckJobSweeper
	metrics    *metrics.Pipeline
	validate   *validator.Validate
	log        zerolog.Logger
	now        func() time.Time

	staleRunAfter time.Duration
}

func NewFairytaleService(
	repo repository.FairytaleRepository,
	store storage.ArtifactStore,
	dispatcher Dispatcher,
	sweeper StuckJobSweeper,
	m *metrics.Pipeline,
	log zerolog.Logger,
) *FairytaleService {
	return &FairytaleService{
		repo:       repo,
		store:      store,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		metrics:    m,
		validate:   validator.New(),
		log:        log.With().Str("component", "fairytale_service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithStaleRunAfter lets an audio regeneration take over a regenerating_audio
// claim that has not moved for d. Zero keeps such claims busy forever.
func (s *FairytaleService) WithStaleRunAfter(d time.Duration) *FairytaleService {
	s.staleRunAfter = d
	return s
}

// Submit creates a job in generating and queues the full pipeline. It never
// waits for the providers.
func (s *FairytaleService) Submit(ctx context.Context, ownerID string, brief model.Brief) (*model.SubmitResponse, error) {
	brief = brief.Trimmed()
	if err := s.validate.Struct(brief); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	f := model.NewFairytale(uuid.New().String(), ownerID, brief, s.now())
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save fairytale: %w", err)
	}

	if err := s.dispatcher.DispatchGeneration(ctx, f.ID); err != nil {
		if errors.Is(err, ErrOverloaded) {
			s.log.Warn().Err(err).Str("job_id", f.ID).Msg("workers saturated, generation not accepted")
			s.discard(ctx, f.ID)
			return nil, err
		}
		s.log.Error().Err(err).Str("job_id", f.ID).Msg("failed to dispatch generation")
		s.markDispatchFailed(ctx, f, err)
		return nil, fmt.Errorf("failed to dispatch generation: %w", err)
	}

	s.metrics.Submitted("generation")
	s.log.Info().Str("job_id", f.ID).Str("owner_id", ownerID).Int("duration", brief.DurationSeconds).Msg("generation submitted")

	return &model.SubmitResponse{
		JobID:     f.ID,
		Status:    f.Status,
		CreatedAt: f.CreatedAt,
	}, nil
}

// discard removes a record whose run was never accepted
func (s *FairytaleService) discard(ctx context.Context, id string) {
	if err := s.repo.Delete(context.WithoutCancel(ctx), id); err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("failed to discard unaccepted fairytale")
	}
}

func (s *FairytaleService) markDispatchFailed(ctx context.Context, f *model.Fairytale, cause error) {
	if err := f.Transition(model.StatusFailed); err != nil {
		return
	}
	f.Error = fmt.Sprintf("dispatch failed: %v", cause)
	if err := s.repo.Save(context.WithoutCancel(ctx), f); err != nil {
		s.log.Error().Err(err).Str("job_id", f.ID).Msg("failed to mark fairytale failed")
	}
}

// SubmitAudioRegeneration queues an audio-only run for a job that has text
func (s *FairytaleService) SubmitAudioRegeneration(ctx context.Context, ownerID, id string) (*model.RegenerateAudioResponse, error) {
	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !f.HasText() {
		return nil, ErrNoText
	}
	if f.Status.IsRunning() && !s.isStaleClaim(f) {
		return nil, ErrJobBusy
	}

	previous := f.Status
	ok, err := s.repo.CompareAndSetStatus(ctx, id, previous, model.StatusRegeneratingAudio, "")
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim fairytale: %w", err)
	}
	if !ok {
		return nil, ErrJobBusy
	}

	if err := s.dispatcher.DispatchAudioRegeneration(ctx, id); err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("failed to dispatch audio regeneration")
		s.rollbackClaim(ctx, id, previous)
		return nil, fmt.Errorf("failed to dispatch audio regeneration: %w", err)
	}

	s.metrics.Submitted("audio_regeneration")
	s.log.Info().Str("job_id", id).Str("from", string(previous)).Msg("audio regeneration submitted")

	return &model.RegenerateAudioResponse{
		Accepted: true,
		JobID:    id,
		Status:   model.StatusRegeneratingAudio,
	}, nil
}

// isStaleClaim reports whether an audio-only claim outlived its run
func (s *FairytaleService) isStaleClaim(f *model.Fairytale) bool {
	return s.staleRunAfter > 0 &&
		f.Status == model.StatusRegeneratingAudio &&
		s.now().Sub(f.UpdatedAt) > s.staleRunAfter
}

// rollbackClaim restores the status held before a claim whose run never started
func (s *FairytaleService) rollbackClaim(ctx context.Context, id string, previous model.Status) {
	ctx = context.WithoutCancel(ctx)
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return
	}
	if f.Status != model.StatusRegeneratingAudio {
		return
	}
	f.Status = previous
	if err := s.repo.Save(ctx, f); err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("failed to roll back regeneration claim")
	}
}

// List returns the owner's jobs, newest first
func (s *FairytaleService) List(ctx context.Context, ownerID string) (*model.FairytaleListResponse, error) {
	records, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fairytales: %w", err)
	}

	data := make([]model.FairytaleResponse, 0, len(records))
	for _, f := range records {
		data = append(data, s.toResponse(f))
	}
	return &model.FairytaleListResponse{Count: len(data), Data: data}, nil
}

// Get returns one job of the owner
func (s *FairytaleService) Get(ctx context.Context, ownerID, id string) (*model.FairytaleResponse, error) {
	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	resp := s.toResponse(f)
	return &resp, nil
}

// Delete releases the job's artifact and then removes the record. A missing
// artifact does not block deletion.
func (s *FairytaleService) Delete(ctx context.Context, ownerID, id string) error {
	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if f.HasAudio() {
		if err := s.store.Delete(ctx, f.AudioRef); err != nil {
			return fmt.Errorf("failed to delete audio artifact: %w", err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete fairytale: %w", err)
	}

	s.log.Info().Str("job_id", id).Str("status", string(f.Status)).Msg("fairytale deleted")
	return nil
}

// ReclaimStuckJobs runs one stuck-job sweep on demand
func (s *FairytaleService) ReclaimStuckJobs(ctx context.Context) (int, error) {
	if s.sweeper == nil {
		return 0, nil
	}
	return s.sweeper.Sweep(ctx)
}

func (s *FairytaleService) owned(ctx context.Context, ownerID, id string) (*model.Fairytale, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fairytale: %w", err)
	}
	if f.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return f, nil
}

func (s *FairytaleService) toResponse(f *model.Fairytale) model.FairytaleResponse {
	resp := model.FairytaleResponse{
		ID:              f.ID,
		Theme:           f.Brief.Theme,
		Characters:      f.Brief.Characters,
		DurationSeconds: f.Brief.DurationSeconds,
		Status:          f.Status,
		TextContent:     f.TextContent,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
	if f.HasAudio() && f.Status != model.StatusRegeneratingAudio {
		resp.AudioURL = s.store.URL(f.AudioRef)
	}
	return resp
}
