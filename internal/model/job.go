package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransition is returned when the state machine rejects a status change
var ErrInvalidTransition = errors.New("invalid status transition")

// Brief is the immutable user input of a generation job
type Brief struct {
	Theme           string `json:"theme" validate:"required,min=1,max=500"`
	Characters      string `json:"characters" validate:"required,min=1,max=500"`
	DurationSeconds int    `json:"durationSeconds" validate:"required,min=10,max=180"`
}

// Trimmed returns the brief without surrounding whitespace
func (b Brief) Trimmed() Brief {
	b.Theme = strings.TrimSpace(b.Theme)
	b.Characters = strings.TrimSpace(b.Characters)
	return b
}

// Fairytale is one generation job: the brief, the produced story and its narration
type Fairytale struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Brief       Brief     `json:"brief"`
	TextContent string    `json:"textContent,omitempty"`
	AudioRef    string    `json:"audioRef,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Version     int64     `json:"version"`

	// Diagnostics of the most recent run
	TextAttempts      int  `json:"textAttempts,omitempty"`
	UsedFallbackText  bool `json:"usedFallbackText,omitempty"`
	UsedFallbackVoice bool `json:"usedFallbackVoice,omitempty"`
}

// NewFairytale builds a fresh job record in the generating state
func NewFairytale(id, ownerID string, brief Brief, now time.Time) *Fairytale {
	return &Fairytale{
		ID:        id,
		OwnerID:   ownerID,
		Brief:     brief,
		Status:    StatusGenerating,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasText reports whether the story text stage produced output
func (f *Fairytale) HasText() bool {
	return f.TextContent != ""
}

// HasAudio reports whether an artifact is attached
func (f *Fairytale) HasAudio() bool {
	return f.AudioRef != ""
}

// Transition applies a status change and enforces the record invariants
func (f *Fairytale) Transition(next Status) error {
	if !f.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, next)
	}
	if next.RequiresText() && !f.HasText() {
		return fmt.Errorf("%w: %s requires story text", ErrInvalidTransition, next)
	}
	if next == StatusCompleted && !f.HasAudio() {
		return fmt.Errorf("%w: completed requires an audio artifact", ErrInvalidTransition)
	}

	switch next {
	case StatusCompletedNoAudio, StatusRegeneratingAudio:
		f.AudioRef = ""
	case StatusCompleted:
		f.Error = ""
	}

	f.Status = next
	return nil
}

// Task types handled by the pipeline workers
const (
	TaskTypeGenerate        = "fairytale:generate"
	TaskTypeRegenerateAudio = "fairytale:regenerate_audio"
	TaskQueueFairytales     = "fairytales"
)

// PipelineTaskPayload is the payload of both pipeline task types
type PipelineTaskPayload struct {
	FairytaleID string `json:"fairytaleId"`
}
