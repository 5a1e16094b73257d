package service

import (
	"errors"

	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/repository"
)

var (
	ErrValidation        = errors.New("invalid fairytale brief")
	ErrTextGeneration    = errors.New("text generation failed")
	ErrAudioSynthesis    = errors.New("audio synthesis failed")
	ErrArtifactIntegrity = errors.New("audio artifact failed validation")
	ErrForbidden         = errors.New("fairytale belongs to another user")
	ErrNoText            = errors.New("fairytale has no story text")
	ErrJobBusy           = errors.New("fairytale is still being generated")
	ErrOverloaded        = errors.New("pipeline workers are saturated")

	ErrNotFound          = repository.ErrNotFound
	ErrInvalidTransition = model.ErrInvalidTransition
)
