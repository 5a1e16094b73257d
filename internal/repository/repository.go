package repository

import (
	"context"
	"errors"
	"time"

	"github.com/talecraft/api/internal/model"
)

// ErrNotFound is returned when no record exists for the given id
var ErrNotFound = errors.New("fairytale not found")

// FairytaleRepository persists generation job records
type FairytaleRepository interface {
	// Create stores a new record. Version starts at 1.
	Create(ctx context.Context, f *model.Fairytale) error
	Get(ctx context.Context, id string) (*model.Fairytale, error)
	// Save overwrites an existing record (last write wins), bumping Version
	// and UpdatedAt. Returns ErrNotFound when the record was deleted.
	Save(ctx context.Context, f *model.Fairytale) error
	// ListByOwner returns the owner's records, newest first
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Fairytale, error)
	// FindStuck returns records in status created strictly before the cutoff
	FindStuck(ctx context.Context, status model.Status, before time.Time) ([]*model.Fairytale, error)
	// CompareAndSetStatus moves a record from one status to another only if it
	// is still in from. It reports whether the change was applied.
	CompareAndSetStatus(ctx context.Context, id string, from, to model.Status, reason string) (bool, error)
	Delete(ctx context.Context, id string) error
}
