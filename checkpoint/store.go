package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/groupkit-ai/groupkit/orchestration"
)

// Common errors
var (
	ErrNotFound     = errors.New("checkpoint not found")
	ErrStoreClosed  = errors.New("checkpoint store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Checkpoint is a persisted orchestration snapshot tagged with the run it
// belongs to.
type Checkpoint struct {
	ID        string                 `json:"id"`
	RunID     string                 `json:"run_id"`
	Snapshot  orchestration.Snapshot `json:"snapshot"`
	CreatedAt time.Time              `json:"created_at"`
}

// New wraps a snapshot into a checkpoint with a fresh ID for the given run.
func New(runID string, snap orchestration.Snapshot) *Checkpoint {
	return &Checkpoint{
		ID:        uuid.New().String(),
		RunID:     runID,
		Snapshot:  snap,
		CreatedAt: time.Now(),
	}
}

// Store persists checkpoints. Implementations must be safe for concurrent
// use.
type Store interface {
	// Save persists a checkpoint. A missing ID is generated.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by its ID.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// LoadLatest retrieves the most recent checkpoint of a run.
	LoadLatest(ctx context.Context, runID string) (*Checkpoint, error)

	// List returns all checkpoints of a run, oldest first.
	List(ctx context.Context, runID string) ([]*Checkpoint, error)

	// Delete removes a checkpoint by its ID.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// prepare validates a checkpoint and fills defaulted fields before saving.
func prepare(cp *Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return ErrInvalidInput
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	return nil
}
