package directive

import (
	"context"
	"sort"
	"sync"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// MemoryRepository is an in-memory registry used when the platform runs
// without a database, and by tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	directives map[types.ID]*Directive
}

// NewMemoryRepository creates an empty in-memory registry
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{directives: make(map[types.ID]*Directive)}
}

// Create stores a directive, superseding any active directive of the
// same type for the patient
func (r *MemoryRepository) Create(ctx context.Context, directive *Directive) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.directives {
		if existing.PatientHash == directive.PatientHash &&
			existing.Type == directive.Type &&
			existing.Status == StatusActive {
			existing.Status = StatusSuperseded
		}
	}

	stored := *directive
	r.directives[directive.ID] = &stored
	return nil
}

// GetByID retrieves a directive by ID
func (r *MemoryRepository) GetByID(ctx context.Context, id types.ID) (*Directive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	directive, ok := r.directives[id]
	if !ok {
		return nil, errors.NotFound("directive", id.String())
	}
	copied := *directive
	return &copied, nil
}

// ListByPatient returns all directives for a patient, newest first
func (r *MemoryRepository) ListByPatient(ctx context.Context, patientHash string) ([]*Directive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var directives []*Directive
	for _, directive := range r.directives {
		if directive.PatientHash == patientHash {
			copied := *directive
			directives = append(directives, &copied)
		}
	}

	sort.Slice(directives, func(i, j int) bool {
		return directives[i].CreatedAt.After(directives[j].CreatedAt)
	})
	return directives, nil
}

// FindActiveByType returns the active directive of one type for a patient
func (r *MemoryRepository) FindActiveByType(ctx context.Context, patientHash string, directiveType classification.DirectiveType) (*Directive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *Directive
	for _, directive := range r.directives {
		if directive.PatientHash != patientHash || directive.Type != directiveType {
			continue
		}
		if !directive.Active() {
			continue
		}
		if latest == nil || directive.CreatedAt.After(latest.CreatedAt) {
			latest = directive
		}
	}
	if latest == nil {
		return nil, errors.NotFound("directive", string(directiveType))
	}
	copied := *latest
	return &copied, nil
}

// UpdateStatus sets the lifecycle status of a directive
func (r *MemoryRepository) UpdateStatus(ctx context.Context, id types.ID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	directive, ok := r.directives[id]
	if !ok {
		return errors.NotFound("directive", id.String())
	}
	directive.Status = status
	return nil
}

// ListForReview returns active directives flagged for human review,
// oldest first
func (r *MemoryRepository) ListForReview(ctx context.Context, limit int) ([]*Directive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var directives []*Directive
	for _, directive := range r.directives {
		if directive.RequiresReview && directive.Status == StatusActive {
			copied := *directive
			directives = append(directives, &copied)
		}
	}

	sort.Slice(directives, func(i, j int) bool {
		return directives[i].CreatedAt.Before(directives[j].CreatedAt)
	})
	if limit > 0 && len(directives) > limit {
		directives = directives[:limit]
	}
	return directives, nil
}

var _ Repository = (*MemoryRepository)(nil)
var _ Repository = (*PostgresRepository)(nil)
