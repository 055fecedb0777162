package audit

import (
	"context"
	"strings"
	"sync"

	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// MemoryRepository is an in-memory audit log for tests and deployments
// without a database. The chain semantics match the Postgres repository.
type MemoryRepository struct {
	mu       sync.Mutex
	entries  []Entry
	lastHash string
	sequence int64
}

// NewMemoryRepository creates an in-memory audit repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Initialize(ctx context.Context) error { return nil }

func (r *MemoryRepository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PrevHash = r.lastHash
	entry.Hash = entry.calculateHash()
	r.sequence++
	entry.Sequence = r.sequence

	r.entries = append(r.entries, *entry)
	r.lastHash = entry.Hash
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id types.ID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].ID == id {
			e := r.entries[i]
			return &e, nil
		}
	}
	return nil, errors.NotFound("audit entry", id.String())
}

func (r *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !matchesFilter(e, filter) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, total, nil
}

func matchesFilter(e Entry, filter ListFilter) bool {
	if filter.ActorType != nil && e.ActorType != *filter.ActorType {
		return false
	}
	if filter.PatientHash != "" && e.PatientHash != filter.PatientHash {
		return false
	}
	if filter.FacilityID != "" && e.FacilityID != filter.FacilityID {
		return false
	}
	if filter.Action != "" && !strings.HasPrefix(e.Action, filter.Action) {
		return false
	}
	if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != nil && (e.ResourceID == nil || *e.ResourceID != *filter.ResourceID) {
		return false
	}
	if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && e.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

func (r *MemoryRepository) GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	entries, _, err := r.List(ctx, ListFilter{
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Limit:        limit,
	})
	return entries, err
}

func (r *MemoryRepository) VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	// Newest first, matching the Postgres query order
	var entries []Entry
	for i := len(r.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, r.entries[i])
	}

	return verifyEntries(entries, includeDetails), nil
}

func (r *MemoryRepository) GetLastHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHash
}

func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), nil
}

// tamper overwrites a stored entry in place. Test helper for chain
// verification, unreachable through the Repository interface.
func (r *MemoryRepository) tamper(index int, mutate func(*Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(&r.entries[index])
}
