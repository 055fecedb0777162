package audit

import (
	"context"

	"github.com/echoledger/platform/internal/shared/types"
)

// Repository defines the interface for audit storage operations.
// This allows swapping between PostgreSQL and in-memory implementations.
type Repository interface {
	// Initialize loads initial state (last hash, sequence)
	Initialize(ctx context.Context) error

	// Append appends a new audit entry
	Append(ctx context.Context, entry *Entry) error

	// FindByID finds an audit entry by ID
	FindByID(ctx context.Context, id types.ID) (*Entry, error)

	// List lists audit entries with filters
	List(ctx context.Context, filter ListFilter) ([]Entry, int, error)

	// GetByResource gets audit entries for a specific resource
	GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]Entry, error)

	// VerifyChain verifies the integrity of the audit chain
	VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error)

	// GetLastHash returns the last hash in the chain
	GetLastHash() string

	// Count returns the total number of audit entries
	Count(ctx context.Context) (int, error)
}

// Ensure implementations satisfy the interface
var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
