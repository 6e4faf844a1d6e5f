// Package storage defines the issue record store interface.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/triagekit/triagekit/internal/types"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("storage: record not found")

// ListFilter narrows ListByRepo queries.
type ListFilter struct {
	// Status restricts results to one processing status when non-nil.
	Status *types.ProcessingStatus
	Limit  int
	Offset int
}

// Storage is the persistence boundary for issue records and the audit log.
//
// Record writes are last-write-wins upserts keyed on the issue identity;
// the action log is append-only and never mutated.
type Storage interface {
	// UpsertRecord inserts or replaces the record for its issue key,
	// refreshing UpdatedAt.
	UpsertRecord(ctx context.Context, record *types.IssueRecord) error

	// GetRecord fetches a record by issue key. Returns ErrNotFound if absent.
	GetRecord(ctx context.Context, key string) (*types.IssueRecord, error)

	// GetByRepoAndNumber fetches a record by its components.
	GetByRepoAndNumber(ctx context.Context, owner, repo string, number int) (*types.IssueRecord, error)

	// ListByRepo returns records for one repository, newest first.
	ListByRepo(ctx context.Context, owner, repo string, filter ListFilter) ([]*types.IssueRecord, error)

	// ListPending returns records awaiting processing ordered by priority
	// (urgent first), then by age (oldest first).
	ListPending(ctx context.Context, limit int) ([]*types.IssueRecord, error)

	// UpdateStatus sets a record's processing status. Returns ErrNotFound
	// if no record exists for the key.
	UpdateStatus(ctx context.Context, key string, status types.ProcessingStatus) error

	// AppendLog appends one audit entry for an issue.
	AppendLog(ctx context.Context, entry *types.ActionLogEntry) error

	// ListLog returns an issue's audit entries in append order.
	ListLog(ctx context.Context, key string, limit int) ([]*types.ActionLogEntry, error)

	// Close releases the underlying database.
	Close() error
}

// Backend identifies a storage implementation.
type Backend string

// BackendSQLite is the only supported backend.
const BackendSQLite Backend = "sqlite"

// Config selects and parameterizes a storage backend.
type Config struct {
	Backend Backend
	Path    string
}

// factories is populated by backend packages at init time so this package
// never imports its implementations.
var factories = map[Backend]func(cfg Config) (Storage, error){}

// Register installs a backend factory. Called from backend init functions.
func Register(backend Backend, factory func(cfg Config) (Storage, error)) {
	factories[backend] = factory
}

// New creates a Storage for the configured backend.
func New(cfg Config) (Storage, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	factory, ok := factories[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return factory(cfg)
}
