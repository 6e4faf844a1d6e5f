// Package sqlite is the SQLite issue record store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/triagekit/triagekit/internal/storage"
	"github.com/triagekit/triagekit/internal/types"
)

func init() {
	storage.Register(storage.BackendSQLite, func(cfg storage.Config) (storage.Storage, error) {
		return New(cfg.Path)
	})
}

// Store implements storage.Storage using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Storage = (*Store)(nil)

// New opens (creating if needed) the database at path.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode so the webhook writer and status readers don't block each other.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRecord inserts or replaces the record for its issue key.
func (s *Store) UpsertRecord(ctx context.Context, record *types.IssueRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	classificationJSON, err := json.Marshal(record.Classification)
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}

	var planJSON sql.NullString
	if record.Plan != nil {
		data, err := json.Marshal(record.Plan)
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
		planJSON = sql.NullString{String: string(data), Valid: true}
	}

	var autoFixSuccessful sql.NullBool
	if record.AutoFixSuccessful != nil {
		autoFixSuccessful = sql.NullBool{Bool: *record.AutoFixSuccessful, Valid: true}
	}

	var processedAt sql.NullTime
	if record.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *record.ProcessedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issue_records (
			issue_key, owner, repo, number, title, body,
			classification, plan, status, priority_rank,
			auto_fix_attempted, auto_fix_successful,
			created_at, updated_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issue_key) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			classification = excluded.classification,
			plan = excluded.plan,
			status = excluded.status,
			priority_rank = excluded.priority_rank,
			auto_fix_attempted = excluded.auto_fix_attempted,
			auto_fix_successful = excluded.auto_fix_successful,
			updated_at = excluded.updated_at,
			processed_at = excluded.processed_at
	`,
		record.Ref.Key(), record.Ref.Owner, record.Ref.Repo, record.Ref.Number,
		record.Title, record.Body,
		string(classificationJSON), planJSON, string(record.Status),
		record.Classification.Priority.Rank(),
		record.AutoFixAttempted, autoFixSuccessful,
		record.CreatedAt, record.UpdatedAt, processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

const recordColumns = `issue_key, owner, repo, number, title, body,
	classification, plan, status,
	auto_fix_attempted, auto_fix_successful,
	created_at, updated_at, processed_at`

// GetRecord fetches a record by issue key.
func (s *Store) GetRecord(ctx context.Context, key string) (*types.IssueRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM issue_records WHERE issue_key = ?`, key)
	return scanRecord(row)
}

// GetByRepoAndNumber fetches a record by its identity components.
func (s *Store) GetByRepoAndNumber(ctx context.Context, owner, repo string, number int) (*types.IssueRecord, error) {
	return s.GetRecord(ctx, types.IssueRef{Owner: owner, Repo: repo, Number: number}.Key())
}

// ListByRepo returns records for one repository, newest first.
func (s *Store) ListByRepo(ctx context.Context, owner, repo string, filter storage.ListFilter) ([]*types.IssueRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM issue_records WHERE owner = ? AND repo = ?`
	args := []interface{}{owner, repo}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, issue_key DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListPending returns pending records ordered by priority, then age.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*types.IssueRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM issue_records
		WHERE status = ?
		ORDER BY priority_rank ASC, created_at ASC`
	args := []interface{}{string(types.StatusPending)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// UpdateStatus sets a record's processing status.
func (s *Store) UpdateStatus(ctx context.Context, key string, status types.ProcessingStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE issue_records SET status = ?, updated_at = ? WHERE issue_key = ?
	`, string(status), time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendLog appends one audit entry.
func (s *Store) AppendLog(ctx context.Context, entry *types.ActionLogEntry) error {
	if entry.IssueKey == "" {
		return fmt.Errorf("issue key is required")
	}
	if entry.Action == "" {
		return fmt.Errorf("action is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	detail := entry.Detail
	if detail == "" {
		detail = "{}"
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO action_log (issue_key, action, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.IssueKey, entry.Action, detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	entry.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read log entry id: %w", err)
	}
	return nil
}

// ListLog returns an issue's audit entries in append order.
func (s *Store) ListLog(ctx context.Context, key string, limit int) ([]*types.ActionLogEntry, error) {
	query := `SELECT id, issue_key, action, detail, created_at
		FROM action_log WHERE issue_key = ? ORDER BY id ASC`
	args := []interface{}{key}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.ActionLogEntry
	for rows.Next() {
		var entry types.ActionLogEntry
		if err := rows.Scan(&entry.ID, &entry.IssueKey, &entry.Action, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*types.IssueRecord, error) {
	var (
		record             types.IssueRecord
		key                string
		classificationJSON string
		planJSON           sql.NullString
		status             string
		autoFixSuccessful  sql.NullBool
		processedAt        sql.NullTime
	)

	err := row.Scan(
		&key, &record.Ref.Owner, &record.Ref.Repo, &record.Ref.Number,
		&record.Title, &record.Body,
		&classificationJSON, &planJSON, &status,
		&record.AutoFixAttempted, &autoFixSuccessful,
		&record.CreatedAt, &record.UpdatedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	if err := json.Unmarshal([]byte(classificationJSON), &record.Classification); err != nil {
		return nil, fmt.Errorf("failed to unmarshal classification for %s: %w", key, err)
	}
	if planJSON.Valid {
		var plan types.RemediationPlan
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan for %s: %w", key, err)
		}
		record.Plan = &plan
	}
	record.Status = types.ProcessingStatus(status)
	if autoFixSuccessful.Valid {
		v := autoFixSuccessful.Bool
		record.AutoFixSuccessful = &v
	}
	if processedAt.Valid {
		t := processedAt.Time
		record.ProcessedAt = &t
	}

	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*types.IssueRecord, error) {
	var records []*types.IssueRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
