package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for trigger persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Trigger, error)
	List(ctx context.Context) ([]Trigger, error)
	ListByAddress(ctx context.Context, address string) ([]Trigger, error)
	Create(ctx context.Context, t *Trigger) error
	Update(ctx context.Context, t *Trigger) error
	Delete(ctx context.Context, id string) error
}

// triggerColumns is the SELECT column list for trigger queries.
const triggerColumns = `id, name, type, address, event_type, count, status, enabled, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a trigger by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers WHERE id = ?`

	t, err := scanTriggerRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTriggerNotFound
		}
		return nil, fmt.Errorf("querying trigger by id: %w", err)
	}
	return t, nil
}

// List retrieves all triggers ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers ORDER BY name, id`
	return r.queryTriggers(ctx, query)
}

// ListByAddress retrieves the triggers bound to one address.
func (r *SQLiteRepository) ListByAddress(ctx context.Context, address string) ([]Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers WHERE address = ? ORDER BY name, id`
	return r.queryTriggers(ctx, query, address)
}

// Create inserts a new trigger.
func (r *SQLiteRepository) Create(ctx context.Context, t *Trigger) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	query := `
		INSERT INTO triggers (
			id, name, type, address, event_type, count, status, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.Name,
		string(t.Type),
		t.Address,
		t.EventType,
		t.Count,
		t.Status,
		boolToInt(t.Enabled),
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTriggerExists
		}
		return fmt.Errorf("inserting trigger: %w", err)
	}
	return nil
}

// Update modifies an existing trigger.
func (r *SQLiteRepository) Update(ctx context.Context, t *Trigger) error {
	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE triggers SET
			name = ?, type = ?, address = ?, event_type = ?, count = ?,
			status = ?, enabled = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		t.Name,
		string(t.Type),
		t.Address,
		t.EventType,
		t.Count,
		t.Status,
		boolToInt(t.Enabled),
		t.UpdatedAt.Format(time.RFC3339),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTriggerNotFound
	}
	return nil
}

// Delete removes a trigger by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTriggerNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryTriggers(ctx context.Context, query string, args ...any) ([]Trigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		t, scanErr := scanTriggerRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning trigger: %w", scanErr)
		}
		triggers = append(triggers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating triggers: %w", err)
	}
	return triggers, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTriggerRow(scanner rowScanner) (*Trigger, error) {
	var t Trigger
	var triggerType string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&t.ID,
		&t.Name,
		&triggerType,
		&t.Address,
		&t.EventType,
		&t.Count,
		&t.Status,
		&enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = TriggerType(triggerType)
	t.Enabled = enabled != 0

	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
