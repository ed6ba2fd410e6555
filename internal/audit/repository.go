// Package audit records extension and operator command activity in the
// audit_logs table and lists it back for the operations endpoint.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the bot.
const (
	ActionLoad     = "load"
	ActionUnload   = "unload"
	ActionReload   = "reload"
	ActionCommand  = "command"
	ActionStartup  = "startup"
	ActionShutdown = "shutdown"
)

// Entity types recorded by the bot.
const (
	EntityExtension = "extension"
	EntityCommand   = "command"
	EntityLifecycle = "lifecycle"
)

// timestampFormat is fixed-width so created_at sorts lexically.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string // optional: filter by action (load, unload, reload, command)
	EntityType string // optional: filter by entity type (extension, command, lifecycle)
	EntityID   string // optional: filter by extension or command name
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var details any
	if len(log.Details) > 0 {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		nullableString(log.EntityID), nullableString(log.UserID),
		log.Source, details,
		log.CreatedAt.UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = clampPage(filter)
	where, args := filter.where()

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs" + where //nolint:gosec // WHERE built from ? placeholders
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT id, action, entity_type, entity_id, user_id, source, details, created_at FROM audit_logs" + //nolint:gosec // WHERE built from ? placeholders
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func clampPage(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f Filter) where() (string, []any) {
	var conditions []string
	var args []any

	add := func(column, value string) {
		if value != "" {
			conditions = append(conditions, column+" = ?")
			args = append(args, value)
		}
	}
	add("action", f.Action)
	add("entity_type", f.EntityType)
	add("entity_id", f.EntityID)

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanAuditLog(rows *sql.Rows) (AuditLog, error) {
	var log AuditLog
	var entityID, userID, details sql.NullString
	var createdAt string

	if err := rows.Scan(&log.ID, &log.Action, &log.EntityType,
		&entityID, &userID, &log.Source, &details, &createdAt); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}

	log.EntityID = entityID.String
	log.UserID = userID.String
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &log.Details); err != nil {
			return AuditLog{}, fmt.Errorf("decoding details of %s: %w", log.ID, err)
		}
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	log.CreatedAt = t

	return log, nil
}

// nullableString maps "" to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
