package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

// ErrNotArchived is returned when updating a notification that was never
// stored
var ErrNotArchived = errors.New("notification not archived")

// NotificationHistoryStorage archives notifications beyond the in-memory list
type NotificationHistoryStorage interface {
	// Store stores a newly triggered notification
	Store(ctx context.Context, n *model.AlertNotification) error

	// Update overwrites the read and resolution state of a stored notification
	Update(ctx context.Context, n *model.AlertNotification) error

	// Get retrieves a notification by ID, or nil when it was never stored
	Get(ctx context.Context, id string) (*model.AlertNotification, error)

	// List retrieves notifications matching filters, most recent first
	List(ctx context.Context, filters model.NotificationFilters, offset, limit int) ([]*model.AlertNotification, error)

	// Count returns the number of notifications matching filters
	Count(ctx context.Context, filters model.NotificationFilters) (int, error)

	// DeleteBefore deletes notifications triggered before the given time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteNotificationHistory implements NotificationHistoryStorage using SQLite
type SQLiteNotificationHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteNotificationHistory opens (or creates) the archive at dbPath
func NewSQLiteNotificationHistory(logger *zap.Logger, dbPath string) (*SQLiteNotificationHistory, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the monitor and API goroutines
	db.SetMaxOpenConns(1)

	storage := &SQLiteNotificationHistory{
		logger: logger.Named("history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *SQLiteNotificationHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS notification_history (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			data TEXT,
			is_read INTEGER NOT NULL DEFAULT 0,
			is_resolved INTEGER NOT NULL DEFAULT 0,
			triggered_at DATETIME NOT NULL,
			resolved_at DATETIME,
			resolved_by TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_notification_history_rule_id ON notification_history(rule_id);
		CREATE INDEX IF NOT EXISTS idx_notification_history_severity ON notification_history(severity);
		CREATE INDEX IF NOT EXISTS idx_notification_history_triggered_at ON notification_history(triggered_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements NotificationHistoryStorage.Store
func (s *SQLiteNotificationHistory) Store(ctx context.Context, n *model.AlertNotification) error {
	var data sql.NullString
	if len(n.Data) > 0 {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to encode notification data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_history (
			id, rule_id, rule_name, type, severity, title, message, data,
			is_read, is_resolved, triggered_at, resolved_at, resolved_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.RuleID,
		n.RuleName,
		string(n.Type),
		string(n.Severity),
		n.Title,
		n.Message,
		data,
		n.IsRead,
		n.IsResolved,
		n.TriggeredAt.UTC(),
		nullTime(n.ResolvedAt),
		sql.NullString{String: n.ResolvedBy, Valid: n.ResolvedBy != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// Update implements NotificationHistoryStorage.Update
func (s *SQLiteNotificationHistory) Update(ctx context.Context, n *model.AlertNotification) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_history SET
			is_read = ?,
			is_resolved = ?,
			resolved_at = ?,
			resolved_by = ?
		WHERE id = ?`,
		n.IsRead,
		n.IsResolved,
		nullTime(n.ResolvedAt),
		sql.NullString{String: n.ResolvedBy, Valid: n.ResolvedBy != ""},
		n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotArchived, n.ID)
	}
	return nil
}

const selectColumns = `SELECT
	id, rule_id, rule_name, type, severity, title, message, data,
	is_read, is_resolved, triggered_at, resolved_at, resolved_by
FROM notification_history`

// Get implements NotificationHistoryStorage.Get
func (s *SQLiteNotificationHistory) Get(ctx context.Context, id string) (*model.AlertNotification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	return n, nil
}

// List implements NotificationHistoryStorage.List
func (s *SQLiteNotificationHistory) List(ctx context.Context, filters model.NotificationFilters, offset, limit int) ([]*model.AlertNotification, error) {
	where, args := whereClause(filters)
	query := selectColumns + where + " ORDER BY triggered_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.AlertNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return notifications, nil
}

// Count implements NotificationHistoryStorage.Count
func (s *SQLiteNotificationHistory) Count(ctx context.Context, filters model.NotificationFilters) (int, error) {
	where, args := whereClause(filters)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notification_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// DeleteBefore implements NotificationHistoryStorage.DeleteBefore
func (s *SQLiteNotificationHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notification_history WHERE triggered_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old notification records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteNotificationHistory) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*model.AlertNotification, error) {
	var n model.AlertNotification
	var data, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	var typ, severity string

	err := row.Scan(
		&n.ID,
		&n.RuleID,
		&n.RuleName,
		&typ,
		&severity,
		&n.Title,
		&n.Message,
		&data,
		&n.IsRead,
		&n.IsResolved,
		&n.TriggeredAt,
		&resolvedAt,
		&resolvedBy,
	)
	if err != nil {
		return nil, err
	}

	n.Type = model.AlertType(typ)
	n.Severity = model.AlertSeverity(severity)
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	if resolvedAt.Valid {
		n.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		n.ResolvedBy = resolvedBy.String
	}

	return &n, nil
}

// whereClause translates filters into SQL. Column names are fixed here, only
// values are bound.
func whereClause(f model.NotificationFilters) (string, []any) {
	var conds []string
	var args []any

	if len(f.Severity) > 0 {
		conds = append(conds, "severity IN ("+placeholders(len(f.Severity))+")")
		for _, s := range f.Severity {
			args = append(args, string(s))
		}
	}
	if len(f.Type) > 0 {
		conds = append(conds, "type IN ("+placeholders(len(f.Type))+")")
		for _, t := range f.Type {
			args = append(args, string(t))
		}
	}
	if f.IsRead != nil {
		conds = append(conds, "is_read = ?")
		args = append(args, *f.IsRead)
	}
	if f.IsResolved != nil {
		conds = append(conds, "is_resolved = ?")
		args = append(args, *f.IsResolved)
	}
	if f.From != nil {
		conds = append(conds, "triggered_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "triggered_at <= ?")
		args = append(args, f.To.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
