package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/askllm/models"
	"github.com/upb/askllm/repositories"
)

const auditColumns = `id, timestamp, request_id, transport, alias, model, status, error_kind, reason,
	attempts, prompt_length, response_length, has_attachment, latency_ms, error_message`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit entry
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	query := r.db.Rebind(`INSERT INTO audit_entries (` + auditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		entry.ID.String(),
		entry.Timestamp,
		entry.RequestID,
		string(entry.Transport),
		entry.Alias,
		entry.Model,
		string(entry.Status),
		entry.ErrorKind,
		entry.Reason,
		entry.Attempts,
		entry.PromptLength,
		entry.ResponseLength,
		entry.HasAttachment,
		entry.LatencyMs,
		entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	r.logger.Debug("audit entry inserted", zap.String("id", entry.ID.String()), zap.String("llm", entry.Alias))
	return nil
}

// Recent returns up to limit entries, newest first
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	query := r.db.Rebind(`SELECT ` + auditColumns + `
		FROM audit_entries
		ORDER BY timestamp DESC
		LIMIT ?`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.AuditEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// CountByAlias returns the number of entries per alias
func (r *AuditRepository) CountByAlias(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT alias, COUNT(*) FROM audit_entries GROUP BY alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			alias string
			n     int
		)
		if err := rows.Scan(&alias, &n); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[alias] = n
	}
	return counts, rows.Err()
}

func scanEntry(rows *sql.Rows) (*models.AuditEntry, error) {
	var (
		entry                                     models.AuditEntry
		id, transport, status                     string
		requestID, model, kind, reason, errorText sql.NullString
	)
	err := rows.Scan(
		&id,
		&entry.Timestamp,
		&requestID,
		&transport,
		&entry.Alias,
		&model,
		&status,
		&kind,
		&reason,
		&entry.Attempts,
		&entry.PromptLength,
		&entry.ResponseLength,
		&entry.HasAttachment,
		&entry.LatencyMs,
		&errorText,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	if err := entry.ID.UnmarshalText([]byte(id)); err != nil {
		return nil, fmt.Errorf("invalid audit entry id %q: %w", id, err)
	}
	entry.Transport = models.Transport(transport)
	entry.Status = models.AuditStatus(status)
	entry.RequestID = requestID.String
	entry.Model = model.String
	entry.ErrorKind = kind.String
	entry.Reason = reason.String
	entry.ErrorMessage = errorText.String

	return &entry, nil
}
