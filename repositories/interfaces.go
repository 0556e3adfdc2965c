package repositories

import (
	"context"

	"github.com/upb/askllm/models"
)

// AuditRepository stores and lists audit entries
type AuditRepository interface {
	// Insert stores one entry
	Insert(ctx context.Context, entry *models.AuditEntry) error

	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]*models.AuditEntry, error)

	// CountByAlias returns how many entries each alias has
	CountByAlias(ctx context.Context) (map[string]int, error)
}
