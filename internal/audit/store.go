// Package audit persists the append-only record of executed promotions
// and rollbacks, with optional best-effort streaming to Kafka and
// archival to S3.
package audit

import (
	"context"

	"github.com/promptgate/promptgate/internal/models"
)

// Store is the persistence abstraction for audit records. Records are
// append-only; there is no update or delete.
type Store interface {
	Append(ctx context.Context, rec models.AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error)
	Ping(ctx context.Context) error
}
