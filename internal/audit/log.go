package audit

import (
	"context"
	"log"
	"os"

	"github.com/promptgate/promptgate/internal/models"
)

// Publisher streams records to an external sink (Kafka).
type Publisher interface {
	Publish(ctx context.Context, rec models.AuditRecord) error
}

// Archiver writes records to long-term object storage (S3).
type Archiver interface {
	Archive(ctx context.Context, rec models.AuditRecord) error
}

// Log is the audit facade: the store write is authoritative and its
// failure propagates; streaming and archival are best-effort and degrade
// to logged warnings, matching the pipeline's degrade-over-fail posture.
type Log struct {
	store     Store
	publisher Publisher
	archiver  Archiver
	logger    *log.Logger
}

func NewLog(store Store, publisher Publisher, archiver Archiver, logger *log.Logger) *Log {
	if logger == nil {
		logger = log.New(os.Stdout, "[audit] ", log.LstdFlags)
	}
	return &Log{store: store, publisher: publisher, archiver: archiver, logger: logger}
}

// Append persists rec and fans it out to the optional sinks.
func (l *Log) Append(ctx context.Context, rec models.AuditRecord) error {
	if err := l.store.Append(ctx, rec); err != nil {
		return err
	}
	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, rec); err != nil {
			l.logger.Printf("stream audit record %s: %v", rec.ID, err)
		}
	}
	if l.archiver != nil {
		if err := l.archiver.Archive(ctx, rec); err != nil {
			l.logger.Printf("archive audit record %s: %v", rec.ID, err)
		}
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (l *Log) ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	return l.store.ListRecent(ctx, limit)
}
