package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/promptgate/promptgate/internal/models"
)

// PGStore persists audit records in Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec models.AuditRecord) error {
	const query = `
		INSERT INTO release_audit (id, action, prompt_name, from_version, to_version, alias, actor, reason, forced, justifying_run_ids, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Action, rec.PromptName, rec.FromVersion,
		rec.ToVersion, rec.Alias, rec.Actor, rec.Reason, rec.Forced,
		pq.Array(rec.JustifyingRunIDs), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PGStore) ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, action, prompt_name, from_version, to_version, alias, actor, reason, forced, justifying_run_ids, ts
		FROM release_audit ORDER BY ts DESC LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.PromptName, &rec.FromVersion, &rec.ToVersion,
			&rec.Alias, &rec.Actor, &rec.Reason, &rec.Forced,
			pq.Array(&rec.JustifyingRunIDs), &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

// MarshalRecord renders the stable JSON form used by the streamer and archiver.
func MarshalRecord(rec models.AuditRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	return b, nil
}
