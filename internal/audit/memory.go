package audit

import (
	"context"
	"sync"

	"github.com/promptgate/promptgate/internal/models"
)

// MemoryStore keeps audit records in process, newest last.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.AuditRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, rec models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AuditRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
