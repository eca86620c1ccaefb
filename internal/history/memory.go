package history

import (
	"context"
	"sort"
	"sync"

	"github.com/promptgate/promptgate/internal/models"
)

// MemoryReader is the in-process run history used in tests and when no
// database is configured. Append makes it double as a sink for suite runs.
type MemoryReader struct {
	mu     sync.RWMutex
	points map[string][]models.TrendPoint
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{points: map[string][]models.TrendPoint{}}
}

// Append records a point, keeping the per-type sequence ordered by timestamp.
func (m *MemoryReader) Append(p models.TrendPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := append(m.points[p.EvalType], p)
	sort.SliceStable(seq, func(i, j int) bool {
		return seq[i].Timestamp.Before(seq[j].Timestamp)
	})
	m.points[p.EvalType] = seq
}

func (m *MemoryReader) QueryRuns(ctx context.Context, evalType string, limit int) ([]models.TrendPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seq := m.points[evalType]
	if limit > 0 && len(seq) > limit {
		seq = seq[len(seq)-limit:]
	}
	out := make([]models.TrendPoint, len(seq))
	copy(out, seq)
	return out, nil
}

func (m *MemoryReader) EvalTypes(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.points))
	for t := range m.points {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}
