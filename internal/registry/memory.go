package registry

import (
	"context"
	"sync"
	"time"

	"github.com/promptgate/promptgate/internal/models"
)

type aliasKey struct {
	name  string
	alias string
}

// MemoryStore is the in-process Store used in tests and when no database
// is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[string][]models.PromptVersion
	aliases  map[aliasKey]models.Alias
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: map[string][]models.PromptVersion{},
		aliases:  map[aliasKey]models.Alias{},
	}
}

func copyConfig(cfg map[string]string) map[string]string {
	if cfg == nil {
		return nil
	}
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) RegisterVersion(ctx context.Context, in VersionInput) (models.PromptVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.versions[in.Name]
	v := models.PromptVersion{
		Name:          in.Name,
		Version:       len(seq) + 1,
		Template:      in.Template,
		CommitMessage: in.CommitMessage,
		ModelConfig:   copyConfig(in.ModelConfig),
		CreatedAt:     time.Now().UTC(),
	}
	m.versions[in.Name] = append(seq, v)
	return v, nil
}

func (m *MemoryStore) GetVersion(ctx context.Context, name string, version int) (models.PromptVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seq := m.versions[name]
	if version < 1 || version > len(seq) {
		return models.PromptVersion{}, ErrNotFound
	}
	return seq[version-1], nil
}

func (m *MemoryStore) ListVersions(ctx context.Context, name string) ([]models.PromptVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seq, ok := m.versions[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.PromptVersion, len(seq))
	copy(out, seq)
	return out, nil
}

func (m *MemoryStore) SetAlias(ctx context.Context, name, alias string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.versions[name]
	if version < 1 || version > len(seq) {
		return ErrNotFound
	}
	m.aliases[aliasKey{name, alias}] = models.Alias{
		PromptName: name,
		Alias:      alias,
		Version:    version,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) GetAlias(ctx context.Context, name, alias string) (models.Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.aliases[aliasKey{name, alias}]
	if !ok {
		return models.Alias{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) DeleteAlias(ctx context.Context, name, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aliasKey{name, alias}
	if _, ok := m.aliases[key]; !ok {
		return ErrNotFound
	}
	delete(m.aliases, key)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
