package registry

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgate/promptgate/internal/models"
)

func quietConfig(defaults map[string]string) Config {
	return Config{
		Defaults: defaults,
		Logger:   log.New(io.Discard, "", 0),
	}
}

func TestRegisterVersionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), quietConfig(nil))

	for want := 1; want <= 3; want++ {
		got, err := reg.Register(ctx, "orchestrator-base", "template rev", "tweak routing", nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Earlier versions are untouched by later registers.
	v1, err := reg.ListVersions(ctx, "orchestrator-base")
	require.NoError(t, err)
	require.Len(t, v1, 3)
	assert.Equal(t, 1, v1[0].Version)
}

func TestSetAliasRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), quietConfig(nil))

	_, err := reg.Register(ctx, "tone-guard", "v1 text", "", nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "tone-guard", "v2 text", "", nil)
	require.NoError(t, err)

	require.NoError(t, reg.SetAlias(ctx, "tone-guard", "stable", 2))
	loaded, err := reg.Load(ctx, "tone-guard", "stable")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)
	assert.Equal(t, "v2 text", loaded.Template)
	assert.False(t, loaded.IsFallback)
}

func TestSetAliasUnknownVersion(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), quietConfig(nil))
	_, err := reg.Register(ctx, "tone-guard", "v1 text", "", nil)
	require.NoError(t, err)

	err = reg.SetAlias(ctx, "tone-guard", "stable", 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAliasLoadServesStaleUntilTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cfg := quietConfig(nil)
	cfg.AliasTTL = time.Hour
	reg := New(store, cfg)

	_, err := reg.Register(ctx, "tone-guard", "v1 text", "", nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "tone-guard", "v2 text", "", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetAlias(ctx, "tone-guard", "stable", 1))

	first, err := reg.Load(ctx, "tone-guard", "stable")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	// Re-point the alias; the cached resolution stays live until its TTL
	// lapses. Documented trade-off, not a bug.
	require.NoError(t, reg.SetAlias(ctx, "tone-guard", "stable", 2))
	second, err := reg.Load(ctx, "tone-guard", "stable")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Version)
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), quietConfig(nil)) // AliasTTL zero

	_, err := reg.Register(ctx, "tone-guard", "v1 text", "", nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "tone-guard", "v2 text", "", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetAlias(ctx, "tone-guard", "stable", 1))

	_, err = reg.Load(ctx, "tone-guard", "stable")
	require.NoError(t, err)

	require.NoError(t, reg.SetAlias(ctx, "tone-guard", "stable", 2))
	loaded, err := reg.Load(ctx, "tone-guard", "stable")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)
}

// failingStore simulates a completely unreachable artifact store.
type failingStore struct{}

var errStoreDown = errors.New("store unreachable")

func (failingStore) RegisterVersion(context.Context, VersionInput) (models.PromptVersion, error) {
	return models.PromptVersion{}, errStoreDown
}
func (failingStore) GetVersion(context.Context, string, int) (models.PromptVersion, error) {
	return models.PromptVersion{}, errStoreDown
}
func (failingStore) ListVersions(context.Context, string) ([]models.PromptVersion, error) {
	return nil, errStoreDown
}
func (failingStore) SetAlias(context.Context, string, string, int) error { return errStoreDown }
func (failingStore) GetAlias(context.Context, string, string) (models.Alias, error) {
	return models.Alias{}, errStoreDown
}
func (failingStore) DeleteAlias(context.Context, string, string) error { return errStoreDown }
func (failingStore) Ping(context.Context) error                        { return errStoreDown }

func TestLoadFallsBackWhenStoreDown(t *testing.T) {
	ctx := context.Background()
	reg := New(failingStore{}, quietConfig(map[string]string{
		"orchestrator-base": "bundled orchestrator template",
	}))

	loaded, err := reg.Load(ctx, "orchestrator-base", "stable")
	require.NoError(t, err, "load must never raise when a bundled default exists")
	assert.True(t, loaded.IsFallback)
	assert.Equal(t, "bundled orchestrator template", loaded.Template)

	// No bundled default means there is nothing to serve.
	_, err = reg.Load(ctx, "unknown-prompt", "stable")
	assert.Error(t, err)
}

func TestSeedDefaultsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	reg := New(store, quietConfig(map[string]string{
		"orchestrator-base": "base template",
		"tone-guard":        "tone template",
	}))

	seeded, skipped := reg.SeedDefaults(ctx)
	assert.Equal(t, 2, seeded)
	assert.Equal(t, 0, skipped)

	a, err := store.GetAlias(ctx, "orchestrator-base", "stable")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version)

	seeded, skipped = reg.SeedDefaults(ctx)
	assert.Equal(t, 0, seeded)
	assert.Equal(t, 2, skipped)

	// Seeding twice never grew the version sequence.
	versions, err := store.ListVersions(ctx, "tone-guard")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestSeedDefaultsStoreDownIsDegradedNotFatal(t *testing.T) {
	reg := New(failingStore{}, quietConfig(map[string]string{"tone-guard": "t"}))
	seeded, skipped := reg.SeedDefaults(context.Background())
	assert.Equal(t, 0, seeded)
	assert.Equal(t, 1, skipped)
}

func TestActiveVersionsTracksResolutions(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), quietConfig(nil))
	_, err := reg.Register(ctx, "tone-guard", "v1 text", "", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetAlias(ctx, "tone-guard", "stable", 1))

	_, err = reg.Load(ctx, "tone-guard", "stable")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tone-guard": "1"}, reg.ActiveVersions())
}
