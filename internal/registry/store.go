// Package registry owns the versioned prompt artifact store: immutable
// versions, mutable aliases, a TTL read-through cache, and bundled-default
// fallback when the backing store is unreachable.
package registry

import (
	"context"
	"errors"

	"github.com/promptgate/promptgate/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store is the raw persistence abstraction under the Registry. Versions
// are append-only per name; aliases are the only mutable rows.
type Store interface {
	// RegisterVersion appends a new version for in.Name and returns it
	// with the assigned (per-name monotonically increasing) version number.
	RegisterVersion(ctx context.Context, in VersionInput) (models.PromptVersion, error)
	GetVersion(ctx context.Context, name string, version int) (models.PromptVersion, error)
	// ListVersions returns all versions for a name in ascending order.
	ListVersions(ctx context.Context, name string) ([]models.PromptVersion, error)
	// SetAlias points (name, alias) at version. Fails with ErrNotFound
	// if the version does not exist for name.
	SetAlias(ctx context.Context, name, alias string, version int) error
	GetAlias(ctx context.Context, name, alias string) (models.Alias, error)
	DeleteAlias(ctx context.Context, name, alias string) error
	Ping(ctx context.Context) error
}

// VersionInput carries the fields for a new immutable version.
type VersionInput struct {
	Name          string
	Template      string
	CommitMessage string
	ModelConfig   map[string]string
}
