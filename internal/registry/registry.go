package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/promptgate/promptgate/internal/models"
)

// Config controls Registry behavior.
type Config struct {
	// AliasTTL is the cache lifetime for alias-based loads. Aliases can
	// be re-pointed at any time, so this bounds how stale a resolved
	// prompt may be after a promotion or rollback. 0 disables caching.
	AliasTTL time.Duration
	// DefaultAlias receives version 1 when SeedDefaults registers a
	// missing prompt. Defaults to "stable".
	DefaultAlias string
	// Defaults maps prompt name to the bundled template served when the
	// store is unreachable or the prompt is missing.
	Defaults map[string]string
	Logger   *log.Logger
}

// Registry is the artifact store facade the rest of the pipeline talks
// to: raw Store underneath, TTL cache and bundled-default fallback on top.
type Registry struct {
	store        Store
	cache        *loadCache
	aliasTTL     time.Duration
	defaultAlias string
	defaults     map[string]string
	logger       *log.Logger

	mu     sync.Mutex
	active map[string]string
}

func New(store Store, cfg Config) *Registry {
	if cfg.DefaultAlias == "" {
		cfg.DefaultAlias = "stable"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[registry] ", log.LstdFlags)
	}
	return &Registry{
		store:        store,
		cache:        newLoadCache(),
		aliasTTL:     cfg.AliasTTL,
		defaultAlias: cfg.DefaultAlias,
		defaults:     cfg.Defaults,
		logger:       logger,
		active:       map[string]string{},
	}
}

// Register creates a new immutable version for name and returns its
// assigned version number. It never overwrites an existing version.
func (r *Registry) Register(ctx context.Context, name, template, commitMessage string, modelConfig map[string]string) (int, error) {
	if name == "" || template == "" {
		return 0, fmt.Errorf("name and template required")
	}
	v, err := r.store.RegisterVersion(ctx, VersionInput{
		Name:          name,
		Template:      template,
		CommitMessage: commitMessage,
		ModelConfig:   modelConfig,
	})
	if err != nil {
		return 0, fmt.Errorf("register %q: %w", name, err)
	}
	return v.Version, nil
}

// SetAlias re-points (name, alias) to version. ErrNotFound if the version
// does not exist. A previously cached alias resolution stays valid until
// its TTL lapses; that staleness window is the documented trade-off.
func (r *Registry) SetAlias(ctx context.Context, name, alias string, version int) error {
	return r.store.SetAlias(ctx, name, alias, version)
}

func (r *Registry) DeleteAlias(ctx context.Context, name, alias string) error {
	return r.store.DeleteAlias(ctx, name, alias)
}

// GetAlias resolves the version currently bound to (name, alias) straight
// from the store, bypassing the cache. Gate checks and release execution
// use this so decisions never ride on stale reads.
func (r *Registry) GetAlias(ctx context.Context, name, alias string) (models.Alias, error) {
	return r.store.GetAlias(ctx, name, alias)
}

// ListVersions returns all versions of name, ascending.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]models.PromptVersion, error) {
	return r.store.ListVersions(ctx, name)
}

// Load resolves name by ref, which is either an alias or a decimal
// version number. Alias loads are cached for the configured TTL; version
// loads are cached without expiry since versions are immutable. When the
// store is unreachable or the ref does not resolve, Load serves the
// bundled default for name with IsFallback=true instead of failing — the
// rest of the system must keep working with the registry down.
func (r *Registry) Load(ctx context.Context, name, ref string) (models.LoadedPrompt, error) {
	if ref == "" {
		ref = r.defaultAlias
	}

	var (
		v   models.PromptVersion
		err error
	)
	if version, numErr := strconv.Atoi(ref); numErr == nil {
		v, err = r.cache.Get(name+"@v"+ref, -1, func() (models.PromptVersion, error) {
			return r.store.GetVersion(ctx, name, version)
		})
	} else {
		v, err = r.cache.Get(name+"@"+ref, r.aliasTTL, func() (models.PromptVersion, error) {
			a, err := r.store.GetAlias(ctx, name, ref)
			if err != nil {
				return models.PromptVersion{}, err
			}
			return r.store.GetVersion(ctx, name, a.Version)
		})
	}
	if err != nil {
		return r.fallback(name, ref, err)
	}

	r.recordActive(name, strconv.Itoa(v.Version))
	return models.LoadedPrompt{
		Name:        v.Name,
		Version:     v.Version,
		Template:    v.Template,
		ModelConfig: v.ModelConfig,
	}, nil
}

func (r *Registry) fallback(name, ref string, cause error) (models.LoadedPrompt, error) {
	template, ok := r.defaults[name]
	if !ok {
		return models.LoadedPrompt{}, fmt.Errorf("load %s@%s: %w", name, ref, cause)
	}
	r.logger.Printf("load %s@%s failed (%v); serving bundled default", name, ref, cause)
	r.recordActive(name, "fallback")
	return models.LoadedPrompt{
		Name:       name,
		Template:   template,
		IsFallback: true,
	}, nil
}

// SeedDefaults registers every bundled default that has no version 1 yet
// and points the default alias at it. Idempotent; safe on every startup.
// A store outage downgrades seeding to a logged warning so startup still
// proceeds on fallback templates.
func (r *Registry) SeedDefaults(ctx context.Context) (seeded, skipped int) {
	names := make([]string, 0, len(r.defaults))
	for name := range r.defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := r.store.GetVersion(ctx, name, 1); err == nil {
			skipped++
			continue
		} else if !errors.Is(err, ErrNotFound) {
			r.logger.Printf("seed %s: store check failed (%v); will retry next startup", name, err)
			skipped++
			continue
		}
		if _, err := r.store.RegisterVersion(ctx, VersionInput{
			Name:          name,
			Template:      r.defaults[name],
			CommitMessage: "seeded default",
		}); err != nil {
			r.logger.Printf("seed %s: register failed (%v); will retry next startup", name, err)
			skipped++
			continue
		}
		if err := r.store.SetAlias(ctx, name, r.defaultAlias, 1); err != nil {
			r.logger.Printf("seed %s: alias %q failed: %v", name, r.defaultAlias, err)
		}
		seeded++
	}
	return seeded, skipped
}

// ActiveVersions reports the version most recently resolved per prompt
// name by this process. Lineage bookkeeping, not a store query.
func (r *Registry) ActiveVersions() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.active))
	for k, v := range r.active {
		out[k] = v
	}
	return out
}

func (r *Registry) recordActive(name, version string) {
	r.mu.Lock()
	r.active[name] = version
	r.mu.Unlock()
}

// Ping reports store reachability for health checks.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
