package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/promptgate/promptgate/internal/models"
)

// PGStore persists prompt versions and aliases in Postgres.
//
// Version numbering relies on the insert selecting
// COALESCE(MAX(version),0)+1 for the name inside a single statement, so
// concurrent registers for the same name serialize on the unique
// (name, version) index rather than overwriting each other.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (models.PromptVersion, error) {
	var (
		v      models.PromptVersion
		cfg    []byte
		commit sql.NullString
	)
	if err := row.Scan(&v.Name, &v.Version, &v.Template, &cfg, &commit, &v.CreatedAt); err != nil {
		return models.PromptVersion{}, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &v.ModelConfig); err != nil {
			return models.PromptVersion{}, fmt.Errorf("decode model config: %w", err)
		}
	}
	if commit.Valid {
		v.CommitMessage = commit.String
	}
	return v, nil
}

func (s *PGStore) RegisterVersion(ctx context.Context, in VersionInput) (models.PromptVersion, error) {
	cfg, err := json.Marshal(in.ModelConfig)
	if err != nil {
		return models.PromptVersion{}, fmt.Errorf("encode model config: %w", err)
	}
	const query = `
		INSERT INTO prompt_versions (name, version, template, model_config, commit_message)
		SELECT $1, COALESCE(MAX(version),0)+1, $2, $3, $4 FROM prompt_versions WHERE name=$1
		RETURNING name, version, template, model_config, commit_message, created_at
	`
	row := s.db.QueryRowContext(ctx, query, in.Name, in.Template, cfg, in.CommitMessage)
	v, err := scanVersion(row)
	if err != nil {
		return models.PromptVersion{}, fmt.Errorf("insert prompt version: %w", err)
	}
	return v, nil
}

func (s *PGStore) GetVersion(ctx context.Context, name string, version int) (models.PromptVersion, error) {
	const query = `
		SELECT name, version, template, model_config, commit_message, created_at
		FROM prompt_versions WHERE name=$1 AND version=$2
	`
	v, err := scanVersion(s.db.QueryRowContext(ctx, query, name, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PromptVersion{}, ErrNotFound
		}
		return models.PromptVersion{}, fmt.Errorf("get prompt version: %w", err)
	}
	return v, nil
}

func (s *PGStore) ListVersions(ctx context.Context, name string) ([]models.PromptVersion, error) {
	const query = `
		SELECT name, version, template, model_config, commit_message, created_at
		FROM prompt_versions WHERE name=$1 ORDER BY version
	`
	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions: %w", err)
	}
	defer rows.Close()

	var versions []models.PromptVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompt versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

func (s *PGStore) SetAlias(ctx context.Context, name, alias string, version int) error {
	const query = `
		INSERT INTO prompt_aliases (name, alias, version, updated_at)
		SELECT $1, $2, $3, NOW()
		WHERE EXISTS (SELECT 1 FROM prompt_versions WHERE name=$1 AND version=$3)
		ON CONFLICT (name, alias) DO UPDATE SET version=EXCLUDED.version, updated_at=NOW()
	`
	res, err := s.db.ExecContext(ctx, query, name, alias, version)
	if err != nil {
		return fmt.Errorf("set alias: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set alias result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GetAlias(ctx context.Context, name, alias string) (models.Alias, error) {
	const query = `
		SELECT name, alias, version, updated_at FROM prompt_aliases WHERE name=$1 AND alias=$2
	`
	var a models.Alias
	err := s.db.QueryRowContext(ctx, query, name, alias).Scan(&a.PromptName, &a.Alias, &a.Version, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Alias{}, ErrNotFound
		}
		return models.Alias{}, fmt.Errorf("get alias: %w", err)
	}
	return a, nil
}

func (s *PGStore) DeleteAlias(ctx context.Context, name, alias string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompt_aliases WHERE name=$1 AND alias=$2`, name, alias)
	if err != nil {
		return fmt.Errorf("delete alias: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alias result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
