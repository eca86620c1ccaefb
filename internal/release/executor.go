// Package release performs the actual alias mutations for promotions and
// rollbacks and appends the audit trail. Gating happens before this layer
// and is deliberately not re-checked here.
package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptgate/promptgate/internal/audit"
	"github.com/promptgate/promptgate/internal/models"
	"github.com/promptgate/promptgate/internal/registry"
)

var (
	ErrInvalidVersion  = errors.New("version does not exist")
	ErrInvalidRollback = errors.New("no previous version to roll back to")
)

// Executor mutates aliases against the registry and writes AuditRecords.
type Executor struct {
	registry *registry.Registry
	audit    *audit.Log
}

func NewExecutor(reg *registry.Registry, auditLog *audit.Log) *Executor {
	return &Executor{registry: reg, audit: auditLog}
}

// FindPreviousVersion returns the version immediately preceding the
// alias's current version, one step back only. ok is false when the
// alias points at version 1.
func (e *Executor) FindPreviousVersion(ctx context.Context, promptName, alias string) (previous int, ok bool, err error) {
	a, err := e.registry.GetAlias(ctx, promptName, alias)
	if err != nil {
		return 0, false, fmt.Errorf("resolve %s@%s: %w", promptName, alias, err)
	}
	if a.Version <= 1 {
		return 0, false, nil
	}
	if _, err := e.registry.ListVersions(ctx, promptName); err != nil {
		return 0, false, fmt.Errorf("list versions for %s: %w", promptName, err)
	}
	return a.Version - 1, true, nil
}

// PromotionExec carries an approved (or forced) promotion.
type PromotionExec struct {
	PromptName       string
	ToAlias          string
	Version          int
	Actor            string
	JustifyingRunIDs []string
	Forced           bool
	Reason           string
}

// ExecutePromotion re-points ToAlias at Version and appends the audit
// record. Forced promotions bypass the gate by contract and therefore
// require a non-empty reason; both flag and reason land in the record.
func (e *Executor) ExecutePromotion(ctx context.Context, in PromotionExec) (models.AuditRecord, error) {
	if in.PromptName == "" || in.ToAlias == "" || in.Version < 1 {
		return models.AuditRecord{}, fmt.Errorf("promptName, toAlias, and version required")
	}
	if in.Forced && in.Reason == "" {
		return models.AuditRecord{}, fmt.Errorf("forced promotion requires a reason")
	}
	if _, err := e.registry.ListVersions(ctx, in.PromptName); errors.Is(err, registry.ErrNotFound) {
		return models.AuditRecord{}, ErrInvalidVersion
	} else if err != nil {
		return models.AuditRecord{}, fmt.Errorf("list versions for %s: %w", in.PromptName, err)
	}

	fromVersion := 0
	if current, err := e.registry.GetAlias(ctx, in.PromptName, in.ToAlias); err == nil {
		fromVersion = current.Version
	}

	if err := e.registry.SetAlias(ctx, in.PromptName, in.ToAlias, in.Version); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return models.AuditRecord{}, ErrInvalidVersion
		}
		return models.AuditRecord{}, fmt.Errorf("set alias: %w", err)
	}

	record := models.AuditRecord{
		ID:               uuid.New(),
		Action:           models.AuditActionPromote,
		PromptName:       in.PromptName,
		FromVersion:      fromVersion,
		ToVersion:        in.Version,
		Alias:            in.ToAlias,
		Actor:            in.Actor,
		Reason:           in.Reason,
		Forced:           in.Forced,
		JustifyingRunIDs: in.JustifyingRunIDs,
		Timestamp:        time.Now().UTC(),
	}
	if err := e.audit.Append(ctx, record); err != nil {
		return models.AuditRecord{}, fmt.Errorf("append audit record: %w", err)
	}
	return record, nil
}

// RollbackExec carries a one-step rollback.
type RollbackExec struct {
	PromptName      string
	Alias           string
	PreviousVersion int
	Reason          string
	Actor           string
}

// ExecuteRollback re-points Alias at PreviousVersion. The previous
// version must exist and actually precede the alias's current version.
func (e *Executor) ExecuteRollback(ctx context.Context, in RollbackExec) (models.AuditRecord, error) {
	if in.PromptName == "" || in.Alias == "" {
		return models.AuditRecord{}, fmt.Errorf("promptName and alias required")
	}
	if in.PreviousVersion < 1 {
		return models.AuditRecord{}, ErrInvalidRollback
	}

	current, err := e.registry.GetAlias(ctx, in.PromptName, in.Alias)
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("resolve %s@%s: %w", in.PromptName, in.Alias, err)
	}
	if in.PreviousVersion >= current.Version {
		return models.AuditRecord{}, ErrInvalidRollback
	}
	if _, err := e.registry.ListVersions(ctx, in.PromptName); err != nil {
		return models.AuditRecord{}, fmt.Errorf("list versions for %s: %w", in.PromptName, err)
	}

	if err := e.registry.SetAlias(ctx, in.PromptName, in.Alias, in.PreviousVersion); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return models.AuditRecord{}, ErrInvalidRollback
		}
		return models.AuditRecord{}, fmt.Errorf("set alias: %w", err)
	}

	record := models.AuditRecord{
		ID:          uuid.New(),
		Action:      models.AuditActionRollback,
		PromptName:  in.PromptName,
		FromVersion: current.Version,
		ToVersion:   in.PreviousVersion,
		Alias:       in.Alias,
		Actor:       in.Actor,
		Reason:      in.Reason,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.audit.Append(ctx, record); err != nil {
		return models.AuditRecord{}, fmt.Errorf("append audit record: %w", err)
	}
	return record, nil
}
