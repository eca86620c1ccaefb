package release

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgate/promptgate/internal/audit"
	"github.com/promptgate/promptgate/internal/models"
	"github.com/promptgate/promptgate/internal/registry"
)

func setup(t *testing.T, versions int) (*Executor, *registry.Registry, *audit.MemoryStore) {
	t.Helper()
	reg := registry.New(registry.NewMemoryStore(), registry.Config{
		Logger: log.New(io.Discard, "", 0),
	})
	ctx := context.Background()
	for i := 0; i < versions; i++ {
		_, err := reg.Register(ctx, "orchestrator-base", "template", "", nil)
		require.NoError(t, err)
	}
	store := audit.NewMemoryStore()
	exec := NewExecutor(reg, audit.NewLog(store, nil, nil, log.New(io.Discard, "", 0)))
	return exec, reg, store
}

func TestExecutePromotionAppendsAudit(t *testing.T) {
	ctx := context.Background()
	exec, reg, store := setup(t, 3)
	require.NoError(t, reg.SetAlias(ctx, "orchestrator-base", "stable", 1))

	record, err := exec.ExecutePromotion(ctx, PromotionExec{
		PromptName:       "orchestrator-base",
		ToAlias:          "stable",
		Version:          3,
		Actor:            "release-bot",
		JustifyingRunIDs: []string{"run-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionPromote, record.Action)
	assert.Equal(t, 1, record.FromVersion)
	assert.Equal(t, 3, record.ToVersion)
	assert.Equal(t, "release-bot", record.Actor)
	assert.False(t, record.Forced)

	a, err := reg.GetAlias(ctx, "orchestrator-base", "stable")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Version)

	records, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestExecutePromotionUnknownVersion(t *testing.T) {
	ctx := context.Background()
	exec, _, store := setup(t, 1)

	_, err := exec.ExecutePromotion(ctx, PromotionExec{
		PromptName: "orchestrator-base",
		ToAlias:    "stable",
		Version:    5,
		Actor:      "release-bot",
	})
	assert.ErrorIs(t, err, ErrInvalidVersion)

	records, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records, "failed promotion must not leave an audit record")
}

func TestForcedPromotionRequiresReason(t *testing.T) {
	ctx := context.Background()
	exec, _, _ := setup(t, 2)

	_, err := exec.ExecutePromotion(ctx, PromotionExec{
		PromptName: "orchestrator-base",
		ToAlias:    "stable",
		Version:    2,
		Actor:      "release-bot",
		Forced:     true,
	})
	assert.Error(t, err)
}

func TestForcedPromotionRecordsReasonVerbatim(t *testing.T) {
	ctx := context.Background()
	exec, _, _ := setup(t, 2)

	record, err := exec.ExecutePromotion(ctx, PromotionExec{
		PromptName: "orchestrator-base",
		ToAlias:    "stable",
		Version:    2,
		Actor:      "oncall",
		Forced:     true,
		Reason:     "known false positive",
	})
	require.NoError(t, err)
	assert.True(t, record.Forced)
	assert.Equal(t, "known false positive", record.Reason)
}

func TestFindPreviousVersion(t *testing.T) {
	ctx := context.Background()
	exec, reg, _ := setup(t, 3)
	require.NoError(t, reg.SetAlias(ctx, "orchestrator-base", "stable", 3))

	previous, ok, err := exec.FindPreviousVersion(ctx, "orchestrator-base", "stable")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, previous)
}

func TestFindPreviousVersionAtVersionOne(t *testing.T) {
	ctx := context.Background()
	exec, reg, _ := setup(t, 1)
	require.NoError(t, reg.SetAlias(ctx, "orchestrator-base", "stable", 1))

	_, ok, err := exec.FindPreviousVersion(ctx, "orchestrator-base", "stable")
	require.NoError(t, err)
	assert.False(t, ok, "version 1 has no predecessor")
}

func TestExecuteRollback(t *testing.T) {
	ctx := context.Background()
	exec, reg, _ := setup(t, 2)
	require.NoError(t, reg.SetAlias(ctx, "orchestrator-base", "stable", 2))

	record, err := exec.ExecuteRollback(ctx, RollbackExec{
		PromptName:      "orchestrator-base",
		Alias:           "stable",
		PreviousVersion: 1,
		Reason:          "regression in tone suite",
		Actor:           "oncall",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionRollback, record.Action)
	assert.Equal(t, 2, record.FromVersion)
	assert.Equal(t, 1, record.ToVersion)

	a, err := reg.GetAlias(ctx, "orchestrator-base", "stable")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version)
}

func TestExecuteRollbackInvalid(t *testing.T) {
	ctx := context.Background()
	exec, reg, store := setup(t, 1)
	require.NoError(t, reg.SetAlias(ctx, "orchestrator-base", "stable", 1))

	_, err := exec.ExecuteRollback(ctx, RollbackExec{
		PromptName:      "orchestrator-base",
		Alias:           "stable",
		PreviousVersion: 0,
		Reason:          "attempt",
		Actor:           "oncall",
	})
	assert.ErrorIs(t, err, ErrInvalidRollback)

	// Rolling "back" to the current or a newer version is also invalid.
	_, err = exec.ExecuteRollback(ctx, RollbackExec{
		PromptName:      "orchestrator-base",
		Alias:           "stable",
		PreviousVersion: 1,
		Reason:          "attempt",
		Actor:           "oncall",
	})
	assert.ErrorIs(t, err, ErrInvalidRollback)

	records, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
