// Package models contains the canonical types shared across the release pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// PromptVersion is an immutable snapshot of a named prompt template.
// Once registered, Template and ModelConfig never change.
type PromptVersion struct {
	Name          string            `json:"name"`
	Version       int               `json:"version"`
	Template      string            `json:"template"`
	ModelConfig   map[string]string `json:"modelConfig,omitempty"`
	CommitMessage string            `json:"commitMessage,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Alias is a mutable named pointer from (prompt, alias) to one version.
type Alias struct {
	PromptName string    `json:"promptName"`
	Alias      string    `json:"alias"`
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// LoadedPrompt is the result of resolving a prompt by alias or version.
// IsFallback marks a bundled default served because the store was
// unreachable or the reference did not resolve.
type LoadedPrompt struct {
	Name        string            `json:"name"`
	Version     int               `json:"version"`
	Template    string            `json:"template"`
	ModelConfig map[string]string `json:"modelConfig,omitempty"`
	IsFallback  bool              `json:"isFallback"`
}

// Run statuses as reported by the eval execution service.
const (
	RunStatusComplete = "complete"
	RunStatusPartial  = "partial"
	RunStatusError    = "error"
)

// TrendPoint is one evaluation run's result for one eval type.
type TrendPoint struct {
	RunID            string            `json:"runId"`
	Timestamp        time.Time         `json:"timestamp"`
	EvalType         string            `json:"evalType"`
	PassRate         float64           `json:"passRate"`
	AverageScore     float64           `json:"averageScore"`
	TotalCases       int               `json:"totalCases"`
	ErrorCases       int               `json:"errorCases"`
	ArtifactVersions map[string]string `json:"artifactVersions,omitempty"`
	Status           string            `json:"status"`
}

// PromptChange records an artifact version transition observed between
// two consecutive runs.
type PromptChange struct {
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"runId"`
	PromptName  string    `json:"promptName"`
	FromVersion string    `json:"fromVersion"`
	ToVersion   string    `json:"toVersion"`
}

// Trend directions.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDegrading = "degrading"
)

// TrendSummary aggregates an ordered-by-time point sequence for one eval type.
type TrendSummary struct {
	EvalType       string         `json:"evalType"`
	LatestPassRate float64        `json:"latestPassRate"`
	TrendDirection string         `json:"trendDirection"`
	RunCount       int            `json:"runCount"`
	Points         []TrendPoint   `json:"points"`
	PromptChanges  []PromptChange `json:"promptChanges,omitempty"`
}

// Verdicts, strongest first.
const (
	VerdictRegression = "REGRESSION"
	VerdictWarning    = "WARNING"
	VerdictImproved   = "IMPROVED"
	VerdictPass       = "PASS"
)

// RegressionReport compares a baseline and a current run for one eval type.
type RegressionReport struct {
	EvalType         string         `json:"evalType"`
	BaselineRunID    string         `json:"baselineRunId"`
	CurrentRunID     string         `json:"currentRunId"`
	BaselinePassRate float64        `json:"baselinePassRate"`
	CurrentPassRate  float64        `json:"currentPassRate"`
	DeltaPp          float64        `json:"deltaPp"`
	Threshold        float64        `json:"threshold"`
	Verdict          string         `json:"verdict"`
	ChangedPrompts   []PromptChange `json:"changedPrompts,omitempty"`
}

// RegressionSet is the composite outcome of checking every eval type.
type RegressionSet struct {
	Reports        []RegressionReport `json:"reports"`
	HasRegressions bool               `json:"hasRegressions"`
}

// GateCheck is one per-eval-type policy check inside a PromotionResult.
type GateCheck struct {
	EvalType  string  `json:"evalType"`
	PassRate  float64 `json:"passRate"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
	RunID     string  `json:"runId"`
}

// PromotionResult is the outcome of a gate check. It carries no store
// mutations; execution happens separately.
type PromotionResult struct {
	Allowed           bool        `json:"allowed"`
	PromptName        string      `json:"promptName"`
	FromAlias         string      `json:"fromAlias"`
	ToAlias           string      `json:"toAlias"`
	Version           int         `json:"version"`
	Checks            []GateCheck `json:"checks"`
	BlockingEvalTypes []string    `json:"blockingEvalTypes,omitempty"`
	JustifyingRunIDs  []string    `json:"justifyingRunIds,omitempty"`
}

// Audit actions.
const (
	AuditActionPromote  = "promote"
	AuditActionRollback = "rollback"
)

// AuditRecord is the immutable log entry for an executed release action.
type AuditRecord struct {
	ID               uuid.UUID `json:"id"`
	Action           string    `json:"action"`
	PromptName       string    `json:"promptName"`
	FromVersion      int       `json:"fromVersion"`
	ToVersion        int       `json:"toVersion"`
	Alias            string    `json:"alias"`
	Actor            string    `json:"actor"`
	Reason           string    `json:"reason,omitempty"`
	Forced           bool      `json:"forced,omitempty"`
	JustifyingRunIDs []string  `json:"justifyingRunIds,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Suite job states.
const (
	SuiteStatusRunning   = "running"
	SuiteStatusCompleted = "completed"
	SuiteStatusFailed    = "failed"
)

// DatasetResult is the per-dataset outcome accumulated by a suite run.
type DatasetResult struct {
	DatasetID    string  `json:"datasetId"`
	RunID        string  `json:"runId,omitempty"`
	PassRate     float64 `json:"passRate"`
	AverageScore float64 `json:"averageScore"`
	TotalCases   int     `json:"totalCases"`
	ErrorCases   int     `json:"errorCases"`
	Status       string  `json:"status"`
	Error        string  `json:"error,omitempty"`
}

// SuiteJob is the single in-flight (or most recently finished) suite run.
type SuiteJob struct {
	RunID       uuid.UUID       `json:"runId"`
	SuiteName   string          `json:"suiteName"`
	Status      string          `json:"status"`
	Total       int             `json:"total"`
	Completed   int             `json:"completed"`
	Results     []DatasetResult `json:"results"`
	Regressions *RegressionSet  `json:"regressions,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	Actor       string          `json:"actor,omitempty"`
}
