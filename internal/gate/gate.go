// Package gate enforces the multi-criteria release policy ahead of a
// promotion. Checking is side-effect-free; execution lives in release.
package gate

import (
	"context"
	"fmt"
	"sort"

	"github.com/promptgate/promptgate/internal/history"
	"github.com/promptgate/promptgate/internal/models"
	"github.com/promptgate/promptgate/internal/regress"
	"github.com/promptgate/promptgate/internal/registry"
)

// Gate evaluates the latest run per eval type against policy thresholds.
type Gate struct {
	registry *registry.Registry
	history  history.Reader
	policy   regress.Policy
}

func New(reg *registry.Registry, reader history.Reader, policy regress.Policy) *Gate {
	return &Gate{registry: reg, history: reader, policy: policy}
}

// CheckGate resolves the candidate version (from fromAlias when version
// is 0) and records a per-eval-type check for every type the policy
// tracks. allowed is true only when every check passes. Never mutates
// the artifact store.
func (g *Gate) CheckGate(ctx context.Context, promptName, fromAlias, toAlias string, version int) (models.PromotionResult, error) {
	if promptName == "" || toAlias == "" {
		return models.PromotionResult{}, fmt.Errorf("promptName and toAlias required")
	}
	if version == 0 {
		a, err := g.registry.GetAlias(ctx, promptName, fromAlias)
		if err != nil {
			return models.PromotionResult{}, fmt.Errorf("resolve %s@%s: %w", promptName, fromAlias, err)
		}
		version = a.Version
	}

	result := models.PromotionResult{
		Allowed:    true,
		PromptName: promptName,
		FromAlias:  fromAlias,
		ToAlias:    toAlias,
		Version:    version,
	}

	evalTypes := make([]string, 0, len(g.policy.Thresholds))
	for evalType := range g.policy.Thresholds {
		evalTypes = append(evalTypes, evalType)
	}
	sort.Strings(evalTypes)

	for _, evalType := range evalTypes {
		threshold := g.policy.ThresholdFor(evalType)
		check := models.GateCheck{EvalType: evalType, Threshold: threshold}

		points, err := g.history.QueryRuns(ctx, evalType, 1)
		if err != nil {
			return models.PromotionResult{}, fmt.Errorf("latest run for %s: %w", evalType, err)
		}
		if len(points) > 0 {
			latest := points[len(points)-1]
			check.PassRate = latest.PassRate
			check.RunID = latest.RunID
			check.Passed = latest.PassRate >= threshold
		}

		result.Checks = append(result.Checks, check)
		if check.Passed {
			result.JustifyingRunIDs = append(result.JustifyingRunIDs, check.RunID)
		} else {
			result.Allowed = false
			result.BlockingEvalTypes = append(result.BlockingEvalTypes, evalType)
		}
	}
	return result, nil
}
