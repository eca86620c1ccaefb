// Package regress classifies pass-rate movement between a baseline run
// and the current run into deterministic verdicts.
package regress

import (
	"context"
	"fmt"

	"github.com/promptgate/promptgate/internal/history"
	"github.com/promptgate/promptgate/internal/models"
	"github.com/promptgate/promptgate/internal/trend"
)

// DefaultTolerancePp is the delta band, in percentage points, treated as
// noise when classifying WARNING and IMPROVED.
const DefaultTolerancePp = 2.0

// Policy supplies per-eval-type pass-rate thresholds.
type Policy struct {
	Thresholds       map[string]float64
	DefaultThreshold float64
}

// ThresholdFor returns the configured threshold for evalType.
func (p Policy) ThresholdFor(evalType string) float64 {
	if t, ok := p.Thresholds[evalType]; ok {
		return t
	}
	return p.DefaultThreshold
}

// Compare classifies the movement from baseline to current against
// threshold. Verdict precedence: REGRESSION, WARNING, IMPROVED, PASS.
// Pure function of its inputs; tolerancePp <= 0 selects the default band.
func Compare(evalType string, baseline, current models.TrendPoint, threshold, tolerancePp float64) models.RegressionReport {
	if tolerancePp <= 0 {
		tolerancePp = DefaultTolerancePp
	}
	deltaPp := (current.PassRate - baseline.PassRate) * 100

	var verdict string
	switch {
	case current.PassRate < threshold && deltaPp < 0:
		verdict = models.VerdictRegression
	case current.PassRate < threshold:
		verdict = models.VerdictWarning
	case deltaPp < -tolerancePp:
		verdict = models.VerdictWarning
	case deltaPp > tolerancePp:
		verdict = models.VerdictImproved
	default:
		verdict = models.VerdictPass
	}

	return models.RegressionReport{
		EvalType:         evalType,
		BaselineRunID:    baseline.RunID,
		CurrentRunID:     current.RunID,
		BaselinePassRate: baseline.PassRate,
		CurrentPassRate:  current.PassRate,
		DeltaPp:          deltaPp,
		Threshold:        threshold,
		Verdict:          verdict,
		ChangedPrompts:   trend.DiffVersions(baseline, current),
	}
}

// Detector runs comparisons across every eval type in the run history.
type Detector struct {
	history     history.Reader
	policy      Policy
	tolerancePp float64
}

func NewDetector(reader history.Reader, policy Policy, tolerancePp float64) *Detector {
	if tolerancePp <= 0 {
		tolerancePp = DefaultTolerancePp
	}
	return &Detector{history: reader, policy: policy, tolerancePp: tolerancePp}
}

// CheckAllRegressions compares the two most recent complete runs of every
// known eval type (or just evalTypeFilter when non-empty). Types with
// fewer than two complete points are insufficient data and are excluded,
// not reported as errors.
func (d *Detector) CheckAllRegressions(ctx context.Context, evalTypeFilter string) (models.RegressionSet, error) {
	evalTypes := []string{evalTypeFilter}
	if evalTypeFilter == "" {
		var err error
		evalTypes, err = d.history.EvalTypes(ctx)
		if err != nil {
			return models.RegressionSet{}, fmt.Errorf("list eval types: %w", err)
		}
	}

	set := models.RegressionSet{Reports: []models.RegressionReport{}}
	for _, evalType := range evalTypes {
		points, err := d.history.QueryRuns(ctx, evalType, 0)
		if err != nil {
			return models.RegressionSet{}, fmt.Errorf("query runs for %s: %w", evalType, err)
		}
		var complete []models.TrendPoint
		for _, p := range points {
			if p.Status == models.RunStatusComplete {
				complete = append(complete, p)
			}
		}
		if len(complete) < 2 {
			continue
		}
		baseline := complete[len(complete)-2]
		current := complete[len(complete)-1]
		report := Compare(evalType, baseline, current, d.policy.ThresholdFor(evalType), d.tolerancePp)
		set.Reports = append(set.Reports, report)
		if report.Verdict == models.VerdictRegression {
			set.HasRegressions = true
		}
	}
	return set, nil
}
