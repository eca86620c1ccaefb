// Package trend classifies quality direction from ordered run histories.
package trend

import (
	"sort"

	"github.com/promptgate/promptgate/internal/models"
)

// DefaultStableMarginPp is the noise band, in percentage points, inside
// which the latest pass rate counts as stable.
const DefaultStableMarginPp = 2.0

// Config parameterizes direction classification.
type Config struct {
	// StableMarginPp is the pp margin the latest pass rate must exceed
	// (against the mean of all preceding points) to count as improving
	// or degrading. <= 0 selects DefaultStableMarginPp.
	StableMarginPp float64
}

// BuildSummary derives a TrendSummary from points ordered by time, most
// recent last. Pure function; no I/O.
func BuildSummary(evalType string, points []models.TrendPoint, cfg Config) models.TrendSummary {
	margin := cfg.StableMarginPp
	if margin <= 0 {
		margin = DefaultStableMarginPp
	}

	summary := models.TrendSummary{
		EvalType:       evalType,
		TrendDirection: models.TrendStable,
		RunCount:       len(points),
		Points:         points,
		PromptChanges:  DetectChanges(points),
	}
	if len(points) == 0 {
		return summary
	}

	latest := points[len(points)-1]
	summary.LatestPassRate = latest.PassRate
	if len(points) < 2 {
		return summary
	}

	var sum float64
	for _, p := range points[:len(points)-1] {
		sum += p.PassRate
	}
	baseline := sum / float64(len(points)-1)

	deltaPp := (latest.PassRate - baseline) * 100
	switch {
	case deltaPp > margin:
		summary.TrendDirection = models.TrendImproving
	case deltaPp < -margin:
		summary.TrendDirection = models.TrendDegrading
	}
	return summary
}

// DetectChanges walks consecutive point pairs and emits one PromptChange
// for every prompt whose artifact version differs between them, attributed
// to the later point.
func DetectChanges(points []models.TrendPoint) []models.PromptChange {
	var changes []models.PromptChange
	for i := 1; i < len(points); i++ {
		changes = append(changes, DiffVersions(points[i-1], points[i])...)
	}
	return changes
}

// DiffVersions compares the artifact versions of exactly one point pair.
func DiffVersions(earlier, later models.TrendPoint) []models.PromptChange {
	names := make([]string, 0, len(later.ArtifactVersions))
	for name := range later.ArtifactVersions {
		names = append(names, name)
	}
	sort.Strings(names)

	var changes []models.PromptChange
	for _, name := range names {
		from, ok := earlier.ArtifactVersions[name]
		if !ok {
			continue
		}
		to := later.ArtifactVersions[name]
		if from == to {
			continue
		}
		changes = append(changes, models.PromptChange{
			Timestamp:   later.Timestamp,
			RunID:       later.RunID,
			PromptName:  name,
			FromVersion: from,
			ToVersion:   to,
		})
	}
	return changes
}
