// Package suite owns the single-flight background suite run: claim the
// job slot, execute every dataset against the eval service, then run the
// regression detector across all eval types.
package suite

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptgate/promptgate/internal/evalexec"
	"github.com/promptgate/promptgate/internal/models"
	"github.com/promptgate/promptgate/internal/regress"
)

var ErrRunInProgress = errors.New("a suite run is already in progress")

// Recorder receives completed run results, feeding the run history so the
// detector and gate see them. Optional.
type Recorder interface {
	Append(p models.TrendPoint)
}

// Orchestrator serializes suite runs process-wide: at most one job is in
// the running state at any time, and progress is observed by polling.
type Orchestrator struct {
	runner   evalexec.Runner
	detector *regress.Detector
	recorder Recorder
	logger   *log.Logger

	mu  sync.Mutex
	job *models.SuiteJob
}

func NewOrchestrator(runner evalexec.Runner, detector *regress.Detector, recorder Recorder, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stdout, "[suite] ", log.LstdFlags)
	}
	return &Orchestrator{
		runner:   runner,
		detector: detector,
		recorder: recorder,
		logger:   logger,
	}
}

// StartRun claims the job slot and launches the run in the background,
// returning the initial job snapshot immediately. A second StartRun while
// one is running fails fast with ErrRunInProgress; nothing queues.
func (o *Orchestrator) StartRun(suiteName string, datasets []string, actor string) (models.SuiteJob, error) {
	if len(datasets) == 0 {
		return models.SuiteJob{}, errors.New("at least one dataset required")
	}

	o.mu.Lock()
	if o.job != nil && o.job.Status == models.SuiteStatusRunning {
		o.mu.Unlock()
		return models.SuiteJob{}, ErrRunInProgress
	}
	job := &models.SuiteJob{
		RunID:     uuid.New(),
		SuiteName: suiteName,
		Status:    models.SuiteStatusRunning,
		Total:     len(datasets),
		StartedAt: time.Now().UTC(),
		Actor:     actor,
	}
	o.job = job
	snapshot := cloneJob(job)
	o.mu.Unlock()

	// The run outlives the request that started it; status polls must not
	// block behind it.
	go o.run(context.Background(), job.RunID, datasets)

	return snapshot, nil
}

// GetStatus returns a snapshot of the in-flight or most recently finished
// job. ok is false when no run has ever been started.
func (o *Orchestrator) GetStatus() (models.SuiteJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.job == nil {
		return models.SuiteJob{}, false
	}
	return cloneJob(o.job), true
}

func (o *Orchestrator) run(ctx context.Context, runID uuid.UUID, datasets []string) {
	for _, datasetID := range datasets {
		result := o.runDataset(ctx, datasetID)
		o.mu.Lock()
		o.job.Results = append(o.job.Results, result)
		o.job.Completed++
		o.mu.Unlock()
	}

	set, err := o.detector.CheckAllRegressions(ctx, "")
	now := time.Now().UTC()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.job.FinishedAt = &now
	if err != nil {
		o.logger.Printf("suite %s: regression check failed: %v", runID, err)
		o.job.Status = models.SuiteStatusFailed
		return
	}
	o.job.Regressions = &set
	o.job.Status = models.SuiteStatusCompleted
}

// runDataset executes one dataset. A failure here is recorded on the job
// and does not abort the suite.
func (o *Orchestrator) runDataset(ctx context.Context, datasetID string) models.DatasetResult {
	result, err := o.runner.Run(ctx, datasetID)
	if err != nil {
		o.logger.Printf("dataset %s failed: %v", datasetID, err)
		return models.DatasetResult{
			DatasetID: datasetID,
			Status:    models.RunStatusError,
			Error:     err.Error(),
		}
	}

	if o.recorder != nil {
		o.recorder.Append(models.TrendPoint{
			RunID:            result.RunID,
			Timestamp:        time.Now().UTC(),
			EvalType:         datasetID,
			PassRate:         result.PassRate,
			AverageScore:     result.AverageScore,
			TotalCases:       result.TotalCases,
			ErrorCases:       result.ErrorCases,
			ArtifactVersions: result.ArtifactVersions,
			Status:           result.Status,
		})
	}

	return models.DatasetResult{
		DatasetID:    datasetID,
		RunID:        result.RunID,
		PassRate:     result.PassRate,
		AverageScore: result.AverageScore,
		TotalCases:   result.TotalCases,
		ErrorCases:   result.ErrorCases,
		Status:       result.Status,
	}
}

func cloneJob(job *models.SuiteJob) models.SuiteJob {
	out := *job
	out.Results = append([]models.DatasetResult(nil), job.Results...)
	if job.Regressions != nil {
		set := models.RegressionSet{
			Reports:        append([]models.RegressionReport(nil), job.Regressions.Reports...),
			HasRegressions: job.Regressions.HasRegressions,
		}
		out.Regressions = &set
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
