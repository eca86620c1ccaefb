package suite

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgate/promptgate/internal/evalexec"
	"github.com/promptgate/promptgate/internal/history"
	"github.com/promptgate/promptgate/internal/models"
	"github.com/promptgate/promptgate/internal/regress"
)

// stubRunner returns scripted results per dataset and can hold runs open
// until released, to observe in-flight state.
type stubRunner struct {
	mu      sync.Mutex
	results map[string]evalexec.RunResult
	errs    map[string]error
	gate    chan struct{}
}

func (s *stubRunner) Run(ctx context.Context, datasetID string) (evalexec.RunResult, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[datasetID]; ok {
		return evalexec.RunResult{}, err
	}
	return s.results[datasetID], nil
}

func newOrchestrator(runner evalexec.Runner, reader *history.MemoryReader) *Orchestrator {
	detector := regress.NewDetector(reader, regress.Policy{DefaultThreshold: 0.8}, 2.0)
	return NewOrchestrator(runner, detector, reader, log.New(io.Discard, "", 0))
}

func waitForTerminal(t *testing.T, o *Orchestrator) models.SuiteJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		job, ok := o.GetStatus()
		if ok && job.Status != models.SuiteStatusRunning {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("suite run did not finish")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartRunCompletesAndAttachesRegressions(t *testing.T) {
	reader := history.NewMemoryReader()
	// Pre-existing history so the detector has a baseline for "tone".
	reader.Append(models.TrendPoint{
		RunID: "tone-old", Timestamp: time.Now().Add(-time.Hour).UTC(),
		EvalType: "tone", PassRate: 0.90, Status: models.RunStatusComplete,
	})

	runner := &stubRunner{results: map[string]evalexec.RunResult{
		"tone": {RunID: "tone-new", PassRate: 0.70, TotalCases: 20, Status: models.RunStatusComplete},
	}}
	o := newOrchestrator(runner, reader)

	job, err := o.StartRun("nightly", []string{"tone"}, "scheduler")
	require.NoError(t, err)
	assert.Equal(t, models.SuiteStatusRunning, job.Status)
	assert.Equal(t, 1, job.Total)
	assert.Equal(t, 0, job.Completed)

	final := waitForTerminal(t, o)
	assert.Equal(t, models.SuiteStatusCompleted, final.Status)
	assert.Equal(t, 1, final.Completed)
	require.Len(t, final.Results, 1)
	assert.Equal(t, "tone-new", final.Results[0].RunID)
	require.NotNil(t, final.Regressions)
	assert.True(t, final.Regressions.HasRegressions)
	require.NotNil(t, final.FinishedAt)
}

func TestStartRunConflictWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	runner := &stubRunner{
		results: map[string]evalexec.RunResult{"tone": {RunID: "r", Status: models.RunStatusComplete}},
		gate:    gate,
	}
	o := newOrchestrator(runner, history.NewMemoryReader())

	_, err := o.StartRun("nightly", []string{"tone"}, "scheduler")
	require.NoError(t, err)

	_, err = o.StartRun("nightly", []string{"tone"}, "scheduler")
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(gate)
	final := waitForTerminal(t, o)
	assert.Equal(t, models.SuiteStatusCompleted, final.Status)

	// Slot released once the job left running.
	_, err = o.StartRun("nightly", []string{"tone"}, "scheduler")
	require.NoError(t, err)
	waitForTerminal(t, o)
}

func TestDatasetFailureIsRecordedNotFatal(t *testing.T) {
	runner := &stubRunner{
		results: map[string]evalexec.RunResult{
			"tone": {RunID: "tone-1", PassRate: 0.9, Status: models.RunStatusComplete},
		},
		errs: map[string]error{
			"routing": fmt.Errorf("dataset routing exploded"),
		},
	}
	o := newOrchestrator(runner, history.NewMemoryReader())

	_, err := o.StartRun("nightly", []string{"tone", "routing"}, "scheduler")
	require.NoError(t, err)

	final := waitForTerminal(t, o)
	assert.Equal(t, models.SuiteStatusCompleted, final.Status)
	assert.Equal(t, 2, final.Completed)
	require.Len(t, final.Results, 2)

	byDataset := map[string]models.DatasetResult{}
	for _, r := range final.Results {
		byDataset[r.DatasetID] = r
	}
	assert.Equal(t, models.RunStatusComplete, byDataset["tone"].Status)
	assert.Equal(t, models.RunStatusError, byDataset["routing"].Status)
	assert.Contains(t, byDataset["routing"].Error, "exploded")
}

func TestStartRunRequiresDatasets(t *testing.T) {
	o := newOrchestrator(&stubRunner{}, history.NewMemoryReader())
	_, err := o.StartRun("nightly", nil, "scheduler")
	assert.Error(t, err)
}

func TestGetStatusBeforeAnyRun(t *testing.T) {
	o := newOrchestrator(&stubRunner{}, history.NewMemoryReader())
	_, ok := o.GetStatus()
	assert.False(t, ok)
}

func TestCompletedRunsFeedHistory(t *testing.T) {
	reader := history.NewMemoryReader()
	runner := &stubRunner{results: map[string]evalexec.RunResult{
		"tone": {RunID: "tone-1", PassRate: 0.9, Status: models.RunStatusComplete,
			ArtifactVersions: map[string]string{"tone-guard": "2"}},
	}}
	o := newOrchestrator(runner, reader)

	_, err := o.StartRun("nightly", []string{"tone"}, "scheduler")
	require.NoError(t, err)
	waitForTerminal(t, o)

	points, err := reader.QueryRuns(context.Background(), "tone", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "tone-1", points[0].RunID)
	assert.Equal(t, "2", points[0].ArtifactVersions["tone-guard"])
}
