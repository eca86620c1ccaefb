package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/promptgate/promptgate/internal/models"
)

const defaultQueryLimit = 50

// PGReader reads eval run records out of Postgres.
type PGReader struct {
	db *sql.DB
}

func NewPGReader(db *sql.DB) *PGReader {
	return &PGReader{db: db}
}

func (r *PGReader) QueryRuns(ctx context.Context, evalType string, limit int) ([]models.TrendPoint, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	const query = `
		SELECT run_id, ts, eval_type, pass_rate, average_score, total_cases, error_cases, artifact_versions, status
		FROM eval_runs
		WHERE eval_type=$1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, evalType, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var points []models.TrendPoint
	for rows.Next() {
		var (
			p        models.TrendPoint
			versions []byte
		)
		if err := rows.Scan(&p.RunID, &p.Timestamp, &p.EvalType, &p.PassRate, &p.AverageScore,
			&p.TotalCases, &p.ErrorCases, &versions, &p.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if len(versions) > 0 {
			if err := json.Unmarshal(versions, &p.ArtifactVersions); err != nil {
				return nil, fmt.Errorf("decode artifact versions: %w", err)
			}
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	// Rows come newest-first; callers expect most-recent-last.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// PGWriter inserts suite run results into the run history. Insert
// failures are logged, not returned: a dropped history row must not fail
// the suite run that produced it.
type PGWriter struct {
	db     *sql.DB
	logger *log.Logger
}

func NewPGWriter(db *sql.DB, logger *log.Logger) *PGWriter {
	if logger == nil {
		logger = log.New(os.Stdout, "[history] ", log.LstdFlags)
	}
	return &PGWriter{db: db, logger: logger}
}

func (w *PGWriter) Append(p models.TrendPoint) {
	versions, err := json.Marshal(p.ArtifactVersions)
	if err != nil {
		w.logger.Printf("encode artifact versions for run %s: %v", p.RunID, err)
		return
	}
	const query = `
		INSERT INTO eval_runs (run_id, ts, eval_type, pass_rate, average_score, total_cases, error_cases, artifact_versions, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (run_id, eval_type) DO NOTHING
	`
	if _, err := w.db.ExecContext(context.Background(), query, p.RunID, p.Timestamp, p.EvalType,
		p.PassRate, p.AverageScore, p.TotalCases, p.ErrorCases, versions, p.Status); err != nil {
		w.logger.Printf("record run %s (%s): %v", p.RunID, p.EvalType, err)
	}
}

func (r *PGReader) EvalTypes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT eval_type FROM eval_runs ORDER BY eval_type`)
	if err != nil {
		return nil, fmt.Errorf("list eval types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan eval type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eval types: %w", err)
	}
	return types, nil
}
