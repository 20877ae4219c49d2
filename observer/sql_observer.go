package observer

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/pipeline"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the pipeline_run and pipeline_run_stage tables if missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// SQLObserver persists pipeline and stage execution (pipeline_run,
// pipeline_run_stage). Payloads are stored as JSON summaries (type, rows,
// columns, image count); pixel data is never written.
type SQLObserver struct {
	db      *sql.DB
	now     func() time.Time
	marshal func(v interface{}) ([]byte, error)
}

// NewSQLObserver returns an Observer writing to db. Call Migrate first.
func NewSQLObserver(db *sql.DB) *SQLObserver {
	return &SQLObserver{db: db, now: func() time.Time { return time.Now().UTC() }, marshal: json.Marshal}
}

// BeforePipeline upserts the run with status 'running' so a repeated run ID
// overwrites the earlier attempt.
func (o *SQLObserver) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	payloadJSON, err := o.summary(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	_, err = o.db.ExecContext(ctx, `
		INSERT INTO pipeline_run (run_id, name, status, payload, started_at)
		VALUES (?, ?, 'running', ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			name = excluded.name, status = 'running', payload = excluded.payload,
			result = NULL, error = NULL, started_at = excluded.started_at, finished_at = NULL`,
		runID, name, payloadJSON, o.now())
	return errors.Wrapf(err, "upsert pipeline_run %s", runID)
}

func (o *SQLObserver) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	resultJSON, marshalErr := o.summary(result)
	_, execErr := o.db.ExecContext(ctx, `
		UPDATE pipeline_run SET status = ?, result = ?, error = ?, finished_at = ?
		WHERE run_id = ?`,
		status(err), resultJSON, errText(err), o.now(), runID)
	return errors.CombineErrors(
		errors.Wrap(marshalErr, "marshal result"),
		errors.Wrapf(execErr, "complete pipeline_run %s", runID))
}

func (o *SQLObserver) BeforeStage(ctx context.Context, runID string, stageIndex int, stage pipeline.StageInfo, input interface{}) error {
	inputJSON, err := o.summary(input)
	if err != nil {
		return errors.Wrap(err, "marshal stage input")
	}
	_, err = o.db.ExecContext(ctx, `
		INSERT INTO pipeline_run_stage (pipeline_run_id, stage_index, stage_name, policy, status, input_json)
		VALUES (?, ?, ?, ?, 'running', ?)
		ON CONFLICT (pipeline_run_id, stage_index) DO UPDATE SET
			stage_name = excluded.stage_name, policy = excluded.policy, status = 'running',
			input_json = excluded.input_json, output_json = NULL, error = NULL, duration_ms = NULL`,
		runID, stageIndex, stage.Name, stage.Policy.String(), inputJSON)
	return errors.Wrapf(err, "insert stage %d", stageIndex)
}

func (o *SQLObserver) AfterStage(ctx context.Context, runID string, stageIndex int, stage pipeline.StageInfo, input, output interface{}, stageErr error, duration time.Duration) error {
	outputJSON, marshalErr := o.summary(output)
	_, err := o.db.ExecContext(ctx, `
		UPDATE pipeline_run_stage SET status = ?, output_json = ?, error = ?, duration_ms = ?
		WHERE pipeline_run_id = ? AND stage_index = ?`,
		status(stageErr), outputJSON, errText(stageErr), duration.Milliseconds(), runID, stageIndex)
	return errors.CombineErrors(
		errors.Wrap(marshalErr, "marshal stage output"),
		errors.Wrapf(err, "update stage %d", stageIndex))
}

// RunRecord is a stored pipeline_run row.
type RunRecord struct {
	RunID      string
	Name       string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// StageRecord is a stored pipeline_run_stage row.
type StageRecord struct {
	Index      int
	Name       string
	Policy     string
	Status     string
	Error      string
	DurationMs int64
}

// Runs returns the most recent runs, newest first.
func (o *SQLObserver) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT run_id, name, status, error, started_at, finished_at
		FROM pipeline_run ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var (
			r        RunRecord
			errCol   sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&r.RunID, &r.Name, &r.Status, &errCol, &r.StartedAt, &finished); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.Error = errCol.String
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}

// Stages returns the stages recorded for runID in execution order.
func (o *SQLObserver) Stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT stage_index, stage_name, policy, status, error, duration_ms
		FROM pipeline_run_stage WHERE pipeline_run_id = ? ORDER BY stage_index`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "query stages for %s", runID)
	}
	defer rows.Close()
	var out []StageRecord
	for rows.Next() {
		var (
			s        StageRecord
			errCol   sql.NullString
			duration sql.NullInt64
		)
		if err := rows.Scan(&s.Index, &s.Name, &s.Policy, &s.Status, &errCol, &duration); err != nil {
			return nil, errors.Wrap(err, "scan stage")
		}
		s.Error, s.DurationMs = errCol.String, duration.Int64
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate stages")
}

// summary returns the JSON summary of v, or nil when v is nil. A summary
// that cannot be marshalled is stored as NULL.
func (o *SQLObserver) summary(v interface{}) (interface{}, error) {
	s := describe(v)
	if s == nil {
		return nil, nil
	}
	b, err := o.marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func errText(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}

var _ pipeline.Observer = (*SQLObserver)(nil)
