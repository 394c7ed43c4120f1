package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// InsertOperation stores a freshly queued operation.
func (r Repo) InsertOperation(ctx context.Context, op domain.Operation) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO operations(id, project_name, template, status, dry_run, canceled, error, result_json, actor_id, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		op.ID, op.ProjectName, nullable(op.Template), op.Status, boolInt(op.DryRun), boolInt(op.Canceled),
		nullable(op.Error), op.ResultJSON, nullable(op.ActorID), op.CreatedAt, op.UpdatedAt)
	return err
}

// UpdateOperationStatus moves an operation to a new status, optionally
// attaching an error, the final result JSON, and the finish time.
func (r Repo) UpdateOperationStatus(ctx context.Context, id, status, errMsg string, resultJSON *string, updatedAt string, finishedAt *string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE operations SET status=?, error=?, result_json=COALESCE(?, result_json), updated_at=?, finished_at=COALESCE(?, finished_at) WHERE id=?`,
		status, nullable(errMsg), resultJSON, updatedAt, finishedAt, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkOperationCanceled records a cancellation request. The run itself is
// not interrupted; this is a flag for the caller.
func (r Repo) MarkOperationCanceled(ctx context.Context, id, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE operations SET canceled=1, updated_at=? WHERE id=?`, updatedAt, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r Repo) GetOperation(ctx context.Context, id string) (domain.Operation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, project_name, COALESCE(template,''), status, dry_run, canceled, COALESCE(error,''), result_json, COALESCE(actor_id,''), created_at, updated_at, finished_at FROM operations WHERE id=?`, id)
	return scanOperation(row)
}

// ListOperations returns the most recent operations, newest first.
func (r Repo) ListOperations(ctx context.Context, limit int) ([]domain.Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id, project_name, COALESCE(template,''), status, dry_run, canceled, COALESCE(error,''), result_json, COALESCE(actor_id,''), created_at, updated_at, finished_at FROM operations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Operation
	for rows.Next() {
		op, err := scanOperationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// AppendPhase persists one phase log entry for an operation.
func (r Repo) AppendPhase(ctx context.Context, p domain.Phase) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO operation_phases(operation_id, seq, name, status, result_json, error, ts) VALUES (?,?,?,?,?,?,?)`,
		p.OperationID, p.Seq, p.Name, p.Status, nullable(p.ResultJSON), nullable(p.Error), p.TS)
	return err
}

// ListPhases returns an operation's phase log in order.
func (r Repo) ListPhases(ctx context.Context, operationID string) ([]domain.Phase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, operation_id, seq, name, status, COALESCE(result_json,''), COALESCE(error,''), ts FROM operation_phases WHERE operation_id=? ORDER BY seq ASC`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Phase
	for rows.Next() {
		var p domain.Phase
		if err := rows.Scan(&p.ID, &p.OperationID, &p.Seq, &p.Name, &p.Status, &p.ResultJSON, &p.Error, &p.TS); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// EventsAfter returns up to limit events with id greater than after,
// optionally filtered by operation.
func (r Repo) EventsAfter(ctx context.Context, limit int, after int64, operationID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, ts, type, COALESCE(operation_id,''), entity_kind, COALESCE(entity_id,''), actor_id, payload_json FROM events WHERE id>?`
	args := []any{after}
	if operationID != "" {
		query += ` AND operation_id=?`
		args = append(args, operationID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OperationID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestEventID returns the newest event id, or zero when the stream is
// empty.
func (r Repo) LatestEventID(ctx context.Context, operationID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if operationID != "" {
		query += ` WHERE operation_id=?`
		args = append(args, operationID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func scanOperation(row *sql.Row) (domain.Operation, error) {
	var op domain.Operation
	var dryRun, canceled int
	err := row.Scan(&op.ID, &op.ProjectName, &op.Template, &op.Status, &dryRun, &canceled, &op.Error, &op.ResultJSON, &op.ActorID, &op.CreatedAt, &op.UpdatedAt, &op.FinishedAt)
	if err == sql.ErrNoRows {
		return op, ErrNotFound
	}
	if err != nil {
		return op, err
	}
	op.DryRun = dryRun != 0
	op.Canceled = canceled != 0
	return op, nil
}

func scanOperationRows(rows *sql.Rows) (domain.Operation, error) {
	var op domain.Operation
	var dryRun, canceled int
	if err := rows.Scan(&op.ID, &op.ProjectName, &op.Template, &op.Status, &dryRun, &canceled, &op.Error, &op.ResultJSON, &op.ActorID, &op.CreatedAt, &op.UpdatedAt, &op.FinishedAt); err != nil {
		return op, err
	}
	op.DryRun = dryRun != 0
	op.Canceled = canceled != 0
	return op, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
