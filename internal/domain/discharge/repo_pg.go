package discharge

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dischargeflow/dischargeflow/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// -- Tasks --

type taskRepoPG struct{ pool *pgxpool.Pool }

func NewTaskRepoPG(pool *pgxpool.Pool) TaskRepository { return &taskRepoPG{pool: pool} }

const taskCols = `id, patient_id, title, description, category, priority, status,
	agent, issue_code, deadline, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.PatientID, &t.Title, &t.Description, &t.Category, &t.Priority,
		&t.Status, &t.Agent, &t.IssueCode, &t.Deadline, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *taskRepoPG) ReplaceForPatient(ctx context.Context, patientID uuid.UUID, tasks []*Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM discharge_task WHERE patient_id = $1`, patientID); err != nil {
		return err
	}
	for _, t := range tasks {
		t.ID = uuid.New()
		t.PatientID = patientID
		if _, err := tx.Exec(ctx, `
			INSERT INTO discharge_task (id, patient_id, title, description, category, priority,
				status, agent, issue_code, deadline)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			t.ID, t.PatientID, t.Title, t.Description, t.Category, t.Priority,
			t.Status, t.Agent, t.IssueCode, t.Deadline); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *taskRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	return scanTask(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+taskCols+` FROM discharge_task WHERE id = $1`, id))
}

func (r *taskRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Task, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+taskCols+` FROM discharge_task WHERE patient_id = $1
		ORDER BY CASE priority
			WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3
		END, created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, nil
}

func (r *taskRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE discharge_task SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	return err
}

// -- Agent logs --

type agentLogRepoPG struct{ pool *pgxpool.Pool }

func NewAgentLogRepoPG(pool *pgxpool.Pool) AgentLogRepository { return &agentLogRepoPG{pool: pool} }

func (r *agentLogRepoPG) Create(ctx context.Context, l *AgentLog) error {
	l.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO agent_log (id, patient_id, agent_name, action, status, detail)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.PatientID, l.AgentName, l.Action, l.Status, l.Detail)
	return err
}

func (r *agentLogRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AgentLog, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, agent_name, action, status, detail, created_at
		FROM agent_log WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AgentLog
	for rows.Next() {
		var l AgentLog
		if err := rows.Scan(&l.ID, &l.PatientID, &l.AgentName, &l.Action, &l.Status, &l.Detail, &l.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, nil
}

// -- Extracted data --

type extractionRepoPG struct{ pool *pgxpool.Pool }

func NewExtractionRepoPG(pool *pgxpool.Pool) ExtractionRepository { return &extractionRepoPG{pool: pool} }

func (r *extractionRepoPG) Upsert(ctx context.Context, d *ExtractedData) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO extracted_data (patient_id, payload, reasoning, decision, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (patient_id) DO UPDATE
		SET payload = EXCLUDED.payload, reasoning = EXCLUDED.reasoning,
			decision = EXCLUDED.decision, updated_at = NOW()`,
		d.PatientID, d.Payload, d.Reasoning, d.Decision)
	return err
}

func (r *extractionRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*ExtractedData, error) {
	var d ExtractedData
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT patient_id, payload, reasoning, decision, updated_at
		FROM extracted_data WHERE patient_id = $1`, patientID).
		Scan(&d.PatientID, &d.Payload, &d.Reasoning, &d.Decision, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
