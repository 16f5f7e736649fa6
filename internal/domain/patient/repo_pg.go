package patient

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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, mrn, admission_id, first_name, last_name, age, gender,
	address, phone, emergency_contact, medical_history, allergies,
	current_diagnosis, existing_conditions, last_visit,
	discharge_status, ready_for_discharge_eval, extraction_completed, tasks_generated,
	blockers, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.AdmissionID, &p.FirstName, &p.LastName, &p.Age, &p.Gender,
		&p.Address, &p.Phone, &p.EmergencyContact, &p.MedicalHistory, &p.Allergies,
		&p.CurrentDiagnosis, &p.ExistingConditions, &p.LastVisit,
		&p.DischargeStatus, &p.ReadyForEval, &p.ExtractionCompleted, &p.TasksGenerated,
		&p.Blockers, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, mrn, admission_id, first_name, last_name, age, gender,
			address, phone, emergency_contact, medical_history, allergies,
			current_diagnosis, existing_conditions, last_visit, discharge_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.MRN, p.AdmissionID, p.FirstName, p.LastName, p.Age, p.Gender,
		p.Address, p.Phone, p.EmergencyContact, p.MedicalHistory, p.Allergies,
		p.CurrentDiagnosis, p.ExistingConditions, p.LastVisit, DischargePending)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE mrn = $1`, mrn))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, age=$4, gender=$5,
			address=$6, phone=$7, emergency_contact=$8, medical_history=$9,
			allergies=$10, current_diagnosis=$11, existing_conditions=$12,
			last_visit=$13, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Age, p.Gender,
		p.Address, p.Phone, p.EmergencyContact, p.MedicalHistory,
		p.Allergies, p.CurrentDiagnosis, p.ExistingConditions, p.LastVisit)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *patientRepoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + query + "%"
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patient
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR mrn ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR mrn ILIKE $1
		ORDER BY last_name, first_name LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *patientRepoPG) UpdateDischargeState(ctx context.Context, id uuid.UUID, st DischargeState) error {
	blockers := st.Blockers
	if blockers == nil {
		blockers = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET discharge_status=$2, ready_for_discharge_eval=$3,
			extraction_completed=$4, tasks_generated=$5, blockers=$6, updated_at=NOW()
		WHERE id = $1`,
		id, st.Status, st.ReadyForEval, st.ExtractionCompleted, st.TasksGenerated, blockers)
	return err
}
