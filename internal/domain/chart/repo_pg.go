package chart

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

// -- Labs --

type labRepoPG struct{ pool *pgxpool.Pool }

func NewLabRepoPG(pool *pgxpool.Pool) LabRepository { return &labRepoPG{pool: pool} }

const labCols = `id, patient_id, test_name, ordered_date, status, results, documents, created_at, updated_at`

func scanLab(row pgx.Row) (*LabTest, error) {
	var l LabTest
	err := row.Scan(&l.ID, &l.PatientID, &l.TestName, &l.OrderedDate, &l.Status,
		&l.Results, &l.Documents, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *labRepoPG) Create(ctx context.Context, l *LabTest) error {
	l.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lab_test (id, patient_id, test_name, ordered_date, status, results, documents)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.PatientID, l.TestName, l.OrderedDate, l.Status, l.Results, l.Documents)
	return err
}

func (r *labRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanLab(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+labCols+` FROM lab_test WHERE id = $1`, id))
}

func (r *labRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*LabTest, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+labCols+` FROM lab_test WHERE patient_id = $1 ORDER BY ordered_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LabTest
	for rows.Next() {
		l, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, nil
}

func (r *labRepoPG) Update(ctx context.Context, l *LabTest) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE lab_test SET test_name=$2, status=$3, results=$4, documents=$5, updated_at=NOW()
		WHERE id = $1`,
		l.ID, l.TestName, l.Status, l.Results, l.Documents)
	return err
}

// -- Medications --

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository { return &medicationRepoPG{pool: pool} }

const medicationCols = `id, patient_id, medication_name, dosage, frequency, prescribed_date,
	prescribed_by, status, instructions, refills, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.PatientID, &m.MedicationName, &m.Dosage, &m.Frequency, &m.PrescribedDate,
		&m.PrescribedBy, &m.Status, &m.Instructions, &m.Refills, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medication (id, patient_id, medication_name, dosage, frequency,
			prescribed_date, prescribed_by, status, instructions, refills)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.PatientID, m.MedicationName, m.Dosage, m.Frequency,
		m.PrescribedDate, m.PrescribedBy, m.Status, m.Instructions, m.Refills)
	return err
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return scanMedication(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+medicationCols+` FROM medication WHERE id = $1`, id))
}

func (r *medicationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+medicationCols+` FROM medication WHERE patient_id = $1 ORDER BY prescribed_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, nil
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE medication SET dosage=$2, frequency=$3, status=$4, instructions=$5, refills=$6, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Dosage, m.Frequency, m.Status, m.Instructions, m.Refills)
	return err
}

// -- Billing --

type billingRepoPG struct{ pool *pgxpool.Pool }

func NewBillingRepoPG(pool *pgxpool.Pool) BillingRepository { return &billingRepoPG{pool: pool} }

const billingCols = `id, patient_id, description, cost, status, date, created_at, updated_at`

func scanBillingItem(row pgx.Row) (*BillingItem, error) {
	var b BillingItem
	err := row.Scan(&b.ID, &b.PatientID, &b.Description, &b.Cost, &b.Status, &b.Date,
		&b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *billingRepoPG) Create(ctx context.Context, b *BillingItem) error {
	b.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO billing_item (id, patient_id, description, cost, status, date)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.PatientID, b.Description, b.Cost, b.Status, b.Date)
	return err
}

func (r *billingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BillingItem, error) {
	return scanBillingItem(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+billingCols+` FROM billing_item WHERE id = $1`, id))
}

func (r *billingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*BillingItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+billingCols+` FROM billing_item WHERE patient_id = $1 ORDER BY date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BillingItem
	for rows.Next() {
		b, err := scanBillingItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

func (r *billingRepoPG) Update(ctx context.Context, b *BillingItem) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE billing_item SET description=$2, cost=$3, status=$4, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.Description, b.Cost, b.Status)
	return err
}

// -- Insurance --

type insuranceRepoPG struct{ pool *pgxpool.Pool }

func NewInsuranceRepoPG(pool *pgxpool.Pool) InsuranceRepository { return &insuranceRepoPG{pool: pool} }

const insuranceCols = `id, patient_id, provider, policy_number, group_number, policy_holder,
	coverage_type, coverage_details, valid_from, valid_until, status,
	documents, claims, notes, created_at, updated_at`

func scanInsurance(row pgx.Row) (*Insurance, error) {
	var ins Insurance
	err := row.Scan(&ins.ID, &ins.PatientID, &ins.Provider, &ins.PolicyNumber, &ins.GroupNumber,
		&ins.PolicyHolder, &ins.CoverageType, &ins.CoverageDetails, &ins.ValidFrom, &ins.ValidUntil,
		&ins.Status, &ins.Documents, &ins.Claims, &ins.Notes, &ins.CreatedAt, &ins.UpdatedAt)
	return &ins, err
}

func (r *insuranceRepoPG) Create(ctx context.Context, ins *Insurance) error {
	ins.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO insurance (id, patient_id, provider, policy_number, group_number, policy_holder,
			coverage_type, coverage_details, valid_from, valid_until, status, documents, claims, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		ins.ID, ins.PatientID, ins.Provider, ins.PolicyNumber, ins.GroupNumber, ins.PolicyHolder,
		ins.CoverageType, ins.CoverageDetails, ins.ValidFrom, ins.ValidUntil, ins.Status,
		ins.Documents, ins.Claims, ins.Notes)
	return err
}

func (r *insuranceRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Insurance, error) {
	return scanInsurance(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+insuranceCols+` FROM insurance WHERE patient_id = $1`, patientID))
}

func (r *insuranceRepoPG) Update(ctx context.Context, ins *Insurance) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE insurance SET provider=$2, policy_number=$3, group_number=$4, policy_holder=$5,
			coverage_type=$6, coverage_details=$7, valid_from=$8, valid_until=$9, status=$10,
			documents=$11, claims=$12, notes=$13, updated_at=NOW()
		WHERE id = $1`,
		ins.ID, ins.Provider, ins.PolicyNumber, ins.GroupNumber, ins.PolicyHolder,
		ins.CoverageType, ins.CoverageDetails, ins.ValidFrom, ins.ValidUntil, ins.Status,
		ins.Documents, ins.Claims, ins.Notes)
	return err
}

func (r *insuranceRepoPG) Delete(ctx context.Context, patientID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM insurance WHERE patient_id = $1`, patientID)
	return err
}

// -- Notes --

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{pool: pool} }

const noteCols = `id, patient_id, type, author, content, created_at`

func (r *noteRepoPG) Create(ctx context.Context, n *Note) error {
	n.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO clinical_note (id, patient_id, type, author, content)
		VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.PatientID, n.Type, n.Author, n.Content)
	return err
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, noteType string) ([]*Note, error) {
	query := `SELECT ` + noteCols + ` FROM clinical_note WHERE patient_id = $1`
	args := []interface{}{patientID}
	if noteType != "" {
		query += ` AND type = $2`
		args = append(args, noteType)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.PatientID, &n.Type, &n.Author, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &n)
	}
	return items, nil
}

// -- Timeline --

type timelineRepoPG struct{ pool *pgxpool.Pool }

func NewTimelineRepoPG(pool *pgxpool.Pool) TimelineRepository { return &timelineRepoPG{pool: pool} }

func (r *timelineRepoPG) Create(ctx context.Context, ev *TimelineEvent) error {
	ev.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO timeline_event (id, patient_id, actor, actor_role, activity, type)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ID, ev.PatientID, ev.Actor, ev.ActorRole, ev.Activity, ev.Type)
	return err
}

func (r *timelineRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TimelineEvent, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM timeline_event WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, actor, actor_role, activity, type, created_at
		FROM timeline_event WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TimelineEvent
	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.ID, &ev.PatientID, &ev.Actor, &ev.ActorRole, &ev.Activity, &ev.Type, &ev.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &ev)
	}
	return items, total, nil
}
