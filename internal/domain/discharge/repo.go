package discharge

import (
	"context"

	"github.com/google/uuid"

	"github.com/dischargeflow/dischargeflow/internal/domain/patient"
)

// PatientStore is the slice of the patient repository the engine needs.
// The patient package's Postgres repository satisfies it.
type PatientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	UpdateDischargeState(ctx context.Context, id uuid.UUID, st patient.DischargeState) error
}

type TaskRepository interface {
	// ReplaceForPatient deletes the patient's existing tasks and inserts the
	// new set in one transaction.
	ReplaceForPatient(ctx context.Context, patientID uuid.UUID, tasks []*Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type AgentLogRepository interface {
	Create(ctx context.Context, l *AgentLog) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AgentLog, error)
}

type ExtractionRepository interface {
	// Upsert replaces the patient's extracted data snapshot.
	Upsert(ctx context.Context, d *ExtractedData) error
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*ExtractedData, error)
}
