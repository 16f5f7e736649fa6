package chart

import (
	"context"

	"github.com/google/uuid"
)

type LabRepository interface {
	Create(ctx context.Context, l *LabTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*LabTest, error)
	Update(ctx context.Context, l *LabTest) error
}

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error)
	Update(ctx context.Context, m *Medication) error
}

type BillingRepository interface {
	Create(ctx context.Context, b *BillingItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*BillingItem, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*BillingItem, error)
	Update(ctx context.Context, b *BillingItem) error
}

type InsuranceRepository interface {
	Create(ctx context.Context, ins *Insurance) error
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*Insurance, error)
	Update(ctx context.Context, ins *Insurance) error
	Delete(ctx context.Context, patientID uuid.UUID) error
}

type NoteRepository interface {
	Create(ctx context.Context, n *Note) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, noteType string) ([]*Note, error)
}

type TimelineRepository interface {
	Create(ctx context.Context, ev *TimelineEvent) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TimelineEvent, int, error)
}
