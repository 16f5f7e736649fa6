package patient

import (
	"context"

	"github.com/google/uuid"
)

// DischargeState is the workflow-owned slice of the patient record. The
// discharge engine persists it atomically in one statement.
type DischargeState struct {
	Status              string
	ReadyForEval        bool
	ExtractionCompleted bool
	TasksGenerated      bool
	Blockers            []string
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
	UpdateDischargeState(ctx context.Context, id uuid.UUID, st DischargeState) error
}
