package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TimelineRecorder receives notable patient events. The chart package
// provides the production implementation.
type TimelineRecorder interface {
	RecordEvent(ctx context.Context, patientID uuid.UUID, actor, actorRole, activity, eventType string) error
}

type Service struct {
	patients PatientRepository
	timeline TimelineRecorder
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

// SetTimelineRecorder attaches an optional timeline sink.
func (s *Service) SetTimelineRecorder(tr TimelineRecorder) {
	s.timeline = tr
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient, actor, actorRole string) error {
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	if p.AdmissionID == "" {
		return fmt.Errorf("admission_id is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.Age < 0 || p.Age > 150 {
		return fmt.Errorf("age out of range: %d", p.Age)
	}
	if existing, err := s.patients.GetByMRN(ctx, p.MRN); err == nil && existing != nil {
		return fmt.Errorf("patient with mrn %s already exists", p.MRN)
	}

	if err := s.patients.Create(ctx, p); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	p.DischargeStatus = DischargePending

	if s.timeline != nil {
		_ = s.timeline.RecordEvent(ctx, p.ID, actor, actorRole,
			fmt.Sprintf("Patient %s admitted (MRN %s)", p.FullName(), p.MRN), "admission")
	}
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.patients.GetByMRN(ctx, mrn)
}

// UpdateDemographics updates the writable fields of a patient record.
// Identifiers and discharge workflow state are preserved from the stored row.
func (s *Service) UpdateDemographics(ctx context.Context, p *Patient) (*Patient, error) {
	existing, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, fmt.Errorf("first_name and last_name are required")
	}
	if p.Age < 0 || p.Age > 150 {
		return nil, fmt.Errorf("age out of range: %d", p.Age)
	}

	// Immutable and engine-owned fields come from the stored row.
	p.MRN = existing.MRN
	p.AdmissionID = existing.AdmissionID
	p.DischargeStatus = existing.DischargeStatus
	p.ReadyForEval = existing.ReadyForEval
	p.ExtractionCompleted = existing.ExtractionCompleted
	p.TasksGenerated = existing.TasksGenerated
	p.Blockers = existing.Blockers
	p.CreatedAt = existing.CreatedAt

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	if query == "" {
		return s.patients.List(ctx, limit, offset)
	}
	return s.patients.Search(ctx, query, limit, offset)
}
