package chart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dischargeflow/dischargeflow/internal/domain/patient"
)

// PatientReader is the slice of the patient service the chart needs.
type PatientReader interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	patients   PatientReader
	labs       LabRepository
	meds       MedicationRepository
	billing    BillingRepository
	insurance  InsuranceRepository
	notes      NoteRepository
	timeline   TimelineRepository
}

func NewService(patients PatientReader, labs LabRepository, meds MedicationRepository,
	billing BillingRepository, insurance InsuranceRepository, notes NoteRepository,
	timeline TimelineRepository) *Service {
	return &Service{
		patients:  patients,
		labs:      labs,
		meds:      meds,
		billing:   billing,
		insurance: insurance,
		notes:     notes,
		timeline:  timeline,
	}
}

// RecordEvent implements patient.TimelineRecorder. Bad event types are
// rejected rather than silently stored.
func (s *Service) RecordEvent(ctx context.Context, patientID uuid.UUID, actor, actorRole, activity, eventType string) error {
	if !validEventTypes[eventType] {
		return fmt.Errorf("invalid timeline event type: %q", eventType)
	}
	return s.timeline.Create(ctx, &TimelineEvent{
		PatientID: patientID,
		Actor:     actor,
		ActorRole: actorRole,
		Activity:  activity,
		Type:      eventType,
	})
}

func (s *Service) record(ctx context.Context, patientID uuid.UUID, actor, actorRole, activity, eventType string) {
	if err := s.RecordEvent(ctx, patientID, actor, actorRole, activity, eventType); err != nil {
		log.Warn().Err(err).Str("patient_id", patientID.String()).Msg("failed to record timeline event")
	}
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.patients.GetPatient(ctx, id); err != nil {
		return fmt.Errorf("patient %s not found", id)
	}
	return nil
}

// -- Labs --

func (s *Service) OrderLab(ctx context.Context, l *LabTest, actor, actorRole string) error {
	if err := s.requirePatient(ctx, l.PatientID); err != nil {
		return err
	}
	if l.TestName == "" {
		return fmt.Errorf("test_name is required")
	}
	if l.Status == "" {
		l.Status = "Pending"
	}
	if !validLabStatuses[l.Status] {
		return fmt.Errorf("invalid lab status: %q", l.Status)
	}
	if l.OrderedDate.IsZero() {
		l.OrderedDate = time.Now()
	}
	if err := s.labs.Create(ctx, l); err != nil {
		return fmt.Errorf("create lab test: %w", err)
	}
	s.record(ctx, l.PatientID, actor, actorRole, fmt.Sprintf("Lab test ordered: %s", l.TestName), "lab")
	return nil
}

func (s *Service) ListLabs(ctx context.Context, patientID uuid.UUID) ([]*LabTest, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.labs.ListByPatient(ctx, patientID)
}

func (s *Service) UpdateLab(ctx context.Context, id uuid.UUID, upd *LabTest, actor, actorRole string) (*LabTest, error) {
	existing, err := s.labs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lab test %s not found", id)
	}
	if upd.TestName != "" {
		existing.TestName = upd.TestName
	}
	if upd.Status != "" {
		if !validLabStatuses[upd.Status] {
			return nil, fmt.Errorf("invalid lab status: %q", upd.Status)
		}
		existing.Status = upd.Status
	}
	if upd.Results != nil {
		existing.Results = upd.Results
	}
	if upd.Documents != nil {
		existing.Documents = upd.Documents
	}
	if err := s.labs.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update lab test: %w", err)
	}
	if existing.Status == "Completed" {
		s.record(ctx, existing.PatientID, actor, actorRole,
			fmt.Sprintf("Lab test completed: %s", existing.TestName), "lab")
	}
	return existing, nil
}

// -- Medications --

func (s *Service) PrescribeMedication(ctx context.Context, m *Medication, actor, actorRole string) error {
	if err := s.requirePatient(ctx, m.PatientID); err != nil {
		return err
	}
	if m.MedicationName == "" || m.Dosage == "" || m.Frequency == "" {
		return fmt.Errorf("medication_name, dosage, and frequency are required")
	}
	if m.Status == "" {
		m.Status = "Active"
	}
	if !validMedicationStatuses[m.Status] {
		return fmt.Errorf("invalid medication status: %q", m.Status)
	}
	if m.PrescribedDate.IsZero() {
		m.PrescribedDate = time.Now()
	}
	if m.PrescribedBy == "" {
		m.PrescribedBy = actor
	}
	if err := s.meds.Create(ctx, m); err != nil {
		return fmt.Errorf("create medication: %w", err)
	}
	s.record(ctx, m.PatientID, actor, actorRole,
		fmt.Sprintf("Medication prescribed: %s %s", m.MedicationName, m.Dosage), "medication")
	return nil
}

func (s *Service) ListMedications(ctx context.Context, patientID uuid.UUID) ([]*Medication, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.meds.ListByPatient(ctx, patientID)
}

func (s *Service) UpdateMedication(ctx context.Context, id uuid.UUID, upd *Medication, actor, actorRole string) (*Medication, error) {
	existing, err := s.meds.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("medication %s not found", id)
	}
	if upd.Dosage != "" {
		existing.Dosage = upd.Dosage
	}
	if upd.Frequency != "" {
		existing.Frequency = upd.Frequency
	}
	if upd.Status != "" {
		if !validMedicationStatuses[upd.Status] {
			return nil, fmt.Errorf("invalid medication status: %q", upd.Status)
		}
		existing.Status = upd.Status
	}
	if upd.Instructions != nil {
		existing.Instructions = upd.Instructions
	}
	if upd.Refills != nil {
		existing.Refills = upd.Refills
	}
	if err := s.meds.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}
	if existing.Status == "Discontinued" {
		s.record(ctx, existing.PatientID, actor, actorRole,
			fmt.Sprintf("Medication discontinued: %s", existing.MedicationName), "medication")
	}
	return existing, nil
}

// -- Billing --

func (s *Service) AddBillingItem(ctx context.Context, b *BillingItem, actor, actorRole string) error {
	if err := s.requirePatient(ctx, b.PatientID); err != nil {
		return err
	}
	if b.Description == "" {
		return fmt.Errorf("description is required")
	}
	if b.Cost < 0 {
		return fmt.Errorf("cost must not be negative")
	}
	if b.Status == "" {
		b.Status = "Pending"
	}
	if !validBillingStatuses[b.Status] {
		return fmt.Errorf("invalid billing status: %q", b.Status)
	}
	if b.Date.IsZero() {
		b.Date = time.Now()
	}
	if err := s.billing.Create(ctx, b); err != nil {
		return fmt.Errorf("create billing item: %w", err)
	}
	s.record(ctx, b.PatientID, actor, actorRole,
		fmt.Sprintf("Billing item added: %s ($%.2f)", b.Description, b.Cost), "billing")
	return nil
}

func (s *Service) ListBillingItems(ctx context.Context, patientID uuid.UUID) ([]*BillingItem, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.billing.ListByPatient(ctx, patientID)
}

func (s *Service) UpdateBillingItem(ctx context.Context, id uuid.UUID, upd *BillingItem, actor, actorRole string) (*BillingItem, error) {
	existing, err := s.billing.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("billing item %s not found", id)
	}
	if upd.Description != "" {
		existing.Description = upd.Description
	}
	if upd.Cost > 0 {
		existing.Cost = upd.Cost
	}
	if upd.Status != "" {
		if !validBillingStatuses[upd.Status] {
			return nil, fmt.Errorf("invalid billing status: %q", upd.Status)
		}
		existing.Status = upd.Status
	}
	if err := s.billing.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update billing item: %w", err)
	}
	if existing.Status == "Paid" {
		s.record(ctx, existing.PatientID, actor, actorRole,
			fmt.Sprintf("Billing item paid: %s", existing.Description), "billing")
	}
	return existing, nil
}

// -- Insurance --

// AddInsurance creates the single insurance record for a patient. A second
// create attempt fails; callers should update the existing record instead.
func (s *Service) AddInsurance(ctx context.Context, ins *Insurance) error {
	if err := s.requirePatient(ctx, ins.PatientID); err != nil {
		return err
	}
	if ins.Provider == "" || ins.PolicyNumber == "" {
		return fmt.Errorf("provider and policy_number are required")
	}
	if ins.Status == "" {
		ins.Status = "Active"
	}
	if !validInsuranceStatuses[ins.Status] {
		return fmt.Errorf("invalid insurance status: %q", ins.Status)
	}
	if existing, err := s.insurance.GetByPatient(ctx, ins.PatientID); err == nil && existing != nil {
		return ErrInsuranceExists
	}
	if err := s.insurance.Create(ctx, ins); err != nil {
		return fmt.Errorf("create insurance: %w", err)
	}
	return nil
}

func (s *Service) GetInsurance(ctx context.Context, patientID uuid.UUID) (*Insurance, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	ins, err := s.insurance.GetByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("no insurance on file for patient %s", patientID)
	}
	return ins, nil
}

func (s *Service) UpdateInsurance(ctx context.Context, patientID uuid.UUID, upd *Insurance) (*Insurance, error) {
	existing, err := s.insurance.GetByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("no insurance on file for patient %s", patientID)
	}
	if upd.Provider != "" {
		existing.Provider = upd.Provider
	}
	if upd.PolicyNumber != "" {
		existing.PolicyNumber = upd.PolicyNumber
	}
	if upd.GroupNumber != nil {
		existing.GroupNumber = upd.GroupNumber
	}
	if upd.PolicyHolder != nil {
		existing.PolicyHolder = upd.PolicyHolder
	}
	if upd.CoverageType != nil {
		existing.CoverageType = upd.CoverageType
	}
	if upd.CoverageDetails != nil {
		existing.CoverageDetails = upd.CoverageDetails
	}
	if upd.ValidFrom != nil {
		existing.ValidFrom = upd.ValidFrom
	}
	if upd.ValidUntil != nil {
		existing.ValidUntil = upd.ValidUntil
	}
	if upd.Status != "" {
		if !validInsuranceStatuses[upd.Status] {
			return nil, fmt.Errorf("invalid insurance status: %q", upd.Status)
		}
		existing.Status = upd.Status
	}
	if upd.Documents != nil {
		existing.Documents = upd.Documents
	}
	if upd.Claims != nil {
		existing.Claims = upd.Claims
	}
	if upd.Notes != nil {
		existing.Notes = upd.Notes
	}
	if err := s.insurance.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update insurance: %w", err)
	}
	return existing, nil
}

// RemoveInsurance deletes the patient's insurance record, freeing the slot
// for a fresh policy to be added.
func (s *Service) RemoveInsurance(ctx context.Context, patientID uuid.UUID) error {
	if _, err := s.insurance.GetByPatient(ctx, patientID); err != nil {
		return fmt.Errorf("no insurance on file for patient %s", patientID)
	}
	if err := s.insurance.Delete(ctx, patientID); err != nil {
		return fmt.Errorf("delete insurance: %w", err)
	}
	return nil
}

// -- Notes --

func (s *Service) AddNote(ctx context.Context, n *Note, actorRole string) error {
	if err := s.requirePatient(ctx, n.PatientID); err != nil {
		return err
	}
	if !validNoteTypes[n.Type] {
		return fmt.Errorf("invalid note type: %q", n.Type)
	}
	if n.Content == "" {
		return fmt.Errorf("content is required")
	}
	if n.Author == "" {
		return fmt.Errorf("author is required")
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	s.record(ctx, n.PatientID, n.Author, actorRole,
		fmt.Sprintf("%s note added by %s", n.Type, n.Author), "note")
	return nil
}

func (s *Service) ListNotes(ctx context.Context, patientID uuid.UUID, noteType string) ([]*Note, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	if noteType != "" && !validNoteTypes[noteType] {
		return nil, fmt.Errorf("invalid note type: %q", noteType)
	}
	return s.notes.ListByPatient(ctx, patientID, noteType)
}

// -- Timeline --

func (s *Service) GetTimeline(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TimelineEvent, int, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.timeline.ListByPatient(ctx, patientID, limit, offset)
}

// -- Dashboard --

// Dashboard is the single-call aggregate view of one patient's chart.
type Dashboard struct {
	Patient     *patient.Patient `json:"patient"`
	Labs        []*LabTest       `json:"labs"`
	Medications []*Medication    `json:"medications"`
	Billing     []*BillingItem   `json:"billing"`
	BillingDue  float64          `json:"billing_due"`
	Insurance   *Insurance       `json:"insurance,omitempty"`
	Notes       []*Note          `json:"notes"`
	Timeline    []*TimelineEvent `json:"timeline"`
}

func (s *Service) GetDashboard(ctx context.Context, patientID uuid.UUID) (*Dashboard, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient %s not found", patientID)
	}
	labs, err := s.labs.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list labs: %w", err)
	}
	meds, err := s.meds.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	bills, err := s.billing.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list billing: %w", err)
	}
	var due float64
	for _, b := range bills {
		if b.Status == "Pending" {
			due += b.Cost
		}
	}
	// Insurance is optional; patients without a record get a nil entry.
	ins, err := s.insurance.GetByPatient(ctx, patientID)
	if err != nil {
		ins = nil
	}
	notes, err := s.notes.ListByPatient(ctx, patientID, "")
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	events, _, err := s.timeline.ListByPatient(ctx, patientID, 20, 0)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return &Dashboard{
		Patient:     p,
		Labs:        labs,
		Medications: meds,
		Billing:     bills,
		BillingDue:  due,
		Insurance:   ins,
		Notes:       notes,
		Timeline:    events,
	}, nil
}
