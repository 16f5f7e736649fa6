package chart

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInsuranceExists signals that a patient already has an insurance record.
var ErrInsuranceExists = errors.New("insurance record already exists for patient")

// LabTest maps to the lab_test table.
type LabTest struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	PatientID   uuid.UUID        `db:"patient_id" json:"patient_id"`
	TestName    string           `db:"test_name" json:"test_name"`
	OrderedDate time.Time        `db:"ordered_date" json:"ordered_date"`
	Status      string           `db:"status" json:"status"` // Pending, Completed
	Results     *string          `db:"results" json:"results,omitempty"`
	Documents   *json.RawMessage `db:"documents" json:"documents,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// Medication maps to the medication table. Refills is an append-only JSONB
// list of {date, quantity, pharmacist} entries.
type Medication struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	PatientID      uuid.UUID        `db:"patient_id" json:"patient_id"`
	MedicationName string           `db:"medication_name" json:"medication_name"`
	Dosage         string           `db:"dosage" json:"dosage"`
	Frequency      string           `db:"frequency" json:"frequency"`
	PrescribedDate time.Time        `db:"prescribed_date" json:"prescribed_date"`
	PrescribedBy   string           `db:"prescribed_by" json:"prescribed_by"`
	Status         string           `db:"status" json:"status"` // Active, Discontinued
	Instructions   *string          `db:"instructions" json:"instructions,omitempty"`
	Refills        *json.RawMessage `db:"refills" json:"refills,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// BillingItem maps to the billing_item table.
type BillingItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Description string    `db:"description" json:"description"`
	Cost        float64   `db:"cost" json:"cost"`
	Status      string    `db:"status" json:"status"` // Pending, Paid
	Date        time.Time `db:"date" json:"date"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Insurance maps to the insurance table. At most one record per patient.
// Documents, claims, and notes are open JSONB lists owned by the billing desk.
type Insurance struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	PatientID       uuid.UUID        `db:"patient_id" json:"patient_id"`
	Provider        string           `db:"provider" json:"provider"`
	PolicyNumber    string           `db:"policy_number" json:"policy_number"`
	GroupNumber     *string          `db:"group_number" json:"group_number,omitempty"`
	PolicyHolder    *string          `db:"policy_holder" json:"policy_holder,omitempty"`
	CoverageType    *string          `db:"coverage_type" json:"coverage_type,omitempty"`
	CoverageDetails *string          `db:"coverage_details" json:"coverage_details,omitempty"`
	ValidFrom       *time.Time       `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil      *time.Time       `db:"valid_until" json:"valid_until,omitempty"`
	Status          string           `db:"status" json:"status"` // Active, Expired, Suspended
	Documents       *json.RawMessage `db:"documents" json:"documents,omitempty"`
	Claims          *json.RawMessage `db:"claims" json:"claims,omitempty"`
	Notes           *json.RawMessage `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Note maps to the clinical_note table.
type Note struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Type      string    `db:"type" json:"type"` // doctor, nurse
	Author    string    `db:"author" json:"author"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TimelineEvent maps to the timeline_event table. Events are append-only.
type TimelineEvent struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Actor     string    `db:"actor" json:"actor"`
	ActorRole string    `db:"actor_role" json:"actor_role"`
	Activity  string    `db:"activity" json:"activity"`
	Type      string    `db:"type" json:"type"` // admission, lab, medication, note, billing, discharge
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var validLabStatuses = map[string]bool{"Pending": true, "Completed": true}
var validMedicationStatuses = map[string]bool{"Active": true, "Discontinued": true}
var validBillingStatuses = map[string]bool{"Pending": true, "Paid": true}
var validInsuranceStatuses = map[string]bool{"Active": true, "Expired": true, "Suspended": true}
var validNoteTypes = map[string]bool{"doctor": true, "nurse": true}
var validEventTypes = map[string]bool{
	"admission": true, "lab": true, "medication": true,
	"note": true, "billing": true, "discharge": true,
}
