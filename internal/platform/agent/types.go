package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractionPayload is the clinical snapshot returned by the extraction agent.
// Labs and vitals are open key-value documents; their shape is owned by the
// upstream hospital systems, not by this service.
type ExtractionPayload struct {
	Labs              map[string]interface{} `json:"labs"`
	Vitals            map[string]interface{} `json:"vitals"`
	PharmacyPending   []string               `json:"pharmacy_pending"`
	RadiologyPending  []string               `json:"radiology_pending"`
	BillingPending    []string               `json:"billing_pending"`
	DoctorNotes       []string               `json:"doctor_notes"`
	Procedures        []string               `json:"procedures"`
	NursingNotes      []string               `json:"nursing_notes"`
	DischargeBlockers []string               `json:"discharge_blockers"`
	Raw               json.RawMessage        `json:"raw,omitempty"`
}

// ExtractionResult is the outcome of one extraction call.
type ExtractionResult struct {
	Payload   *ExtractionPayload `json:"payload"`
	Reasoning string             `json:"reasoning,omitempty"`
	Decision  string             `json:"decision,omitempty"`
}

// GeneratedTask is one discharge task proposed by the task-generation agent.
type GeneratedTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"` // medical, operational, financial
	Priority    string     `json:"priority"` // low, medium, high, critical
	Deadline    *time.Time `json:"deadline,omitempty"`
	Agent       string     `json:"agent,omitempty"`
	IssueCode   string     `json:"issue_code,omitempty"`
}

// TaskGenResult is the outcome of one task-generation call.
type TaskGenResult struct {
	Tasks     []GeneratedTask `json:"tasks"`
	Reasoning string          `json:"reasoning,omitempty"`
}

// Extractor pulls a patient's clinical snapshot from hospital systems.
type Extractor interface {
	Extract(ctx context.Context, patientID uuid.UUID, mrn, name string) (*ExtractionResult, error)
}

// TaskGenerator turns an extracted snapshot into concrete discharge tasks.
type TaskGenerator interface {
	GenerateTasks(ctx context.Context, patientID uuid.UUID, payload *ExtractionPayload) (*TaskGenResult, error)
}
