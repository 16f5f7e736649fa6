package discharge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dischargeflow/dischargeflow/internal/domain/patient"
)

// Task lifecycle statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// Task categories and priorities, as produced by the task generation agent.
const (
	CategoryMedical     = "medical"
	CategoryOperational = "operational"
	CategoryFinancial   = "financial"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// workflowTransitions is the authoritative discharge state machine. Every
// status change in this package goes through canTransition; there is no
// second table anywhere else.
var workflowTransitions = map[string][]string{
	patient.DischargePending:    {patient.DischargeInProgress},
	patient.DischargeInProgress: {patient.DischargeReady, patient.DischargeBlocked},
	patient.DischargeReady:      {patient.DischargeCompleted, patient.DischargeBlocked},
	patient.DischargeBlocked:    {patient.DischargeInProgress, patient.DischargeReady},
	patient.DischargeCompleted:  {},
}

// taskTransitions is the authoritative task state machine. Both completed and
// failed are terminal; a failed task is superseded by a fresh generation run,
// never edited back to life.
var taskTransitions = map[string][]string{
	TaskPending:    {TaskInProgress, TaskFailed},
	TaskInProgress: {TaskCompleted, TaskFailed},
	TaskFailed:     {},
	TaskCompleted:  {},
}

func canTransition(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isTerminal(table map[string][]string, status string) bool {
	next, ok := table[status]
	return ok && len(next) == 0
}

var validCategories = map[string]bool{
	CategoryMedical: true, CategoryOperational: true, CategoryFinancial: true,
}

var validPriorities = map[string]bool{
	PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityCritical: true,
}

// Task maps to the discharge_task table. Tasks are produced in bulk by the
// task generation agent and worked one by one by staff.
type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Category    string     `db:"category" json:"category"`
	Priority    string     `db:"priority" json:"priority"`
	Status      string     `db:"status" json:"status"`
	Agent       *string    `db:"agent" json:"agent,omitempty"`
	IssueCode   *string    `db:"issue_code" json:"issue_code,omitempty"`
	Deadline    *time.Time `db:"deadline" json:"deadline,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AgentLog maps to the agent_log table. One row per trigger and one per
// outcome of every agent invocation.
type AgentLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	AgentName string    `db:"agent_name" json:"agent_name"`
	Action    string    `db:"action" json:"action"`
	Status    string    `db:"status" json:"status"` // triggered, success, error
	Detail    *string   `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ExtractedData maps to the extracted_data table. One row per patient,
// replaced on each successful extraction run.
type ExtractedData struct {
	PatientID uuid.UUID       `db:"patient_id" json:"patient_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Reasoning *string         `db:"reasoning" json:"reasoning,omitempty"`
	Decision  *string         `db:"decision" json:"decision,omitempty"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
