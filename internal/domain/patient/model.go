package patient

import (
	"time"

	"github.com/google/uuid"
)

// Discharge workflow status values stored on the patient record. The
// discharge engine owns every transition; nothing else may write them.
const (
	DischargePending    = "pending"
	DischargeInProgress = "in_progress"
	DischargeReady      = "ready"
	DischargeCompleted  = "completed"
	DischargeBlocked    = "blocked"
)

// Patient maps to the patient table. MRN and AdmissionID identify the
// hospital stay and are immutable after creation. The Discharge* fields are
// owned by the discharge workflow engine and are not writable through the
// demographics update path.
type Patient struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	MRN                string     `db:"mrn" json:"mrn"`
	AdmissionID        string     `db:"admission_id" json:"admission_id"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	Age                int        `db:"age" json:"age"`
	Gender             *string    `db:"gender" json:"gender,omitempty"`
	Address            *string    `db:"address" json:"address,omitempty"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	EmergencyContact   *string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	MedicalHistory     []string   `db:"medical_history" json:"medical_history"`
	Allergies          []string   `db:"allergies" json:"allergies"`
	CurrentDiagnosis   *string    `db:"current_diagnosis" json:"current_diagnosis,omitempty"`
	ExistingConditions []string   `db:"existing_conditions" json:"existing_conditions"`
	LastVisit          *time.Time `db:"last_visit" json:"last_visit,omitempty"`

	DischargeStatus     string   `db:"discharge_status" json:"discharge_status"`
	ReadyForEval        bool     `db:"ready_for_discharge_eval" json:"ready_for_discharge_eval"`
	ExtractionCompleted bool     `db:"extraction_completed" json:"extraction_completed"`
	TasksGenerated      bool     `db:"tasks_generated" json:"tasks_generated"`
	Blockers            []string `db:"blockers" json:"blockers"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name used in logs and timeline entries.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
