package discharge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dischargeflow/dischargeflow/internal/domain/patient"
	"github.com/dischargeflow/dischargeflow/internal/platform/agent"
)

const (
	extractionAgent = "extraction-agent"
	taskGenAgent    = "task-generation-agent"

	opExtract = "extract"
	opTaskGen = "generate_tasks"
)

// keyedMutex serializes workflow mutations per patient. Locks are never
// reclaimed; the map grows with the number of patients seen, which is fine
// at hospital scale.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *keyedMutex) get(id uuid.UUID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	return m
}

// inflightSet tracks which (operation, patient) pairs currently have an
// agent call running. A second trigger while one is running is a Conflict,
// never a queued duplicate.
type inflightSet struct {
	mu  sync.Mutex
	ops map[string]bool
}

func newInflightSet() *inflightSet {
	return &inflightSet{ops: make(map[string]bool)}
}

func (f *inflightSet) begin(op string, id uuid.UUID) bool {
	key := op + ":" + id.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ops[key] {
		return false
	}
	f.ops[key] = true
	return true
}

func (f *inflightSet) end(op string, id uuid.UUID) {
	key := op + ":" + id.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ops, key)
}

type Service struct {
	patients   PatientStore
	tasks      TaskRepository
	logs       AgentLogRepository
	extraction ExtractionRepository
	extractor  agent.Extractor
	taskgen    agent.TaskGenerator
	timeline   patient.TimelineRecorder

	agentTimeout time.Duration

	locks    *keyedMutex
	inflight *inflightSet
	wg       sync.WaitGroup
}

func NewService(patients PatientStore, tasks TaskRepository, logs AgentLogRepository,
	extraction ExtractionRepository, extractor agent.Extractor, taskgen agent.TaskGenerator,
	agentTimeout time.Duration) *Service {
	return &Service{
		patients:     patients,
		tasks:        tasks,
		logs:         logs,
		extraction:   extraction,
		extractor:    extractor,
		taskgen:      taskgen,
		agentTimeout: agentTimeout,
		locks:        newKeyedMutex(),
		inflight:     newInflightSet(),
	}
}

// SetTimelineRecorder attaches an optional timeline sink for discharge events.
func (s *Service) SetTimelineRecorder(tr patient.TimelineRecorder) {
	s.timeline = tr
}

// Wait blocks until all in-flight agent calls finish. Used on shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Service) recordLog(ctx context.Context, patientID uuid.UUID, agentName, action, status string, detail string) {
	var d *string
	if detail != "" {
		d = &detail
	}
	if err := s.logs.Create(ctx, &AgentLog{
		PatientID: patientID,
		AgentName: agentName,
		Action:    action,
		Status:    status,
		Detail:    d,
	}); err != nil {
		log.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to write agent log")
	}
}

// setStatus applies a workflow transition through the authoritative table.
// Called with the patient lock held.
func (s *Service) setStatus(ctx context.Context, p *patient.Patient, to string) error {
	if p.DischargeStatus == to {
		return nil
	}
	if isTerminal(workflowTransitions, p.DischargeStatus) {
		return errTerminal(p.DischargeStatus)
	}
	if !canTransition(workflowTransitions, p.DischargeStatus, to) {
		return errInvalidTransition(p.DischargeStatus, to)
	}
	st := patient.DischargeState{
		Status:              to,
		ReadyForEval:        p.ReadyForEval,
		ExtractionCompleted: p.ExtractionCompleted,
		TasksGenerated:      p.TasksGenerated,
		Blockers:            p.Blockers,
	}
	if err := s.patients.UpdateDischargeState(ctx, p.ID, st); err != nil {
		return err
	}
	p.DischargeStatus = to
	return nil
}

// MarkReady flags a patient for discharge evaluation, moves the workflow to
// in_progress, and kicks off clinical data extraction in the background.
func (s *Service) MarkReady(ctx context.Context, patientID uuid.UUID) (*patient.Patient, error) {
	mu := s.locks.get(patientID)
	mu.Lock()

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		mu.Unlock()
		return nil, errNotFound("patient %s not found", patientID)
	}
	if isTerminal(workflowTransitions, p.DischargeStatus) {
		mu.Unlock()
		return nil, errTerminal(p.DischargeStatus)
	}
	if p.ReadyForEval {
		mu.Unlock()
		return nil, errInvalidState("patient %s already marked for discharge evaluation", patientID)
	}
	if p.DischargeStatus != patient.DischargePending {
		mu.Unlock()
		return nil, errInvalidState("cannot mark patient ready from status %s", p.DischargeStatus)
	}

	st := patient.DischargeState{
		Status:       patient.DischargeInProgress,
		ReadyForEval: true,
		Blockers:     p.Blockers,
	}
	if err := s.patients.UpdateDischargeState(ctx, patientID, st); err != nil {
		mu.Unlock()
		return nil, err
	}
	p.DischargeStatus = patient.DischargeInProgress
	p.ReadyForEval = true
	mu.Unlock()

	if s.inflight.begin(opExtract, patientID) {
		s.recordLog(ctx, patientID, extractionAgent, opExtract, "triggered", "")
		s.spawn(func() { s.runExtraction(patientID) })
	}
	return p, nil
}

// TriggerExtraction runs clinical data extraction for a patient. Re-extraction
// is allowed in any non-completed state; the call returns as soon as the run
// is scheduled.
func (s *Service) TriggerExtraction(ctx context.Context, patientID uuid.UUID) error {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return errNotFound("patient %s not found", patientID)
	}
	if isTerminal(workflowTransitions, p.DischargeStatus) {
		return errTerminal(p.DischargeStatus)
	}
	if !s.inflight.begin(opExtract, patientID) {
		return errConflict("extraction already running for patient %s", patientID)
	}
	s.recordLog(ctx, patientID, extractionAgent, opExtract, "triggered", "")
	s.spawn(func() { s.runExtraction(patientID) })
	return nil
}

// runExtraction owns the opExtract in-flight slot. The patient lock is NOT
// held across the agent call; it is reacquired to apply the outcome.
func (s *Service) runExtraction(patientID uuid.UUID) {
	defer s.inflight.end(opExtract, patientID)

	ctx, cancel := context.WithTimeout(context.Background(), s.agentTimeout)
	defer cancel()

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		log.Error().Err(err).Str("patient_id", patientID.String()).Msg("extraction: patient lookup failed")
		return
	}

	result, err := s.extractor.Extract(ctx, patientID, p.MRN, p.FullName())
	if err != nil {
		s.failWorkflow(patientID, extractionAgent, opExtract, err)
		return
	}

	payload, merr := json.Marshal(result.Payload)
	if merr != nil {
		s.failWorkflow(patientID, extractionAgent, opExtract, merr)
		return
	}

	mu := s.locks.get(patientID)
	mu.Lock()
	p, err = s.patients.GetByID(ctx, patientID)
	if err != nil || isTerminal(workflowTransitions, p.DischargeStatus) {
		mu.Unlock()
		return
	}
	var reasoning, decision *string
	if result.Reasoning != "" {
		reasoning = &result.Reasoning
	}
	if result.Decision != "" {
		decision = &result.Decision
	}
	if err := s.extraction.Upsert(ctx, &ExtractedData{
		PatientID: patientID,
		Payload:   payload,
		Reasoning: reasoning,
		Decision:  decision,
	}); err != nil {
		mu.Unlock()
		s.failWorkflow(patientID, extractionAgent, opExtract, err)
		return
	}
	// A successful run replaces the blocker list wholesale with whatever the
	// agent reported. An empty list clears a previous block.
	var blockers []string
	if result.Payload != nil {
		blockers = result.Payload.DischargeBlockers
	}
	status := p.DischargeStatus
	if len(blockers) > 0 {
		if canTransition(workflowTransitions, status, patient.DischargeBlocked) {
			status = patient.DischargeBlocked
		}
	} else if status == patient.DischargeBlocked {
		status = patient.DischargeInProgress
	}
	st := patient.DischargeState{
		Status:              status,
		ReadyForEval:        p.ReadyForEval,
		ExtractionCompleted: true,
		TasksGenerated:      p.TasksGenerated,
		Blockers:            blockers,
	}
	if err := s.patients.UpdateDischargeState(ctx, patientID, st); err != nil {
		mu.Unlock()
		s.failWorkflow(patientID, extractionAgent, opExtract, err)
		return
	}
	mu.Unlock()

	s.recordLog(ctx, patientID, extractionAgent, opExtract, "success", result.Decision)

	// Extraction feeds straight into task generation.
	if s.inflight.begin(opTaskGen, patientID) {
		s.recordLog(ctx, patientID, taskGenAgent, opTaskGen, "triggered", "")
		s.runTaskGeneration(patientID)
	}
}

// GenerateTasks re-runs task generation from the last extracted snapshot.
// The existing task list is replaced wholesale.
func (s *Service) GenerateTasks(ctx context.Context, patientID uuid.UUID) error {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return errNotFound("patient %s not found", patientID)
	}
	if isTerminal(workflowTransitions, p.DischargeStatus) {
		return errTerminal(p.DischargeStatus)
	}
	if !p.ExtractionCompleted {
		return errPrecondition("extraction has not completed for patient %s", patientID)
	}
	if !s.inflight.begin(opTaskGen, patientID) {
		return errConflict("task generation already running for patient %s", patientID)
	}
	s.recordLog(ctx, patientID, taskGenAgent, opTaskGen, "triggered", "")
	s.spawn(func() { s.runTaskGeneration(patientID) })
	return nil
}

// runTaskGeneration owns the opTaskGen in-flight slot.
func (s *Service) runTaskGeneration(patientID uuid.UUID) {
	defer s.inflight.end(opTaskGen, patientID)

	ctx, cancel := context.WithTimeout(context.Background(), s.agentTimeout)
	defer cancel()

	data, err := s.extraction.GetByPatient(ctx, patientID)
	if err != nil {
		s.failWorkflow(patientID, taskGenAgent, opTaskGen, err)
		return
	}
	var payload agent.ExtractionPayload
	if err := json.Unmarshal(data.Payload, &payload); err != nil {
		s.failWorkflow(patientID, taskGenAgent, opTaskGen, err)
		return
	}

	result, err := s.taskgen.GenerateTasks(ctx, patientID, &payload)
	if err != nil {
		s.failWorkflow(patientID, taskGenAgent, opTaskGen, err)
		return
	}

	tasks := make([]*Task, 0, len(result.Tasks))
	for _, gt := range result.Tasks {
		t := &Task{
			Title:       gt.Title,
			Description: gt.Description,
			Category:    gt.Category,
			Priority:    gt.Priority,
			Status:      TaskPending,
			Deadline:    gt.Deadline,
		}
		if !validCategories[t.Category] {
			t.Category = CategoryOperational
		}
		if !validPriorities[t.Priority] {
			t.Priority = PriorityMedium
		}
		if gt.Agent != "" {
			a := gt.Agent
			t.Agent = &a
		}
		if gt.IssueCode != "" {
			ic := gt.IssueCode
			t.IssueCode = &ic
		}
		tasks = append(tasks, t)
	}

	mu := s.locks.get(patientID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil || isTerminal(workflowTransitions, p.DischargeStatus) {
		return
	}
	if err := s.tasks.ReplaceForPatient(ctx, patientID, tasks); err != nil {
		s.failWorkflowLocked(ctx, p, taskGenAgent, opTaskGen, err)
		return
	}
	status := recomputeReadiness(tasks, p.Blockers, true)
	st := patient.DischargeState{
		Status:              status,
		ReadyForEval:        p.ReadyForEval,
		ExtractionCompleted: p.ExtractionCompleted,
		TasksGenerated:      true,
		Blockers:            p.Blockers,
	}
	if !canTransition(workflowTransitions, p.DischargeStatus, status) && p.DischargeStatus != status {
		st.Status = p.DischargeStatus
	}
	if err := s.patients.UpdateDischargeState(ctx, patientID, st); err != nil {
		s.failWorkflowLocked(ctx, p, taskGenAgent, opTaskGen, err)
		return
	}
	s.recordLog(ctx, patientID, taskGenAgent, opTaskGen, "success", fmt.Sprintf("generated %d tasks", len(tasks)))
}

// failWorkflow records the agent failure and moves the patient to blocked.
func (s *Service) failWorkflow(patientID uuid.UUID, agentName, action string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mu := s.locks.get(patientID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		log.Error().Err(err).Str("patient_id", patientID.String()).Msg("workflow failure: patient lookup failed")
		return
	}
	s.failWorkflowLocked(ctx, p, agentName, action, cause)
}

// failWorkflowLocked records the failure reason as a blocker and moves the
// patient to blocked.
func (s *Service) failWorkflowLocked(ctx context.Context, p *patient.Patient, agentName, action string, cause error) {
	log.Error().Err(cause).
		Str("patient_id", p.ID.String()).
		Str("agent", agentName).
		Str("action", action).
		Msg("agent call failed")
	s.recordLog(ctx, p.ID, agentName, action, "error", cause.Error())
	if isTerminal(workflowTransitions, p.DischargeStatus) {
		return
	}
	status := p.DischargeStatus
	if status != patient.DischargeBlocked && canTransition(workflowTransitions, status, patient.DischargeBlocked) {
		status = patient.DischargeBlocked
	}
	st := patient.DischargeState{
		Status:              status,
		ReadyForEval:        p.ReadyForEval,
		ExtractionCompleted: p.ExtractionCompleted,
		TasksGenerated:      p.TasksGenerated,
		Blockers:            append(p.Blockers, cause.Error()),
	}
	if err := s.patients.UpdateDischargeState(ctx, p.ID, st); err != nil {
		log.Error().Err(err).Str("patient_id", p.ID.String()).Msg("failed to block workflow")
		return
	}
	p.DischargeStatus = status
	p.Blockers = st.Blockers
}

// recomputeReadiness derives the workflow status from the blocker list and
// the task list. An unresolved blocker wins over everything else. A failed
// task counts as resolved; re-running task generation is how staff take
// another shot at it.
func recomputeReadiness(tasks []*Task, blockers []string, tasksGenerated bool) string {
	if len(blockers) > 0 {
		return patient.DischargeBlocked
	}
	if !tasksGenerated {
		return patient.DischargeInProgress
	}
	for _, t := range tasks {
		if t.Status != TaskCompleted && t.Status != TaskFailed {
			return patient.DischargeInProgress
		}
	}
	return patient.DischargeReady
}

// UpdateTaskStatus moves one task through its lifecycle and re-derives the
// patient's workflow status from the full task list.
func (s *Service) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, newStatus string) (*Task, error) {
	t, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, errNotFound("task %s not found", taskID)
	}
	if _, known := taskTransitions[newStatus]; !known {
		return nil, errInvalidTransition(t.Status, newStatus)
	}

	mu := s.locks.get(t.PatientID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock.
	t, err = s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, errNotFound("task %s not found", taskID)
	}
	p, err := s.patients.GetByID(ctx, t.PatientID)
	if err != nil {
		return nil, errNotFound("patient %s not found", t.PatientID)
	}
	if isTerminal(workflowTransitions, p.DischargeStatus) {
		return nil, errTerminal(p.DischargeStatus)
	}
	if !canTransition(taskTransitions, t.Status, newStatus) {
		return nil, errInvalidTransition(t.Status, newStatus)
	}

	if err := s.tasks.UpdateStatus(ctx, taskID, newStatus); err != nil {
		return nil, err
	}
	t.Status = newStatus

	all, err := s.tasks.ListByPatient(ctx, t.PatientID)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, p, recomputeReadiness(all, p.Blockers, p.TasksGenerated)); err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteDischarge finalizes the workflow. Only a patient whose readiness
// evaluation landed on ready can be completed, and completion is permanent.
func (s *Service) CompleteDischarge(ctx context.Context, patientID uuid.UUID, actor, actorRole string) (*patient.Patient, error) {
	mu := s.locks.get(patientID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, errNotFound("patient %s not found", patientID)
	}
	if isTerminal(workflowTransitions, p.DischargeStatus) {
		return nil, errTerminal(p.DischargeStatus)
	}
	if p.DischargeStatus != patient.DischargeReady {
		return nil, errPrecondition("cannot complete discharge from status %s", p.DischargeStatus)
	}
	if err := s.setStatus(ctx, p, patient.DischargeCompleted); err != nil {
		return nil, err
	}
	if s.timeline != nil {
		_ = s.timeline.RecordEvent(ctx, patientID, actor, actorRole,
			"Patient discharged: "+p.FullName(), "discharge")
	}
	return p, nil
}

func (s *Service) ListTasks(ctx context.Context, patientID uuid.UUID) ([]*Task, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, errNotFound("patient %s not found", patientID)
	}
	return s.tasks.ListByPatient(ctx, patientID)
}

// TaskCounts summarizes the task list for the dashboard.
type TaskCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Dashboard is the discharge coordinator's single-call view of one patient.
type Dashboard struct {
	Patient       *patient.Patient `json:"patient"`
	Tasks         []*Task          `json:"tasks"`
	TaskCounts    TaskCounts       `json:"task_counts"`
	ExtractedData *ExtractedData   `json:"extracted_data,omitempty"`
	AgentLogs     []*AgentLog      `json:"agent_logs"`
}

func (s *Service) GetDashboard(ctx context.Context, patientID uuid.UUID) (*Dashboard, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, errNotFound("patient %s not found", patientID)
	}
	tasks, err := s.tasks.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	counts := TaskCounts{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskPending:
			counts.Pending++
		case TaskInProgress:
			counts.InProgress++
		case TaskCompleted:
			counts.Completed++
		case TaskFailed:
			counts.Failed++
		}
	}
	data, err := s.extraction.GetByPatient(ctx, patientID)
	if err != nil {
		data = nil
	}
	logs, err := s.logs.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Patient:       p,
		Tasks:         tasks,
		TaskCounts:    counts,
		ExtractedData: data,
		AgentLogs:     logs,
	}, nil
}
