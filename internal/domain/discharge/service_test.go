package discharge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dischargeflow/dischargeflow/internal/domain/patient"
	"github.com/dischargeflow/dischargeflow/internal/platform/agent"
)

// -- Mocks --

type mockPatientStore struct {
	mu    sync.Mutex
	store map[uuid.UUID]*patient.Patient
}

func newMockPatientStore() *mockPatientStore {
	return &mockPatientStore{store: make(map[uuid.UUID]*patient.Patient)}
}

func (m *mockPatientStore) add(p *patient.Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[p.ID] = p
}

func (m *mockPatientStore) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientStore) UpdateDischargeState(_ context.Context, id uuid.UUID, st patient.DischargeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	p.DischargeStatus = st.Status
	p.ReadyForEval = st.ReadyForEval
	p.ExtractionCompleted = st.ExtractionCompleted
	p.TasksGenerated = st.TasksGenerated
	p.Blockers = st.Blockers
	return nil
}

type mockTaskRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Task
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{store: make(map[uuid.UUID]*Task)}
}

func (m *mockTaskRepo) ReplaceForPatient(_ context.Context, patientID uuid.UUID, tasks []*Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.store {
		if t.PatientID == patientID {
			delete(m.store, id)
		}
	}
	for _, t := range tasks {
		t.ID = uuid.New()
		t.PatientID = patientID
		cp := *t
		m.store[t.ID] = &cp
	}
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r []*Task
	for _, t := range m.store {
		if t.PatientID == patientID {
			cp := *t
			r = append(r, &cp)
		}
	}
	return r, nil
}

func (m *mockTaskRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	t.Status = status
	return nil
}

type mockLogRepo struct {
	mu   sync.Mutex
	logs []*AgentLog
}

func (m *mockLogRepo) Create(_ context.Context, l *AgentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockLogRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*AgentLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r []*AgentLog
	for _, l := range m.logs {
		if l.PatientID == patientID {
			r = append(r, l)
		}
	}
	return r, nil
}

func (m *mockLogRepo) byStatus(status string) []*AgentLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r []*AgentLog
	for _, l := range m.logs {
		if l.Status == status {
			r = append(r, l)
		}
	}
	return r
}

type mockExtractionRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*ExtractedData
}

func newMockExtractionRepo() *mockExtractionRepo {
	return &mockExtractionRepo{store: make(map[uuid.UUID]*ExtractedData)}
}

func (m *mockExtractionRepo) Upsert(_ context.Context, d *ExtractedData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.UpdatedAt = time.Now()
	cp := *d
	m.store[d.PatientID] = &cp
	return nil
}

func (m *mockExtractionRepo) GetByPatient(_ context.Context, patientID uuid.UUID) (*ExtractedData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[patientID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *d
	return &cp, nil
}

type mockExtractor struct {
	mu      sync.Mutex
	calls   int
	err     error
	result  *agent.ExtractionResult
	blockCh chan struct{} // when set, Extract waits until closed
}

func (m *mockExtractor) Extract(_ context.Context, _ uuid.UUID, _, _ string) (*agent.ExtractionResult, error) {
	m.mu.Lock()
	m.calls++
	block := m.blockCh
	err := m.err
	result := m.result
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return &agent.ExtractionResult{
		Payload: &agent.ExtractionPayload{
			Labs:   map[string]interface{}{"wbc": 7.2},
			Vitals: map[string]interface{}{"bp": "120/80"},
		},
		Decision: "proceed",
	}, nil
}

func (m *mockExtractor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockTaskGen struct {
	mu    sync.Mutex
	calls int
	err   error
	tasks []agent.GeneratedTask
}

func (m *mockTaskGen) GenerateTasks(_ context.Context, _ uuid.UUID, _ *agent.ExtractionPayload) (*agent.TaskGenResult, error) {
	m.mu.Lock()
	m.calls++
	err := m.err
	tasks := m.tasks
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []agent.GeneratedTask{
			{Title: "Confirm pharmacy pickup", Category: "medical", Priority: "high"},
			{Title: "Settle outstanding balance", Category: "financial", Priority: "medium"},
		}
	}
	return &agent.TaskGenResult{Tasks: tasks}, nil
}

type engineFixture struct {
	svc       *Service
	patients  *mockPatientStore
	tasks     *mockTaskRepo
	logs      *mockLogRepo
	extracted *mockExtractionRepo
	extractor *mockExtractor
	taskgen   *mockTaskGen
	patientID uuid.UUID
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		patients:  newMockPatientStore(),
		tasks:     newMockTaskRepo(),
		logs:      &mockLogRepo{},
		extracted: newMockExtractionRepo(),
		extractor: &mockExtractor{},
		taskgen:   &mockTaskGen{},
		patientID: uuid.New(),
	}
	f.patients.add(&patient.Patient{
		ID:              f.patientID,
		MRN:             "MRN-001",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		DischargeStatus: patient.DischargePending,
	})
	f.svc = NewService(f.patients, f.tasks, f.logs, f.extracted, f.extractor, f.taskgen, 5*time.Second)
	return f
}

func (f *engineFixture) patientState(t *testing.T) *patient.Patient {
	t.Helper()
	p, err := f.patients.GetByID(context.Background(), f.patientID)
	if err != nil {
		t.Fatalf("patient lookup failed: %v", err)
	}
	return p
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var we *Error
	if !errors.As(err, &we) {
		t.Fatalf("expected workflow error, got %v", err)
	}
	return we.Kind
}

// -- Readiness aggregation --

func TestRecomputeReadiness(t *testing.T) {
	cases := []struct {
		name      string
		statuses  []string
		blockers  []string
		generated bool
		want      string
	}{
		{"all completed", []string{TaskCompleted, TaskCompleted}, nil, true, patient.DischargeReady},
		{"one in progress", []string{TaskCompleted, TaskInProgress}, nil, true, patient.DischargeInProgress},
		{"one pending", []string{TaskCompleted, TaskPending}, nil, true, patient.DischargeInProgress},
		{"failed counts as resolved", []string{TaskCompleted, TaskFailed}, nil, true, patient.DischargeReady},
		{"failed does not beat in progress", []string{TaskInProgress, TaskFailed}, nil, true, patient.DischargeInProgress},
		{"blocker beats all completed", []string{TaskCompleted, TaskCompleted}, []string{"pending radiology read"}, true, patient.DischargeBlocked},
		{"blocker beats empty task list", nil, []string{"unpaid balance"}, true, patient.DischargeBlocked},
		{"no tasks generated yet", nil, nil, false, patient.DischargeInProgress},
		{"no tasks", nil, nil, true, patient.DischargeReady},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tasks []*Task
			for _, st := range tc.statuses {
				tasks = append(tasks, &Task{Status: st})
			}
			if got := recomputeReadiness(tasks, tc.blockers, tc.generated); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

// -- Transition tables --

func TestWorkflowTransitions(t *testing.T) {
	if !canTransition(workflowTransitions, patient.DischargePending, patient.DischargeInProgress) {
		t.Error("pending must allow in_progress")
	}
	if canTransition(workflowTransitions, patient.DischargePending, patient.DischargeReady) {
		t.Error("pending must not jump to ready")
	}
	if canTransition(workflowTransitions, patient.DischargeCompleted, patient.DischargeInProgress) {
		t.Error("completed is terminal")
	}
	if canTransition(workflowTransitions, patient.DischargeReady, patient.DischargeInProgress) {
		t.Error("ready must not fall back to in_progress")
	}
	if !isTerminal(workflowTransitions, patient.DischargeCompleted) {
		t.Error("completed must be terminal")
	}
	if isTerminal(workflowTransitions, patient.DischargeBlocked) {
		t.Error("blocked must not be terminal")
	}
}

func TestTaskTransitions(t *testing.T) {
	if !canTransition(taskTransitions, TaskPending, TaskInProgress) {
		t.Error("pending must allow in_progress")
	}
	if canTransition(taskTransitions, TaskPending, TaskCompleted) {
		t.Error("pending must not jump to completed")
	}
	if !canTransition(taskTransitions, TaskInProgress, TaskFailed) {
		t.Error("in_progress must allow failed")
	}
	if !isTerminal(taskTransitions, TaskCompleted) {
		t.Error("completed must be terminal")
	}
	if !isTerminal(taskTransitions, TaskFailed) {
		t.Error("failed must be terminal")
	}
}

// -- MarkReady --

func TestMarkReady_RunsFullPipeline(t *testing.T) {
	f := newEngineFixture()
	p, err := f.svc.MarkReady(context.Background(), f.patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DischargeStatus != patient.DischargeInProgress || !p.ReadyForEval {
		t.Errorf("expected in_progress + ready_for_eval, got %+v", p)
	}
	f.svc.Wait()

	final := f.patientState(t)
	if !final.ExtractionCompleted {
		t.Error("extraction should have completed")
	}
	if !final.TasksGenerated {
		t.Error("tasks should have been generated")
	}
	if final.DischargeStatus != patient.DischargeInProgress {
		t.Errorf("expected in_progress with pending tasks, got %s", final.DischargeStatus)
	}
	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 generated tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != TaskPending {
			t.Errorf("generated tasks must start pending, got %s", task.Status)
		}
	}
	if got := len(f.logs.byStatus("success")); got != 2 {
		t.Errorf("expected 2 success agent logs, got %d", got)
	}
	if got := len(f.logs.byStatus("triggered")); got != 2 {
		t.Errorf("expected 2 triggered agent logs, got %d", got)
	}
}

func TestMarkReady_Repeat(t *testing.T) {
	f := newEngineFixture()
	if _, err := f.svc.MarkReady(context.Background(), f.patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.svc.Wait()

	_, err := f.svc.MarkReady(context.Background(), f.patientID)
	if kindOf(t, err) != KindInvalidState {
		t.Errorf("expected InvalidState, got %v", err)
	}
}

func TestMarkReady_UnknownPatient(t *testing.T) {
	f := newEngineFixture()
	_, err := f.svc.MarkReady(context.Background(), uuid.New())
	if kindOf(t, err) != KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

// -- Extraction --

func TestExtractionFailure_BlocksWorkflow(t *testing.T) {
	f := newEngineFixture()
	f.extractor.err = errors.New("upstream HIS timeout")

	if _, err := f.svc.MarkReady(context.Background(), f.patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.svc.Wait()

	final := f.patientState(t)
	if final.DischargeStatus != patient.DischargeBlocked {
		t.Errorf("expected blocked, got %s", final.DischargeStatus)
	}
	if final.ExtractionCompleted {
		t.Error("extraction must not be marked complete on failure")
	}
	if len(final.Blockers) != 1 || final.Blockers[0] != "upstream HIS timeout" {
		t.Errorf("expected the failure reason recorded as blocker, got %v", final.Blockers)
	}
	errLogs := f.logs.byStatus("error")
	if len(errLogs) != 1 || errLogs[0].AgentName != extractionAgent {
		t.Errorf("expected one extraction error log, got %+v", errLogs)
	}
}

func TestTriggerExtraction_AllowedBeforeMarkReady(t *testing.T) {
	f := newEngineFixture()
	if err := f.svc.TriggerExtraction(context.Background(), f.patientID); err != nil {
		t.Fatalf("extraction on a pending patient must be allowed: %v", err)
	}
	f.svc.Wait()

	final := f.patientState(t)
	if !final.ExtractionCompleted {
		t.Error("extraction should have completed")
	}
	if final.ReadyForEval {
		t.Error("extraction alone must not flip ready_for_discharge_eval")
	}
	if _, err := f.extracted.GetByPatient(context.Background(), f.patientID); err != nil {
		t.Errorf("expected extracted data stored: %v", err)
	}
}

func TestTriggerExtraction_ConcurrentConflict(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	block := make(chan struct{})
	f.extractor.mu.Lock()
	f.extractor.blockCh = block
	f.extractor.mu.Unlock()

	if err := f.svc.TriggerExtraction(context.Background(), f.patientID); err != nil {
		t.Fatalf("first trigger should succeed: %v", err)
	}
	// While the first run is stuck inside the agent call, a second trigger
	// must be rejected, not queued.
	err := f.svc.TriggerExtraction(context.Background(), f.patientID)
	if kindOf(t, err) != KindConflict {
		t.Errorf("expected Conflict, got %v", err)
	}
	close(block)
	f.svc.Wait()

	// Once the slot frees up, triggering works again.
	f.extractor.mu.Lock()
	f.extractor.blockCh = nil
	f.extractor.mu.Unlock()
	if err := f.svc.TriggerExtraction(context.Background(), f.patientID); err != nil {
		t.Errorf("trigger after completion should succeed: %v", err)
	}
	f.svc.Wait()
}

func TestExtractionRecovery_ClearsBlock(t *testing.T) {
	f := newEngineFixture()
	f.extractor.err = errors.New("transient failure")
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	if f.patientState(t).DischargeStatus != patient.DischargeBlocked {
		t.Fatal("setup: expected blocked")
	}

	f.extractor.mu.Lock()
	f.extractor.err = nil
	f.extractor.mu.Unlock()
	if err := f.svc.TriggerExtraction(context.Background(), f.patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.svc.Wait()

	final := f.patientState(t)
	if !final.ExtractionCompleted {
		t.Error("extraction should have completed on retry")
	}
	if final.DischargeStatus == patient.DischargeBlocked {
		t.Error("successful retry should clear blocked status")
	}
	if len(final.Blockers) != 0 {
		t.Errorf("successful retry should clear blockers, got %v", final.Blockers)
	}
}

func TestExtraction_ReportedBlockersBlockPatient(t *testing.T) {
	f := newEngineFixture()
	f.extractor.result = &agent.ExtractionResult{
		Payload: &agent.ExtractionPayload{
			DischargeBlockers: []string{"pending radiology read", "unpaid balance"},
		},
		Decision: "hold",
	}
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	final := f.patientState(t)
	if final.DischargeStatus != patient.DischargeBlocked {
		t.Errorf("expected blocked, got %s", final.DischargeStatus)
	}
	if len(final.Blockers) != 2 {
		t.Errorf("expected 2 blockers from extraction payload, got %v", final.Blockers)
	}
	if !final.ExtractionCompleted {
		t.Error("extraction itself still completed")
	}
}

// -- Task generation --

func TestGenerateTasks_RequiresExtraction(t *testing.T) {
	f := newEngineFixture()
	f.patients.UpdateDischargeState(context.Background(), f.patientID, patient.DischargeState{
		Status: patient.DischargeInProgress, ReadyForEval: true,
	})
	err := f.svc.GenerateTasks(context.Background(), f.patientID)
	if kindOf(t, err) != KindPreconditionFailed {
		t.Errorf("expected PreconditionFailed, got %v", err)
	}
}

func TestGenerateTasks_ReplacesWholesale(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	first, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	if len(first) != 2 {
		t.Fatalf("setup: expected 2 tasks, got %d", len(first))
	}

	f.taskgen.mu.Lock()
	f.taskgen.tasks = []agent.GeneratedTask{
		{Title: "Only remaining task", Category: "operational", Priority: "critical"},
	}
	f.taskgen.mu.Unlock()

	if err := f.svc.GenerateTasks(context.Background(), f.patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.svc.Wait()

	second, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	if len(second) != 1 || second[0].Title != "Only remaining task" {
		t.Errorf("expected wholesale replacement, got %+v", second)
	}
}

func TestGenerateTasks_FailureBlocks(t *testing.T) {
	f := newEngineFixture()
	f.taskgen.err = errors.New("model overloaded")
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	final := f.patientState(t)
	if final.DischargeStatus != patient.DischargeBlocked {
		t.Errorf("expected blocked, got %s", final.DischargeStatus)
	}
	// Extraction still succeeded before task generation failed.
	if !final.ExtractionCompleted {
		t.Error("extraction flag should survive task generation failure")
	}
	if final.TasksGenerated {
		t.Error("tasks_generated must not be set on failure")
	}
	if len(final.Blockers) != 1 || final.Blockers[0] != "model overloaded" {
		t.Errorf("expected the failure reason recorded as blocker, got %v", final.Blockers)
	}
}

func TestGenerateTasks_NormalizesBadCategories(t *testing.T) {
	f := newEngineFixture()
	f.taskgen.tasks = []agent.GeneratedTask{
		{Title: "Odd task", Category: "astrology", Priority: "urgent!!"},
	}
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Category != CategoryOperational || tasks[0].Priority != PriorityMedium {
		t.Errorf("expected normalized category/priority, got %s/%s", tasks[0].Category, tasks[0].Priority)
	}
}

func TestTasksGeneratedImpliesExtractionCompleted(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	final := f.patientState(t)
	if final.TasksGenerated && !final.ExtractionCompleted {
		t.Error("tasks_generated without extraction_completed must never happen")
	}
}

// -- Task status updates and completion --

func completeAllTasks(t *testing.T, f *engineFixture) {
	t.Helper()
	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	for _, task := range tasks {
		if _, err := f.svc.UpdateTaskStatus(context.Background(), task.ID, TaskInProgress); err != nil {
			t.Fatalf("to in_progress: %v", err)
		}
		if _, err := f.svc.UpdateTaskStatus(context.Background(), task.ID, TaskCompleted); err != nil {
			t.Fatalf("to completed: %v", err)
		}
	}
}

func TestFullWorkflow_PendingToCompleted(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	completeAllTasks(t, f)
	if got := f.patientState(t).DischargeStatus; got != patient.DischargeReady {
		t.Fatalf("expected ready after all tasks complete, got %s", got)
	}

	p, err := f.svc.CompleteDischarge(context.Background(), f.patientID, "Dr. Byron", "doctor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DischargeStatus != patient.DischargeCompleted {
		t.Errorf("expected completed, got %s", p.DischargeStatus)
	}
}

func TestUpdateTaskStatus_FailedTaskCountsAsResolved(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	if _, err := f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One task failed, the other still pending: not ready yet, but a failed
	// task alone never blocks the discharge.
	if got := f.patientState(t).DischargeStatus; got != patient.DischargeInProgress {
		t.Errorf("expected in_progress with a pending task, got %s", got)
	}

	if _, err := f.svc.UpdateTaskStatus(context.Background(), tasks[1].ID, TaskInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.UpdateTaskStatus(context.Background(), tasks[1].ID, TaskCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// completed + failed with no blockers: every task is resolved.
	if got := f.patientState(t).DischargeStatus; got != patient.DischargeReady {
		t.Errorf("expected ready with all tasks resolved, got %s", got)
	}
}

func TestUpdateTaskStatus_FailedTaskIsImmutable(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	if _, err := f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskInProgress)
	if kindOf(t, err) != KindInvalidTransition {
		t.Errorf("expected InvalidTransition for failed->in_progress, got %v", err)
	}
	got, _ := f.tasks.GetByID(context.Background(), tasks[0].ID)
	if got.Status != TaskFailed {
		t.Errorf("rejected transition must not change the task, got %s", got.Status)
	}
}

func TestUpdateTaskStatus_InvalidTransition(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	_, err := f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskCompleted)
	if kindOf(t, err) != KindInvalidTransition {
		t.Errorf("expected InvalidTransition for pending->completed, got %v", err)
	}
}

func TestUpdateTaskStatus_CompletedTaskIsImmutable(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskInProgress)
	f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskCompleted)

	_, err := f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskFailed)
	if kindOf(t, err) != KindInvalidTransition {
		t.Errorf("expected InvalidTransition for completed->failed, got %v", err)
	}
}

func TestCompleteDischarge_RequiresReady(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	_, err := f.svc.CompleteDischarge(context.Background(), f.patientID, "", "")
	if kindOf(t, err) != KindPreconditionFailed {
		t.Errorf("expected PreconditionFailed with tasks outstanding, got %v", err)
	}
}

func TestCompletedIsTerminalEverywhere(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()
	completeAllTasks(t, f)
	if _, err := f.svc.CompleteDischarge(context.Background(), f.patientID, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.MarkReady(context.Background(), f.patientID); kindOf(t, err) != KindTerminalState {
		t.Errorf("MarkReady after completion: expected TerminalState, got %v", err)
	}
	if err := f.svc.TriggerExtraction(context.Background(), f.patientID); kindOf(t, err) != KindTerminalState {
		t.Errorf("TriggerExtraction after completion: expected TerminalState, got %v", err)
	}
	if err := f.svc.GenerateTasks(context.Background(), f.patientID); kindOf(t, err) != KindTerminalState {
		t.Errorf("GenerateTasks after completion: expected TerminalState, got %v", err)
	}
	if _, err := f.svc.CompleteDischarge(context.Background(), f.patientID, "", ""); kindOf(t, err) != KindTerminalState {
		t.Errorf("CompleteDischarge after completion: expected TerminalState, got %v", err)
	}
	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)
	if _, err := f.svc.UpdateTaskStatus(context.Background(), tasks[0].ID, TaskFailed); kindOf(t, err) != KindTerminalState {
		t.Errorf("UpdateTaskStatus after completion: expected TerminalState, got %v", err)
	}
}

func TestCompleteDischarge_RecordsTimelineEvent(t *testing.T) {
	f := newEngineFixture()
	var events []string
	f.svc.SetTimelineRecorder(timelineFunc(func(_ context.Context, _ uuid.UUID, _, _, _, eventType string) error {
		events = append(events, eventType)
		return nil
	}))

	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()
	completeAllTasks(t, f)
	if _, err := f.svc.CompleteDischarge(context.Background(), f.patientID, "Dr. Byron", "doctor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0] != "discharge" {
		t.Errorf("expected one discharge event, got %v", events)
	}
}

type timelineFunc func(ctx context.Context, patientID uuid.UUID, actor, actorRole, activity, eventType string) error

func (f timelineFunc) RecordEvent(ctx context.Context, patientID uuid.UUID, actor, actorRole, activity, eventType string) error {
	return f(ctx, patientID, actor, actorRole, activity, eventType)
}

// -- Dashboard --

func TestGetDashboard(t *testing.T) {
	f := newEngineFixture()
	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	dash, err := f.svc.GetDashboard(context.Background(), f.patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dash.Patient == nil || dash.Patient.ID != f.patientID {
		t.Error("expected patient in dashboard")
	}
	if dash.TaskCounts.Total != 2 || dash.TaskCounts.Pending != 2 {
		t.Errorf("unexpected task counts: %+v", dash.TaskCounts)
	}
	if dash.ExtractedData == nil {
		t.Error("expected extracted data in dashboard")
	}
	if len(dash.AgentLogs) != 4 {
		t.Errorf("expected 4 agent logs (2 triggered, 2 success), got %d", len(dash.AgentLogs))
	}
}
