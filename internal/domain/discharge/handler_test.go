package discharge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func doRequest(t *testing.T, e *echo.Echo, fn echo.HandlerFunc, method, body string, paramValue string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(paramValue)
	return rec, fn(c)
}

func TestHandler_MarkReady(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	rec, err := doRequest(t, e, h.MarkReady, http.MethodPost, "", f.patientID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	f.svc.Wait()
}

func TestHandler_MarkReady_Repeat409(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	_, err := doRequest(t, e, h.MarkReady, http.MethodPost, "", f.patientID.String())
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_MarkReady_NotFound404(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	_, err := doRequest(t, e, h.MarkReady, http.MethodPost, "", uuid.New().String())
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GenerateTasks_Precondition412(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	_, err := doRequest(t, e, h.GenerateTasks, http.MethodPost, "", f.patientID.String())
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusPreconditionFailed {
		t.Errorf("expected 412, got %v", err)
	}
}

func TestHandler_TriggerExtraction_Accepted(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	rec, err := doRequest(t, e, h.TriggerExtraction, http.MethodPost, "", f.patientID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	f.svc.Wait()
}

func TestHandler_UpdateTaskStatus_InvalidTransition422(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()
	tasks, _ := f.tasks.ListByPatient(context.Background(), f.patientID)

	_, err := doRequest(t, e, h.UpdateTaskStatus, http.MethodPatch,
		`{"status":"completed"}`, tasks[0].ID.String())
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %v", err)
	}
}

func TestHandler_UpdateTaskStatus_MissingStatus(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	_, err := doRequest(t, e, h.UpdateTaskStatus, http.MethodPatch, `{}`, uuid.New().String())
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetDashboard(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	f.svc.MarkReady(context.Background(), f.patientID)
	f.svc.Wait()

	rec, err := doRequest(t, e, h.GetDashboard, http.MethodGet, "", f.patientID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "task_counts") {
		t.Error("expected task_counts in dashboard response")
	}
}

func TestHandler_ListTasks_EmptyArray(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	rec, err := doRequest(t, e, h.ListTasks, http.MethodGet, "", f.patientID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "[") {
		t.Errorf("expected JSON array, got %s", rec.Body.String())
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	f := newEngineFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	api := e.Group("/api")
	h.RegisterRoutes(api)

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}

	expected := []string{
		"POST:/api/patients/:id/mark-ready",
		"POST:/api/patients/:id/extract",
		"POST:/api/patients/:id/generate-tasks",
		"POST:/api/patients/:id/complete",
		"GET:/api/patients/:id/discharge-dashboard",
		"GET:/api/patients/:id/tasks",
		"PATCH:/api/tasks/:id/status",
	}
	for _, p := range expected {
		if !routePaths[p] {
			t.Errorf("missing route: %s", p)
		}
	}
}
