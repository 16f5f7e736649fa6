package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client calls the external discharge agent service over HTTP. It implements
// both Extractor and TaskGenerator.
//
// Transport failures are retried a few times with backoff; an agent-reported
// failure (success=false) is returned as an error without retry, because the
// agent already exhausted its own attempts.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

type extractRequest struct {
	PatientID string `json:"patient_id"`
	MRN       string `json:"mrn"`
	Name      string `json:"name"`
}

type extractResponse struct {
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
	Payload   *ExtractionPayload `json:"payload,omitempty"`
	Reasoning string             `json:"reasoning,omitempty"`
	Decision  string             `json:"decision,omitempty"`
}

type taskGenRequest struct {
	PatientID string             `json:"patient_id"`
	Payload   *ExtractionPayload `json:"payload"`
}

type taskGenResponse struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Tasks     []GeneratedTask `json:"tasks,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
}

// NewClient creates an agent service client. timeout bounds a single call
// including retries; apiKey may be empty in development.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		http.SetHeader("X-API-Key", apiKey)
	}

	return &Client{http: http, logger: logger}
}

// Extract implements Extractor against POST /agent/extract.
func (c *Client) Extract(ctx context.Context, patientID uuid.UUID, mrn, name string) (*ExtractionResult, error) {
	req := extractRequest{PatientID: patientID.String(), MRN: mrn, Name: name}

	c.logger.Info().
		Str("patient_id", patientID.String()).
		Str("mrn", mrn).
		Msg("calling extraction agent")

	var out extractResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/agent/extract")
	if err != nil {
		return nil, fmt.Errorf("call extraction agent: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("extraction agent returned HTTP %d", resp.StatusCode())
	}
	if !out.Success {
		return nil, fmt.Errorf("extraction agent failed: %s", out.Error)
	}
	if out.Payload == nil {
		return nil, fmt.Errorf("extraction agent returned no payload")
	}

	return &ExtractionResult{
		Payload:   out.Payload,
		Reasoning: out.Reasoning,
		Decision:  out.Decision,
	}, nil
}

// GenerateTasks implements TaskGenerator against POST /agent/generate-tasks.
func (c *Client) GenerateTasks(ctx context.Context, patientID uuid.UUID, payload *ExtractionPayload) (*TaskGenResult, error) {
	req := taskGenRequest{PatientID: patientID.String(), Payload: payload}

	c.logger.Info().
		Str("patient_id", patientID.String()).
		Msg("calling task generation agent")

	var out taskGenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/agent/generate-tasks")
	if err != nil {
		return nil, fmt.Errorf("call task generation agent: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("task generation agent returned HTTP %d", resp.StatusCode())
	}
	if !out.Success {
		return nil, fmt.Errorf("task generation agent failed: %s", out.Error)
	}

	return &TaskGenResult{Tasks: out.Tasks, Reasoning: out.Reasoning}, nil
}
