package api

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"

	"modbot/internal/modal"
	"modbot/internal/workflows"
)

// Execution is one open workflow run as listed by visibility.
type Execution struct {
	WorkflowID string    `json:"workflowId"`
	RunID      string    `json:"runId"`
	Type       string    `json:"type"`
	StartedAt  time.Time `json:"startedAt"`
}

// Engine is the workflow-engine surface the API reads and signals.
type Engine interface {
	Running(ctx context.Context) ([]Execution, error)
	Instance(ctx context.Context, workflowID, runID string) (modal.WorkflowInstance, error)
	Audit(ctx context.Context, workflowID, runID string) ([]modal.AuditEvent, error)
	Signal(ctx context.Context, workflowID, runID string, ev modal.PromptEvent) error
}

// TemporalEngine answers Engine calls with Temporal visibility, queries and signals.
type TemporalEngine struct {
	Client client.Client
	// PageSize caps how many running executions one listing returns.
	PageSize int32
}

func (e *TemporalEngine) Running(ctx context.Context) ([]Execution, error) {
	size := e.PageSize
	if size <= 0 {
		size = 200
	}
	resp, err := e.Client.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
		Query:    `ExecutionStatus = "Running"`,
		PageSize: size,
	})
	if err != nil {
		return nil, fmt.Errorf("list running workflows: %w", err)
	}
	out := make([]Execution, 0, len(resp.Executions))
	for _, ex := range resp.Executions {
		if ex.Execution == nil {
			continue
		}
		out = append(out, Execution{
			WorkflowID: ex.Execution.WorkflowId,
			RunID:      ex.Execution.RunId,
			Type:       ex.GetType().GetName(),
			StartedAt:  ex.GetStartTime().AsTime(),
		})
	}
	return out, nil
}

func (e *TemporalEngine) Instance(ctx context.Context, workflowID, runID string) (modal.WorkflowInstance, error) {
	var inst modal.WorkflowInstance
	if err := e.query(ctx, workflowID, runID, workflows.QueryInstance, &inst); err != nil {
		return modal.WorkflowInstance{}, err
	}
	return inst, nil
}

func (e *TemporalEngine) Audit(ctx context.Context, workflowID, runID string) ([]modal.AuditEvent, error) {
	var events []modal.AuditEvent
	if err := e.query(ctx, workflowID, runID, workflows.QueryAuditLog, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (e *TemporalEngine) Signal(ctx context.Context, workflowID, runID string, ev modal.PromptEvent) error {
	if err := e.Client.SignalWorkflow(ctx, workflowID, runID, workflows.PromptEventSignal, ev); err != nil {
		return fmt.Errorf("signal %s: %w", workflowID, err)
	}
	return nil
}

func (e *TemporalEngine) query(ctx context.Context, workflowID, runID, name string, out any) error {
	qr, err := e.Client.QueryWorkflow(ctx, workflowID, runID, name)
	if err != nil {
		return fmt.Errorf("query %s on %s: %w", name, workflowID, err)
	}
	if err := qr.Get(out); err != nil {
		return fmt.Errorf("decode %s from %s: %w", name, workflowID, err)
	}
	return nil
}
