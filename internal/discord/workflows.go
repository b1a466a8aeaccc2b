package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"modbot/internal/modal"
	"modbot/internal/workflows"
)

// ErrAlreadyRunning means a live workflow already holds the id.
var ErrAlreadyRunning = errors.New("workflow already running")

// Workflows is what the router needs from the workflow engine.
type Workflows interface {
	Start(ctx context.Context, workflowID string, workflow, arg any) (runID string, err error)
	Wait(ctx context.Context, workflowID, runID string) (modal.Outcome, error)
	Signal(ctx context.Context, workflowID string, ev modal.PromptEvent) error
	// LatestOpen returns the most recently started open run among workflowIDs, or "" if none
	// is open.
	LatestOpen(ctx context.Context, workflowIDs []string) (string, error)
}

// TemporalWorkflows runs workflows on a Temporal cluster.
type TemporalWorkflows struct {
	Client    client.Client
	TaskQueue string
}

// Start allows the id to be reused once the previous run has closed, and fails while a run
// with the same id is open.
func (t *TemporalWorkflows) Start(ctx context.Context, workflowID string, workflow, arg any) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                t.TaskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	we, err := t.Client.ExecuteWorkflow(ctx, opts, workflow, arg)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return "", fmt.Errorf("start %s: %w", workflowID, ErrAlreadyRunning)
		}
		return "", fmt.Errorf("start %s: %w", workflowID, err)
	}
	return we.GetRunID(), nil
}

func (t *TemporalWorkflows) Wait(ctx context.Context, workflowID, runID string) (modal.Outcome, error) {
	var out modal.Outcome
	if err := t.Client.GetWorkflow(ctx, workflowID, runID).Get(ctx, &out); err != nil {
		return modal.Outcome{}, fmt.Errorf("wait %s: %w", workflowID, err)
	}
	return out, nil
}

func (t *TemporalWorkflows) Signal(ctx context.Context, workflowID string, ev modal.PromptEvent) error {
	return t.Client.SignalWorkflow(ctx, workflowID, "", workflows.PromptEventSignal, ev)
}

func (t *TemporalWorkflows) LatestOpen(ctx context.Context, workflowIDs []string) (string, error) {
	var (
		latest  string
		started time.Time
	)
	for _, id := range workflowIDs {
		resp, err := t.Client.DescribeWorkflowExecution(ctx, id, "")
		if err != nil {
			var notFound *serviceerror.NotFound
			if errors.As(err, &notFound) {
				continue
			}
			return "", fmt.Errorf("describe %s: %w", id, err)
		}
		info := resp.GetWorkflowExecutionInfo()
		if info.GetStatus() != enums.WORKFLOW_EXECUTION_STATUS_RUNNING {
			continue
		}
		if at := info.GetStartTime().AsTime(); latest == "" || at.After(started) {
			latest, started = id, at
		}
	}
	return latest, nil
}
