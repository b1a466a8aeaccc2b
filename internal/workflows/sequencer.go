package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/workflow"

	"modbot/internal/activities"
	"modbot/internal/modal"
)

// Query handlers registered by every conversational workflow.
const (
	QueryInstance = "instance"
	QueryAuditLog = "audit_log"
)

// ErrCancelled is returned by Ask once the instance has reached a terminal status. Callers stop
// and return Outcome().
var ErrCancelled = errors.New("workflow instance cancelled")

// Step is one prompt in a sequence.
type Step struct {
	// Key names the answer in the instance steps.
	Key string
	// State defaults to CollectingInfo(n) with n counting info steps from 1.
	State         modal.InstanceState
	Message       modal.Message
	Prompt        Prompt
	TimeoutNotice string
}

// Sequencer carries one workflow instance through its prompts to exactly one terminal status.
type Sequencer struct {
	inst     modal.WorkflowInstance
	audit    []modal.AuditEvent
	token    string
	channel  string
	infoStep int
	outcome  *modal.Outcome
}

func NewSequencer(ctx workflow.Context, kind modal.WorkflowKind, initiator modal.Actor, token string) (*Sequencer, error) {
	s := &Sequencer{
		inst: modal.WorkflowInstance{
			WorkflowID: workflow.GetInfo(ctx).WorkflowExecution.ID,
			Kind:       kind,
			Initiator:  initiator,
			Steps:      make(map[string]string),
			Status:     modal.StatusActive,
		},
		audit: make([]modal.AuditEvent, 0),
		token: token,
	}
	if err := workflow.SetQueryHandler(ctx, QueryInstance, func() (modal.WorkflowInstance, error) {
		return s.inst, nil
	}); err != nil {
		return nil, err
	}
	if err := workflow.SetQueryHandler(ctx, QueryAuditLog, func() ([]modal.AuditEvent, error) {
		return s.audit, nil
	}); err != nil {
		return nil, err
	}
	s.record(ctx, "STARTED", "workflow started", map[string]any{"kind": kind, "initiator": initiator.ID})
	return s, nil
}

func (s *Sequencer) WorkflowID() string { return s.inst.WorkflowID }
func (s *Sequencer) Channel() string    { return s.channel }

func (s *Sequencer) SetSubject(a modal.Actor) {
	s.inst.Subject = &a
}

func (s *Sequencer) Set(key, value string) {
	s.inst.Steps[key] = value
}

func (s *Sequencer) Get(key string) string {
	return s.inst.Steps[key]
}

func (s *Sequencer) Instance() modal.WorkflowInstance { return s.inst }

// Outcome is the terminal outcome, or an Active outcome while the instance is running.
func (s *Sequencer) Outcome() modal.Outcome {
	if s.outcome == nil {
		return modal.Outcome{Status: modal.StatusActive}
	}
	return *s.outcome
}

func (s *Sequencer) record(ctx workflow.Context, kind, message string, data map[string]any) {
	s.audit = append(s.audit, modal.AuditEvent{
		At:      workflow.Now(ctx),
		Kind:    kind,
		Message: message,
		Data:    data,
	})
}

// Open starts the direct conversation with the initiator. Prompts are sent there.
func (s *Sequencer) Open(ctx workflow.Context) error {
	actx := withActivityOptions(ctx)
	var ch string
	if err := workflow.ExecuteActivity(actx, acts.OpenConversation, s.inst.Initiator.ID).Get(ctx, &ch); err != nil {
		s.record(ctx, "ERROR", "could not open conversation", map[string]any{"error": err.Error()})
		return err
	}
	s.channel = ch
	s.inst.ChannelID = ch
	s.record(ctx, "CONVERSATION_OPENED", "direct conversation opened", map[string]any{"channelId": ch})
	return nil
}

// Say sends msg to the conversation without waiting for a reply.
func (s *Sequencer) Say(ctx workflow.Context, msg modal.Message) error {
	return s.send(ctx, msg, false)
}

// Reply edits the initiator's command response without ending the instance.
func (s *Sequencer) Reply(ctx workflow.Context, msg modal.Message) error {
	if s.token == "" {
		return nil
	}
	actx := withActivityOptions(ctx)
	return workflow.ExecuteActivity(actx, acts.Respond, activities.RespondInput{Token: s.token, Message: msg}).Get(ctx, nil)
}

func (s *Sequencer) send(ctx workflow.Context, msg modal.Message, prompt bool) error {
	actx := withActivityOptions(ctx)
	return workflow.ExecuteActivity(actx, acts.SendMessage, activities.SendInput{
		WorkflowID: s.inst.WorkflowID,
		ChannelID:  s.channel,
		Message:    msg,
		Prompt:     prompt,
	}).Get(ctx, nil)
}

// Ask sends the step's prompt and waits for its answer. On timeout the instance is cancelled
// with the step's notice and ErrCancelled is returned.
func (s *Sequencer) Ask(ctx workflow.Context, step Step) (modal.PromptEvent, error) {
	if s.outcome != nil {
		return modal.PromptEvent{}, ErrCancelled
	}
	logger := workflow.GetLogger(ctx)
	state := step.State
	if state == "" {
		s.infoStep++
		state = modal.CollectingInfo(s.infoStep)
	}

	if n := drainEvents(ctx); n > 0 {
		logger.Debug("discarded events received before prompt", "Count", n, "Step", step.Key)
	}
	if err := s.send(ctx, step.Message, true); err != nil {
		logger.Error("failed to send prompt", "Step", step.Key, "Error", err)
		s.Deny(ctx, modal.ReasonActionFailed, modal.Text(msgPromptFailed))
		return modal.PromptEvent{}, ErrCancelled
	}

	p := step.Prompt
	p.ActorID = s.inst.Initiator.ID
	if p.ChannelID == "" {
		p.ChannelID = s.channel
	}
	s.inst.State = state
	s.inst.DeadlineAt = workflow.Now(ctx).Add(p.Timeout)
	s.record(ctx, "PROMPT_SENT", "awaiting "+step.Key, map[string]any{"state": state, "deadlineAt": s.inst.DeadlineAt})

	ev, err := AwaitEvent(ctx, p)
	if err != nil {
		if errors.Is(err, ErrPromptTimeout) {
			s.record(ctx, "PROMPT_TIMEOUT", step.Key+" not provided in time", nil)
			s.Cancel(ctx, step.TimeoutNotice)
			return modal.PromptEvent{}, ErrCancelled
		}
		return modal.PromptEvent{}, err
	}

	s.inst.Steps[step.Key] = answer(ev)
	s.inst.DeadlineAt = time.Time{}
	s.record(ctx, "STEP_RESOLVED", step.Key+" received", nil)
	return ev, nil
}

func answer(ev modal.PromptEvent) string {
	if ev.Kind == modal.EventChoice {
		return ev.Option
	}
	if ev.Content == "" && len(ev.Attachments) > 0 {
		return ev.Attachments[0]
	}
	return ev.Content
}

// Complete ends the instance successfully and acknowledges with msg.
func (s *Sequencer) Complete(ctx workflow.Context, out modal.Outcome, msg modal.Message) modal.Outcome {
	return s.finish(ctx, modal.StatusCompleted, modal.ReasonNone, out, msg)
}

// Cancel ends the instance after a prompt deadline lapsed.
func (s *Sequencer) Cancel(ctx workflow.Context, notice string) modal.Outcome {
	if notice == "" {
		notice = msgTimedOut
	}
	return s.finish(ctx, modal.StatusCancelledTimeout, modal.ReasonTimeout, modal.Outcome{}, modal.Text(notice))
}

// Deny ends the instance without committing: a denial, a rejected input or a refused action.
func (s *Sequencer) Deny(ctx workflow.Context, reason modal.FailureReason, msg modal.Message) modal.Outcome {
	return s.finish(ctx, modal.StatusCancelledDenied, reason, modal.Outcome{}, msg)
}

// Abort converts an unexpected error into a denial unless the instance already finished.
func (s *Sequencer) Abort(ctx workflow.Context, err error) modal.Outcome {
	if s.outcome != nil {
		return *s.outcome
	}
	workflow.GetLogger(ctx).Error("workflow aborted", "Error", err)
	return s.Deny(ctx, modal.ReasonActionFailed, modal.Text(msgInternalError))
}

func (s *Sequencer) finish(ctx workflow.Context, status modal.InstanceStatus, reason modal.FailureReason, out modal.Outcome, msg modal.Message) modal.Outcome {
	if s.outcome != nil {
		workflow.GetLogger(ctx).Warn("instance already terminal", "Status", s.outcome.Status, "Requested", status)
		return *s.outcome
	}
	out.Status = status
	out.Reason = reason
	out.Message = msg.Plain()
	s.outcome = &out

	s.inst.Status = status
	s.inst.Reason = reason
	s.inst.DeadlineAt = time.Time{}
	if status == modal.StatusCompleted {
		s.inst.State = modal.StateCompleted
	} else {
		s.inst.State = modal.StateCancelled
	}
	s.record(ctx, "DONE", "workflow finished", map[string]any{"status": status, "reason": reason})
	s.deliver(ctx, status, msg)
	return out
}

// deliver sends the terminal message to the command response and, for cancellations or when
// the response can no longer be edited, to the conversation as well. Interaction tokens expire
// long before a decision prompt does. Delivery errors are logged only.
func (s *Sequencer) deliver(ctx workflow.Context, status modal.InstanceStatus, msg modal.Message) {
	logger := workflow.GetLogger(ctx)
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	actx := withActivityOptions(dctx)
	responded := false
	if s.token != "" {
		err := workflow.ExecuteActivity(actx, acts.Respond, activities.RespondInput{Token: s.token, Message: msg}).Get(dctx, nil)
		if err != nil {
			logger.Warn("failed to deliver response", "Expired", activities.IsType(err, activities.ErrTypeResponseExpired), "Error", err)
		} else {
			responded = true
		}
	}
	if s.channel != "" && (!responded || status != modal.StatusCompleted) {
		err := workflow.ExecuteActivity(actx, acts.SendMessage, activities.SendInput{
			WorkflowID: s.inst.WorkflowID,
			ChannelID:  s.channel,
			Message:    msg,
		}).Get(dctx, nil)
		if err != nil {
			logger.Warn("failed to deliver notice", "Error", err)
		}
	}
}
