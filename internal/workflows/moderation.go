package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"modbot/internal/activities"
	"modbot/internal/duration"
	"modbot/internal/modal"
)

// MaxMuteDuration is the longest timeout the platform accepts.
const MaxMuteDuration = 28 * 24 * time.Hour

// ModerationWorkflow runs ban, kick, mute and warn: validate, collect evidence from the
// initiator, notify the subject, apply the action, record it, then acknowledge.
func ModerationWorkflow(ctx workflow.Context, req modal.ModerationRequest) (modal.Outcome, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("moderation workflow started", "Kind", req.Kind, "SubjectID", req.Subject.ID)

	s, err := NewSequencer(ctx, modal.WorkflowKind(req.Kind), req.Initiator, req.InteractionToken)
	if err != nil {
		return modal.Outcome{}, err
	}
	s.SetSubject(req.Subject)
	s.Set("reason", req.Reason)
	timeouts := req.Timeouts.WithDefaults()
	actx := withActivityOptions(ctx)

	switch req.Kind {
	case modal.KindBan, modal.KindKick, modal.KindMute, modal.KindWarn:
	default:
		return s.Deny(ctx, modal.ReasonValidation, modal.Text(fmt.Sprintf("❌ Unsupported action %q.", req.Kind))), nil
	}

	spec, msg, ok := validateDuration(req.Kind, req.Duration)
	if !ok {
		return s.Deny(ctx, modal.ReasonValidation, msg), nil
	}
	if spec.IsFinite() {
		s.Set("duration", spec.Raw)
	}

	var actionID string
	if err := workflow.ExecuteActivity(actx, acts.ReserveActionID).Get(ctx, &actionID); err != nil {
		logger.Error("failed to reserve action id", "Error", err)
		return s.Deny(ctx, modal.ReasonPersistence, modal.Text(msgIDFailed)), nil
	}
	s.Set("actionId", actionID)

	if err := s.Open(ctx); err != nil {
		logger.Warn("could not open conversation with initiator", "Error", err)
		return s.Deny(ctx, modal.ReasonActionFailed, modal.Text(msgDMClosed)), nil
	}

	evidence, err := RequireEvidence(ctx, s, confirmMessage(req, actionID, spec), timeouts.Evidence, evidenceTimeoutNotice(req.Kind))
	if errors.Is(err, ErrCancelled) {
		return s.Outcome(), nil
	}
	if err != nil {
		return s.Abort(ctx, err), nil
	}
	if err := s.Say(ctx, modal.Text(fmt.Sprintf("✅ Evidence received, finalizing %s...", verb(req.Kind)))); err != nil {
		logger.Warn("failed to acknowledge evidence", "Error", err)
	}

	if err := applyModeration(ctx, s, req, actionID, spec); err != nil {
		logger.Warn("moderation action failed", "Kind", req.Kind, "Error", err)
		return s.Deny(ctx, modal.ReasonActionFailed, actionFailedMessage(req.Kind,
			activities.IsType(err, activities.ErrTypeHierarchy),
			activities.IsType(err, activities.ErrTypeUnknownMember))), nil
	}

	rec := modal.ActionRecord{
		ActionID:    actionID,
		Kind:        req.Kind,
		SubjectID:   req.Subject.ID,
		ModeratorID: req.Initiator.ID,
		Reason:      req.Reason,
		Evidence:    evidence,
		ScopeID:     req.ScopeID,
		ChannelID:   req.ChannelID,
	}
	in := activities.RecordInput{Record: rec}
	if spec.IsFinite() {
		in.Record.DurationSpec = modal.StringPtr(spec.Raw)
		if req.Kind == modal.KindBan {
			in.TempDelay = spec.Delay
		}
	}

	var stored modal.ActionRecord
	if err := workflow.ExecuteActivity(actx, acts.RecordAction, in).Get(ctx, &stored); err != nil {
		logger.Error("action applied but not recorded", "ActionID", actionID, "Error", err)
		return s.Complete(ctx, modal.Outcome{ActionID: actionID, PersistenceFailed: true}, notLoggedMessage(req.Kind, actionID)), nil
	}

	if stored.ActionID != actionID {
		actionID = stored.ActionID
		s.Set("actionId", actionID)
	}
	out := s.Complete(ctx, modal.Outcome{ActionID: actionID}, successMessage(req.Kind, actionID))
	postModLog(ctx, modLogMessage(req, stored, spec))
	return out, nil
}

// validateDuration applies the per-kind duration rules. Kick and warn ignore the duration.
func validateDuration(kind modal.ActionKind, raw string) (duration.Spec, modal.Message, bool) {
	switch kind {
	case modal.KindBan:
		spec := duration.Parse(raw)
		if spec.IsInvalid() {
			return spec, invalidDurationMessage(kind, raw), false
		}
		return spec, modal.Message{}, true
	case modal.KindMute:
		spec := duration.Parse(raw)
		if !spec.IsFinite() {
			return spec, invalidDurationMessage(kind, raw), false
		}
		if spec.Delay > MaxMuteDuration {
			return spec, modal.Text("❌ Mutes can last at most 28 days (`28d`)."), false
		}
		return spec, modal.Message{}, true
	}
	return duration.Parse(""), modal.Message{}, true
}

// applyModeration notifies the subject and performs the action in the order each kind needs.
// Ban and kick notify first because the subject can no longer be reached afterwards.
func applyModeration(ctx workflow.Context, s *Sequencer, req modal.ModerationRequest, actionID string, spec duration.Spec) error {
	actx := withActivityOptions(ctx)
	notify := func() {
		var res activities.NotifyResult
		err := workflow.ExecuteActivity(actx, acts.NotifySubject, activities.NotifyInput{
			SubjectID: req.Subject.ID,
			Message:   subjectNotice(req, actionID, spec),
		}).Get(ctx, &res)
		if err != nil || !res.Delivered {
			workflow.GetLogger(ctx).Warn("subject could not be notified", "SubjectID", req.Subject.ID, "Error", err)
		}
		s.Set("notified", fmt.Sprint(err == nil && res.Delivered))
	}
	apply := func() error {
		return workflow.ExecuteActivity(actx, acts.ApplyModeration, activities.ModerationInput{
			Kind:      req.Kind,
			ScopeID:   req.ScopeID,
			SubjectID: req.Subject.ID,
			Reason:    req.Reason,
			Delay:     spec.Delay,
		}).Get(ctx, nil)
	}

	switch req.Kind {
	case modal.KindBan, modal.KindKick:
		notify()
		return apply()
	case modal.KindMute:
		if err := apply(); err != nil {
			return err
		}
		notify()
	case modal.KindWarn:
		notify()
	}
	return nil
}

// postModLog is best effort; failures are logged only.
func postModLog(ctx workflow.Context, msg modal.Message) {
	actx := withActivityOptions(ctx)
	if err := workflow.ExecuteActivity(actx, acts.PostModLog, msg).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("failed to post mod log", "Error", err)
	}
}
