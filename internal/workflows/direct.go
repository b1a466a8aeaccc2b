package workflows

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"modbot/internal/activities"
	"modbot/internal/modal"
)

const (
	MinPurge = 1
	MaxPurge = 100

	// purgeSubject is logged as the subject of a purge, which affects many users.
	purgeSubject = "Multiple"
)

// DirectActionWorkflow runs unban, unmute and purge. There are no prompts: act, record,
// acknowledge.
func DirectActionWorkflow(ctx workflow.Context, req modal.DirectActionRequest) (modal.Outcome, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("direct action workflow started", "Kind", req.Kind, "SubjectID", req.SubjectID)

	s, err := NewSequencer(ctx, modal.WorkflowKind(req.Kind), req.Initiator, req.InteractionToken)
	if err != nil {
		return modal.Outcome{}, err
	}
	if req.SubjectID != "" {
		s.SetSubject(modal.Actor{ID: req.SubjectID})
	}
	reason := req.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	actx := withActivityOptions(ctx)

	switch req.Kind {
	case modal.KindPurge:
		if req.Amount < MinPurge || req.Amount > MaxPurge {
			return s.Deny(ctx, modal.ReasonValidation, modal.Text(fmt.Sprintf("❌ Please provide a number between %d and %d.", MinPurge, MaxPurge))), nil
		}
	case modal.KindUnban, modal.KindUnmute:
		if req.SubjectID == "" {
			return s.Deny(ctx, modal.ReasonValidation, modal.Text("❌ Please provide the user to "+verb(req.Kind)+".")), nil
		}
	default:
		return s.Deny(ctx, modal.ReasonValidation, modal.Text(fmt.Sprintf("❌ Unsupported action %q.", req.Kind))), nil
	}

	var actionID string
	if err := workflow.ExecuteActivity(actx, acts.ReserveActionID).Get(ctx, &actionID); err != nil {
		logger.Error("failed to reserve action id", "Error", err)
		return s.Deny(ctx, modal.ReasonPersistence, modal.Text(msgIDFailed)), nil
	}
	s.Set("actionId", actionID)

	in := activities.RecordInput{Record: modal.ActionRecord{
		ActionID:    actionID,
		Kind:        req.Kind,
		SubjectID:   req.SubjectID,
		ModeratorID: req.Initiator.ID,
		Reason:      reason,
		ScopeID:     req.ScopeID,
		ChannelID:   req.ChannelID,
	}}
	var (
		success func(actionID string) string
		logDesc string
	)

	switch req.Kind {
	case modal.KindPurge:
		var deleted int
		err := workflow.ExecuteActivity(actx, acts.PurgeMessages, activities.PurgeInput{ChannelID: req.ChannelID, Amount: req.Amount}).Get(ctx, &deleted)
		if err != nil {
			logger.Warn("purge failed", "Error", err)
			return s.Deny(ctx, modal.ReasonActionFailed, modal.Text("❌ An error occurred while purging messages.")), nil
		}
		s.Set("deleted", fmt.Sprint(deleted))
		in.Record.SubjectID = purgeSubject
		in.Record.Reason = fmt.Sprintf("Purged %d messages. Reason: %s", deleted, reason)
		success = func(string) string { return fmt.Sprintf("✅ Successfully purged **%d** messages.", deleted) }
		logDesc = fmt.Sprintf("**%d** messages have been purged from <#%s>.", deleted, req.ChannelID)

	case modal.KindUnban, modal.KindUnmute:
		err := workflow.ExecuteActivity(actx, acts.ApplyModeration, activities.ModerationInput{
			Kind:      req.Kind,
			ScopeID:   req.ScopeID,
			SubjectID: req.SubjectID,
			Reason:    reason,
		}).Get(ctx, nil)
		if activities.IsType(err, activities.ErrTypeAlreadyReversed) {
			state := "banned"
			if req.Kind == modal.KindUnmute {
				state = "muted"
			}
			return s.Deny(ctx, modal.ReasonActionFailed, modal.Text(fmt.Sprintf("❌ That user is not %s.", state))), nil
		}
		if err != nil {
			logger.Warn("reversal failed", "Kind", req.Kind, "Error", err)
			return s.Deny(ctx, modal.ReasonActionFailed, actionFailedMessage(req.Kind,
				activities.IsType(err, activities.ErrTypeHierarchy),
				activities.IsType(err, activities.ErrTypeUnknownMember))), nil
		}
		in.ClearTempActions = req.Kind == modal.KindUnban
		success = func(id string) string {
			return fmt.Sprintf("✅ <@%s> has been %s (%s ID: %s).", req.SubjectID, pastTense(req.Kind), req.Kind.Label(), id)
		}
		logDesc = fmt.Sprintf("User with ID **%s** has been %s.", req.SubjectID, pastTense(req.Kind))
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
	out := s.Complete(ctx, modal.Outcome{ActionID: actionID}, modal.Text(success(actionID)))

	color := colorSuccess
	if req.Kind == modal.KindPurge {
		color = colorPurge
	}
	postModLog(ctx, modal.Message{Embed: &modal.Embed{
		Title:       req.Kind.Label() + " Logged",
		Description: logDesc,
		Fields: []modal.Field{
			{Name: "Moderator", Value: subjectLabel(req.Initiator), Inline: true},
			{Name: "Reason", Value: reason, Inline: true},
			{Name: "ID", Value: actionID, Inline: true},
		},
		Color: color,
	}})
	return out, nil
}
