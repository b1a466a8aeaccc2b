package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"modbot/internal/expiry"
	"modbot/internal/idgen"
	"modbot/internal/modal"
	"modbot/internal/platform"
	"modbot/internal/session"
	"modbot/internal/store"
)

// Activities holds the adapters the workflows reach through. Every exported method is
// registered as an activity.
type Activities struct {
	Store     store.Store
	Messenger platform.Messenger
	Moderator platform.Moderator
	IDs       *idgen.Generator
	Sweeper   *expiry.Sweeper
	// Sessions is optional; when set, prompts update routing.
	Sessions        *session.Registry
	ModLogChannel   string
	FallbackChannel string
	Clock           func() time.Time
}

func (a *Activities) now() time.Time {
	if a.Clock != nil {
		return a.Clock().UTC()
	}
	return time.Now().UTC()
}

func (a *Activities) ReserveActionID(ctx context.Context) (string, error) {
	id, err := a.IDs.ActionID(ctx)
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

func (a *Activities) ReserveCommissionID(ctx context.Context) (string, error) {
	id, err := a.IDs.CommissionID(ctx)
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

// OpenConversation returns the direct-message channel with userID.
func (a *Activities) OpenConversation(ctx context.Context, userID string) (string, error) {
	ch, err := a.Messenger.OpenDM(ctx, userID)
	if err != nil {
		return "", classify(err)
	}
	return ch, nil
}

type SendInput struct {
	WorkflowID string        `json:"workflowId"`
	ChannelID  string        `json:"channelId"`
	Message    modal.Message `json:"message"`
	// Prompt marks a message the workflow will wait on a reply to.
	Prompt bool `json:"prompt,omitempty"`
}

func (a *Activities) SendMessage(ctx context.Context, in SendInput) error {
	if err := a.Messenger.Send(ctx, in.ChannelID, in.Message); err != nil {
		return classify(err)
	}
	if in.Prompt && a.Sessions != nil {
		if err := a.Sessions.MarkPrompted(in.WorkflowID, in.ChannelID); err != nil {
			activity.GetLogger(ctx).Debug("no session to mark prompted", "WorkflowID", in.WorkflowID)
		}
	}
	return nil
}

type RespondInput struct {
	Token   string        `json:"token"`
	Message modal.Message `json:"message"`
}

// Respond edits the ephemeral reply to the command that started the workflow.
func (a *Activities) Respond(ctx context.Context, in RespondInput) error {
	if in.Token == "" {
		return nil
	}
	if err := a.Messenger.EditResponse(ctx, in.Token, in.Message); err != nil {
		return classify(err)
	}
	return nil
}

type NotifyInput struct {
	SubjectID string        `json:"subjectId"`
	Message   modal.Message `json:"message"`
}

type NotifyResult struct {
	Delivered bool   `json:"delivered"`
	Fallback  bool   `json:"fallback,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

// NotifySubject DMs the subject and falls back to the public fallback channel with a mention.
// Delivery failure is reported in the result, never as an error.
func (a *Activities) NotifySubject(ctx context.Context, in NotifyInput) (NotifyResult, error) {
	logger := activity.GetLogger(ctx)
	ch, err := a.Messenger.OpenDM(ctx, in.SubjectID)
	if err == nil {
		err = a.Messenger.Send(ctx, ch, in.Message)
	}
	if err == nil {
		return NotifyResult{Delivered: true, ChannelID: ch}, nil
	}
	logger.Info("direct notification failed, using fallback channel", "SubjectID", in.SubjectID, "Error", err)

	if a.FallbackChannel == "" {
		return NotifyResult{}, nil
	}
	msg := in.Message
	msg.Content = fmt.Sprintf("<@%s> %s", in.SubjectID, msg.Content)
	if err := a.Messenger.Send(ctx, a.FallbackChannel, msg); err != nil {
		logger.Warn("fallback notification failed", "SubjectID", in.SubjectID, "Error", err)
		return NotifyResult{}, nil
	}
	return NotifyResult{Delivered: true, Fallback: true, ChannelID: a.FallbackChannel}, nil
}

type ModerationInput struct {
	Kind      modal.ActionKind `json:"kind"`
	ScopeID   string           `json:"scopeId"`
	SubjectID string           `json:"subjectId"`
	Reason    string           `json:"reason"`
	// Delay is the mute length.
	Delay time.Duration `json:"delay,omitempty"`
}

func (a *Activities) ApplyModeration(ctx context.Context, in ModerationInput) error {
	var err error
	switch in.Kind {
	case modal.KindBan:
		err = a.Moderator.Ban(ctx, in.ScopeID, in.SubjectID, in.Reason)
	case modal.KindKick:
		err = a.Moderator.Kick(ctx, in.ScopeID, in.SubjectID, in.Reason)
	case modal.KindMute:
		until := a.now().Add(in.Delay)
		err = a.Moderator.Timeout(ctx, in.ScopeID, in.SubjectID, &until, in.Reason)
	case modal.KindUnmute:
		err = a.Moderator.Timeout(ctx, in.ScopeID, in.SubjectID, nil, in.Reason)
	case modal.KindUnban:
		err = a.Moderator.Unban(ctx, in.ScopeID, in.SubjectID, in.Reason)
	default:
		return nonRetryable(fmt.Errorf("no moderation action for kind %q", in.Kind), ErrTypeInvalidInput)
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

type PurgeInput struct {
	ChannelID string `json:"channelId"`
	Amount    int    `json:"amount"`
}

func (a *Activities) PurgeMessages(ctx context.Context, in PurgeInput) (int, error) {
	n, err := a.Moderator.Purge(ctx, in.ChannelID, in.Amount)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

type RecordInput struct {
	Record modal.ActionRecord `json:"record"`
	// TempDelay > 0 also writes a temporary-action record expiring TempDelay after creation.
	TempDelay time.Duration `json:"tempDelay,omitempty"`
	// ClearTempActions removes the subject's pending temporary actions after the write.
	ClearTempActions bool `json:"clearTempActions,omitempty"`
}

// maxIDRedraws bounds how often RecordAction replaces an id another action already holds.
const maxIDRedraws = 3

// RecordAction appends to the action log and returns the stored record. A duplicate id that
// holds this action's own earlier write is success; one held by a different action is
// replaced with a fresh id, which the returned record carries.
func (a *Activities) RecordAction(ctx context.Context, in RecordInput) (modal.ActionRecord, error) {
	logger := activity.GetLogger(ctx)
	rec := in.Record
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now()
	}

	for redraws := 0; ; redraws++ {
		err := a.Store.AppendAction(ctx, rec, tempRecord(rec, in.TempDelay))
		if !errors.Is(err, store.ErrDuplicateID) {
			if err != nil {
				return modal.ActionRecord{}, classify(err)
			}
			break
		}
		existing, gerr := a.Store.GetAction(ctx, rec.ActionID)
		if gerr != nil {
			return modal.ActionRecord{}, classify(gerr)
		}
		if sameAction(existing, rec) {
			logger.Info("action already recorded by earlier attempt", "ActionID", rec.ActionID)
			rec = existing
			break
		}
		if redraws == maxIDRedraws {
			return modal.ActionRecord{}, classify(err)
		}
		id, ierr := a.IDs.ActionID(ctx)
		if ierr != nil {
			return modal.ActionRecord{}, classify(ierr)
		}
		logger.Warn("action id taken by another action, redrawing", "ActionID", rec.ActionID, "NewActionID", id)
		rec.ActionID = id
	}

	if in.ClearTempActions {
		n, err := a.Store.DeleteTempActionsForSubject(ctx, rec.ScopeID, rec.SubjectID)
		if err != nil {
			return modal.ActionRecord{}, classify(err)
		}
		if n > 0 {
			logger.Info("cleared pending temp actions", "SubjectID", rec.SubjectID, "Count", n)
		}
	}
	return rec, nil
}

func tempRecord(rec modal.ActionRecord, delay time.Duration) *modal.TempActionRecord {
	if delay <= 0 {
		return nil
	}
	return &modal.TempActionRecord{
		ActionID:  rec.ActionID,
		SubjectID: rec.SubjectID,
		ScopeID:   rec.ScopeID,
		ExpiresAt: rec.CreatedAt.Add(delay),
	}
}

// sameAction reports whether stored is rec written earlier. CreatedAt is not compared
// because a retried attempt stamps a new time.
func sameAction(stored, rec modal.ActionRecord) bool {
	return stored.Kind == rec.Kind &&
		stored.SubjectID == rec.SubjectID &&
		stored.ModeratorID == rec.ModeratorID &&
		stored.ScopeID == rec.ScopeID &&
		stored.Reason == rec.Reason
}

// PostModLog sends msg to the configured mod-log channel, if any.
func (a *Activities) PostModLog(ctx context.Context, msg modal.Message) error {
	if a.ModLogChannel == "" {
		return nil
	}
	if err := a.Messenger.Send(ctx, a.ModLogChannel, msg); err != nil {
		return classify(err)
	}
	return nil
}

// SaveCommission writes the provisional Pending row.
func (a *Activities) SaveCommission(ctx context.Context, c modal.Commission) (modal.Commission, error) {
	now := a.now()
	c.Status = modal.CommissionPending
	c.CreatedAt = now
	c.UpdatedAt = now
	err := a.Store.CreateCommission(ctx, c)
	if errors.Is(err, store.ErrDuplicateID) && activity.GetInfo(ctx).Attempt > 1 {
		err = nil
	}
	if err != nil {
		return modal.Commission{}, classify(err)
	}
	return c, nil
}

type ConfirmCommissionInput struct {
	CommissionID string `json:"commissionId"`
	ChannelID    string `json:"channelId"`
}

func (a *Activities) ConfirmCommission(ctx context.Context, in ConfirmCommissionInput) error {
	if err := a.Store.ConfirmCommission(ctx, in.CommissionID, in.ChannelID, a.now()); err != nil {
		return classify(err)
	}
	return nil
}

// DiscardCommission deletes the provisional row. Deleting a missing row succeeds.
func (a *Activities) DiscardCommission(ctx context.Context, commissionID string) error {
	if err := a.Store.DeleteCommission(ctx, commissionID); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Activities) CreateCommissionChannel(ctx context.Context, in platform.PrivateChannel) (string, error) {
	ch, err := a.Messenger.CreatePrivateChannel(ctx, in)
	if err != nil {
		return "", classify(err)
	}
	return ch, nil
}

func (a *Activities) SweepExpiredTempActions(ctx context.Context) (expiry.Report, error) {
	rep, err := a.Sweeper.Sweep(ctx, a.now())
	if err != nil {
		return rep, fmt.Errorf("sweep: %w", err)
	}
	activity.GetLogger(ctx).Info("expiry sweep finished",
		"Scanned", rep.Scanned, "Reversed", rep.Reversed, "AlreadyReversed", rep.AlreadyReversed,
		"Skipped", rep.Skipped, "Failed", rep.Failed)
	return rep, nil
}
