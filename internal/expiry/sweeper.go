// Package expiry reverses temporary actions whose expiry time has passed.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"modbot/internal/metrics"
	"modbot/internal/modal"
	"modbot/internal/platform"
	"modbot/internal/store"
)

// Report summarises one sweep.
type Report struct {
	Scanned int `json:"scanned"`
	// Reversed counts records lifted by this sweep; AlreadyReversed counts records whose
	// action had been lifted elsewhere. Both are deleted.
	Reversed        int `json:"reversed"`
	AlreadyReversed int `json:"alreadyReversed"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
	Deleted         int `json:"deleted"`
}

type Sweeper struct {
	Store     store.TempActions
	Moderator platform.Moderator
	// Messenger and ModLogChannel are optional; when both are set each reversal is announced.
	Messenger     platform.Messenger
	ModLogChannel string
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Sweep processes every record with expiresAt <= now. Records that could not be reversed are
// left for the next sweep.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	log := s.logger()
	due, err := s.Store.ExpiredTempActions(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("query expired temp actions: %w", err)
	}

	var rep Report
	rep.Scanned = len(due)
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		l := log.With(zap.String("action_id", rec.ActionID), zap.String("subject_id", rec.SubjectID), zap.String("scope_id", rec.ScopeID))

		scopeName, err := s.Moderator.ResolveScope(ctx, rec.ScopeID)
		if err != nil {
			l.Warn("scope unresolvable, skipping temp action", zap.Error(err))
			rep.Skipped++
			continue
		}

		already := false
		if err := s.Moderator.Unban(ctx, rec.ScopeID, rec.SubjectID, "Temporary ban expired"); err != nil {
			if !errors.Is(err, platform.ErrAlreadyReversed) {
				l.Error("failed to reverse temp action, leaving for next sweep", zap.Error(err))
				rep.Failed++
				continue
			}
			l.Info("temp action already reversed externally")
			already = true
		}

		deleted, err := s.Store.DeleteTempAction(ctx, rec.ActionID)
		if err != nil {
			l.Error("reversed but failed to delete temp action", zap.Error(err))
			rep.Failed++
			continue
		}
		if deleted {
			rep.Deleted++
		}
		if already {
			rep.AlreadyReversed++
		} else {
			rep.Reversed++
			l.Info("temp action reversed")
		}
		s.announce(ctx, l, rec, scopeName, already)
	}

	s.Metrics.Reversal("reversed", rep.Reversed)
	s.Metrics.Reversal("already_reversed", rep.AlreadyReversed)
	s.Metrics.Reversal("skipped", rep.Skipped)
	s.Metrics.Reversal("failed", rep.Failed)
	return rep, nil
}

func (s *Sweeper) announce(ctx context.Context, l *zap.Logger, rec modal.TempActionRecord, scopeName string, already bool) {
	if s.Messenger == nil || s.ModLogChannel == "" {
		return
	}
	desc := fmt.Sprintf("<@%s> has been unbanned from **%s** after their temporary ban expired.", rec.SubjectID, scopeName)
	if already {
		desc = fmt.Sprintf("Temporary ban on <@%s> expired; the ban had already been lifted.", rec.SubjectID)
	}
	msg := modal.Message{Embed: &modal.Embed{
		Title:       "Temporary ban expired",
		Description: desc,
		Fields:      []modal.Field{{Name: "Ban ID", Value: rec.ActionID, Inline: true}},
		Color:       0x57F287,
	}}
	if err := s.Messenger.Send(ctx, s.ModLogChannel, msg); err != nil {
		l.Warn("failed to post expiry to mod log", zap.Error(err))
	}
}

func (s *Sweeper) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
