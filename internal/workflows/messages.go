package workflows

import (
	"fmt"
	"strings"
	"time"

	"modbot/internal/duration"
	"modbot/internal/modal"
)

const (
	colorDanger  = 0xED4245
	colorWarning = 0xFEE75C
	colorSuccess = 0x57F287
	colorInfo    = 0x5865F2
	colorPurge   = 0xFFA500
)

const (
	msgTimedOut      = "⚠️ You took too long to respond. This request has been cancelled."
	msgPromptFailed  = "❌ I could not send you the next step. Please check your DM settings."
	msgInternalError = "❌ Something went wrong while processing this request. Staff have been notified in the logs."
	msgDMClosed      = "❌ Unable to send you a DM. Please check your DM settings."
	msgIDFailed      = "❌ Could not generate an ID for this action. Please try again."
)

func banType(spec duration.Spec) string {
	if spec.IsFinite() {
		return "Temporary"
	}
	return "Permanent"
}

func invalidDurationMessage(kind modal.ActionKind, raw string) modal.Message {
	if kind == modal.KindMute && raw == "" {
		return modal.Text("❌ A mute needs a duration such as `10m`, `1h` or `1d`.")
	}
	return modal.Text(fmt.Sprintf("❌ Invalid duration `%s`. Use a number followed by `m`, `h` or `d` (for example `10m`, `1h`, `1d`).", raw))
}

func moderationFields(req modal.ModerationRequest, actionID string, spec duration.Spec) []modal.Field {
	fields := []modal.Field{
		{Name: req.Kind.Label() + " ID", Value: actionID, Inline: true},
		{Name: "User", Value: subjectLabel(req.Subject), Inline: true},
		{Name: "Reason", Value: req.Reason},
	}
	switch req.Kind {
	case modal.KindBan:
		fields = append(fields,
			modal.Field{Name: "Ban Type", Value: banType(spec), Inline: true},
			modal.Field{Name: "Duration", Value: spec.Label(), Inline: true},
		)
	case modal.KindMute:
		fields = append(fields, modal.Field{Name: "Duration", Value: spec.Label(), Inline: true})
	}
	return fields
}

func subjectLabel(a modal.Actor) string {
	if a.Tag == "" {
		return a.Mention()
	}
	return a.Tag
}

func confirmMessage(req modal.ModerationRequest, actionID string, spec duration.Spec) modal.Message {
	desc := fmt.Sprintf("You are about to %s **%s**. Reply to this message with an evidence attachment (screenshot or file) to proceed.",
		verb(req.Kind), subjectLabel(req.Subject))
	return modal.Message{Embed: &modal.Embed{
		Title:       "🚨 Confirm " + req.Kind.Label(),
		Description: desc,
		Fields:      moderationFields(req, actionID, spec),
		Footer:      "Evidence is required before the action is applied.",
		Color:       colorWarning,
	}}
}

func evidenceTimeoutNotice(kind modal.ActionKind) string {
	return fmt.Sprintf("⚠️ %s creation cancelled: evidence not provided in time.", kind.Label())
}

func verb(kind modal.ActionKind) string {
	switch kind {
	case modal.KindWarn:
		return "warn"
	case modal.KindMute:
		return "mute"
	}
	return strings.ToLower(kind.Label())
}

func pastTense(kind modal.ActionKind) string {
	switch kind {
	case modal.KindBan:
		return "banned"
	case modal.KindKick:
		return "kicked"
	case modal.KindMute:
		return "muted"
	case modal.KindWarn:
		return "warned"
	case modal.KindUnban:
		return "unbanned"
	case modal.KindUnmute:
		return "unmuted"
	}
	return string(kind)
}

func subjectNotice(req modal.ModerationRequest, actionID string, spec duration.Spec) modal.Message {
	prep := "from"
	if req.Kind == modal.KindMute || req.Kind == modal.KindWarn {
		prep = "in"
	}
	fields := []modal.Field{
		{Name: req.Kind.Label() + " ID", Value: actionID, Inline: true},
		{Name: "Reason", Value: req.Reason},
	}
	switch req.Kind {
	case modal.KindBan:
		fields = append(fields,
			modal.Field{Name: "Ban Type", Value: banType(spec), Inline: true},
			modal.Field{Name: "Duration", Value: spec.Label(), Inline: true},
		)
	case modal.KindMute:
		fields = append(fields, modal.Field{Name: "Duration", Value: spec.Label(), Inline: true})
	}
	if req.InviteURL != "" && (req.Kind == modal.KindKick || (req.Kind == modal.KindBan && spec.IsFinite())) {
		fields = append(fields, modal.Field{Name: "Server Invite", Value: req.InviteURL})
	}
	return modal.Message{Embed: &modal.Embed{
		Title:       "You have been " + pastTense(req.Kind),
		Description: fmt.Sprintf("You have been %s %s **%s**.", pastTense(req.Kind), prep, req.ScopeName),
		Fields:      fields,
		Footer:      "Keep this ID for appeals.",
		Color:       colorDanger,
	}}
}

func actionFailedMessage(kind modal.ActionKind, hierarchy, unknownMember bool) modal.Message {
	switch {
	case unknownMember:
		return modal.Text("❌ Could not find the specified user in this server.")
	case hierarchy:
		return modal.Text(fmt.Sprintf("❌ I could not %s that user. Make sure my role is above theirs and that I have the required permission.", verb(kind)))
	}
	return modal.Text(fmt.Sprintf("❌ Failed to %s that user. Please try again.", verb(kind)))
}

func successMessage(kind modal.ActionKind, actionID string) modal.Message {
	return modal.Text(fmt.Sprintf("✅ %s issued successfully (%s ID: %s).", kind.Label(), kind.Label(), actionID))
}

func notLoggedMessage(kind modal.ActionKind, actionID string) modal.Message {
	return modal.Text(fmt.Sprintf("⚠️ %s applied but not logged: the action took effect but could not be saved to the mod log (%s ID: %s). Please record it manually.",
		kind.Label(), kind.Label(), actionID))
}

func modLogMessage(req modal.ModerationRequest, rec modal.ActionRecord, spec duration.Spec) modal.Message {
	fields := moderationFields(req, rec.ActionID, spec)
	fields = append(fields, modal.Field{Name: "Moderator", Value: subjectLabel(req.Initiator), Inline: true})
	if rec.Evidence != "" {
		fields = append(fields, modal.Field{Name: "Evidence", Value: rec.Evidence})
	}
	return modal.Message{Embed: &modal.Embed{
		Title:       "New " + req.Kind.Label() + " Issued",
		Description: fmt.Sprintf("**%s** has been %s.", subjectLabel(req.Subject), pastTense(req.Kind)),
		Fields:      fields,
		Color:       colorDanger,
	}}
}

// humanDuration renders prompt timeouts the way users are told about them: "3 minutes", "48 hours".
func humanDuration(d time.Duration) string {
	unit := func(n int, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return unit(int(d/time.Minute), "minute")
	}
	return unit(int(d.Round(time.Second)/time.Second), "second")
}
