package discord

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/modal"
	"modbot/internal/platform"
)

func records(n int) []modal.ActionRecord {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]modal.ActionRecord, n)
	for i := range out {
		out[i] = modal.ActionRecord{
			ActionID:    fmt.Sprintf("act%05d", i),
			Kind:        modal.KindBan,
			SubjectID:   "2002",
			ModeratorID: "1001",
			Reason:      "spam",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestModLogPage(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		msg := ModLogPage("2002", "troll", nil, 0)
		assert.Equal(t, "ℹ️ No mod logs found for **troll**.", msg.Content)
		assert.Nil(t, msg.Embed)
	})

	t.Run("single page has no buttons", func(t *testing.T) {
		msg := ModLogPage("2002", "troll", records(3), 0)
		require.NotNil(t, msg.Embed)
		assert.Equal(t, "Moderation Logs for troll", msg.Embed.Title)
		assert.Equal(t, "Page 1 of 1", msg.Embed.Footer)
		assert.Empty(t, msg.Buttons)
	})

	t.Run("middle page enables both buttons", func(t *testing.T) {
		msg := ModLogPage("2002", "", records(12), 1)
		assert.Equal(t, "Moderation Logs for <@2002>", msg.Embed.Title)
		assert.Equal(t, "Page 2 of 3", msg.Embed.Footer)
		require.Len(t, msg.Buttons, 2)
		assert.Equal(t, modal.PageID("2002", 0), msg.Buttons[0].ID)
		assert.Equal(t, modal.PageID("2002", 2), msg.Buttons[1].ID)
		assert.False(t, msg.Buttons[0].Disabled)
		assert.False(t, msg.Buttons[1].Disabled)
		assert.Contains(t, msg.Embed.Description, "act00005")
		assert.NotContains(t, msg.Embed.Description, "act00010")
	})

	t.Run("page is clamped", func(t *testing.T) {
		msg := ModLogPage("2002", "troll", records(12), 99)
		assert.Equal(t, "Page 3 of 3", msg.Embed.Footer)
		assert.True(t, msg.Buttons[1].Disabled)
		assert.False(t, msg.Buttons[0].Disabled)

		msg = ModLogPage("2002", "troll", records(12), -4)
		assert.Equal(t, "Page 1 of 3", msg.Embed.Footer)
		assert.True(t, msg.Buttons[0].Disabled)
	})
}

func TestFormatLogEntry(t *testing.T) {
	rec := records(1)[0]
	entry := formatLogEntry(rec)
	assert.Contains(t, entry, "**Duration:** N/A")
	assert.NotContains(t, entry, "**Evidence:**")
	assert.Contains(t, entry, fmt.Sprintf("<t:%d:f>", rec.CreatedAt.Unix()))

	rec.DurationSpec = modal.StringPtr("7d")
	rec.Evidence = "https://cdn.example/proof.png"
	rec.ChannelID = "staff"
	entry = formatLogEntry(rec)
	assert.Contains(t, entry, "**Duration:** 7d")
	assert.Contains(t, entry, "**Evidence:** https://cdn.example/proof.png")
	assert.Contains(t, entry, "**Channel:** <#staff>")
}

func TestModStatsMessage(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	fieldMap := func(m modal.Message) map[string]string {
		out := map[string]string{}
		for _, f := range m.Embed.Fields {
			out[f.Name] = f.Value
		}
		return out
	}

	t.Run("week window", func(t *testing.T) {
		w, err := modal.ParseStatsWindow("week", now)
		require.NoError(t, err)
		stats := modal.ActionStats{
			Total:  14,
			Counts: map[modal.ActionKind]int{modal.KindBan: 10, modal.KindWarn: 4},
			TopModerators: []modal.ActorCount{
				{ActorID: "1001", Count: 9},
				{ActorID: "1002", Count: 5},
			},
		}
		fields := fieldMap(ModStatsMessage(w, stats, now))
		assert.Equal(t, "14", fields["Total Actions"])
		assert.Equal(t, "10", fields["Bans"])
		assert.Equal(t, "0", fields["Kicks"])
		assert.Equal(t, "2.00", fields["Average Actions/Day"])
		assert.Equal(t, "<@1001>: 9\n<@1002>: 5", fields["Top Moderators"])
	})

	t.Run("empty all-time window", func(t *testing.T) {
		w, err := modal.ParseStatsWindow("all", now)
		require.NoError(t, err)
		msg := ModStatsMessage(w, modal.ActionStats{Counts: map[modal.ActionKind]int{}}, now)
		fields := fieldMap(msg)
		assert.Equal(t, "N/A", fields["Average Actions/Day"])
		assert.Equal(t, "None", fields["Top Moderators"])
		assert.Contains(t, msg.Embed.Description, "**all**")
	})
}

func TestNoteModal(t *testing.T) {
	resp := noteModal(strings.Repeat("x", 60))
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Len(t, []rune(resp.Data.Title), 45)
	assert.Len(t, resp.Data.Components, 2)

	assert.Equal(t, "Add Mod Note", noteModal("").Data.Title)
}

func TestFormatNote(t *testing.T) {
	assert.Equal(t, "plain", formatNote("  ", " plain "))
	assert.Equal(t, "**Title**\nbody", formatNote("Title", "body"))
}

func TestTextInputs(t *testing.T) {
	values := textInputs([]discordgo.MessageComponent{
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{&discordgo.TextInput{CustomID: "a", Value: "1"}}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{discordgo.TextInput{CustomID: "b", Value: "2"}}},
	})
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, values)
}

func TestRenderComponents(t *testing.T) {
	assert.Nil(t, renderComponents(nil))

	buttons := make([]modal.Button, 7)
	for i := range buttons {
		buttons[i] = modal.Button{ID: fmt.Sprint(i), Label: fmt.Sprint(i)}
	}
	buttons[0].Style = modal.ButtonSuccess
	rows := renderComponents(buttons)
	require.Len(t, rows, 2)
	first := rows[0].(discordgo.ActionsRow)
	assert.Len(t, first.Components, 5)
	assert.Len(t, rows[1].(discordgo.ActionsRow).Components, 2)
	assert.Equal(t, discordgo.SuccessButton, first.Components[0].(discordgo.Button).Style)
	assert.Equal(t, discordgo.SecondaryButton, first.Components[1].(discordgo.Button).Style)
}

func TestRenderEmbeds(t *testing.T) {
	assert.Nil(t, renderEmbeds(modal.Text("hi")))

	embeds := renderEmbeds(modal.Message{Embed: &modal.Embed{
		Title:  "t",
		Fields: []modal.Field{{Name: "Evidence", Value: ""}},
		Footer: "f",
	}})
	require.Len(t, embeds, 1)
	assert.Equal(t, "\u200b", embeds[0].Fields[0].Value)
	assert.Equal(t, "f", embeds[0].Footer.Text)
}

func TestWebhookEditClearsMissingParts(t *testing.T) {
	edit := webhookEdit(modal.Text("done"))
	assert.Equal(t, "done", *edit.Content)
	assert.NotNil(t, edit.Embeds)
	assert.Empty(t, *edit.Embeds)
	assert.NotNil(t, edit.Components)
	assert.Empty(t, *edit.Components)
}

func TestGate(t *testing.T) {
	g := Gate{StaffRoles: []string{"staff", "admin"}, DeveloperRole: "dev"}
	assert.True(t, g.Allows(CmdBan, []string{"member", "admin"}))
	assert.False(t, g.Allows(CmdBan, []string{"member"}))
	assert.False(t, g.Allows(CmdBan, nil))
	assert.True(t, g.Allows(CmdCommission, []string{"dev"}))
	assert.False(t, g.Allows(CmdCommission, []string{"staff"}))

	noDev := Gate{StaffRoles: []string{"staff"}}
	assert.True(t, noDev.Allows(CmdCommission, []string{"staff"}))
	assert.Contains(t, noDev.DenialMessage(CmdCommission), "Staff role required")
	assert.Contains(t, g.DenialMessage(CmdCommission), "Developer role required")
}

func TestClassify(t *testing.T) {
	restErr := func(status, code int) error {
		return &discordgo.RESTError{
			Response: &http.Response{StatusCode: status},
			Message:  &discordgo.APIErrorMessage{Code: code},
		}
	}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unknown ban", restErr(http.StatusNotFound, discordgo.ErrCodeUnknownBan), platform.ErrAlreadyReversed},
		{"closed dms", restErr(http.StatusForbidden, discordgo.ErrCodeCannotSendMessagesToThisUser), platform.ErrDMClosed},
		{"missing permissions", restErr(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), platform.ErrHierarchy},
		{"bare forbidden", restErr(http.StatusForbidden, 0), platform.ErrHierarchy},
		{"unknown member", restErr(http.StatusNotFound, discordgo.ErrCodeUnknownMember), platform.ErrUnknownMember},
		{"unknown webhook", restErr(http.StatusNotFound, discordgo.ErrCodeUnknownWebhook), platform.ErrResponseExpired},
		{"expired token", restErr(http.StatusUnauthorized, codeInvalidWebhookToken), platform.ErrResponseExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.ErrorIs(t, err, tt.want)
			var rest *discordgo.RESTError
			assert.True(t, errors.As(err, &rest))
		})
	}

	assert.NoError(t, classify("op", nil))
	plain := classify("op", errors.New("boom"))
	assert.EqualError(t, plain, "op: boom")
	assert.NotErrorIs(t, plain, platform.ErrHierarchy)
}

func TestCommandsAreGuildOnly(t *testing.T) {
	cmds := Commands()
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
		require.NotNil(t, c.DMPermission, c.Name)
		assert.False(t, *c.DMPermission, c.Name)
	}
	assert.ElementsMatch(t, []string{
		CmdBan, CmdKick, CmdMute, CmdWarn, CmdUnban, CmdUnmute, CmdPurge,
		CmdModLog, CmdModStats, CmdModNote, CmdCommission,
	}, names)
}
