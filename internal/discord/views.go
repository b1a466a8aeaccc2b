package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"modbot/internal/modal"
)

const (
	LogsPerPage   = 5
	TopModerators = 3

	colorLogs = 0x00AE86

	noteModalID      = "modnote_add"
	noteTitleInput   = "note_title"
	noteContentInput = "note_content"
)

// ModLogPage renders one page of a subject's history, oldest first. page is clamped.
func ModLogPage(subjectID, subjectTag string, recs []modal.ActionRecord, page int) modal.Message {
	if subjectTag == "" {
		subjectTag = "<@" + subjectID + ">"
	}
	if len(recs) == 0 {
		return modal.Text(fmt.Sprintf("ℹ️ No mod logs found for **%s**.", subjectTag))
	}
	pages := (len(recs) + LogsPerPage - 1) / LogsPerPage
	page = max(0, min(page, pages-1))

	start := page * LogsPerPage
	end := min(start+LogsPerPage, len(recs))
	entries := make([]string, 0, end-start)
	for _, rec := range recs[start:end] {
		entries = append(entries, formatLogEntry(rec))
	}

	msg := modal.Message{Embed: &modal.Embed{
		Title:       "Moderation Logs for " + subjectTag,
		Description: strings.Join(entries, "\n\n"),
		Footer:      fmt.Sprintf("Page %d of %d", page+1, pages),
		Color:       colorLogs,
	}}
	if pages > 1 {
		prev, next := max(page-1, 0), min(page+1, pages-1)
		msg.Buttons = []modal.Button{
			{ID: modal.PageID(subjectID, prev), Label: "Previous", Style: modal.ButtonPrimary, Disabled: page == 0},
			{ID: modal.PageID(subjectID, next), Label: "Next", Style: modal.ButtonPrimary, Disabled: page == pages-1},
		}
	}
	return msg
}

func formatLogEntry(rec modal.ActionRecord) string {
	dur := "N/A"
	if rec.DurationSpec != nil {
		dur = *rec.DurationSpec
	}
	lines := []string{
		"**Punishment ID:** " + rec.ActionID,
		"**Action:** " + string(rec.Kind),
		"**Moderator:** <@" + rec.ModeratorID + ">",
		"**Reason:** " + rec.Reason,
		"**Duration:** " + dur,
	}
	if rec.ChannelID != "" {
		lines = append(lines, "**Channel:** <#"+rec.ChannelID+">")
	}
	if rec.Evidence != "" {
		lines = append(lines, "**Evidence:** "+rec.Evidence)
	}
	lines = append(lines, fmt.Sprintf("**Time:** <t:%d:f>", rec.CreatedAt.Unix()))
	return strings.Join(lines, "\n")
}

var statsFields = []struct {
	kind  modal.ActionKind
	label string
}{
	{modal.KindWarn, "Warnings"},
	{modal.KindBan, "Bans"},
	{modal.KindKick, "Kicks"},
	{modal.KindMute, "Mutes"},
	{modal.KindUnban, "Unbans"},
	{modal.KindUnmute, "Unmutes"},
	{modal.KindPurge, "Messages Purged"},
	{modal.KindCommissionCreated, "Commissions"},
}

func ModStatsMessage(w modal.StatsWindow, stats modal.ActionStats, now time.Time) modal.Message {
	fields := []modal.Field{{Name: "Total Actions", Value: fmt.Sprint(stats.Total), Inline: true}}
	for _, f := range statsFields {
		fields = append(fields, modal.Field{Name: f.label, Value: fmt.Sprint(stats.Counts[f.kind]), Inline: true})
	}
	avg := "N/A"
	if v, ok := stats.AveragePerDay(w, now); ok {
		avg = fmt.Sprintf("%.2f", v)
	}
	fields = append(fields, modal.Field{Name: "Average Actions/Day", Value: avg, Inline: true})

	top := "None"
	if len(stats.TopModerators) > 0 {
		lines := make([]string, 0, len(stats.TopModerators))
		for _, m := range stats.TopModerators {
			lines = append(lines, fmt.Sprintf("<@%s>: %d", m.ActorID, m.Count))
		}
		top = strings.Join(lines, "\n")
	}
	fields = append(fields, modal.Field{Name: "Top Moderators", Value: top})

	return modal.Message{Embed: &modal.Embed{
		Title:       "📊 Moderation Stats",
		Description: fmt.Sprintf("Stats for range: **%s**", w.Name),
		Fields:      fields,
		Color:       colorLogs,
	}}
}

func noteModal(subjectTag string) *discordgo.InteractionResponse {
	title := "Add Mod Note"
	if subjectTag != "" {
		title = "Add Mod Note for " + subjectTag
		if r := []rune(title); len(r) > 45 {
			title = string(r[:45])
		}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: noteModalID,
			Title:    title,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    noteTitleInput,
						Label:       "Note Title (optional)",
						Style:       discordgo.TextInputShort,
						Placeholder: "Optional title",
						MaxLength:   100,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    noteContentInput,
						Label:       "Note Content",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "Enter your note (up to 4000 chars)",
						Required:    true,
						MaxLength:   4000,
					},
				}},
			},
		},
	}
}

// formatNote prefixes the content with the title in bold when one was given.
func formatNote(title, content string) string {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" {
		return content
	}
	return "**" + title + "**\n" + content
}

// textInputs collects submitted modal values by custom id.
func textInputs(components []discordgo.MessageComponent) map[string]string {
	out := make(map[string]string)
	var walk func([]discordgo.MessageComponent)
	walk = func(cs []discordgo.MessageComponent) {
		for _, c := range cs {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				out[v.CustomID] = v.Value
			case discordgo.TextInput:
				out[v.CustomID] = v.Value
			}
		}
	}
	walk(components)
	return out
}
