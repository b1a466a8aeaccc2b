package discord

import (
	"github.com/bwmarrin/discordgo"

	"modbot/internal/modal"
)

// maxButtonsPerRow is the platform limit for one action row.
const maxButtonsPerRow = 5

var buttonStyles = map[modal.ButtonStyle]discordgo.ButtonStyle{
	modal.ButtonPrimary: discordgo.PrimaryButton,
	modal.ButtonSuccess: discordgo.SuccessButton,
	modal.ButtonDanger:  discordgo.DangerButton,
}

func renderEmbeds(m modal.Message) []*discordgo.MessageEmbed {
	if m.Embed == nil {
		return nil
	}
	e := &discordgo.MessageEmbed{
		Title:       m.Embed.Title,
		Description: m.Embed.Description,
		Color:       m.Embed.Color,
	}
	for _, f := range m.Embed.Fields {
		value := f.Value
		if value == "" {
			value = "\u200b"
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: value, Inline: f.Inline})
	}
	if m.Embed.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: m.Embed.Footer}
	}
	return []*discordgo.MessageEmbed{e}
}

func renderComponents(buttons []modal.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(buttons))
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			style, ok := buttonStyles[b.Style]
			if !ok {
				style = discordgo.SecondaryButton
			}
			row.Components = append(row.Components, discordgo.Button{
				CustomID: b.ID,
				Label:    b.Label,
				Style:    style,
				Disabled: b.Disabled,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func messageSend(m modal.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    m.Content,
		Embeds:     renderEmbeds(m),
		Components: renderComponents(m.Buttons),
	}
}

// webhookEdit replaces every part of an interaction response, clearing what m leaves empty.
func webhookEdit(m modal.Message) *discordgo.WebhookEdit {
	content := m.Content
	embeds := renderEmbeds(m)
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	components := renderComponents(m.Buttons)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return &discordgo.WebhookEdit{Content: &content, Embeds: &embeds, Components: &components}
}

func responseData(m modal.Message, ephemeral bool) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content:    m.Content,
		Embeds:     renderEmbeds(m),
		Components: renderComponents(m.Buttons),
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}
