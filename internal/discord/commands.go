package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Slash command names.
const (
	CmdBan        = "ban"
	CmdKick       = "kick"
	CmdMute       = "mute"
	CmdWarn       = "warn"
	CmdUnban      = "unban"
	CmdUnmute     = "unmute"
	CmdPurge      = "purge"
	CmdModLog     = "modlog"
	CmdModStats   = "modstats"
	CmdModNote    = "modnote"
	CmdCommission = "create-commission"
)

func userOption(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: desc, Required: true}
}

func stringOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: required}
}

func guildOnly() *bool {
	f := false
	return &f
}

// Commands returns every slash command the bot serves. DMs are disabled for all of them.
func Commands() []*discordgo.ApplicationCommand {
	minPurge := 1.0
	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        CmdBan,
			Description: "Ban a user, optionally for a limited time.",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "The user to ban"),
				stringOption("reason", "Reason for the ban", true),
				stringOption("duration", "Duration such as 10m, 1h, 7d (leave empty for permanent)", false),
			},
		},
		{
			Name:        CmdKick,
			Description: "Kick a user from the server.",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "The user to kick"),
				stringOption("reason", "Reason for the kick", true),
			},
		},
		{
			Name:        CmdMute,
			Description: "Time out a user.",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "The user to mute"),
				stringOption("duration", "Duration such as 10m, 1h, 1d", true),
				stringOption("reason", "Reason for the mute", true),
			},
		},
		{
			Name:        CmdWarn,
			Description: "Warn a user.",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "The user to warn"),
				stringOption("reason", "Reason for the warning", true),
			},
		},
		{
			Name:        CmdUnban,
			Description: "Unban a user by id.",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("user_id", "The id of the user to unban", true),
				stringOption("reason", "Reason for the unban", false),
			},
		},
		{
			Name:        CmdUnmute,
			Description: "Remove a user's timeout.",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("user_id", "The id of the user to unmute", true),
				stringOption("reason", "Reason for the unmute", false),
			},
		},
		{
			Name:        CmdPurge,
			Description: "Delete recent messages in this channel.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Number of messages to delete (1-100)",
					Required:    true,
					MinValue:    &minPurge,
					MaxValue:    100,
				},
				stringOption("reason", "Reason for the purge", true),
			},
		},
		{
			Name:        CmdModLog,
			Description: "Views moderation logs for a user.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "View all mod logs for a specified user",
					Options:     []*discordgo.ApplicationCommandOption{userOption("user", "The user whose logs you wish to view")},
				},
			},
		},
		{
			Name:        CmdModStats,
			Description: "Show moderation totals for a time range.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "range",
					Description: "Range: day, week, month, or all",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
						{Name: "month", Value: "month"},
						{Name: "all", Value: "all"},
					},
				},
			},
		},
		{
			Name:        CmdModNote,
			Description: "Mod note commands",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add a private note about a user",
					Options:     []*discordgo.ApplicationCommandOption{userOption("user", "The user to add a note to")},
				},
			},
		},
		{
			Name:        CmdCommission,
			Description: "Create a new commission.",
		},
	}
	for _, c := range cmds {
		c.DMPermission = guildOnly()
	}
	return cmds
}

// RegisterCommands overwrites the application's commands. A non-empty guildID registers them
// for that guild only, which takes effect immediately.
func RegisterCommands(s *discordgo.Session, appID, guildID string) ([]*discordgo.ApplicationCommand, error) {
	out, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
	if err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	return out, nil
}
