package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"modbot/internal/platform"
)

// codeInvalidWebhookToken is returned when an interaction token is past its lifetime.
const codeInvalidWebhookToken = 50027

// REST error codes mapped onto the platform error classes.
var codeClasses = map[int]error{
	discordgo.ErrCodeUnknownBan:                   platform.ErrAlreadyReversed,
	discordgo.ErrCodeCannotSendMessagesToThisUser: platform.ErrDMClosed,
	discordgo.ErrCodeMissingPermissions:           platform.ErrHierarchy,
	discordgo.ErrCodeMissingAccess:                platform.ErrHierarchy,
	discordgo.ErrCodeUnknownGuild:                 platform.ErrUnknownScope,
	discordgo.ErrCodeUnknownMember:                platform.ErrUnknownMember,
	discordgo.ErrCodeUnknownUser:                  platform.ErrUnknownMember,
	discordgo.ErrCodeUnknownWebhook:               platform.ErrResponseExpired,
	codeInvalidWebhookToken:                       platform.ErrResponseExpired,
}

// classify wraps err with op and, when the REST error code is known, the matching platform
// error class.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			if class, ok := codeClasses[rest.Message.Code]; ok {
				return fmt.Errorf("%s: %w: %w", op, class, err)
			}
		}
		if rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%s: %w: %w", op, platform.ErrHierarchy, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
