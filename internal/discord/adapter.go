// Package discord connects modbot to the Discord gateway: it implements the platform
// capabilities over discordgo, registers the slash commands and routes interactions and
// direct messages to workflows.
package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"modbot/internal/modal"
	"modbot/internal/platform"
)

// bulkDeleteWindow is the age limit for bulk message deletion.
const bulkDeleteWindow = 14 * 24 * time.Hour

// Adapter implements platform.Messenger and platform.Moderator against the Discord REST API.
type Adapter struct {
	session *discordgo.Session
	appID   string
	now     func() time.Time
}

var (
	_ platform.Messenger = (*Adapter)(nil)
	_ platform.Moderator = (*Adapter)(nil)
)

func NewAdapter(s *discordgo.Session, appID string) *Adapter {
	return &Adapter{session: s, appID: appID, now: time.Now}
}

func (a *Adapter) OpenDM(ctx context.Context, userID string) (string, error) {
	ch, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("open dm", err)
	}
	return ch.ID, nil
}

func (a *Adapter) Send(ctx context.Context, channelID string, msg modal.Message) error {
	_, err := a.session.ChannelMessageSendComplex(channelID, messageSend(msg), discordgo.WithContext(ctx))
	return classify("send message", err)
}

func (a *Adapter) EditResponse(ctx context.Context, token string, msg modal.Message) error {
	i := &discordgo.Interaction{AppID: a.appID, Token: token}
	_, err := a.session.InteractionResponseEdit(i, webhookEdit(msg), discordgo.WithContext(ctx))
	return classify("edit response", err)
}

// CreatePrivateChannel creates a text channel under the named category visible only to the
// listed members and the bot.
func (a *Adapter) CreatePrivateChannel(ctx context.Context, req platform.PrivateChannel) (string, error) {
	channels, err := a.session.GuildChannels(req.ScopeID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("list channels", err)
	}
	var parentID string
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(ch.Name, req.Category) {
			parentID = ch.ID
			break
		}
	}
	if parentID == "" {
		return "", fmt.Errorf("category %q: %w", req.Category, platform.ErrCategoryMissing)
	}

	const memberAllow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory
	overwrites := []*discordgo.PermissionOverwrite{
		// The @everyone role shares the guild id.
		{ID: req.ScopeID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
	}
	members := req.MemberIDs
	if a.session.State != nil && a.session.State.User != nil {
		members = append(members, a.session.State.User.ID)
	}
	for _, id := range members {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAllow,
		})
	}

	ch, err := a.session.GuildChannelCreateComplex(req.ScopeID, discordgo.GuildChannelCreateData{
		Name:                 req.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             parentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("create channel", err)
	}
	return ch.ID, nil
}

func (a *Adapter) ResolveScope(ctx context.Context, scopeID string) (string, error) {
	if a.session.State != nil {
		if g, err := a.session.State.Guild(scopeID); err == nil {
			return g.Name, nil
		}
	}
	g, err := a.session.Guild(scopeID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("resolve guild", err)
	}
	return g.Name, nil
}

func (a *Adapter) Ban(ctx context.Context, scopeID, userID, reason string) error {
	err := a.session.GuildBanCreateWithReason(scopeID, userID, reason, 0, discordgo.WithContext(ctx))
	return classify("ban", err)
}

func (a *Adapter) Unban(ctx context.Context, scopeID, userID, reason string) error {
	err := a.session.GuildBanDelete(scopeID, userID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return classify("unban", err)
}

func (a *Adapter) Kick(ctx context.Context, scopeID, userID, reason string) error {
	err := a.session.GuildMemberDeleteWithReason(scopeID, userID, reason, discordgo.WithContext(ctx))
	return classify("kick", err)
}

// Timeout sets or clears the member's communication timeout. Clearing a member who is not
// timed out reports platform.ErrAlreadyReversed.
func (a *Adapter) Timeout(ctx context.Context, scopeID, userID string, until *time.Time, reason string) error {
	if until == nil {
		m, err := a.session.GuildMember(scopeID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return classify("get member", err)
		}
		if m.CommunicationDisabledUntil == nil || !m.CommunicationDisabledUntil.After(a.now()) {
			return fmt.Errorf("remove timeout %s: %w", userID, platform.ErrAlreadyReversed)
		}
	}
	err := a.session.GuildMemberTimeout(scopeID, userID, until, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return classify("timeout", err)
}

// Purge deletes up to amount of the most recent messages younger than the bulk-delete window.
func (a *Adapter) Purge(ctx context.Context, channelID string, amount int) (int, error) {
	msgs, err := a.session.ChannelMessages(channelID, amount, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, classify("list messages", err)
	}
	cutoff := a.now().Add(-bulkDeleteWindow)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp.After(cutoff) {
			ids = append(ids, m.ID)
		}
	}
	switch len(ids) {
	case 0:
		return 0, nil
	case 1:
		err = a.session.ChannelMessageDelete(channelID, ids[0], discordgo.WithContext(ctx))
	default:
		err = a.session.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx))
	}
	if err != nil {
		return 0, classify("delete messages", err)
	}
	return len(ids), nil
}
