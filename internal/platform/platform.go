// Package platform declares the chat-platform capabilities the workflows depend on.
// The discord package implements them against the real gateway; the fake package
// implements them in memory for tests.
package platform

import (
	"context"
	"errors"
	"time"

	"modbot/internal/modal"
)

// Error classes adapters wrap their failures in. Activities map them onto non-retryable
// application errors so workflows can branch on them.
var (
	// ErrDMClosed means the recipient does not accept direct messages.
	ErrDMClosed = errors.New("direct messages closed")
	// ErrAlreadyReversed means the target is already in the non-punished state
	// (unknown ban, member not timed out).
	ErrAlreadyReversed = errors.New("target already in non-punished state")
	// ErrHierarchy means the bot lacks the permission or role position to act.
	ErrHierarchy = errors.New("insufficient permissions or role hierarchy")
	// ErrUnknownScope means the community could not be resolved.
	ErrUnknownScope = errors.New("unknown scope")
	// ErrUnknownMember means the subject is not a member of the scope.
	ErrUnknownMember = errors.New("unknown member")
	// ErrCategoryMissing means the channel category for new commission channels does not exist.
	ErrCategoryMissing = errors.New("channel category not found")
	// ErrResponseExpired means the interaction token can no longer edit its response.
	ErrResponseExpired = errors.New("interaction response expired")
)

// Messenger delivers prompts and notices.
type Messenger interface {
	OpenDM(ctx context.Context, userID string) (channelID string, err error)
	Send(ctx context.Context, channelID string, msg modal.Message) error
	// EditResponse replaces the deferred/ephemeral response of the interaction identified by token.
	EditResponse(ctx context.Context, token string, msg modal.Message) error
	CreatePrivateChannel(ctx context.Context, req PrivateChannel) (channelID string, err error)
}

type PrivateChannel struct {
	ScopeID   string
	Category  string
	Name      string
	MemberIDs []string
}

// Moderator performs the moderation actions themselves.
type Moderator interface {
	ResolveScope(ctx context.Context, scopeID string) (name string, err error)
	Ban(ctx context.Context, scopeID, userID, reason string) error
	Unban(ctx context.Context, scopeID, userID, reason string) error
	Kick(ctx context.Context, scopeID, userID, reason string) error
	// Timeout mutes until the given time; a nil until removes the timeout.
	Timeout(ctx context.Context, scopeID, userID string, until *time.Time, reason string) error
	Purge(ctx context.Context, channelID string, amount int) (deleted int, err error)
}
