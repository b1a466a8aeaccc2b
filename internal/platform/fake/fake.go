// Package fake is an in-memory chat platform used by tests.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"modbot/internal/modal"
	"modbot/internal/platform"
)

type Sent struct {
	ChannelID string
	Message   modal.Message
}

type Action struct {
	Op      string
	ScopeID string
	UserID  string
	Reason  string
	Until   *time.Time
}

// Platform implements platform.Messenger and platform.Moderator. Failures are injected
// through the exported error maps, keyed by user id (or channel id for Send).
type Platform struct {
	mu sync.Mutex

	Scopes         map[string]string
	ClosedDMs      map[string]bool
	SendErrors     map[string]error
	ActionErrors   map[string]error
	ChannelErrors  map[string]error
	// ResponseErrors is keyed by interaction token.
	ResponseErrors map[string]error
	PurgeCount     int

	sent      []Sent
	responses map[string][]modal.Message
	actions   []Action
	channels  []platform.PrivateChannel
}

var (
	_ platform.Messenger = (*Platform)(nil)
	_ platform.Moderator = (*Platform)(nil)
)

func New() *Platform {
	return &Platform{
		Scopes:         map[string]string{"guild-1": "Test Guild"},
		ClosedDMs:      map[string]bool{},
		SendErrors:     map[string]error{},
		ActionErrors:   map[string]error{},
		ChannelErrors:  map[string]error{},
		ResponseErrors: map[string]error{},
		responses:      map[string][]modal.Message{},
	}
}

// DMChannel is the id OpenDM returns for userID.
func DMChannel(userID string) string {
	return "dm-" + userID
}

func (p *Platform) OpenDM(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ClosedDMs[userID] {
		return "", fmt.Errorf("open dm %s: %w", userID, platform.ErrDMClosed)
	}
	return DMChannel(userID), nil
}

func (p *Platform) Send(_ context.Context, channelID string, msg modal.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.SendErrors[channelID]; err != nil {
		return err
	}
	if user, ok := strings.CutPrefix(channelID, "dm-"); ok && p.ClosedDMs[user] {
		return fmt.Errorf("send to %s: %w", channelID, platform.ErrDMClosed)
	}
	p.sent = append(p.sent, Sent{ChannelID: channelID, Message: msg})
	return nil
}

func (p *Platform) EditResponse(_ context.Context, token string, msg modal.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ResponseErrors[token]; err != nil {
		return err
	}
	p.responses[token] = append(p.responses[token], msg)
	return nil
}

func (p *Platform) CreatePrivateChannel(_ context.Context, req platform.PrivateChannel) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ChannelErrors[req.Category]; err != nil {
		return "", err
	}
	p.channels = append(p.channels, req)
	return "chan-" + req.Name, nil
}

func (p *Platform) ResolveScope(_ context.Context, scopeID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.Scopes[scopeID]
	if !ok {
		return "", fmt.Errorf("resolve %s: %w", scopeID, platform.ErrUnknownScope)
	}
	return name, nil
}

func (p *Platform) act(op, scopeID, userID, reason string, until *time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ActionErrors[op+":"+userID]; err != nil {
		return err
	}
	p.actions = append(p.actions, Action{Op: op, ScopeID: scopeID, UserID: userID, Reason: reason, Until: until})
	return nil
}

func (p *Platform) Ban(_ context.Context, scopeID, userID, reason string) error {
	return p.act("ban", scopeID, userID, reason, nil)
}

func (p *Platform) Unban(_ context.Context, scopeID, userID, reason string) error {
	return p.act("unban", scopeID, userID, reason, nil)
}

func (p *Platform) Kick(_ context.Context, scopeID, userID, reason string) error {
	return p.act("kick", scopeID, userID, reason, nil)
}

func (p *Platform) Timeout(_ context.Context, scopeID, userID string, until *time.Time, reason string) error {
	op := "timeout"
	if until == nil {
		op = "untimeout"
	}
	return p.act(op, scopeID, userID, reason, until)
}

func (p *Platform) Purge(_ context.Context, channelID string, amount int) (int, error) {
	if err := p.act("purge", "", channelID, "", nil); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PurgeCount > 0 && p.PurgeCount < amount {
		return p.PurgeCount, nil
	}
	return amount, nil
}

// FailAction makes op ("ban", "kick", "timeout", "untimeout", "unban", "purge") fail for userID.
func (p *Platform) FailAction(op, userID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ActionErrors[op+":"+userID] = err
}

func (p *Platform) CloseDMs(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ClosedDMs[userID] = true
}

func (p *Platform) Sent() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sent(nil), p.sent...)
}

// SentTo returns the messages delivered to channelID, oldest first.
func (p *Platform) SentTo(channelID string) []modal.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []modal.Message
	for _, s := range p.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Message)
		}
	}
	return out
}

func (p *Platform) Responses(token string) []modal.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]modal.Message(nil), p.responses[token]...)
}

// LastResponse is the message the initiator currently sees for the interaction.
func (p *Platform) LastResponse(token string) (modal.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rs := p.responses[token]
	if len(rs) == 0 {
		return modal.Message{}, false
	}
	return rs[len(rs)-1], true
}

func (p *Platform) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

func (p *Platform) Channels() []platform.PrivateChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.PrivateChannel(nil), p.channels...)
}
