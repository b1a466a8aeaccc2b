package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/modal"
	"modbot/internal/platform/fake"
	"modbot/internal/session"
	"modbot/internal/store"
)

const (
	staffRole = "role-staff"
	devRole   = "role-dev"
)

type started struct {
	WorkflowID string
	Arg        any
}

type signal struct {
	WorkflowID string
	Event      modal.PromptEvent
}

// fakeWorkflows records starts and signals. Runs finish when their outcome is sent on done.
type fakeWorkflows struct {
	mu        sync.Mutex
	starts    []started
	signals   []signal
	startErr  error
	live      map[string]bool
	order     map[string]int
	done      map[string]chan modal.Outcome
	finished  chan string
	signalErr error
}

func newFakeWorkflows() *fakeWorkflows {
	return &fakeWorkflows{
		live:     map[string]bool{},
		order:    map[string]int{},
		done:     map[string]chan modal.Outcome{},
		finished: make(chan string, 8),
	}
}

func (f *fakeWorkflows) Start(_ context.Context, workflowID string, _, arg any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts = append(f.starts, started{WorkflowID: workflowID, Arg: arg})
	f.live[workflowID] = true
	f.order[workflowID] = len(f.starts)
	f.done[workflowID] = make(chan modal.Outcome, 1)
	return "run-" + workflowID, nil
}

func (f *fakeWorkflows) Wait(ctx context.Context, workflowID, _ string) (modal.Outcome, error) {
	f.mu.Lock()
	ch := f.done[workflowID]
	f.mu.Unlock()
	select {
	case out := <-ch:
		f.mu.Lock()
		delete(f.live, workflowID)
		f.mu.Unlock()
		f.finished <- workflowID
		return out, nil
	case <-ctx.Done():
		return modal.Outcome{}, ctx.Err()
	}
}

func (f *fakeWorkflows) Signal(_ context.Context, workflowID string, ev modal.PromptEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signalErr != nil {
		return f.signalErr
	}
	if !f.live[workflowID] {
		return fmt.Errorf("workflow %s not found", workflowID)
	}
	f.signals = append(f.signals, signal{WorkflowID: workflowID, Event: ev})
	return nil
}

func (f *fakeWorkflows) LatestOpen(_ context.Context, workflowIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest, seq := "", -1
	for _, id := range workflowIDs {
		if f.live[id] && f.order[id] > seq {
			latest, seq = id, f.order[id]
		}
	}
	return latest, nil
}

func (f *fakeWorkflows) finish(t *testing.T, workflowID string, out modal.Outcome) {
	t.Helper()
	f.mu.Lock()
	ch := f.done[workflowID]
	f.mu.Unlock()
	require.NotNil(t, ch)
	ch <- out
	select {
	case id := <-f.finished:
		require.Equal(t, workflowID, id)
	case <-time.After(time.Second):
		t.Fatal("workflow result not consumed")
	}
}

func (f *fakeWorkflows) Starts() []started {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]started(nil), f.starts...)
}

func (f *fakeWorkflows) Signals() []signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signal(nil), f.signals...)
}

type fakeResponder struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
}

func (f *fakeResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeResponder) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	return &discordgo.Message{}, nil
}

func (f *fakeResponder) last(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.responses)
	return f.responses[len(f.responses)-1]
}

func (f *fakeResponder) lastEdit(t *testing.T) *discordgo.WebhookEdit {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.edits)
	return f.edits[len(f.edits)-1]
}

type routerFixture struct {
	router    *Router
	workflows *fakeWorkflows
	responder *fakeResponder
	store     *store.MemoryStore
	sessions  *session.Registry
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		workflows: newFakeWorkflows(),
		responder: &fakeResponder{},
		store:     store.NewMemoryStore(),
		sessions:  session.NewRegistry(),
	}
	f.router = NewRouter(&Router{
		Workflows: f.workflows,
		Store:     f.store,
		Sessions:  f.sessions,
		Scopes:    fake.New(),
		Gate:      Gate{StaffRoles: []string{staffRole}, DeveloperRole: devRole},
		Responder: f.responder,
		Config:    RouterConfig{InviteURL: "https://discord.gg/test"},
	})
	t.Cleanup(f.router.Close)
	return f
}

func commandInteraction(name, userID string, roles []string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "guild-1",
		ChannelID: "staff",
		Token:     "tok-" + name,
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: "mod"}, Roles: roles},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: opts,
			Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
				Users: map[string]*discordgo.User{"2002": {ID: "2002", Username: "troll"}},
			},
		},
	}
}

func opt(name string, typ discordgo.ApplicationCommandOptionType, value any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: value}
}

func banInteraction(userID string, roles ...string) *discordgo.Interaction {
	return commandInteraction(CmdBan, userID, roles,
		opt("user", discordgo.ApplicationCommandOptionUser, "2002"),
		opt("reason", discordgo.ApplicationCommandOptionString, "spam"),
		opt("duration", discordgo.ApplicationCommandOptionString, "7d"),
	)
}

func TestRouter_GateDeniesWithoutStaffRole(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Interaction(context.Background(), banInteraction("1001", "role-member"))

	resp := f.responder.last(t)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	assert.Contains(t, resp.Data.Content, "Staff role required")
	assert.Empty(t, f.workflows.Starts())
}

func TestRouter_CommissionNeedsDeveloperRole(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Interaction(context.Background(), commandInteraction(CmdCommission, "1001", []string{staffRole}))
	assert.Contains(t, f.responder.last(t).Data.Content, "Developer role required")
	assert.Empty(t, f.workflows.Starts())

	f.router.Interaction(context.Background(), commandInteraction(CmdCommission, "1001", []string{devRole}))
	starts := f.workflows.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "commission-1001", starts[0].WorkflowID)
	req := starts[0].Arg.(modal.CommissionRequest)
	assert.Equal(t, "commissions", req.Category)
	assert.Equal(t, "tok-"+CmdCommission, req.InteractionToken)
}

func TestRouter_StartsModerationWorkflow(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Interaction(context.Background(), banInteraction("1001", staffRole))

	starts := f.workflows.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "ban-1001", starts[0].WorkflowID)
	req, ok := starts[0].Arg.(modal.ModerationRequest)
	require.True(t, ok)
	assert.Equal(t, modal.KindBan, req.Kind)
	assert.Equal(t, modal.Actor{ID: "2002", Tag: "troll"}, req.Subject)
	assert.Equal(t, "7d", req.Duration)
	assert.Equal(t, "Test Guild", req.ScopeName)
	assert.Equal(t, "https://discord.gg/test", req.InviteURL)
	assert.Equal(t, modal.DefaultEvidenceTimeout, req.Timeouts.Evidence)

	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, f.responder.last(t).Type)
	sess, ok := f.sessions.Get(session.Key{Initiator: "1001", Kind: modal.WorkflowBan})
	require.True(t, ok)
	assert.Equal(t, "run-ban-1001", sess.RunID)
}

func TestRouter_RejectsSecondConcurrentTrigger(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.router.Interaction(ctx, banInteraction("1001", staffRole))
	f.router.Interaction(ctx, banInteraction("1001", staffRole))

	require.Len(t, f.workflows.Starts(), 1)
	resp := f.responder.last(t)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Contains(t, resp.Data.Content, "already have an active ban request")

	// A different kind from the same initiator is independent.
	f.router.Interaction(ctx, commandInteraction(CmdWarn, "1001", []string{staffRole},
		opt("user", discordgo.ApplicationCommandOptionUser, "2002"),
		opt("reason", discordgo.ApplicationCommandOptionString, "spam")))
	assert.Len(t, f.workflows.Starts(), 2)
}

func TestRouter_ReleasesSessionWhenRunReturns(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.router.Interaction(ctx, banInteraction("1001", staffRole))
	f.workflows.finish(t, "ban-1001", modal.Outcome{Status: modal.StatusCancelledTimeout})

	require.Eventually(t, func() bool {
		_, ok := f.sessions.Get(session.Key{Initiator: "1001", Kind: modal.WorkflowBan})
		return !ok
	}, time.Second, 10*time.Millisecond)

	f.router.Interaction(ctx, banInteraction("1001", staffRole))
	assert.Len(t, f.workflows.Starts(), 2)
}

func TestRouter_StartFailureReleasesSession(t *testing.T) {
	f := newRouterFixture(t)
	f.workflows.startErr = fmt.Errorf("start: %w", ErrAlreadyRunning)
	f.router.Interaction(context.Background(), banInteraction("1001", staffRole))

	edit := f.responder.lastEdit(t)
	require.NotNil(t, edit.Content)
	assert.Contains(t, *edit.Content, "already have an active ban request")
	_, ok := f.sessions.Get(session.Key{Initiator: "1001", Kind: modal.WorkflowBan})
	assert.False(t, ok)
}

func TestRouter_PurgeRequest(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Interaction(context.Background(), commandInteraction(CmdPurge, "1001", []string{staffRole},
		opt("amount", discordgo.ApplicationCommandOptionInteger, float64(25)),
		opt("reason", discordgo.ApplicationCommandOptionString, "raid")))

	starts := f.workflows.Starts()
	require.Len(t, starts, 1)
	req := starts[0].Arg.(modal.DirectActionRequest)
	assert.Equal(t, modal.KindPurge, req.Kind)
	assert.Equal(t, 25, req.Amount)
	assert.Equal(t, "staff", req.ChannelID)
}

func TestRouter_ChoiceSignalsWorkflow(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.router.Interaction(ctx, commandInteraction(CmdCommission, "1001", []string{devRole}))

	click := &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: fake.DMChannel("1001"),
		User:      &discordgo.User{ID: "1001"},
		Data:      discordgo.MessageComponentInteractionData{CustomID: modal.ChoiceID("commission-1001", "confirm")},
	}
	f.router.Interaction(ctx, click)

	sigs := f.workflows.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, "commission-1001", sigs[0].WorkflowID)
	assert.Equal(t, modal.EventChoice, sigs[0].Event.Kind)
	assert.Equal(t, "confirm", sigs[0].Event.Option)
	assert.Equal(t, "1001", sigs[0].Event.AuthorID)
	assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, f.responder.last(t).Type)
}

func TestRouter_ChoiceForFinishedWorkflow(t *testing.T) {
	f := newRouterFixture(t)
	click := &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "1001"},
		Data: discordgo.MessageComponentInteractionData{CustomID: modal.ChoiceID("commission-1001", "deny")},
	}
	f.router.Interaction(context.Background(), click)
	assert.Contains(t, f.responder.last(t).Data.Content, "no longer active")
}

func TestRouter_DirectMessageRouting(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.router.Interaction(ctx, banInteraction("1001", staffRole))
	require.NoError(t, f.sessions.MarkPrompted("ban-1001", fake.DMChannel("1001")))

	f.router.Message(ctx, &discordgo.Message{
		Author:      &discordgo.User{ID: "1001"},
		ChannelID:   fake.DMChannel("1001"),
		Attachments: []*discordgo.MessageAttachment{{URL: "https://cdn.example/proof.png"}},
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	// Guild messages and bot messages are never routed.
	f.router.Message(ctx, &discordgo.Message{Author: &discordgo.User{ID: "1001"}, GuildID: "guild-1", ChannelID: "general"})
	f.router.Message(ctx, &discordgo.Message{Author: &discordgo.User{ID: "1001", Bot: true}, ChannelID: fake.DMChannel("1001")})

	sigs := f.workflows.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, "ban-1001", sigs[0].WorkflowID)
	assert.Equal(t, []string{"https://cdn.example/proof.png"}, sigs[0].Event.Attachments)
	assert.Equal(t, modal.EventMessage, sigs[0].Event.Kind)
}

func TestRouter_DirectMessageWithoutSessionFallsBackToWorkflowIDs(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.router.Interaction(ctx, commandInteraction(CmdCommission, "1001", []string{devRole}))
	// Simulate a restart: the registry no longer knows the session.
	f.sessions.Release(session.Key{Initiator: "1001", Kind: modal.WorkflowCommission}, "")

	f.router.Message(ctx, &discordgo.Message{Author: &discordgo.User{ID: "1001"}, ChannelID: fake.DMChannel("1001"), Content: "Alice, 1"})

	sigs := f.workflows.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, "commission-1001", sigs[0].WorkflowID)
}

func TestRouter_DirectMessageWithoutSessionReachesOneWorkflow(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.router.Interaction(ctx, commandInteraction(CmdCommission, "1001", []string{devRole}))
	f.router.Interaction(ctx, banInteraction("1001", staffRole))
	f.sessions.Release(session.Key{Initiator: "1001", Kind: modal.WorkflowCommission}, "")
	f.sessions.Release(session.Key{Initiator: "1001", Kind: modal.WorkflowBan}, "")

	f.router.Message(ctx, &discordgo.Message{
		Author:      &discordgo.User{ID: "1001"},
		ChannelID:   fake.DMChannel("1001"),
		Attachments: []*discordgo.MessageAttachment{{URL: "https://cdn.example/proof.png"}},
	})

	sigs := f.workflows.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, "ban-1001", sigs[0].WorkflowID)
}

func TestRouter_DirectMessageWithNoOpenWorkflowIsDropped(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Message(context.Background(), &discordgo.Message{Author: &discordgo.User{ID: "1001"}, ChannelID: fake.DMChannel("1001"), Content: "hello"})
	assert.Empty(t, f.workflows.Signals())
}

func seedActions(t *testing.T, s *store.MemoryStore, subjectID string, n int) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, s.AppendAction(context.Background(), modal.ActionRecord{
			ActionID:    fmt.Sprintf("act%05d", i),
			Kind:        modal.KindWarn,
			SubjectID:   subjectID,
			ModeratorID: "1001",
			Reason:      fmt.Sprintf("reason %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}, nil))
	}
}

func TestRouter_ModLogPaging(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	seedActions(t, f.store, "2002", 7)

	i := commandInteraction(CmdModLog, "1001", []string{staffRole}, &discordgo.ApplicationCommandInteractionDataOption{
		Name: "view", Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{opt("user", discordgo.ApplicationCommandOptionUser, "2002")},
	})
	f.router.Interaction(ctx, i)

	edit := f.responder.lastEdit(t)
	require.NotNil(t, edit.Embeds)
	require.Len(t, *edit.Embeds, 1)
	embed := (*edit.Embeds)[0]
	assert.Equal(t, "Page 1 of 2", embed.Footer.Text)
	assert.Contains(t, embed.Description, "act00000")
	assert.NotContains(t, embed.Description, "act00005")

	click := &discordgo.Interaction{
		Type:   discordgo.InteractionMessageComponent,
		Member: &discordgo.Member{User: &discordgo.User{ID: "1001"}, Roles: []string{staffRole}},
		Data:   discordgo.MessageComponentInteractionData{CustomID: modal.PageID("2002", 1)},
	}
	f.router.Interaction(ctx, click)
	resp := f.responder.last(t)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "Page 2 of 2", resp.Data.Embeds[0].Footer.Text)
	assert.Contains(t, resp.Data.Embeds[0].Description, "act00006")
}

func TestRouter_ModStats(t *testing.T) {
	f := newRouterFixture(t)
	seedActions(t, f.store, "2002", 3)
	f.router.now = func() time.Time { return time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC) }

	f.router.Interaction(context.Background(), commandInteraction(CmdModStats, "1001", []string{staffRole},
		opt("range", discordgo.ApplicationCommandOptionString, "day")))

	edit := f.responder.lastEdit(t)
	require.NotNil(t, edit.Embeds)
	embed := (*edit.Embeds)[0]
	fields := map[string]string{}
	for _, fl := range embed.Fields {
		fields[fl.Name] = fl.Value
	}
	assert.Equal(t, "3", fields["Total Actions"])
	assert.Equal(t, "3", fields["Warnings"])
	assert.Equal(t, "3.00", fields["Average Actions/Day"])
	assert.Equal(t, "<@1001>: 3", fields["Top Moderators"])
}

func TestRouter_ModNoteFlow(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.router.Interaction(ctx, commandInteraction(CmdModNote, "1001", []string{staffRole}, &discordgo.ApplicationCommandInteractionDataOption{
		Name: "add", Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{opt("user", discordgo.ApplicationCommandOptionUser, "2002")},
	}))
	resp := f.responder.last(t)
	require.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, noteModalID, resp.Data.CustomID)

	submit := &discordgo.Interaction{
		Type:   discordgo.InteractionModalSubmit,
		Member: &discordgo.Member{User: &discordgo.User{ID: "1001"}, Roles: []string{staffRole}},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: noteModalID,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{&discordgo.TextInput{CustomID: noteTitleInput, Value: "Alt account"}}},
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{&discordgo.TextInput{CustomID: noteContentInput, Value: "Shares an IP with 3003."}}},
			},
		},
	}
	f.router.Interaction(ctx, submit)
	assert.Equal(t, "✅ Mod note added successfully.", f.responder.last(t).Data.Content)

	notes, err := f.store.ListNotes(ctx, "2002")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "**Alt account**\nShares an IP with 3003.", notes[0].Note)
	assert.Equal(t, "1001", notes[0].StaffID)

	// The pending subject is consumed by the first submission.
	f.router.Interaction(ctx, submit)
	assert.Contains(t, f.responder.last(t).Data.Content, "Could not determine which user")
}

func TestRouter_SignalErrorsAreNotFatal(t *testing.T) {
	f := newRouterFixture(t)
	f.workflows.signalErr = errors.New("unavailable")
	assert.NotPanics(t, func() {
		f.router.Message(context.Background(), &discordgo.Message{Author: &discordgo.User{ID: "1001"}, ChannelID: fake.DMChannel("1001")})
	})
}
