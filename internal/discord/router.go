package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"modbot/internal/metrics"
	"modbot/internal/modal"
	"modbot/internal/platform"
	"modbot/internal/session"
	"modbot/internal/store"
	"modbot/internal/workflows"
)

// Responder is the part of *discordgo.Session used to answer interactions.
type Responder interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type RouterConfig struct {
	CommissionCategory string
	InviteURL          string
	Timeouts           modal.Timeouts
	// NoteTTL bounds how long a pending /modnote subject is held.
	NoteTTL time.Duration
}

// Router turns slash commands, component clicks, modal submissions and direct messages into
// workflow starts, workflow signals and read-only views.
type Router struct {
	Workflows Workflows
	Store     store.Store
	Sessions  *session.Registry
	Scopes    platform.Moderator
	Gate      Gate
	Responder Responder
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Config    RouterConfig

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRouter fills defaults on r and prepares it to track running workflows.
func NewRouter(r *Router) *Router {
	out := r
	out.Config.Timeouts = out.Config.Timeouts.WithDefaults()
	if out.Config.NoteTTL <= 0 {
		out.Config.NoteTTL = 15 * time.Minute
	}
	if out.Config.CommissionCategory == "" {
		out.Config.CommissionCategory = "commissions"
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	out.now = time.Now
	out.ctx, out.cancel = context.WithCancel(context.Background())
	return out
}

// Close stops waiting on running workflows. The workflows themselves keep running.
func (r *Router) Close() {
	r.cancel()
	r.wg.Wait()
}

// HandleInteraction and HandleMessage are registered with Session.AddHandler.
func (r *Router) HandleInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	r.Interaction(r.ctx, ic.Interaction)
}

func (r *Router) HandleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	r.Message(r.ctx, m.Message)
}

func (r *Router) Interaction(ctx context.Context, i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.command(ctx, i)
	case discordgo.InteractionMessageComponent:
		r.component(ctx, i)
	case discordgo.InteractionModalSubmit:
		r.modalSubmit(ctx, i)
	}
}

func actorOf(i *discordgo.Interaction) (modal.Actor, []string) {
	var u *discordgo.User
	var roles []string
	if i.Member != nil {
		u, roles = i.Member.User, i.Member.Roles
	}
	if u == nil {
		u = i.User
	}
	if u == nil {
		return modal.Actor{}, nil
	}
	return modal.Actor{ID: u.ID, Tag: u.Username}, roles
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

// commandOptions flattens a single level of subcommand.
func commandOptions(data discordgo.ApplicationCommandInteractionData) options {
	opts := make(options)
	list := data.Options
	if len(list) == 1 && list[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		list = list[0].Options
	}
	for _, o := range list {
		opts[o.Name] = o
	}
	return opts
}

func (o options) str(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	switch v := opt.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(opt.Value)
}

func (o options) integer(name string) int {
	opt, ok := o[name]
	if !ok {
		return 0
	}
	switch v := opt.Value.(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// user returns the actor for a user option, with the username when the interaction resolved it.
func (o options) user(data discordgo.ApplicationCommandInteractionData, name string) modal.Actor {
	id := o.str(name)
	a := modal.Actor{ID: id}
	if data.Resolved != nil {
		if u, ok := data.Resolved.Users[id]; ok && u != nil {
			a.Tag = u.Username
		}
	}
	return a
}

func (r *Router) command(ctx context.Context, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	actor, roles := actorOf(i)
	log := r.Logger.With(zap.String("command", data.Name), zap.String("user_id", actor.ID))

	if !r.Gate.Allows(data.Name, roles) {
		r.Metrics.Denied(data.Name)
		log.Info("command denied by permission gate")
		r.reply(i, r.Gate.DenialMessage(data.Name))
		return
	}
	opts := commandOptions(data)

	switch data.Name {
	case CmdBan, CmdKick, CmdMute, CmdWarn:
		scopeName := i.GuildID
		if name, err := r.Scopes.ResolveScope(ctx, i.GuildID); err == nil {
			scopeName = name
		}
		req := modal.ModerationRequest{
			Kind:             modal.ActionKind(data.Name),
			ScopeID:          i.GuildID,
			ScopeName:        scopeName,
			ChannelID:        i.ChannelID,
			Initiator:        actor,
			Subject:          opts.user(data, "user"),
			Reason:           opts.str("reason"),
			Duration:         opts.str("duration"),
			InteractionToken: i.Token,
			InviteURL:        r.Config.InviteURL,
			Timeouts:         r.Config.Timeouts,
		}
		r.launch(ctx, i, actor, modal.WorkflowKind(data.Name), workflows.ModerationWorkflow, req)

	case CmdUnban, CmdUnmute, CmdPurge:
		req := modal.DirectActionRequest{
			Kind:             modal.ActionKind(data.Name),
			ScopeID:          i.GuildID,
			ChannelID:        i.ChannelID,
			Initiator:        actor,
			SubjectID:        opts.str("user_id"),
			Reason:           opts.str("reason"),
			Amount:           opts.integer("amount"),
			InteractionToken: i.Token,
		}
		r.launch(ctx, i, actor, modal.WorkflowKind(data.Name), workflows.DirectActionWorkflow, req)

	case CmdCommission:
		req := modal.CommissionRequest{
			ScopeID:          i.GuildID,
			ChannelID:        i.ChannelID,
			Initiator:        actor,
			Category:         r.Config.CommissionCategory,
			InteractionToken: i.Token,
			Timeouts:         r.Config.Timeouts,
		}
		r.launch(ctx, i, actor, modal.WorkflowCommission, workflows.CommissionWorkflow, req)

	case CmdModLog:
		subject := opts.user(data, "user")
		if err := r.deferReply(i); err != nil {
			log.Warn("failed to defer reply", zap.Error(err))
			return
		}
		r.editReply(i, r.modLogPage(ctx, subject.ID, subject.Tag, 0))

	case CmdModStats:
		r.modStats(ctx, i, opts.str("range"))

	case CmdModNote:
		subject := opts.user(data, "user")
		key := session.Key{Initiator: actor.ID, Kind: modal.WorkflowModNote}
		// A new /modnote replaces any pending one from the same staff member.
		r.Sessions.Release(key, "")
		if _, err := r.Sessions.Acquire(key, "", r.Config.NoteTTL, map[string]string{"subject": subject.ID}); err != nil {
			log.Warn("failed to hold note subject", zap.Error(err))
			r.reply(i, "❌ Something went wrong. Try again.")
			return
		}
		if err := r.Responder.InteractionRespond(i, noteModal(subject.Tag)); err != nil {
			r.Sessions.Release(key, "")
			log.Warn("failed to open note modal", zap.Error(err))
		}

	default:
		log.Debug("unknown command")
	}
}

// sessionTTL bounds how long the registry holds a key if a workflow result is never seen.
func (r *Router) sessionTTL(kind modal.WorkflowKind) time.Duration {
	const slack = 5 * time.Minute
	t := r.Config.Timeouts
	switch kind {
	case modal.WorkflowCommission:
		return 5*t.Info + 2*t.Decision + slack
	case modal.WorkflowBan, modal.WorkflowKick, modal.WorkflowMute, modal.WorkflowWarn:
		return t.Evidence + slack
	}
	return slack
}

// launch reserves the initiator's session, acknowledges the command and starts the workflow.
// The session is released once the run returns.
func (r *Router) launch(ctx context.Context, i *discordgo.Interaction, actor modal.Actor, kind modal.WorkflowKind, wf, arg any) {
	log := r.Logger.With(zap.String("kind", string(kind)), zap.String("user_id", actor.ID))
	key := session.Key{Initiator: actor.ID, Kind: kind}
	workflowID := modal.WorkflowID(kind, actor.ID)

	busy := fmt.Sprintf("⚠️ You already have an active %s request. Finish it or wait for it to time out before starting another.", kind)
	if _, err := r.Sessions.Acquire(key, workflowID, r.sessionTTL(kind), nil); err != nil {
		r.Metrics.Start(string(kind), "busy")
		r.reply(i, busy)
		return
	}
	if err := r.deferReply(i); err != nil {
		r.Sessions.Release(key, workflowID)
		log.Warn("failed to defer reply", zap.Error(err))
		return
	}

	runID, err := r.Workflows.Start(ctx, workflowID, wf, arg)
	if err != nil {
		r.Sessions.Release(key, workflowID)
		if errors.Is(err, ErrAlreadyRunning) {
			r.Metrics.Start(string(kind), "busy")
			r.editReply(i, modal.Text(busy))
			return
		}
		r.Metrics.Start(string(kind), "error")
		log.Error("failed to start workflow", zap.Error(err))
		r.editReply(i, modal.Text("❌ Something went wrong while starting this request. Please try again."))
		return
	}
	r.Sessions.Attach(key, runID)
	r.Metrics.Start(string(kind), "started")
	r.Metrics.Sessions(r.Sessions.Len())
	log.Info("workflow started", zap.String("workflow_id", workflowID), zap.String("run_id", runID))

	r.wg.Add(1)
	go r.await(key, workflowID, runID)
}

func (r *Router) await(key session.Key, workflowID, runID string) {
	defer r.wg.Done()
	log := r.Logger.With(zap.String("workflow_id", workflowID), zap.String("run_id", runID))

	out, err := r.Workflows.Wait(r.ctx, workflowID, runID)
	r.Sessions.Release(key, workflowID)
	r.Metrics.Sessions(r.Sessions.Len())
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.Metrics.Outcome(string(key.Kind), "error")
		log.Error("workflow failed", zap.Error(err))
		return
	}
	r.Metrics.Outcome(string(key.Kind), string(out.Status))
	log.Info("workflow finished", zap.String("status", string(out.Status)), zap.String("reason", string(out.Reason)))
}

func (r *Router) component(ctx context.Context, i *discordgo.Interaction) {
	data := i.MessageComponentData()
	actor, roles := actorOf(i)
	log := r.Logger.With(zap.String("custom_id", data.CustomID), zap.String("user_id", actor.ID))

	if workflowID, option, ok := modal.ParseChoiceID(data.CustomID); ok {
		ev := modal.PromptEvent{
			Kind:       modal.EventChoice,
			AuthorID:   actor.ID,
			ChannelID:  i.ChannelID,
			Option:     option,
			ReceivedAt: r.now().UTC(),
		}
		if err := r.Workflows.Signal(ctx, workflowID, ev); err != nil {
			log.Info("choice for inactive workflow", zap.Error(err))
			r.reply(i, "⚠️ This request is no longer active.")
			return
		}
		if err := r.Responder.InteractionRespond(i, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}); err != nil {
			log.Warn("failed to acknowledge choice", zap.Error(err))
		}
		return
	}

	if subjectID, page, ok := modal.ParsePageID(data.CustomID); ok {
		if !r.Gate.Allows(CmdModLog, roles) {
			r.Metrics.Denied(CmdModLog)
			r.reply(i, r.Gate.DenialMessage(CmdModLog))
			return
		}
		msg := r.modLogPage(ctx, subjectID, "", page)
		err := r.Responder.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: responseData(msg, false),
		})
		if err != nil {
			log.Warn("failed to update mod log page", zap.Error(err))
		}
		return
	}
	log.Debug("unhandled component")
}

func (r *Router) modalSubmit(ctx context.Context, i *discordgo.Interaction) {
	data := i.ModalSubmitData()
	if data.CustomID != noteModalID {
		return
	}
	actor, _ := actorOf(i)
	log := r.Logger.With(zap.String("user_id", actor.ID))

	key := session.Key{Initiator: actor.ID, Kind: modal.WorkflowModNote}
	sess, ok := r.Sessions.Get(key)
	if !ok || sess.Data["subject"] == "" {
		log.Warn("note submitted without a pending subject")
		r.reply(i, "❌ Could not determine which user this note is for. Please try again.")
		return
	}
	r.Sessions.Release(key, "")

	values := textInputs(data.Components)
	if values[noteContentInput] == "" {
		r.reply(i, "❌ Note content cannot be empty.")
		return
	}
	note := modal.Note{
		SubjectID: sess.Data["subject"],
		StaffID:   actor.ID,
		Note:      formatNote(values[noteTitleInput], values[noteContentInput]),
		CreatedAt: r.now().UTC(),
	}
	if _, err := r.Store.AddNote(ctx, note); err != nil {
		log.Error("failed to save mod note", zap.Error(err))
		r.reply(i, "❌ There was an error saving the mod note.")
		return
	}
	log.Info("mod note saved", zap.String("subject_id", note.SubjectID))
	r.reply(i, "✅ Mod note added successfully.")
}

func (r *Router) modLogPage(ctx context.Context, subjectID, subjectTag string, page int) modal.Message {
	recs, err := r.Store.QueryActions(ctx, modal.ActionQuery{SubjectID: subjectID})
	if err != nil {
		r.Logger.Error("failed to query mod logs", zap.String("subject_id", subjectID), zap.Error(err))
		return modal.Text("❌ An error occurred while retrieving mod logs.")
	}
	return ModLogPage(subjectID, subjectTag, recs, page)
}

func (r *Router) modStats(ctx context.Context, i *discordgo.Interaction, rangeName string) {
	now := r.now().UTC()
	w, err := modal.ParseStatsWindow(rangeName, now)
	if err != nil {
		r.reply(i, "❌ Invalid range. Allowed options: day, week, month, all.")
		return
	}
	if err := r.deferReply(i); err != nil {
		r.Logger.Warn("failed to defer reply", zap.Error(err))
		return
	}
	stats, err := r.Store.Stats(ctx, w.Since, TopModerators)
	if err != nil {
		r.Logger.Error("failed to compute stats", zap.Error(err))
		r.editReply(i, modal.Text("❌ An error occurred while retrieving stats."))
		return
	}
	r.editReply(i, ModStatsMessage(w, stats, now))
}

// Message routes a direct-message reply to the waiting workflow. With no routed session (for
// example after a restart) the reply goes to the author's most recently started open
// conversational workflow, so one attachment is never consumed twice.
func (r *Router) Message(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.GuildID != "" {
		return
	}
	ev := modal.PromptEvent{
		Kind:       modal.EventMessage,
		AuthorID:   m.Author.ID,
		ChannelID:  m.ChannelID,
		Content:    m.Content,
		ReceivedAt: m.Timestamp.UTC(),
	}
	for _, a := range m.Attachments {
		ev.Attachments = append(ev.Attachments, a.URL)
	}
	log := r.Logger.With(zap.String("user_id", ev.AuthorID), zap.String("channel_id", ev.ChannelID))

	if sess, ok := r.Sessions.Route(ev.AuthorID, ev.ChannelID); ok {
		if err := r.Workflows.Signal(ctx, sess.WorkflowID, ev); err != nil {
			log.Warn("failed to deliver reply", zap.String("workflow_id", sess.WorkflowID), zap.Error(err))
		}
		return
	}
	ids := make([]string, 0, len(modal.ConversationalKinds))
	for _, kind := range modal.ConversationalKinds {
		ids = append(ids, modal.WorkflowID(kind, ev.AuthorID))
	}
	id, err := r.Workflows.LatestOpen(ctx, ids)
	if err != nil {
		log.Warn("failed to look up open workflows", zap.Error(err))
		return
	}
	if id == "" {
		return
	}
	if err := r.Workflows.Signal(ctx, id, ev); err != nil {
		log.Warn("failed to deliver reply", zap.String("workflow_id", id), zap.Error(err))
		return
	}
	log.Debug("reply delivered without routed session", zap.String("workflow_id", id))
}

func (r *Router) reply(i *discordgo.Interaction, content string) {
	err := r.Responder.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData(modal.Text(content), true),
	})
	if err != nil {
		r.Logger.Warn("failed to reply to interaction", zap.Error(err))
	}
}

func (r *Router) deferReply(i *discordgo.Interaction) error {
	return r.Responder.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (r *Router) editReply(i *discordgo.Interaction, msg modal.Message) {
	if _, err := r.Responder.InteractionResponseEdit(i, webhookEdit(msg)); err != nil {
		r.Logger.Warn("failed to edit interaction response", zap.Error(err))
	}
}
