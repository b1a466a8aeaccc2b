package workflows

import (
	"errors"
	"slices"
	"time"

	"go.temporal.io/sdk/workflow"

	"modbot/internal/modal"
)

// PromptEventSignal carries a modal.PromptEvent: a DM reply or a button choice.
const PromptEventSignal = "PROMPT_EVENT_SIGNAL"

var ErrPromptTimeout = errors.New("prompt timed out")

// Prompt describes which inbound event resolves a wait.
type Prompt struct {
	Kind    modal.EventKind
	ActorID string
	// ChannelID, when set, only accepts events from that channel.
	ChannelID         string
	RequireAttachment bool
	// Options restricts choice events to these option ids.
	Options []string
	Timeout time.Duration
}

func (p Prompt) Qualifies(ev modal.PromptEvent) bool {
	if ev.Kind != p.Kind || ev.AuthorID != p.ActorID {
		return false
	}
	if p.ChannelID != "" && ev.ChannelID != p.ChannelID {
		return false
	}
	if p.RequireAttachment && len(ev.Attachments) == 0 {
		return false
	}
	if len(p.Options) > 0 && !slices.Contains(p.Options, ev.Option) {
		return false
	}
	return true
}

// AwaitEvent blocks until the first qualifying event or until p.Timeout elapses, whichever
// comes first. Non-qualifying events are consumed and ignored; they do not extend the deadline.
func AwaitEvent(ctx workflow.Context, p Prompt) (modal.PromptEvent, error) {
	logger := workflow.GetLogger(ctx)
	ch := workflow.GetSignalChannel(ctx, PromptEventSignal)

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	timer := workflow.NewTimer(timerCtx, p.Timeout)

	var (
		got      modal.PromptEvent
		resolved bool
		expired  bool
		timerErr error
	)
	selector := workflow.NewSelector(ctx)
	selector.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		var ev modal.PromptEvent
		c.Receive(ctx, &ev)
		if !p.Qualifies(ev) {
			logger.Debug("ignoring non-qualifying event", "Kind", ev.Kind, "AuthorID", ev.AuthorID)
			return
		}
		got, resolved = ev, true
	})
	selector.AddFuture(timer, func(f workflow.Future) {
		expired = true
		timerErr = f.Get(ctx, nil)
	})

	for !resolved && !expired {
		selector.Select(ctx)
	}
	if resolved {
		return got, nil
	}
	if timerErr != nil {
		return modal.PromptEvent{}, timerErr
	}
	return modal.PromptEvent{}, ErrPromptTimeout
}

// drainEvents discards events delivered before the next prompt is sent.
func drainEvents(ctx workflow.Context) int {
	ch := workflow.GetSignalChannel(ctx, PromptEventSignal)
	n := 0
	for {
		var ev modal.PromptEvent
		if !ch.ReceiveAsync(&ev) {
			return n
		}
		n++
	}
}
