package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"modbot/internal/modal"
)

const (
	OptionConfirm = "confirm"
	OptionDeny    = "deny"
)

// RequireEvidence is the evidence barrier: only a reply carrying an attachment resolves it, and
// the first attachment is returned.
func RequireEvidence(ctx workflow.Context, s *Sequencer, msg modal.Message, timeout time.Duration, notice string) (string, error) {
	ev, err := s.Ask(ctx, Step{
		Key:     "evidence",
		State:   modal.StateAwaitingConfirmation,
		Message: msg,
		Prompt: Prompt{
			Kind:              modal.EventMessage,
			RequireAttachment: true,
			Timeout:           timeout,
		},
		TimeoutNotice: notice,
	})
	if err != nil {
		return "", err
	}
	evidence := ev.Attachments[0]
	s.Set("evidence", evidence)
	return evidence, nil
}

// RequireDecision offers confirm and deny buttons and reports whether confirm was chosen.
func RequireDecision(ctx workflow.Context, s *Sequencer, msg modal.Message, timeout time.Duration, notice string) (bool, error) {
	msg.Buttons = append(msg.Buttons,
		modal.Button{ID: modal.ChoiceID(s.WorkflowID(), OptionConfirm), Label: "Confirm", Style: modal.ButtonSuccess},
		modal.Button{ID: modal.ChoiceID(s.WorkflowID(), OptionDeny), Label: "Deny", Style: modal.ButtonDanger},
	)
	ev, err := s.Ask(ctx, Step{
		Key:     "decision",
		State:   modal.StateAwaitingConfirmation,
		Message: msg,
		Prompt: Prompt{
			Kind:    modal.EventChoice,
			Options: []string{OptionConfirm, OptionDeny},
			Timeout: timeout,
		},
		TimeoutNotice: notice,
	})
	if err != nil {
		return false, err
	}
	return ev.Option == OptionConfirm, nil
}

// choiceButtons builds one primary button per option, addressed to the workflow.
func choiceButtons(workflowID string, options ...[2]string) []modal.Button {
	out := make([]modal.Button, 0, len(options))
	for _, o := range options {
		out = append(out, modal.Button{ID: modal.ChoiceID(workflowID, o[0]), Label: o[1], Style: modal.ButtonPrimary})
	}
	return out
}
