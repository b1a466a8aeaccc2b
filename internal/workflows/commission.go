package workflows

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.temporal.io/sdk/workflow"

	"modbot/internal/activities"
	"modbot/internal/modal"
	"modbot/internal/platform"
)

const colorCommission = 0xFFD700

// CommissionWorkflow collects a commission from the requester over DM, stores it as Pending and
// waits for a confirm or deny decision. Confirm opens a private channel; deny collects a reason
// and deletes the provisional row. Any timeout before the row exists writes nothing.
func CommissionWorkflow(ctx workflow.Context, req modal.CommissionRequest) (modal.Outcome, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("commission workflow started", "InitiatorID", req.Initiator.ID)

	s, err := NewSequencer(ctx, modal.WorkflowCommission, req.Initiator, req.InteractionToken)
	if err != nil {
		return modal.Outcome{}, err
	}
	timeouts := req.Timeouts.WithDefaults()
	actx := withActivityOptions(ctx)
	infoFooter := fmt.Sprintf("You have %s to respond before this process is auto-cancelled.", humanDuration(timeouts.Info))
	ask := func(key, title, desc string) (modal.PromptEvent, error) {
		return s.Ask(ctx, Step{
			Key:     key,
			Message: commissionEmbed(title, desc, infoFooter),
			Prompt:  Prompt{Kind: modal.EventMessage, Timeout: timeouts.Info},
		})
	}

	if err := s.Open(ctx); err != nil {
		logger.Warn("could not open conversation with requester", "Error", err)
		return s.Deny(ctx, modal.ReasonActionFailed, modal.Text(msgDMClosed)), nil
	}

	var commissionID string
	if err := workflow.ExecuteActivity(actx, acts.ReserveCommissionID).Get(ctx, &commissionID); err != nil {
		logger.Error("failed to reserve commission id", "Error", err)
		return s.Deny(ctx, modal.ReasonPersistence, modal.Text(msgIDFailed)), nil
	}
	s.Set("commissionId", commissionID)
	if err := s.Reply(ctx, commissionEmbed("Creating Commission",
		fmt.Sprintf("You are creating a new commission with ID **%s**. Please follow the prompts in your DMs.", commissionID), infoFooter)); err != nil {
		logger.Warn("failed to acknowledge command", "Error", err)
	}

	// Step 1: client.
	ev, err := ask("client", "Step 1: **Client Information**",
		"Please provide the client's Discord username and ID (e.g., **Username, 123456789012345678**).")
	if err != nil {
		return finishOnError(ctx, s, err), nil
	}
	clientName, clientID, ok := parseClient(ev.Content)
	if !ok {
		return s.Deny(ctx, modal.ReasonValidation, modal.Text(
			"❌ Client information must be `Name, ID` with a numeric Discord ID. Please run the command again.")), nil
	}
	s.SetSubject(modal.Actor{ID: clientID, Tag: clientName})

	// Step 2: details.
	ev, err = ask("details", "Step 2: **Commission Details**", "Please provide the **full details** of the commission.")
	if err != nil {
		return finishOnError(ctx, s, err), nil
	}
	details := strings.TrimSpace(ev.Content)
	if details == "" {
		return s.Deny(ctx, modal.ReasonValidation, modal.Text("❌ Commission details cannot be empty. Please run the command again.")), nil
	}

	// Step 3: media, optional.
	ev, err = ask("media", "Step 3: **Media (optional)**",
		"Please provide any media files or links related to the commission, or reply `none`.")
	if err != nil {
		return finishOnError(ctx, s, err), nil
	}
	media := formatMedia(ev)
	s.Set("media", media)

	// Step 4: payment method.
	payMsg := commissionEmbed("Step 4: **Payment Method**", "Select the **payment method**: **PayPal** or **Robux**.", infoFooter)
	payMsg.Buttons = choiceButtons(s.WorkflowID(),
		[2]string{string(modal.PaymentPayPal), "PayPal"},
		[2]string{string(modal.PaymentRobux), "Robux"})
	ev, err = s.Ask(ctx, Step{
		Key:     "payment",
		Message: payMsg,
		Prompt: Prompt{
			Kind:    modal.EventChoice,
			Options: []string{string(modal.PaymentPayPal), string(modal.PaymentRobux)},
			Timeout: timeouts.Info,
		},
	})
	if err != nil {
		return finishOnError(ctx, s, err), nil
	}
	method := modal.PaymentMethod(ev.Option)

	// Step 5: price.
	ev, err = ask("price", "Step 5: **Payment Amount**",
		fmt.Sprintf("Please enter the amount for the commission in **%s**.", method.Currency()))
	if err != nil {
		return finishOnError(ctx, s, err), nil
	}
	price, ok := parsePrice(ev.Content)
	if !ok {
		return s.Deny(ctx, modal.ReasonValidation, modal.Text("❌ The price must be a positive number. Please run the command again.")), nil
	}

	c := modal.Commission{
		CommissionID:  commissionID,
		ClientID:      clientID,
		ClientName:    clientName,
		CreatorID:     req.Initiator.ID,
		Details:       details,
		Price:         price,
		PaymentMethod: method,
		Media:         media,
	}
	if err := workflow.ExecuteActivity(actx, acts.SaveCommission, c).Get(ctx, &c); err != nil {
		logger.Error("failed to save provisional commission", "CommissionID", commissionID, "Error", err)
		return s.Deny(ctx, modal.ReasonPersistence, modal.Text("❌ The commission could not be saved. Please try again.")), nil
	}
	s.record(ctx, "COMMISSION_SAVED", "provisional commission stored", map[string]any{"commissionId": commissionID})

	// From here on the provisional row exists and every exit other than confirm removes it.
	decisionFooter := fmt.Sprintf("You have %s to respond before this process is auto-cancelled.", humanDuration(timeouts.Decision))
	confirmed, err := RequireDecision(ctx, s, reviewMessage(c, decisionFooter), timeouts.Decision, "")
	if err != nil {
		discardCommission(ctx, s, commissionID)
		return finishOnError(ctx, s, err), nil
	}
	if confirmed {
		return confirmCommission(ctx, s, req, c), nil
	}

	ev, err = s.Ask(ctx, Step{
		Key:     "denialReason",
		State:   modal.StateAwaitingDenialReason,
		Message: commissionEmbed("Please Provide a Reason for Denial", "Reply with the reason this commission is being denied.", decisionFooter),
		Prompt:  Prompt{Kind: modal.EventMessage, Timeout: timeouts.Decision},
	})
	if err != nil {
		discardCommission(ctx, s, commissionID)
		return finishOnError(ctx, s, err), nil
	}
	reason := strings.TrimSpace(ev.Content)
	if reason == "" {
		reason = "No reason provided"
	}
	return denyCommission(ctx, s, req, c, reason), nil
}

func finishOnError(ctx workflow.Context, s *Sequencer, err error) modal.Outcome {
	if errors.Is(err, ErrCancelled) {
		return s.Outcome()
	}
	return s.Abort(ctx, err)
}

func confirmCommission(ctx workflow.Context, s *Sequencer, req modal.CommissionRequest, c modal.Commission) modal.Outcome {
	logger := workflow.GetLogger(ctx)
	actx := withActivityOptions(ctx)

	var channelID string
	err := workflow.ExecuteActivity(actx, acts.CreateCommissionChannel, platform.PrivateChannel{
		ScopeID:   req.ScopeID,
		Category:  req.Category,
		Name:      "commission-" + c.CommissionID,
		MemberIDs: []string{c.ClientID, req.Initiator.ID},
	}).Get(ctx, &channelID)
	if err != nil {
		logger.Warn("failed to create commission channel", "CommissionID", c.CommissionID, "Error", err)
	}

	if err := workflow.ExecuteActivity(actx, acts.ConfirmCommission, activities.ConfirmCommissionInput{
		CommissionID: c.CommissionID,
		ChannelID:    channelID,
	}).Get(ctx, nil); err != nil {
		logger.Error("failed to confirm commission", "CommissionID", c.CommissionID, "Error", err)
		return s.Complete(ctx, modal.Outcome{CommissionID: c.CommissionID, PersistenceFailed: true},
			modal.Text(fmt.Sprintf("⚠️ Commission **%s** was accepted but its status could not be saved. Please record it manually.", c.CommissionID)))
	}

	out := modal.Outcome{CommissionID: c.CommissionID}
	if err := recordCommission(ctx, req, c, modal.KindCommissionCreated,
		fmt.Sprintf("Commission created with ID: %s by %s.", c.CommissionID, subjectLabel(req.Initiator))); err != nil {
		out.PersistenceFailed = true
	}

	details := commissionDetailsMessage(c, channelID)
	if err := s.Say(ctx, details); err != nil {
		logger.Warn("failed to send commission details", "Error", err)
	}

	text := fmt.Sprintf("✅ Commission with ID: **%s** has been successfully created! You can view the commission in <#%s>.", c.CommissionID, channelID)
	switch {
	case channelID == "" && activities.IsType(err, activities.ErrTypeCategoryMissing):
		text = fmt.Sprintf("⚠️ Commission **%s** was created, but the `%s` category could not be found so no channel was made.", c.CommissionID, req.Category)
	case channelID == "":
		text = fmt.Sprintf("⚠️ Commission **%s** was created, but its channel could not be made.", c.CommissionID)
	case out.PersistenceFailed:
		text = fmt.Sprintf("⚠️ Commission **%s** was created in <#%s> but could not be written to the log.", c.CommissionID, channelID)
	}
	out = s.Complete(ctx, out, modal.Text(text))
	postModLog(ctx, commissionLogMessage("New Commission Created", c, subjectLabel(req.Initiator), "", colorSuccess))
	return out
}

func denyCommission(ctx workflow.Context, s *Sequencer, req modal.CommissionRequest, c modal.Commission, reason string) modal.Outcome {
	logger := workflow.GetLogger(ctx)
	s.Set("denialReason", reason)
	discardCommission(ctx, s, c.CommissionID)

	if err := recordCommission(ctx, req, c, modal.KindCommissionDenied, reason); err != nil {
		logger.Error("failed to record commission denial", "CommissionID", c.CommissionID, "Error", err)
	}

	notice := modal.Message{
		Content: fmt.Sprintf("The commission with ID %s has been denied and deleted. Please run `/create-commission` to remake the commission.", c.CommissionID),
		Embed: &modal.Embed{
			Title:       "Commission Denied and Deleted",
			Description: "A commission has been denied and deleted. The reason has been logged.",
			Fields: []modal.Field{
				{Name: "Commission ID", Value: c.CommissionID, Inline: true},
				{Name: "Reason", Value: reason, Inline: true},
			},
			Footer: "Commission denied by " + subjectLabel(req.Initiator),
			Color:  colorDanger,
		},
	}
	out := s.Deny(ctx, modal.ReasonDenied, notice)
	out.CommissionID = c.CommissionID
	postModLog(ctx, commissionLogMessage("Commission Denied", c, subjectLabel(req.Initiator), reason, colorDanger))
	return out
}

func recordCommission(ctx workflow.Context, req modal.CommissionRequest, c modal.Commission, kind modal.ActionKind, reason string) error {
	actx := withActivityOptions(ctx)
	var id string
	if err := workflow.ExecuteActivity(actx, acts.ReserveActionID).Get(ctx, &id); err != nil {
		return err
	}
	return workflow.ExecuteActivity(actx, acts.RecordAction, activities.RecordInput{Record: modal.ActionRecord{
		ActionID:    id,
		Kind:        kind,
		SubjectID:   c.ClientID,
		ModeratorID: req.Initiator.ID,
		Reason:      reason,
		ScopeID:     req.ScopeID,
		ChannelID:   req.ChannelID,
	}}).Get(ctx, nil)
}

// discardCommission removes the provisional row even if the workflow is being cancelled.
func discardCommission(ctx workflow.Context, s *Sequencer, commissionID string) {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	actx := withActivityOptions(dctx)
	if err := workflow.ExecuteActivity(actx, acts.DiscardCommission, commissionID).Get(dctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("failed to delete provisional commission", "CommissionID", commissionID, "Error", err)
		return
	}
	s.record(ctx, "COMMISSION_DISCARDED", "provisional commission deleted", map[string]any{"commissionId": commissionID})
}

// parseClient accepts "Name, 123456789012345678".
func parseClient(raw string) (name, id string, ok bool) {
	name, id, found := strings.Cut(raw, ",")
	name, id = strings.TrimSpace(name), strings.TrimSpace(id)
	if !found || name == "" || id == "" {
		return "", "", false
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", "", false
	}
	return name, id, true
}

func parsePrice(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return "", false
	}
	return raw, true
}

// formatMedia renders attachments as markdown links, one per line; otherwise the text itself.
func formatMedia(ev modal.PromptEvent) string {
	if len(ev.Attachments) > 0 {
		var b strings.Builder
		for _, url := range ev.Attachments {
			fmt.Fprintf(&b, "[Media Link](%s)\n", url)
		}
		return strings.TrimSuffix(b.String(), "\n")
	}
	text := strings.TrimSpace(ev.Content)
	if strings.EqualFold(text, "none") {
		return ""
	}
	return text
}

func orNone(s string) string {
	if s == "" {
		return "None provided"
	}
	return s
}

func commissionEmbed(title, desc, footer string) modal.Message {
	return modal.Message{Embed: &modal.Embed{Title: title, Description: desc, Footer: footer, Color: colorCommission}}
}

func reviewMessage(c modal.Commission, footer string) modal.Message {
	desc := fmt.Sprintf("**Client**: %s (%s)\n**Details**: %s\n**Media**: %s\n**Payment**: %s - %s",
		c.ClientName, c.ClientID, c.Details, orNone(c.Media), c.PaymentMethod, c.Price)
	return commissionEmbed("Review Commission Details", desc, footer)
}

func commissionDetailsMessage(c modal.Commission, channelID string) modal.Message {
	fields := []modal.Field{
		{Name: "Commission ID", Value: c.CommissionID, Inline: true},
		{Name: "Client", Value: fmt.Sprintf("%s (%s)", c.ClientName, c.ClientID), Inline: true},
		{Name: "Details", Value: c.Details},
		{Name: "Media", Value: orNone(c.Media)},
		{Name: "Payment Method", Value: string(c.PaymentMethod), Inline: true},
		{Name: "Price", Value: c.Price, Inline: true},
	}
	if channelID != "" {
		fields = append(fields, modal.Field{Name: "Channel", Value: "<#" + channelID + ">", Inline: true})
	}
	return modal.Message{Embed: &modal.Embed{
		Title:       "New Commission Created",
		Description: "Here are the details of the commission you created.",
		Fields:      fields,
		Color:       colorSuccess,
	}}
}

func commissionLogMessage(title string, c modal.Commission, by, reason string, color int) modal.Message {
	fields := []modal.Field{
		{Name: "Commission ID", Value: c.CommissionID, Inline: true},
		{Name: "Client", Value: fmt.Sprintf("%s (%s)", c.ClientName, c.ClientID), Inline: true},
		{Name: "By", Value: by, Inline: true},
	}
	if reason != "" {
		fields = append(fields, modal.Field{Name: "Reason", Value: reason})
	}
	return modal.Message{Embed: &modal.Embed{Title: title, Fields: fields, Color: color}}
}
