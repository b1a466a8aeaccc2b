package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"modbot/internal/api"
	"modbot/internal/bootstrap"
	"modbot/internal/modal"
)

var (
	signalRunID       string
	signalAuthor      string
	signalChannel     string
	signalContent     string
	signalOption      string
	signalAttachments []string
)

var signalCmd = &cobra.Command{
	Use:   "signal <workflow-id>",
	Short: "Inject a reply or a button choice into a waiting workflow",
	Long: `Inject a prompt event as if it came from Discord. An event with --option is a button
choice; otherwise it is a direct-message reply with optional --attachment URLs.`,
	Args: cobra.ExactArgs(1),
	RunE: runSignal,
}

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Print a workflow's instance state and audit log",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	signalCmd.Flags().StringVar(&signalRunID, "run-id", "", "Run id (defaults to the latest run)")
	signalCmd.Flags().StringVar(&signalAuthor, "author", "", "User id the event is from (required)")
	signalCmd.Flags().StringVar(&signalChannel, "channel", "", "Channel id the event arrived in")
	signalCmd.Flags().StringVar(&signalContent, "content", "", "Reply text")
	signalCmd.Flags().StringVar(&signalOption, "option", "", "Button option, such as confirm or paypal")
	signalCmd.Flags().StringArrayVar(&signalAttachments, "attachment", nil, "Attachment URL (repeatable)")
	_ = signalCmd.MarkFlagRequired("author")

	statusCmd.Flags().StringVar(&signalRunID, "run-id", "", "Run id (defaults to the latest run)")
}

// promptEvent builds the event from the signal flags.
func promptEvent(now time.Time) modal.PromptEvent {
	ev := modal.PromptEvent{
		Kind:        modal.EventMessage,
		AuthorID:    signalAuthor,
		ChannelID:   signalChannel,
		Content:     signalContent,
		Attachments: signalAttachments,
		ReceivedAt:  now.UTC(),
	}
	if signalOption != "" {
		ev.Kind, ev.Option = modal.EventChoice, signalOption
	}
	return ev
}

func runSignal(cmd *cobra.Command, args []string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	tc, err := bootstrap.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	engine := &api.TemporalEngine{Client: tc}
	ev := promptEvent(time.Now())
	if err := engine.Signal(ctx, args[0], signalRunID, ev); err != nil {
		return err
	}
	return printResult(cmd, ev, fmt.Sprintf("%s event delivered to %s", ev.Kind, args[0]))
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	tc, err := bootstrap.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	engine := &api.TemporalEngine{Client: tc}
	inst, err := engine.Instance(ctx, args[0], signalRunID)
	if err != nil {
		return err
	}
	audit, err := engine.Audit(ctx, args[0], signalRunID)
	if err != nil {
		return err
	}
	out := struct {
		Instance modal.WorkflowInstance `json:"instance"`
		Audit    []modal.AuditEvent     `json:"audit"`
	}{inst, audit}

	b, _ := json.MarshalIndent(out, "", "  ")
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
