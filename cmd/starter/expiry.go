package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"modbot/internal/bootstrap"
	"modbot/internal/workflows"
)

var sweepReason string

var expiryCmd = &cobra.Command{
	Use:   "expiry",
	Short: "Manage the temporary-action expiry workflow",
}

var expiryStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the expiry workflow, or signal it if it is already running",
	RunE:  runExpiryStart,
}

var expirySweepCmd = &cobra.Command{
	Use:   "sweep-now",
	Short: "Ask the running expiry workflow for an immediate sweep",
	RunE:  runExpirySweep,
}

func init() {
	expirySweepCmd.Flags().StringVar(&sweepReason, "reason", "operator request", "Reason recorded with the sweep")
	expiryCmd.AddCommand(expiryStartCmd)
	expiryCmd.AddCommand(expirySweepCmd)
}

func runExpiryStart(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	tc, err := bootstrap.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	params := workflows.ExpiryParams{Interval: cfg.Expiry.Interval, MaxTicks: cfg.Expiry.MaxTicks}
	run, err := bootstrap.EnsureExpiry(ctx, tc, cfg.Temporal.TaskQueue, params, "starter")
	if err != nil {
		return err
	}
	return printResult(cmd, map[string]string{"workflowId": run.GetID(), "runId": run.GetRunID()},
		fmt.Sprintf("expiry workflow running: WorkflowID=%s RunID=%s", run.GetID(), run.GetRunID()))
}

func runExpirySweep(cmd *cobra.Command, _ []string) error {
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

	req := workflows.SweepRequest{Reason: sweepReason}
	if err := tc.SignalWorkflow(ctx, workflows.ExpiryWorkflowID, "", workflows.SweepNowSignal, req); err != nil {
		return fmt.Errorf("signal %s: %w", workflows.ExpiryWorkflowID, err)
	}
	return printResult(cmd, map[string]any{"ok": true}, "sweep requested")
}
