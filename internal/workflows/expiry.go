package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"modbot/internal/expiry"
)

const (
	// ExpiryWorkflowID is the single long-running sweeper instance.
	ExpiryWorkflowID = "temp-action-expiry"
	// SweepNowSignal carries a SweepRequest and triggers an immediate sweep.
	SweepNowSignal = "SWEEP_NOW_SIGNAL"

	DefaultSweepInterval = 60 * time.Second
	DefaultMaxTicks      = 500
)

type SweepRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ExpiryParams struct {
	Interval time.Duration `json:"interval"`
	// MaxTicks bounds history length; after that many sweeps the workflow continues as new.
	MaxTicks int `json:"maxTicks"`
}

func (p ExpiryParams) withDefaults() ExpiryParams {
	if p.Interval <= 0 {
		p.Interval = DefaultSweepInterval
	}
	if p.MaxTicks <= 0 {
		p.MaxTicks = DefaultMaxTicks
	}
	return p
}

// TempActionExpiryWorkflow reverses expired temporary actions on a fixed interval. A failed
// sweep is logged and retried on the next tick.
func TempActionExpiryWorkflow(ctx workflow.Context, params ExpiryParams) error {
	params = params.withDefaults()
	logger := workflow.GetLogger(ctx)
	logger.Info("expiry workflow started", "Interval", params.Interval, "MaxTicks", params.MaxTicks)

	sweepCh := workflow.GetSignalChannel(ctx, SweepNowSignal)
	sctx := withSweepOptions(ctx)

	for tick := 0; tick < params.MaxTicks; tick++ {
		var report expiry.Report
		if err := workflow.ExecuteActivity(sctx, acts.SweepExpiredTempActions).Get(ctx, &report); err != nil {
			logger.Error("sweep failed", "Tick", tick, "Error", err)
		} else if report.Scanned > 0 {
			logger.Info("sweep finished", "Tick", tick, "Scanned", report.Scanned, "Reversed", report.Reversed,
				"AlreadyReversed", report.AlreadyReversed, "Failed", report.Failed)
		}

		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		timer := workflow.NewTimer(timerCtx, params.Interval)
		selector := workflow.NewSelector(ctx)
		selector.AddFuture(timer, func(workflow.Future) {})
		selector.AddReceive(sweepCh, func(c workflow.ReceiveChannel, more bool) {
			var req SweepRequest
			c.Receive(ctx, &req)
			logger.Info("sweep requested", "Reason", req.Reason)
		})
		selector.Select(ctx)
		cancelTimer()
	}

	// Pending sweep requests are satisfied by the first sweep of the next run.
	for {
		var req SweepRequest
		if !sweepCh.ReceiveAsync(&req) {
			break
		}
	}
	return workflow.NewContinueAsNewError(ctx, TempActionExpiryWorkflow, params)
}
