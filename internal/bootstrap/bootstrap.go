// Package bootstrap holds the process wiring shared by the bot, the API and the starter CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"modbot/internal/activities"
	"modbot/internal/config"
	"modbot/internal/logging"
	"modbot/internal/store"
	"modbot/internal/workflows"
)

// OpenStore opens the configured store. The mysql store is migrated when migrate is set.
func OpenStore(ctx context.Context, cfg config.StoreConfig, migrate bool, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using the in-memory store; records are lost on restart")
		return store.NewMemoryStore(), nil
	case "mysql":
		s, err := store.OpenMySQL(ctx, cfg.DSN.Value())
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
			logger.Info("store schema migrated")
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func DialTemporal(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    logging.Temporal(logger.Named("temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

// RegisterWorker registers every workflow and the activity methods of acts.
func RegisterWorker(w worker.Registry, acts *activities.Activities) {
	w.RegisterWorkflow(workflows.ModerationWorkflow)
	w.RegisterWorkflow(workflows.DirectActionWorkflow)
	w.RegisterWorkflow(workflows.CommissionWorkflow)
	w.RegisterWorkflow(workflows.TempActionExpiryWorkflow)
	w.RegisterActivity(acts)
}

// ExpiryStartOptions starts the sweeper under its fixed id. A closed run may be replaced; an
// open one is signalled instead.
func ExpiryStartOptions(taskQueue string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                    workflows.ExpiryWorkflowID,
		TaskQueue:             taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
}

// EnsureExpiry starts the expiry workflow if it is not running and asks it for an immediate
// sweep.
func EnsureExpiry(ctx context.Context, c client.Client, taskQueue string, params workflows.ExpiryParams, reason string) (client.WorkflowRun, error) {
	if c == nil {
		return nil, errors.New("temporal client is required")
	}
	run, err := c.SignalWithStartWorkflow(ctx,
		workflows.ExpiryWorkflowID,
		workflows.SweepNowSignal,
		workflows.SweepRequest{Reason: reason},
		ExpiryStartOptions(taskQueue),
		workflows.TempActionExpiryWorkflow,
		params,
	)
	if err != nil {
		return nil, fmt.Errorf("signal-with-start %s: %w", workflows.ExpiryWorkflowID, err)
	}
	return run, nil
}
