// Command bot runs the Discord gateway, the Temporal worker and the metrics endpoint in one
// process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"modbot/internal/activities"
	"modbot/internal/bootstrap"
	"modbot/internal/config"
	"modbot/internal/discord"
	"modbot/internal/expiry"
	"modbot/internal/idgen"
	"modbot/internal/logging"
	"modbot/internal/metrics"
	"modbot/internal/modal"
	"modbot/internal/session"
	"modbot/internal/workflows"
)

const (
	sessionSweepInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("MODBOT_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateBot(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, cfg.Store, true, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	tc, err := bootstrap.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	m := metrics.New(nil)
	sessions := session.NewRegistry()

	dg, err := discordgo.New("Bot " + cfg.Discord.Token.Value())
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	adapter := discord.NewAdapter(dg, cfg.Discord.AppID)

	acts := &activities.Activities{
		Store:     st,
		Messenger: adapter,
		Moderator: adapter,
		IDs:       idgen.New(st.ActionIDExists, st.CommissionExists),
		Sweeper: &expiry.Sweeper{
			Store:         st,
			Moderator:     adapter,
			Messenger:     adapter,
			ModLogChannel: cfg.Discord.ModLogChannel,
			Logger:        logger.Named("expiry"),
			Metrics:       m,
		},
		Sessions:        sessions,
		ModLogChannel:   cfg.Discord.ModLogChannel,
		FallbackChannel: cfg.Discord.FallbackChannel,
	}
	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	bootstrap.RegisterWorker(w, acts)

	router := discord.NewRouter(&discord.Router{
		Workflows: &discord.TemporalWorkflows{Client: tc, TaskQueue: cfg.Temporal.TaskQueue},
		Store:     st,
		Sessions:  sessions,
		Scopes:    adapter,
		Gate:      discord.Gate{StaffRoles: cfg.Discord.StaffRoles, DeveloperRole: cfg.Discord.DeveloperRole},
		Responder: dg,
		Metrics:   m,
		Logger:    logger.Named("router"),
		Config: discord.RouterConfig{
			CommissionCategory: cfg.Discord.CommissionCategory,
			InviteURL:          cfg.Discord.InviteURL,
			Timeouts: modal.Timeouts{
				Info:     cfg.Prompts.Info,
				Evidence: cfg.Prompts.Evidence,
				Decision: cfg.Prompts.Decision,
			},
		},
	})
	defer router.Close()

	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		logger.Info("gateway ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})
	dg.AddHandler(router.HandleInteraction)
	dg.AddHandler(router.HandleMessage)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer dg.Close()

	cmds, err := discord.RegisterCommands(dg, cfg.Discord.AppID, cfg.Discord.GuildID)
	if err != nil {
		return err
	}
	logger.Info("slash commands registered", zap.Int("count", len(cmds)), zap.String("guild_id", cfg.Discord.GuildID))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stopCh := make(chan interface{})
		go func() {
			<-gctx.Done()
			close(stopCh)
		}()
		logger.Info("worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))
		if err := w.Run(stopCh); err != nil {
			return fmt.Errorf("worker exited: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		params := workflows.ExpiryParams{Interval: cfg.Expiry.Interval, MaxTicks: cfg.Expiry.MaxTicks}
		run, err := bootstrap.EnsureExpiry(gctx, tc, cfg.Temporal.TaskQueue, params, "bot startup")
		if err != nil {
			return err
		}
		logger.Info("expiry workflow running", zap.String("workflow_id", run.GetID()), zap.String("run_id", run.GetRunID()))
		return nil
	})

	g.Go(func() error {
		return sweepSessions(gctx, sessions, m, logger)
	})

	g.Go(func() error {
		return serveMetrics(gctx, cfg.HTTP.MetricsAddr, m, logger)
	})

	return g.Wait()
}

// sweepSessions evicts sessions whose workflow result was never observed.
func sweepSessions(ctx context.Context, sessions *session.Registry, m *metrics.Metrics, logger *zap.Logger) error {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, s := range sessions.Sweep() {
				logger.Warn("session expired without a workflow result",
					zap.String("workflow_id", s.WorkflowID),
					zap.String("kind", string(s.Key.Kind)),
					zap.String("initiator", s.Key.Initiator))
			}
			m.Sessions(sessions.Len())
		}
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *zap.Logger) error {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
