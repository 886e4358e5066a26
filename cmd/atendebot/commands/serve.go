package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/ai"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/config"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/credstore"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/database"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/reservations"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/schedule"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/session"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/transport/whatsapp"
)

// statusInterval is how often the serve loop logs a status line.
const statusInterval = 5 * time.Minute

// newServeCmd creates the `atendebot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot daemon",
		Long: `Connect to WhatsApp and answer messages until interrupted.

Examples:
  atendebot serve
  atendebot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := buildLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: one SQLite file shared by the credential store and the
	// WhatsApp session tables.
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	creds, err := credstore.Open(db, logger)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	// Collaborators.
	aiCfg := cfg.AI
	aiCfg.APIKey = config.ResolveAPIKey(cfg)
	if aiCfg.APIKey == "" {
		logger.Warn("no AI API key configured, free-form replies will fail over to the menu")
	}
	assistant := ai.NewClient(aiCfg, logger)

	portal := reservations.NewClient(cfg.Reservations, logger)

	waCfg := cfg.WhatsApp
	if waCfg.DatabaseDSN == "" {
		waCfg.DatabaseDSN = cfg.Database.DSN()
	}
	transport := whatsapp.New(waCfg, creds, logger)

	monitor := reservations.NewMonitor(cfg.Monitor, portal, transport, logger)

	orchestrator := session.New(cfg.Session, cfg.Access, session.Deps{
		Sender:       transport,
		Responder:    assistant,
		Availability: portal,
		Groups:       transport,
		Monitor:      monitor,
	}, logger)

	// Connect and start everything.
	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to WhatsApp: %w", err)
	}
	defer transport.Disconnect()

	go orchestrator.Run(ctx, transport.Events())

	if cfg.Monitor.Enabled {
		if err := monitor.Start(ctx); err != nil {
			logger.Error("reservation monitor not started", "error", err)
		}
		defer monitor.Stop()
	}

	broadcaster := schedule.NewBroadcaster(transport, logger)
	if len(cfg.Schedules) > 0 {
		if err := broadcaster.Start(ctx, cfg.Schedules); err != nil {
			logger.Error("broadcast schedules not started", "error", err)
		}
		defer broadcaster.Stop()
	}

	// Hot reload: prompt template and access lists apply without restart.
	if configPath != "" {
		watcher := config.NewWatcher(configPath, logger)
		watcher.OnReload(func(updated *config.Config) {
			assistant.UpdatePrompt(updated.AI.SystemPrompt)
			orchestrator.UpdatePolicy(updated.Access)
		})
		go watcher.Start(ctx)
		logger.Info("config watcher started", "path", configPath)
	}

	go statusLoop(ctx, orchestrator, transport, logger)

	logger.Info("atendebot running, press Ctrl+C to stop",
		"name", cfg.Name,
		"test_mode", cfg.Access.TestMode,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping")
	cancel()
	return nil
}

// statusLoop periodically logs connection and conversation counts.
func statusLoop(ctx context.Context, orchestrator *session.Orchestrator, transport *whatsapp.Client, logger *slog.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, owned := orchestrator.Counts()
			logger.Info("status",
				"connected", transport.IsConnected(),
				"conversations", total,
				"attendant_owned", owned,
			)
		}
	}
}

// resolveConfig loads the config from --config or the standard locations,
// falling back to defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return config.DefaultConfig(), "", nil
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config %q: %w", path, err)
	}
	return cfg, path, nil
}

// buildLogger configures slog from config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
