package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gametools/internal/api"
	"gametools/internal/config"
	"gametools/internal/event"
	"gametools/internal/gamewin"
	"gametools/internal/logger"
	"gametools/internal/logwatch"
	"gametools/internal/overlay"
	"gametools/internal/periodic"
	"gametools/internal/store"
)

var (
	noWindow bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start the event loop, log watcher, and API server",
		Long: `Start the gametools daemon: the fixed-tick event loop, the game log
watcher, and the HTTP API.

The game window is located by the configured title. Without a window (or
with --no-window) the loop still runs, driving log-line events only.`,
		Example: `  # Run with the default config
  gametools run

  # Run against a specific game
  gametools run --config ~/poe-tools.yaml

  # Run without connecting to the display server
  gametools run --no-window --log-level debug`,
		RunE: runDaemon,
	}
)

func init() {
	runCmd.Flags().BoolVar(&noWindow, "no-window", false, "run without a window backend")
	rootCmd.AddCommand(runCmd)
}

// monitorState is the default loop state: it polls the log watcher and
// periodically reports whether the game window is open.
type monitorState struct {
	watcher *logwatch.Watcher
	backend gamewin.Backend
	poll    time.Duration
}

func (s *monitorState) OnStart(ctx context.Context) error {
	logger.WithComponent("monitor").Info().Msg("Monitoring started")
	return nil
}

func (s *monitorState) OnUpdate(ctx context.Context) error {
	if s.watcher != nil {
		if _, err := periodic.Async(ctx, s.poll, s.watcher.Poll); err != nil {
			return err
		}
	}
	if s.backend != nil {
		periodic.Sync(5*time.Second, s.reportWindow)
	}
	return nil
}

func (s *monitorState) OnStop(ctx context.Context) error {
	logger.WithComponent("monitor").Info().Msg("Monitoring stopped")
	return nil
}

func (s *monitorState) reportWindow() {
	logger.WithComponent("monitor").Debug().
		Bool("window_open", s.backend.IsOpen()).
		Msg("Window status")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, viper.GetBool("pretty"))
	log := logger.WithComponent("run")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	// Tool state (overlay positions) lives next to the config by default.
	statePath := cfg.StatePath
	if statePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		statePath = home + "/.config/gametools/state.json"
	}
	db, err := store.Open(statePath)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	var backend gamewin.Backend
	if !noWindow {
		x11 := gamewin.NewX11Backend(cfg.WindowTitle, cfg.MatchExact)
		if err := x11.Connect(); err != nil {
			return fmt.Errorf("failed to connect window backend: %w", err)
		}
		defer x11.Close()
		backend = x11
	}

	events := event.NewManager(nil)

	watcher := logwatch.NewWatcher(events)
	for _, lf := range cfg.LogFiles {
		watcher.AddFile(lf.Path, time.Duration(lf.StaleAfterSeconds)*time.Second)
		for _, pattern := range lf.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("bad log pattern %q: %w", pattern, err)
			}
			path := lf.Path
			watcher.Register(logwatch.Matcher{
				Name:   pattern,
				Before: re,
				Make: func(line string) event.Event {
					return logwatch.NewLineEvent(path, line)
				},
			})
		}
	}

	overlayMgr := overlay.NewManager(cfg.Overlay.RefWidth, cfg.Overlay.RefHeight, db)
	overlayMgr.SetEnabled(cfg.Overlay.Enabled)

	events.QueueState(&monitorState{
		watcher: watcher,
		backend: backend,
		poll:    time.Duration(cfg.TickIntervalMS) * time.Millisecond,
	})

	server := api.NewServer(events, configMgr, overlayMgr, backend)
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- events.Run(ctx, time.Duration(cfg.TickIntervalMS)*time.Millisecond)
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Str("window_title", cfg.WindowTitle).
		Msg("gametools is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("Shutting down gracefully")
		cancel()
		return <-loopErr
	case err := <-loopErr:
		return err
	}
}
