// rconbot - Squad RCON map vote bot.
//
// rconbot connects to a Squad server's RCON port, watches in-game chat for
// map vote requests, and runs timed map votes with quorum and cooldown
// rules. It exposes an optional read-only status API and publishes vote
// telemetry via MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bsubei/rconbot/internal/api"
	"github.com/bsubei/rconbot/internal/chat"
	"github.com/bsubei/rconbot/internal/cli"
	"github.com/bsubei/rconbot/internal/config"
	"github.com/bsubei/rconbot/internal/events"
	"github.com/bsubei/rconbot/internal/mappool"
	"github.com/bsubei/rconbot/internal/scheduler"
	"github.com/bsubei/rconbot/internal/telemetry"
	"github.com/bsubei/rconbot/internal/util"
	"github.com/bsubei/rconbot/internal/voter"
)

const (
	AppName    = "rconbot"
	AppVersion = "1.0.0"
)

func main() {
	cfg := config.Default()
	var noConsole bool

	rootCmd := &cobra.Command{
		Use:     AppName,
		Short:   "Squad RCON map vote bot",
		Version: AppVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cfg, !noConsole)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Address, "rcon-address", "", "IP or hostname of the RCON server")
	flags.IntVar(&cfg.Port, "rcon-port", config.DefaultRCONPort, "RCON port of the server")
	flags.StringVar(&cfg.Password, "rcon-password", "", "RCON password of the server")
	flags.DurationVar(&cfg.VotingCooldown, "voting-cooldown", config.DefaultVotingCooldown, "minimum time between map votes")
	flags.DurationVar(&cfg.VotingDuration, "voting-duration", config.DefaultVotingDuration, "how long a map vote stays open")
	flags.IntVar(&cfg.QuorumThreshold, "quorum", config.DefaultQuorumThreshold, "distinct players needed to start a vote")
	flags.StringVar(&cfg.ClanTag, "clan-tag", config.DefaultClanTag, "clan tag whose members can start votes immediately")
	flags.StringSliceVar(&cfg.VoteCommands, "vote-commands", chat.DefaultVoteCommands, "chat tokens that count as a vote request")
	flags.IntVar(&cfg.CandidateCount, "candidate-count", config.DefaultCandidateCount, "number of map candidates per vote")
	flags.BoolVar(&cfg.IncludeRedoOption, "redo-option", false, "append a 'none of the above' option to every vote")
	flags.BoolVar(&cfg.RestartOnPrivileged, "restart-on-privileged", false, "a clan member's request restarts an active vote")
	flags.StringVar(&cfg.MapRotationFile, "map-rotation-filepath", "", "path to the server's MapRotation.cfg")
	flags.StringVar(&cfg.MapLayersFile, "map-layers-filepath", "", "path to a JSON list of all map layers")
	flags.DurationVar(&cfg.MapCheckPeriod, "map-check-period", config.DefaultMapCheckPeriod, "how often the current map is polled")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&cfg.API.Enabled, "api", false, "enable the read-only status API")
	flags.IntVar(&cfg.API.Port, "api-port", cfg.API.Port, "status API listen port")
	flags.BoolVar(&cfg.Telemetry.Enabled, "mqtt", false, "enable MQTT vote telemetry")
	flags.StringVar(&cfg.Telemetry.BrokerURL, "mqtt-broker", "", "MQTT broker hostname")
	flags.IntVar(&cfg.Telemetry.Port, "mqtt-port", cfg.Telemetry.Port, "MQTT broker port")
	flags.BoolVar(&cfg.Telemetry.UseTLS, "mqtt-tls", false, "connect to the MQTT broker over TLS")
	flags.StringVar(&cfg.Telemetry.Topic, "mqtt-topic", cfg.Telemetry.Topic, "MQTT topic for vote events")
	flags.BoolVar(&noConsole, "no-console", false, "disable the interactive console")

	rootCmd.MarkFlagRequired("rcon-address")
	rootCmd.MarkFlagRequired("rcon-password")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, console bool) error {
	if cfg.Verbose {
		cfg.Logging.Level = "debug"
	}
	logCfg := util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    cfg.Logging.Console,
	}
	if err := util.InitLogger(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting rconbot")

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Map sources. The rotation file is the primary candidate pool when
	// present; the layer list backs redo votes and is the fallback pool.
	var rotation *mappool.RotationProvider
	var pool, randomPool mappool.Provider

	if cfg.MapRotationFile != "" {
		maps, err := mappool.LoadRotationFile(cfg.MapRotationFile)
		if err != nil {
			return fmt.Errorf("loading map rotation: %w", err)
		}
		rotation, err = mappool.NewRotationProvider(maps)
		if err != nil {
			return fmt.Errorf("loading map rotation: %w", err)
		}
		pool = rotation
		log.Info().Int("maps", len(maps)).Str("file", cfg.MapRotationFile).Msg("map rotation loaded")
	}

	if cfg.MapLayersFile != "" {
		layers, err := mappool.LoadLayersFile(cfg.MapLayersFile)
		if err != nil {
			return fmt.Errorf("loading map layers: %w", err)
		}
		randomPool = mappool.NewRandomProvider(layers, time.Now().UnixNano())
		log.Info().Int("layers", len(layers)).Str("file", cfg.MapLayersFile).Msg("map layers loaded")
	}
	if pool == nil {
		pool = randomPool
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	manager := newRCONManager(cfg, bus)
	coordinator := voter.New(cfg, manager, pool, randomPool, bus)
	manager.coordinator = coordinator

	checker := scheduler.NewMapChecker(cfg, manager, rotation, coordinator)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := manager.Run(ctx); err != nil {
			errCh <- fmt.Errorf("rcon connection: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		checker.Run(ctx)
	}()

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg, coordinator, manager.Connected)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("status API failed (non-fatal)")
			}
		}()
	}

	if cfg.Telemetry.Enabled {
		mqttHandler, err := telemetry.NewMQTTHandler(cfg, bus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mqttHandler.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed (non-fatal)")
				}
			}()
		}
	}

	if console {
		consoleUI := cli.NewCLI(cfg, bus, coordinator, manager, rotation)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consoleUI.Start(ctx)
		}()
	}

	// The CLI quit command routes through the bus; fold it into the same
	// shutdown path as SIGINT.
	shutdownCh := make(chan struct{}, 1)
	bus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested from console")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal error, initiating shutdown")
		runErr = err
	}

	cancel()
	manager.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timed out, forcing exit")
	}

	bus.Stop()
	log.Info().Msg("rconbot stopped")
	return runErr
}

// errNotConnected is returned by Execute while the RCON connection is down.
var errNotConnected = errors.New("rcon connection is down")
