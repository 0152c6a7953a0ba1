package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/api"
	"github.com/Stormster/hytale-server-manager-sub000/internal/app"
	"github.com/Stormster/hytale-server-manager-sub000/internal/config"
	"github.com/Stormster/hytale-server-manager-sub000/internal/updater"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 8 * time.Second

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogPretty || config.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

func main() {
	configDir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting user config directory: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	log.Info().
		Str("version", updater.ManagerVersion).
		Str("config", configDir).
		Str("database", cfg.DatabasePath).
		Str("instances", cfg.RootDir).
		Str("runtimes", cfg.RuntimesPath).
		Msg("starting Hytale server manager")

	container, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialise")
	}
	defer container.Close()

	container.Updater.CleanupStale()
	container.Supervisor.ResetRunningStates()

	token := ""
	if cfg.APITokenRequired {
		token = config.LoadOrGenerateSecret(configDir)
		if token == "" {
			log.Fatal().Msg("API token required but none could be loaded or generated")
		}
		log.Info().Msg("API token required; clients read it from the secret file or HSM_SECRET_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewAPIServer(container, token)
	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	serveErr := apiServer.Start(ctx, listenAddr)

	log.Info().Msg("shutting down, stopping running servers")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	container.Supervisor.StopAll(stopCtx)
	cancel()

	if serveErr != nil {
		log.Error().Err(serveErr).Msg("API server stopped with an error")
		container.Close()
		os.Exit(1)
	}
}
