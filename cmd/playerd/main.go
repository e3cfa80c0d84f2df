// Package main provides the player daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/pefelippe/spotify-player/internal/api/httpapi"
	"github.com/pefelippe/spotify-player/internal/app/player"
	"github.com/pefelippe/spotify-player/internal/infra/auth"
	"github.com/pefelippe/spotify-player/internal/infra/config"
	"github.com/pefelippe/spotify-player/internal/infra/driver"
	"github.com/pefelippe/spotify-player/internal/infra/logger"
	"github.com/pefelippe/spotify-player/internal/infra/spotify"
)

var (
	app        = kingpin.New("playerd", "Spotify playback session daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main daemon logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Auth manager: owns the token and the global unauthorized signal
	authMgr, err := auth.New(ctx, auth.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth manager: %w", err)
	}

	// Web API client on the auth manager's HTTP client, so every REST call
	// carries the current token and a 401 anywhere clears the session
	spotifyClient := spotify.NewWithHTTPClient(authMgr.HTTPClient(ctx), cfg.Spotify.Market)

	playerFactory, err := driver.NewFactoryFromConfig(cfg, spotifyClient)
	if err != nil {
		return fmt.Errorf("failed to create player driver: %w", err)
	}

	controller := player.NewController(player.Config{
		Name:          cfg.Player.Name,
		InitialVolume: cfg.Player.InitialVolume,
	}, spotifyClient, playerFactory)
	defer controller.Close()

	// Wire the token stream into the session controller, then push the
	// initial token to bring the session up
	authMgr.Subscribe(controller.HandleToken)
	if err := authMgr.Announce(ctx); err != nil {
		return fmt.Errorf("failed to obtain initial token: %w", err)
	}

	apiHandler := httpapi.NewHandler(controller, authMgr)
	server := httpapi.NewServer(cfg.Server.Addr, apiHandler)

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tear the session down first so the event stream subscribers drain
	controller.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}
