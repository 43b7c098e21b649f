package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/VibeTown/internal/adapters/http"
	"github.com/dkeye/VibeTown/internal/app"
	"github.com/dkeye/VibeTown/internal/config"
	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	policy, err := app.PolicyFromString(cfg.Transport.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure policy")
	}

	defaults := core.DefaultRoomOptions(domain.RoomName(cfg.Room.Name))
	defaults.MaxOccupancy = cfg.Room.MaxOccupancy
	defaults.SimulationHz = cfg.Room.SimulationHz
	defaults.PatchHz = cfg.Room.PatchHz
	defaults.Spawn = core.SpawnArea{
		MinX:   cfg.Room.Spawn.MinX,
		MinY:   cfg.Room.Spawn.MinY,
		Width:  cfg.Room.Spawn.Width,
		Height: cfg.Room.Spawn.Height,
	}
	defaults.Policy = policy
	manager := app.NewRoomManager(defaults)

	r, err := router.SetupRouter(ctx, cfg, manager)
	if err != nil {
		log.Fatal().Err(err).Msg("router setup")
	}
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Vibe Town server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	manager.Shutdown()
	log.Info().Msg("Server exited gracefully")
}

// setupLogger switches to JSON output outside debug mode and applies log_level.
func setupLogger(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
