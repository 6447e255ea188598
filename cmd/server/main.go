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

	"github.com/dkeye/Atelier/internal/adapters/genai"
	router "github.com/dkeye/Atelier/internal/adapters/http"
	wsignal "github.com/dkeye/Atelier/internal/adapters/signal"
	"github.com/dkeye/Atelier/internal/app"
	"github.com/dkeye/Atelier/internal/config"
	"github.com/dkeye/Atelier/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to open snapshot store")
	}
	defer db.Close()

	store := storage.NewSnapshotStore(db)
	manager := app.NewRoomManager(store)
	relay := app.NewRelay(
		genai.NewClient(cfg.OpenAIAPIKey, cfg.GroqAPIKey),
		genai.NewImageRouteClient(cfg.ImageRouteURL, cfg.SyncSecret),
	)
	ctl := wsignal.NewRoomWSController(manager, relay, cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, manager, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Atelier server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
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
