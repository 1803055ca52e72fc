package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/classpad/liveclass/internal/adapters/http"
	wsignal "github.com/classpad/liveclass/internal/adapters/signal"
	"github.com/classpad/liveclass/internal/app"
	"github.com/classpad/liveclass/internal/classrec"
	"github.com/classpad/liveclass/internal/config"
	"github.com/classpad/liveclass/internal/presence"
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
		log.Error().Err(err).Msg("failed to load config")
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.DataDir).WithLogger(nil))
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to open store")
	}
	defer db.Close()

	presenceStore := presence.NewStore(db)
	classStore := classrec.NewStore(db)

	hub := wsignal.NewHub()
	coord := app.NewCoordinator(hub, presenceStore, classStore, cfg.GracePeriod)
	hub.BindRooms(coord.Registry)
	ctl := wsignal.NewController(coord, hub, cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, coord, classStore, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("LiveClass server started")
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
	log.Info().Msg("Server exited gracefully")
}
