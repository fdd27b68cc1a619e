package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/filter"
	"github.com/weiawesome/talkwire/internal/guard"
	"github.com/weiawesome/talkwire/internal/handler"
	"github.com/weiawesome/talkwire/internal/hub"
	"github.com/weiawesome/talkwire/internal/registry"
	"github.com/weiawesome/talkwire/internal/service"
	"github.com/weiawesome/talkwire/internal/snapshot"
	pkglog "github.com/weiawesome/talkwire/pkg/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		pkglog.L().Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "talkwire",
	})
	logger := *pkglog.L()

	// Word filter
	wordFilter, err := filter.New(cfg.Filter.CacheSize, cfg.Filter.OverrideFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build word filter")
	}
	logger.Info().Int("offensive_terms", wordFilter.OffensiveCount()).Msg("word filter ready")

	// Core components
	abuseGuard := guard.New(cfg.Guard, cfg.Chat, logger)
	roomRegistry := registry.New(cfg.Room, logger)
	wsHub := hub.New()

	// Snapshot store; restore any previous state before serving.
	store := snapshot.New(cfg.Snapshot, logger, roomRegistry.Snapshot)
	if exp, ok, err := store.Load(); err != nil {
		logger.Warn().Err(err).Msg("snapshot load failed, starting empty")
	} else if ok {
		roomRegistry.Restore(exp)
		logger.Info().Int("rooms", len(exp.Rooms)).Time("saved_at", exp.SavedAt).Msg("snapshot restored")
	}

	talkService := service.New(cfg, wsHub, roomRegistry, wordFilter, abuseGuard, store, logger)

	// HTTP surface
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewWSHandler(wsHub, talkService, abuseGuard, cfg.Server).RegisterRoutes(r)
	handler.NewHTTPHandler(talkService, roomRegistry, store, cfg).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	go wsHub.Run()

	g.Go(func() error {
		abuseGuard.Run(ctx)
		return nil
	})
	g.Go(func() error {
		roomRegistry.Run(ctx)
		return nil
	})
	g.Go(func() error {
		store.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("talkwire starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("talkwire stopped")
}
