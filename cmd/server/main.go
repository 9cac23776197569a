package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/archive"
	"github.com/DoyleJ11/duel-backend/internal/catalog"
	"github.com/DoyleJ11/duel-backend/internal/config"
	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/httpapi"
	"github.com/DoyleJ11/duel-backend/internal/hub"
	"github.com/DoyleJ11/duel-backend/internal/identity"
	"github.com/DoyleJ11/duel-backend/internal/logger"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/DoyleJ11/duel-backend/internal/store"
	"github.com/DoyleJ11/duel-backend/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "duel-server:", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.LoadFile(cfg.CatalogPath); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}

	results, err := store.Open(store.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { err = multierr.Append(err, results.Close()) }()

	recorders := store.Multi{store.NewRetrying(results, 5, 200*time.Millisecond, log)}
	if cfg.ArchiveBucket != "" {
		arch, err := archive.New(ctx, archive.Config{
			Bucket:          cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			Region:          cfg.ArchiveRegion,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		recorders = append(recorders, store.NewRetrying(arch, 3, time.Second, log))
	}

	matchCfg := match.Config{
		Rules:          engine.Rules{MaxTeamSize: cfg.MaxTeamSize, MaxMoves: cfg.MaxMoves},
		Options:        func() []engine.Fighter { return cat.Options(cfg.RosterOptions, nil) },
		TurnTimeout:    cfg.TurnTimeout,
		ReconnectGrace: cfg.ReconnectGrace,
	}
	if cfg.StrictRosters {
		matchCfg.VerifyRoster = cat.Verify
	}

	h := hub.NewHub(ctx, hub.Config{
		Match:         matchCfg,
		Recorder:      recorders,
		FinishedGrace: cfg.FinishedGrace,
		Logger:        log,
	})
	defer h.Shutdown()
	if err := h.StartReaper(cfg.SweepInterval); err != nil {
		return fmt.Errorf("reaper: %w", err)
	}

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:     h,
		History: results,
		Catalog: cat,
		Identity: identity.Header{
			ServiceToken: cfg.ServiceToken,
			AllowQuery:   cfg.DevIdentity,
		},
		Logger: log,
		WS:     ws.Config{OriginPatterns: cfg.Origins},
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDriver), zap.Int("catalog", cat.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
