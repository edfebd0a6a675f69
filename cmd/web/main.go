// cmd/web/main.go
//
// Site registry – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Console logger so config errors are visible.
//
//  2. Load config (.env → conf/global.yaml → SITES_* env).
//
//  3. Start the daily rotating logger (tees to console when in a TTY).
//
//  4. Resolve `vault:` references when the config carries any.
//
//  5. Open the MySQL pool with ping retry.
//
//  6. Open the GeoLite2 database when configured.
//
//  7. For every registered component: migrate (optional), Init, and mount
//     at /<name>.
//
//  8. Serve /healthz and /metrics beside the components, then block until
//     SIGINT or SIGTERM and shut down within http.shutdown_timeout.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/sites/internal/component"
	"github.com/yanizio/sites/internal/config"
	"github.com/yanizio/sites/internal/database"
	"github.com/yanizio/sites/internal/logger"
	"github.com/yanizio/sites/internal/middleware"
	"github.com/yanizio/sites/internal/requestinfo"
	"github.com/yanizio/sites/internal/server"
	"github.com/yanizio/sites/internal/vault"

	_ "github.com/yanizio/sites/components/sites"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	boot := logger.Bootstrap()
	if err := run(); err != nil {
		zap.S().Errorw("fatal", "err", err)
		_ = zap.L().Sync()
		boot.Sync()
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config and logger ───────────────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sugar, err := logger.New(logger.Options{
		Root:  cfg.Paths.Root,
		Dir:   cfg.Log.Dir,
		Level: cfg.Log.Level,
		Tee:   cfg.Log.Tee || runningInTTY(),
	})
	if err != nil {
		return err
	}
	defer sugar.Sync()
	log := sugar.Desugar()

	//
	// ── 2.  Secrets ─────────────────────────────────────────────────────
	//
	if cfg.NeedsSecrets() {
		vc, err := vault.New(ctx, vault.Options{
			Address: cfg.Vault.Address,
			Token:   cfg.Vault.Token,
			Renew:   cfg.Vault.Renew,
		}, sugar.Infof)
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(ctx, vc); err != nil {
			return err
		}
		sugar.Info("secrets resolved from vault")
	}

	//
	// ── 3.  Database ────────────────────────────────────────────────────
	//
	db, err := database.OpenWithOptions(ctx, cfg.Database.BuildDSN(), database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Retries:         cfg.Database.Retries,
		RetryBackoff:    cfg.Database.RetryBackoff,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	sugar.Info("database online")

	//
	// ── 4.  Geo lookups (optional) ──────────────────────────────────────
	//
	if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
		return err
	}
	defer requestinfo.CloseGeo()

	//
	// ── 5.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		requestinfo.Enrich,
		middleware.AccessLog(log),
		middleware.Security,
		middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS),
	)
	r.Get("/healthz", healthz(db))
	r.Handle("/metrics", promhttp.Handler())

	deps := component.Deps{DB: db, Config: cfg, Log: log}
	for _, c := range component.All() {
		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, db, c.Migrations()); err != nil {
				return err
			}
		}
		if err := c.Init(deps); err != nil {
			return err
		}
		r.Mount("/"+c.Name(), c.Routes())
		sugar.Infow("component mounted", "name", c.Name())
	}

	//
	// ── 6.  Serve until signalled ───────────────────────────────────────
	//
	srv := server.New(cfg.HTTP, r)
	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	sugar.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// healthz answers 200 when the database answers a ping within two seconds.
func healthz(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if err := db.PingContext(ctx); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
