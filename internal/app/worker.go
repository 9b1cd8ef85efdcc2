package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tipflix/internal/config"
	"github.com/hitoshi/tipflix/internal/handler"
	"github.com/hitoshi/tipflix/internal/metrics"
	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/repository"
	"github.com/hitoshi/tipflix/internal/security"
	"github.com/hitoshi/tipflix/internal/worker/cleanup"
	"github.com/hitoshi/tipflix/internal/worker/linkcheck"
)

// newWorkerRouter はワーカー用の /health と /metrics だけを持つルーターを返す。
func newWorkerRouter(checker handler.HealthChecker, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Get("/health", handler.NewHealthHandler(checker))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	return r
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除と画像リンクの確認を定期実行し、
// 監視用に /health と /metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. ジョブの初期化
	cleanupJob := cleanup.NewSessionCleanupJob(db, slog.Default())
	checker := linkcheck.NewChecker(
		repository.NewPostgresMovieRepo(db),
		repository.NewPostgresBannerRepo(db),
		security.NewSSRFGuard(),
		collector,
		slog.Default(),
		linkcheck.Config{
			Timeout:       cfg.LinkCheckTimeout,
			MaxSize:       cfg.LinkCheckMaxSize,
			MaxConcurrent: cfg.LinkCheckMaxConcurrent,
		},
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           newWorkerRouter(db, reg, slog.Default()),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker monitoring server error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
		slog.Duration("linkcheck_interval", cfg.LinkCheckInterval),
		slog.Int("max_concurrent", cfg.LinkCheckMaxConcurrent),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cleanupJob.Start(ctx, cfg.SessionCleanupInterval)
	}()
	go func() {
		defer wg.Done()
		checker.Start(ctx, cfg.LinkCheckInterval)
	}()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}
