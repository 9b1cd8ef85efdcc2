package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/tipflix/internal/admin"
	"github.com/hitoshi/tipflix/internal/auth"
	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/changefeed"
	"github.com/hitoshi/tipflix/internal/config"
	"github.com/hitoshi/tipflix/internal/database"
	"github.com/hitoshi/tipflix/internal/handler"
	"github.com/hitoshi/tipflix/internal/logger"
	"github.com/hitoshi/tipflix/internal/metrics"
	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/model"
	"github.com/hitoshi/tipflix/internal/repository"
	"github.com/hitoshi/tipflix/internal/security"
	"github.com/hitoshi/tipflix/internal/viewer"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数（と.envファイル）からConfigを読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAdmin:
		return runCreateAdmin(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はGo/プロセスの標準メトリクスを登録済みのレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// catalogStreams は各コレクションの変更ストリーム。
type catalogStreams struct {
	movies     *changefeed.Stream[model.Movie]
	banners    *changefeed.Stream[model.Banner]
	categories *changefeed.Stream[model.MetadataItem]
	genres     *changefeed.Stream[model.MetadataItem]
}

func newCatalogStreams(movies repository.MovieRepository, banners repository.BannerRepository, metadata repository.MetadataRepository, log *slog.Logger) *catalogStreams {
	listMetadata := func(kind model.MetadataKind) changefeed.LoadFunc[model.MetadataItem] {
		return func(ctx context.Context) ([]model.MetadataItem, error) {
			return metadata.List(ctx, kind)
		}
	}
	return &catalogStreams{
		movies:     changefeed.NewStream(model.CollectionMovies, movies.ListAll, log),
		banners:    changefeed.NewStream(model.CollectionBanners, banners.ListAll, log),
		categories: changefeed.NewStream(model.CollectionCategories, listMetadata(model.MetadataCategory), log),
		genres:     changefeed.NewStream(model.CollectionGenres, listMetadata(model.MetadataGenre), log),
	}
}

func (s *catalogStreams) sources() catalog.Sources {
	return catalog.Sources{
		Movies:     s.movies,
		Banners:    s.banners,
		Categories: s.categories,
		Genres:     s.genres,
	}
}

func (s *catalogStreams) all() []changefeed.Source {
	return []changefeed.Source{s.movies, s.banners, s.categories, s.genres}
}

// runServe はAPIサーバーモードで起動する。
// DB接続と変更通知の購読を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	movieRepo := repository.NewPostgresMovieRepo(db)
	bannerRepo := repository.NewPostgresBannerRepo(db)
	metadataRepo := repository.NewPostgresMetadataRepo(db)
	adminRepo := repository.NewPostgresAdminUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 4. 変更通知とカタログストア
	notifier, err := changefeed.NewPQNotifier(changefeed.PQNotifierConfig{
		DatabaseURL:          cfg.DatabaseURL,
		Channel:              cfg.NotifyChannel,
		MinReconnectInterval: cfg.ListenerMinReconnect,
		MaxReconnectInterval: cfg.ListenerMaxReconnect,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to listen for catalog changes: %w", err)
	}
	defer notifier.Close()

	streams := newCatalogStreams(movieRepo, bannerRepo, metadataRepo, slog.Default())
	store := catalog.NewStore(streams.sources(), collector)
	store.Start()
	defer store.Close()

	hub := changefeed.NewHub(notifier, collector, slog.Default())
	hub.Add(streams.all()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	// 5. 閲覧者セッション
	viewerCfg := viewer.DefaultConfig()
	viewerCfg.IdleTimeout = cfg.ViewerIdleTimeout
	viewers := viewer.NewRegistry(store, viewerCfg, collector, slog.Default())
	viewers.Start()
	defer viewers.Stop()

	// 6. ドメインサービスの初期化
	authService := auth.NewService(adminRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		collector,
	)
	gateway := admin.NewGateway(movieRepo, bannerRepo, metadataRepo, store, collector)

	// 7. ルーターの構築
	// configのレート制限はreq/min単位。NewRateLimiterConfigがreq/secに変換する
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,

		Catalog: store,
		Viewers: viewers,
		ViewerCookie: middleware.ViewerCookieConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Live:         handler.DefaultLiveConfig(cfg.CORSAllowedOrigin),
		LiveObserver: collector,
		Sanitizer:    security.NewSanitizer(),
		RSS: handler.RSSConfig{
			Title:   cfg.FeedTitle,
			BaseURL: cfg.BaseURL,
		},

		SessionFinder: sessionRepo,
		RateLimiter:   rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Gateway: gateway,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	// WebSocket接続を維持するためWriteTimeoutは設定しない
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		<-hubDone
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-hubDone

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runCreateAdmin は ADMIN_EMAIL と ADMIN_PASSWORD から管理者アカウントを作成する。
// 同じメールアドレスの管理者が存在する場合はパスワードを更新する。
func runCreateAdmin(cfg *config.Config) error {
	creds, err := config.LoadAdminCredentials()
	if err != nil {
		return fmt.Errorf("failed to load admin credentials: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	authService := auth.NewService(
		repository.NewPostgresAdminUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	account, err := authService.CreateAdmin(ctx, creds.Email, creds.Password)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin account ready",
		slog.String("admin_id", account.ID),
		slog.String("email", account.Email),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
