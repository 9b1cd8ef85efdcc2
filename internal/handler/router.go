package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 共通
	HealthChecker     HealthChecker
	MetricsHandler    http.Handler
	StatusRecorder    middleware.StatusRecorder
	CORSAllowedOrigin string

	// 公開サイト
	Catalog      CatalogReader
	Viewers      middleware.ViewerSessions
	ViewerCookie middleware.ViewerCookieConfig
	Live         LiveConfig
	LiveObserver LiveObserver
	Sanitizer    ContentSanitizer
	RSS          RSSConfig

	// 管理ダッシュボード
	SessionFinder middleware.SessionFinder
	RateLimiter   *middleware.RateLimiter
	CSRF          middleware.CSRFConfig
	AuthService   AuthServiceInterface
	AuthConfig    AuthHandlerConfig
	Gateway       AdminGateway
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 共通ミドルウェアの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// 公開API（/api/catalog, /ws/catalog）は Viewer、管理API（/admin/api）は
// Session → RateLimit(General) → CSRF を通過する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	catalogHandler := NewCatalogHandler(deps.Catalog)
	liveHandler := NewLiveHandler(deps.Live, deps.LiveObserver, logger)
	rssHandler := NewRSSHandler(deps.Catalog, deps.Sanitizer, deps.RSS)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.Gateway)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/feed/latest.xml", rssHandler)

	// 公開サイト（閲覧者セッション単位）
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewViewerMiddleware(deps.Viewers, deps.ViewerCookie))

		r.Route("/api/catalog", func(r chi.Router) {
			r.Get("/screen", catalogHandler.Screen)
			r.Post("/navigate", catalogHandler.Navigate)
			r.Post("/home", catalogHandler.Home)
			r.Post("/back", catalogHandler.Back)
			r.Put("/filters", catalogHandler.UpdateFilters)
			r.Post("/server", catalogHandler.SelectServer)
			r.Post("/banners/select", catalogHandler.SelectBanner)
			r.Post("/banners/{index}/open", catalogHandler.OpenBanner)
			r.Get("/movies", catalogHandler.ListMovies)
			r.Get("/movies/{id}", catalogHandler.GetMovie)
			r.Post("/movies/{id}/select", catalogHandler.SelectMovie)
			r.Get("/categories", catalogHandler.Categories)
		})

		r.Method(http.MethodGet, "/ws/catalog", liveHandler)
	})

	// --- 管理ダッシュボード ---

	r.Route("/admin", func(r chi.Router) {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
			r.With(middleware.NewCSRFMiddleware(deps.CSRF)).Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// ミドルウェアスタック: Session → RateLimit(General) → CSRF
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

			r.Get("/dashboard", adminHandler.Dashboard)

			r.Route("/movies", func(r chi.Router) {
				r.Post("/", adminHandler.CreateMovie)
				r.Route("/{id}", func(r chi.Router) {
					r.Patch("/", adminHandler.UpdateMovie)
					r.Delete("/", adminHandler.DeleteMovie)
					r.Post("/visibility", adminHandler.ToggleVisibility)
					r.Post("/featured", adminHandler.ToggleFeatured)
				})
			})

			r.Post("/banners", adminHandler.CreateBanner)
			r.Delete("/banners/{id}", adminHandler.DeleteBanner)

			r.Post("/categories", adminHandler.CreateMetadata(model.MetadataCategory))
			r.Delete("/categories/{id}", adminHandler.DeleteMetadata(model.MetadataCategory))
			r.Post("/genres", adminHandler.CreateMetadata(model.MetadataGenre))
			r.Delete("/genres/{id}", adminHandler.DeleteMetadata(model.MetadataGenre))
		})
	})

	return r
}
