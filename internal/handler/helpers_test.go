package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/tipflix/internal/admin"
	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/model"
	"github.com/hitoshi/tipflix/internal/security"
	"github.com/hitoshi/tipflix/internal/viewer"
	"golang.org/x/time/rate"
)

const (
	testAdminSession = "admin-session"
	testCSRFToken    = "csrf-token-value"
)

// --- モック定義 ---

type fakeCatalog struct {
	mu   sync.Mutex
	snap catalog.Snapshot
}

func (f *fakeCatalog) Snapshot() catalog.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeCatalog) Subscribe(fn func(catalog.Snapshot)) func() { return func() {} }

type mockSessionFinder struct{}

func (mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if id != testAdminSession {
		return nil, nil
	}
	return &model.Session{ID: id, AdminID: "admin-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type mockAuthService struct {
	signInFn       func(ctx context.Context, email, password string) (*model.Session, error)
	signOutFn      func(ctx context.Context, sessionID string) error
	currentAdminFn func(ctx context.Context, sessionID string) (*model.AdminUser, error)
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentAdmin(ctx context.Context, sessionID string) (*model.AdminUser, error) {
	if m.currentAdminFn != nil {
		return m.currentAdminFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

type mockAdminGateway struct {
	dashboardFn        func() admin.Dashboard
	createMovieFn      func(ctx context.Context, in admin.MovieInput) (*model.Movie, error)
	updateMovieFn      func(ctx context.Context, id string, patch model.MoviePatch) error
	toggleVisibilityFn func(ctx context.Context, id string) (bool, error)
	toggleFeaturedFn   func(ctx context.Context, id string) (bool, error)
	deleteMovieFn      func(ctx context.Context, id string, confirmed bool) error
	createBannerFn     func(ctx context.Context, in admin.BannerInput) (*model.Banner, error)
	deleteBannerFn     func(ctx context.Context, id string) error
	createMetadataFn   func(ctx context.Context, kind model.MetadataKind, name string) (*model.MetadataItem, error)
	deleteMetadataFn   func(ctx context.Context, kind model.MetadataKind, id string) error
}

func (m *mockAdminGateway) Dashboard() admin.Dashboard {
	if m.dashboardFn != nil {
		return m.dashboardFn()
	}
	return admin.Dashboard{}
}

func (m *mockAdminGateway) CreateMovie(ctx context.Context, in admin.MovieInput) (*model.Movie, error) {
	if m.createMovieFn != nil {
		return m.createMovieFn(ctx, in)
	}
	return &model.Movie{ID: "new"}, nil
}

func (m *mockAdminGateway) UpdateMovie(ctx context.Context, id string, patch model.MoviePatch) error {
	if m.updateMovieFn != nil {
		return m.updateMovieFn(ctx, id, patch)
	}
	return nil
}

func (m *mockAdminGateway) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	if m.toggleVisibilityFn != nil {
		return m.toggleVisibilityFn(ctx, id)
	}
	return false, nil
}

func (m *mockAdminGateway) ToggleFeatured(ctx context.Context, id string) (bool, error) {
	if m.toggleFeaturedFn != nil {
		return m.toggleFeaturedFn(ctx, id)
	}
	return false, nil
}

func (m *mockAdminGateway) DeleteMovie(ctx context.Context, id string, confirmed bool) error {
	if m.deleteMovieFn != nil {
		return m.deleteMovieFn(ctx, id, confirmed)
	}
	return nil
}

func (m *mockAdminGateway) CreateBanner(ctx context.Context, in admin.BannerInput) (*model.Banner, error) {
	if m.createBannerFn != nil {
		return m.createBannerFn(ctx, in)
	}
	return &model.Banner{ID: "b-new"}, nil
}

func (m *mockAdminGateway) DeleteBanner(ctx context.Context, id string) error {
	if m.deleteBannerFn != nil {
		return m.deleteBannerFn(ctx, id)
	}
	return nil
}

func (m *mockAdminGateway) CreateMetadata(ctx context.Context, kind model.MetadataKind, name string) (*model.MetadataItem, error) {
	if m.createMetadataFn != nil {
		return m.createMetadataFn(ctx, kind, name)
	}
	return &model.MetadataItem{ID: "md-new", Name: name}, nil
}

func (m *mockAdminGateway) DeleteMetadata(ctx context.Context, kind model.MetadataKind, id string) error {
	if m.deleteMetadataFn != nil {
		return m.deleteMetadataFn(ctx, kind, id)
	}
	return nil
}

type mockHealthChecker struct {
	err error
}

func (m mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

// compile-time interface check
var (
	_ CatalogReader         = (*fakeCatalog)(nil)
	_ viewer.SnapshotSource = (*fakeCatalog)(nil)
	_ AuthServiceInterface  = (*mockAuthService)(nil)
	_ AdminGateway          = (*mockAdminGateway)(nil)
	_ AdminGateway          = (*admin.Gateway)(nil)
)

// --- テスト環境 ---

func strPtr(s string) *string { return &s }

func testSnapshot() catalog.Snapshot {
	return catalog.Snapshot{
		Movies: []model.Movie{
			{
				ID:           "m1",
				Title:        "Iron Horizon",
				Description:  "<b>Epic</b> space battle<script>alert(1)</script>",
				Year:         "2024",
				Category:     "Action",
				Genres:       []string{"Action", "Sci-Fi"},
				ThumbnailURL: "https://img.example.com/iron.jpg",
				Links:        model.StreamLinks{Server1: "https://s1/iron", Server2: "https://s2/iron", Server3: "https://s3/iron"},
				Downloads:    model.Downloads{P720: strPtr("https://dl/iron-720")},
				Quality:      "HD",
				Featured:     true,
				Visible:      true,
				CreatedAt:    3000,
			},
			{ID: "m2", Title: "Nebula Drift", Year: "2023", Category: "Sci-Fi", Description: "Drifting", Visible: true, CreatedAt: 2000},
			{ID: "m3", Title: "Hidden Gem", Category: "Action", Visible: false, CreatedAt: 1000},
		},
		Banners: []model.Banner{
			{ID: "b1", Title: "Iron", MovieID: "m1"},
			{ID: "b2", Title: "Promo"},
			{ID: "b3", Title: "Hidden", MovieID: "m3"},
		},
		Categories: []model.MetadataItem{{ID: "c1", Name: "Action"}, {ID: "c2", Name: "Sci-Fi"}},
		Genres:     []model.MetadataItem{{ID: "g1", Name: "Action"}},
	}
}

type testEnv struct {
	router   http.Handler
	catalog  *fakeCatalog
	viewers  *viewer.Registry
	auth     *mockAuthService
	gateway  *mockAdminGateway
	health   *mockHealthChecker
	tickers  chan *fakeTicker
	observer *liveCounter

	viewerCookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		catalog:  &fakeCatalog{snap: testSnapshot()},
		auth:     &mockAuthService{},
		gateway:  &mockAdminGateway{},
		health:   &mockHealthChecker{},
		tickers:  make(chan *fakeTicker, 8),
		observer: &liveCounter{},
	}

	vcfg := viewer.DefaultConfig()
	vcfg.RotatorOptions = []catalog.RotatorOption{
		catalog.WithTickerFactory(func(time.Duration) catalog.Ticker {
			tk := &fakeTicker{ch: make(chan time.Time)}
			env.tickers <- tk
			return tk
		}),
	}
	env.viewers = viewer.NewRegistry(env.catalog, vcfg, nil, nil)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		LoginRate:       rate.Limit(1.0 / 60.0),
		LoginBurst:      3,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	live := DefaultLiveConfig("http://localhost:3000")
	live.PingInterval = 0

	env.router = NewRouter(&RouterDeps{
		HealthChecker:     env.health,
		MetricsHandler:    http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		CORSAllowedOrigin: "http://localhost:3000",
		Catalog:           env.catalog,
		Viewers:           env.viewers,
		Live:              live,
		LiveObserver:      env.observer,
		Sanitizer:         security.NewSanitizer(),
		RSS:               RSSConfig{Title: "Tipflix Latest Releases", BaseURL: "https://tipflix.example.com/"},
		SessionFinder:     mockSessionFinder{},
		RateLimiter:       rl,
		AuthService:       env.auth,
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 3600},
		Gateway:           env.gateway,
	})
	return env
}

// viewerDo は閲覧者Cookieを引き継ぎながらリクエストを送る。
func (e *testEnv) viewerDo(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if e.viewerCookie != nil {
		req.AddCookie(e.viewerCookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.ViewerCookieName {
			e.viewerCookie = c
		}
	}
	return w
}

// adminDo は管理者セッションとCSRFトークン付きでリクエストを送る。
func (e *testEnv) adminDo(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: testAdminSession})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeScreen(t *testing.T, w *httptest.ResponseRecorder) catalog.Screen {
	t.Helper()
	var s catalog.Screen
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("failed to decode screen: %v (body=%s)", err, w.Body.String())
	}
	return s
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	return body
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, want, w.Body.String())
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assertStatus(t, w, status)
	if got := decodeError(t, w).Code; got != code {
		t.Errorf("code = %q, want %q", got, code)
	}
}
