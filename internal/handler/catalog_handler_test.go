package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/model"
)

func TestCatalogHandler_ScreenIssuesViewerCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.viewerDo(t, http.MethodGet, "/api/catalog/screen", "")
	assertStatus(t, w, http.StatusOK)
	if env.viewerCookie == nil {
		t.Fatal("viewer cookie should be issued")
	}
	if !env.viewerCookie.HttpOnly {
		t.Error("viewer cookie should be HttpOnly")
	}

	screen := decodeScreen(t, w)
	if screen.View != "home" {
		t.Errorf("view = %q, want home", screen.View)
	}
	if len(screen.Featured) != 1 || screen.Featured[0].ID != "m1" {
		t.Errorf("featured = %+v, want [m1]", screen.Featured)
	}
	if len(screen.Latest) != 2 {
		t.Errorf("latest = %d movies, want 2 visible", len(screen.Latest))
	}
	if len(screen.Banners) != 3 {
		t.Errorf("banners = %d, want 3", len(screen.Banners))
	}

	// 同じCookieで再アクセスしても新しいセッションは発行されない
	before := env.viewerCookie.Value
	w = env.viewerDo(t, http.MethodGet, "/api/catalog/screen", "")
	assertStatus(t, w, http.StatusOK)
	if env.viewerCookie.Value != before {
		t.Error("viewer session should be reused")
	}
	if got := env.viewers.Count(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestCatalogHandler_Navigate(t *testing.T) {
	env := newTestEnv(t)

	w := env.viewerDo(t, http.MethodPost, "/api/catalog/navigate", `{"view":"categories"}`)
	assertStatus(t, w, http.StatusOK)
	screen := decodeScreen(t, w)
	if screen.View != "categories" {
		t.Fatalf("view = %q, want categories", screen.View)
	}
	want := []string{catalog.AllOption, "Action", "Sci-Fi"}
	if len(screen.Categories) != len(want) {
		t.Fatalf("categories = %v, want %v", screen.Categories, want)
	}
	for i := range want {
		if screen.Categories[i] != want[i] {
			t.Errorf("categories[%d] = %q, want %q", i, screen.Categories[i], want[i])
		}
	}
	if len(screen.Results) != 2 {
		t.Errorf("results = %d, want 2", len(screen.Results))
	}

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/navigate", `{"view":"details"}`)
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidView)

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/navigate", `{"view":`)
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidRequest)

	// 失敗した操作は画面を変えない
	w = env.viewerDo(t, http.MethodGet, "/api/catalog/screen", "")
	if got := decodeScreen(t, w).View; got != "categories" {
		t.Errorf("view after failures = %q, want categories", got)
	}
}

func TestCatalogHandler_SelectMovieAndBack(t *testing.T) {
	env := newTestEnv(t)

	w := env.viewerDo(t, http.MethodPost, "/api/catalog/movies/m3/select", "")
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeMovieNotFound)

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/movies/m1/select", "")
	assertStatus(t, w, http.StatusOK)
	screen := decodeScreen(t, w)
	if screen.View != "details" || screen.Selected == nil {
		t.Fatalf("screen = %+v, want details", screen)
	}
	if !screen.ScrollToTop {
		t.Error("selecting a movie should request scroll to top")
	}
	if screen.Selected.PlayerURL != "https://s1/iron" {
		t.Errorf("player = %q, want server1 url", screen.Selected.PlayerURL)
	}
	if len(screen.Selected.Download) != 1 || screen.Selected.Download[0].Resolution != "720p" {
		t.Errorf("downloads = %+v, want only 720p", screen.Selected.Download)
	}

	// スクロール要求は一度だけ
	w = env.viewerDo(t, http.MethodGet, "/api/catalog/screen", "")
	if decodeScreen(t, w).ScrollToTop {
		t.Error("scroll request should be consumed")
	}

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/server", `{"server":"server2"}`)
	assertStatus(t, w, http.StatusOK)
	if got := decodeScreen(t, w).Selected.PlayerURL; got != "https://s2/iron" {
		t.Errorf("player = %q, want server2 url", got)
	}

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/server", `{"server":"server4"}`)
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/back", "")
	assertStatus(t, w, http.StatusOK)
	if got := decodeScreen(t, w).View; got != "home" {
		t.Errorf("view after back = %q, want home", got)
	}

	// Home では Back は何もしない
	w = env.viewerDo(t, http.MethodPost, "/api/catalog/back", "")
	assertStatus(t, w, http.StatusOK)
	if got := decodeScreen(t, w).View; got != "home" {
		t.Errorf("view after second back = %q, want home", got)
	}
}

func TestCatalogHandler_HomeFromSearch(t *testing.T) {
	env := newTestEnv(t)

	env.viewerDo(t, http.MethodPost, "/api/catalog/navigate", `{"view":"search"}`)
	w := env.viewerDo(t, http.MethodPost, "/api/catalog/home", "")
	assertStatus(t, w, http.StatusOK)
	screen := decodeScreen(t, w)
	if screen.View != "home" || !screen.ScrollToTop {
		t.Errorf("screen = view %q scroll %v, want home with scroll", screen.View, screen.ScrollToTop)
	}
}

func TestCatalogHandler_UpdateFiltersPartially(t *testing.T) {
	env := newTestEnv(t)

	env.viewerDo(t, http.MethodPost, "/api/catalog/navigate", `{"view":"search"}`)

	w := env.viewerDo(t, http.MethodPut, "/api/catalog/filters", `{"search":"drift"}`)
	assertStatus(t, w, http.StatusOK)
	screen := decodeScreen(t, w)
	if len(screen.Results) != 1 || screen.Results[0].ID != "m2" {
		t.Fatalf("results = %+v, want [m2]", screen.Results)
	}

	// 頭文字だけを更新し、検索語は保持される
	w = env.viewerDo(t, http.MethodPut, "/api/catalog/filters", `{"letter":"i"}`)
	assertStatus(t, w, http.StatusOK)
	screen = decodeScreen(t, w)
	if screen.Filters.Search != "drift" || screen.Filters.Letter != "I" {
		t.Errorf("filters = %+v, want search kept and letter I", screen.Filters)
	}
	if len(screen.Results) != 0 {
		t.Errorf("results = %+v, want empty", screen.Results)
	}
	if screen.EmptyState == nil || screen.EmptyState.Kind != catalog.EmptyNoSearchMatches {
		t.Errorf("empty state = %+v, want no_search_matches", screen.EmptyState)
	}
	if screen.View != "search" {
		t.Errorf("view = %q, updating filters must not navigate", screen.View)
	}

	w = env.viewerDo(t, http.MethodPut, "/api/catalog/filters", `{"search":"","letter":"all","category":"Sci-Fi"}`)
	screen = decodeScreen(t, w)
	if screen.Filters.Letter != catalog.AllOption || screen.Filters.Category != "Sci-Fi" {
		t.Errorf("filters = %+v", screen.Filters)
	}
	if len(screen.Results) != 1 || screen.Results[0].ID != "m2" {
		t.Errorf("results = %+v, want [m2]", screen.Results)
	}
}

func TestCatalogHandler_Banners(t *testing.T) {
	env := newTestEnv(t)

	w := env.viewerDo(t, http.MethodPost, "/api/catalog/banners/select", `{}`)
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/banners/select", `{"index":5}`)
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/banners/select", `{"index":2}`)
	assertStatus(t, w, http.StatusOK)
	if got := decodeScreen(t, w).ActiveBanner; got != 2 {
		t.Errorf("active banner = %d, want 2", got)
	}

	tests := []struct {
		name   string
		index  string
		opened bool
		view   string
	}{
		{"unlinked banner does nothing", "1", false, "home"},
		{"hidden movie does nothing", "2", false, "home"},
		{"linked banner opens details", "0", true, "details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.viewerDo(t, http.MethodPost, "/api/catalog/banners/"+tt.index+"/open", "")
			assertStatus(t, w, http.StatusOK)
			var resp bannerOpenResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Opened != tt.opened || resp.Screen.View != tt.view {
				t.Errorf("opened = %v view = %q, want %v %q", resp.Opened, resp.Screen.View, tt.opened, tt.view)
			}
		})
	}

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/banners/first/open", "")
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)

	w = env.viewerDo(t, http.MethodPost, "/api/catalog/banners/9/open", "")
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)
}

func TestCatalogHandler_ListMovies(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		query     string
		wantIDs   []string
		wantEmpty catalog.EmptyStateKind
	}{
		{"no filters lists visible movies", "", []string{"m1", "m2"}, ""},
		{"lowercase letter", "?letter=n", []string{"m2"}, ""},
		{"category", "?category=Action", []string{"m1"}, ""},
		{"hidden never listed", "?search=gem", nil, catalog.EmptyNoSearchMatches},
		{"empty category", "?category=Drama", nil, catalog.EmptyNoMoviesInCategory},
		{"description matches", "?search=EPIC", []string{"m1"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/catalog/movies"+tt.query, nil)
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assertStatus(t, w, http.StatusOK)

			var resp movieListResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Results) != len(tt.wantIDs) {
				t.Fatalf("results = %+v, want %v", resp.Results, tt.wantIDs)
			}
			for i, id := range tt.wantIDs {
				if resp.Results[i].ID != id {
					t.Errorf("results[%d] = %s, want %s", i, resp.Results[i].ID, id)
				}
			}
			if tt.wantEmpty == "" {
				if resp.EmptyState != nil {
					t.Errorf("empty state = %+v, want nil", resp.EmptyState)
				}
			} else if resp.EmptyState == nil || resp.EmptyState.Kind != tt.wantEmpty {
				t.Errorf("empty state = %+v, want %s", resp.EmptyState, tt.wantEmpty)
			}
		})
	}
}

func TestCatalogHandler_ListMoviesWhileLoading(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.mu.Lock()
	env.catalog.snap = catalog.Snapshot{Loading: true}
	env.catalog.mu.Unlock()

	w := env.viewerDo(t, http.MethodGet, "/api/catalog/movies", "")
	assertStatus(t, w, http.StatusOK)
	var resp movieListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Loading {
		t.Error("loading should be reported")
	}
	if resp.Results == nil {
		t.Error("results should encode as an empty list")
	}
}

func TestCatalogHandler_GetMovie(t *testing.T) {
	env := newTestEnv(t)

	w := env.viewerDo(t, http.MethodGet, "/api/catalog/movies/m3", "")
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeMovieNotFound)

	w = env.viewerDo(t, http.MethodGet, "/api/catalog/movies/missing", "")
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeMovieNotFound)

	w = env.viewerDo(t, http.MethodGet, "/api/catalog/movies/m1?server=server3", "")
	assertStatus(t, w, http.StatusOK)
	var details catalog.MovieDetails
	if err := json.NewDecoder(w.Body).Decode(&details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.PlayerURL != "https://s3/iron" {
		t.Errorf("player = %q, want server3", details.PlayerURL)
	}
	if len(details.Servers) != 3 || !details.Servers[2].Active {
		t.Errorf("servers = %+v, want server3 active", details.Servers)
	}

	w = env.viewerDo(t, http.MethodGet, "/api/catalog/movies/m1?server=ftp", "")
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)

	// GET は閲覧者の画面を変えない
	w = env.viewerDo(t, http.MethodGet, "/api/catalog/screen", "")
	if got := decodeScreen(t, w).View; got != "home" {
		t.Errorf("view = %q, want home", got)
	}
}

func TestCatalogHandler_Categories(t *testing.T) {
	env := newTestEnv(t)

	w := env.viewerDo(t, http.MethodGet, "/api/catalog/categories", "")
	assertStatus(t, w, http.StatusOK)
	var resp struct {
		Loading    bool     `json:"loading"`
		Categories []string `json:"categories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Categories) != 2 || resp.Categories[0] != "Action" || resp.Categories[1] != "Sci-Fi" {
		t.Errorf("categories = %v", resp.Categories)
	}
}

func TestSessionFrom_MissingViewer(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalog{})
	w := httptest.NewRecorder()
	h.Screen(w, httptest.NewRequest(http.MethodGet, "/api/catalog/screen", nil))
	assertErrorCode(t, w, http.StatusInternalServerError, "INTERNAL_ERROR")
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewValidationError("title", "is required"), http.StatusBadRequest},
		{model.NewInvalidRequestError(), http.StatusBadRequest},
		{model.NewInvalidViewError("details"), http.StatusBadRequest},
		{model.NewMovieNotFoundError("x"), http.StatusNotFound},
		{model.NewBannerNotFoundError("x"), http.StatusNotFound},
		{model.NewMetadataNotFoundError(model.MetadataGenre, "x"), http.StatusNotFound},
		{model.NewConfirmationRequiredError(), http.StatusPreconditionRequired},
		{model.NewCSRFFailedError(), http.StatusForbidden},
		{model.NewRateLimitExceededError(), http.StatusTooManyRequests},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}
