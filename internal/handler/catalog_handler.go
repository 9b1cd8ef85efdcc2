package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/model"
	"github.com/hitoshi/tipflix/internal/viewer"
)

// CatalogReader は現在のカタログスナップショットを返す。catalog.Store が実装する。
type CatalogReader interface {
	Snapshot() catalog.Snapshot
}

// CatalogHandler は公開サイトのカタログAPIのHTTPハンドラー。
// 画面状態を伴う操作は viewer_id Cookie で解決された閲覧者セッションに対して行う。
type CatalogHandler struct {
	catalog CatalogReader
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(reader CatalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: reader}
}

type navigateRequest struct {
	View string `json:"view"`
}

type serverRequest struct {
	Server string `json:"server"`
}

type bannerSelectRequest struct {
	Index *int `json:"index"`
}

type movieListResponse struct {
	Loading    bool                `json:"loading"`
	Results    []model.Movie       `json:"results"`
	EmptyState *catalog.EmptyState `json:"empty_state,omitempty"`
}

type bannerOpenResponse struct {
	Opened bool           `json:"opened"`
	Screen catalog.Screen `json:"screen"`
}

// Screen は閲覧者の現在の画面を返す。
// GET /api/catalog/screen
func (h *CatalogHandler) Screen(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Screen())
}

// Navigate はグローバルナビゲーションで画面を切り替える。
// POST /api/catalog/navigate
func (h *CatalogHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	screen, err := s.Navigate(req.View)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screen)
}

// Home はロゴ押下でHomeへ戻る。
// POST /api/catalog/home
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ActivateLogo())
}

// SelectMovie は映画を選択して詳細画面へ遷移する。
// POST /api/catalog/movies/{id}/select
func (h *CatalogHandler) SelectMovie(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	screen, err := s.SelectMovie(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screen)
}

// Back は詳細画面から戻る。
// POST /api/catalog/back
func (h *CatalogHandler) Back(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Back())
}

// UpdateFilters は指定された項目のみフィルタを更新する。
// PUT /api/catalog/filters
func (h *CatalogHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req viewer.FilterUpdate
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.UpdateFilters(req))
}

// SelectServer は詳細画面の再生サーバーを切り替える。
// POST /api/catalog/server
func (h *CatalogHandler) SelectServer(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req serverRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	screen, err := s.SelectServer(req.Server)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screen)
}

// SelectBanner はインジケーターでスライドを選択する。自動送りのタイマーはリセットしない。
// POST /api/catalog/banners/select
func (h *CatalogHandler) SelectBanner(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req bannerSelectRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.Index == nil {
		handleServiceError(w, model.NewValidationError("index", "is required"))
		return
	}
	screen, err := s.SelectBanner(*req.Index)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screen)
}

// OpenBanner はスライド本体のクリックを処理する。
// 紐づく公開中の映画があれば詳細画面へ遷移し、なければ画面を変えずに返す。
// POST /api/catalog/banners/{index}/open
func (h *CatalogHandler) OpenBanner(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		handleServiceError(w, model.NewValidationError("index", "must be an integer"))
		return
	}
	screen, opened, err := s.OpenBanner(index)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bannerOpenResponse{Opened: opened, Screen: screen})
}

// ListMovies はクエリパラメータのフィルタで公開中の映画を検索する。閲覧者の状態は変更しない。
// GET /api/catalog/movies?search=&category=&letter=
func (h *CatalogHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var u viewer.FilterUpdate
	for key, dst := range map[string]**string{"search": &u.Search, "category": &u.Category, "letter": &u.Letter} {
		if q.Has(key) {
			v := q.Get(key)
			*dst = &v
		}
	}
	f := u.ApplyTo(catalog.DefaultFilters())

	snap := h.catalog.Snapshot()
	results := catalog.Apply(snap.Movies, f)
	writeJSON(w, http.StatusOK, movieListResponse{
		Loading:    snap.Loading,
		Results:    results,
		EmptyState: catalog.DescribeEmpty(results, f),
	})
}

// GetMovie は公開中の映画の詳細を返す。?server= で再生サーバーを指定できる。
// GET /api/catalog/movies/{id}
func (h *CatalogHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := h.catalog.Snapshot().MovieByID(id)
	if !ok || !m.Visible {
		handleServiceError(w, model.NewMovieNotFoundError(id))
		return
	}

	server := model.Server1
	if raw := r.URL.Query().Get("server"); raw != "" {
		parsed, ok := model.ParseStreamServer(raw)
		if !ok {
			handleServiceError(w, model.NewValidationError("server", "must be server1, server2 or server3"))
			return
		}
		server = parsed
	}
	writeJSON(w, http.StatusOK, catalog.NewMovieDetails(m, server))
}

// Categories はカテゴリ名の一覧を登録順に返す。
// GET /api/catalog/categories
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Snapshot()
	names := make([]string, 0, len(snap.Categories))
	for _, c := range snap.Categories {
		names = append(names, c.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loading":    snap.Loading,
		"categories": names,
	})
}

// sessionFrom はコンテキストから閲覧者セッションを取り出す。
// ViewerMiddleware の外で呼ばれた場合は500を書き込む。
func sessionFrom(w http.ResponseWriter, r *http.Request) (*viewer.Session, bool) {
	s, ok := middleware.ViewerFromContext(r.Context())
	if !ok {
		handleServiceError(w, errViewerMissing)
		return nil, false
	}
	return s, true
}
