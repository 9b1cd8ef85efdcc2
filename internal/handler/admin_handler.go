package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tipflix/internal/admin"
	"github.com/hitoshi/tipflix/internal/model"
)

// AdminGateway は管理ハンドラーが必要とする書き込み窓口。admin.Gateway が実装する。
type AdminGateway interface {
	Dashboard() admin.Dashboard
	CreateMovie(ctx context.Context, in admin.MovieInput) (*model.Movie, error)
	UpdateMovie(ctx context.Context, id string, patch model.MoviePatch) error
	ToggleVisibility(ctx context.Context, id string) (bool, error)
	ToggleFeatured(ctx context.Context, id string) (bool, error)
	DeleteMovie(ctx context.Context, id string, confirmed bool) error
	CreateBanner(ctx context.Context, in admin.BannerInput) (*model.Banner, error)
	DeleteBanner(ctx context.Context, id string) error
	CreateMetadata(ctx context.Context, kind model.MetadataKind, name string) (*model.MetadataItem, error)
	DeleteMetadata(ctx context.Context, kind model.MetadataKind, id string) error
}

// AdminHandler は管理ダッシュボードAPIのHTTPハンドラー。
// 書き込みはデータストアにのみ行い、画面への反映は変更通知を待つ。
type AdminHandler struct {
	gateway AdminGateway
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(gateway AdminGateway) *AdminHandler {
	return &AdminHandler{gateway: gateway}
}

// movieUpdateRequest は映画の部分更新リクエスト。省略したフィールドは変更しない。
type movieUpdateRequest struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Year         *string   `json:"year"`
	Category     *string   `json:"category"`
	Genres       *[]string `json:"genres"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	Links        *struct {
		Server1 *string `json:"server1"`
		Server2 *string `json:"server2"`
		Server3 *string `json:"server3"`
	} `json:"links"`
	Downloads *struct {
		P480  *string `json:"p480"`
		P720  *string `json:"p720"`
		P1080 *string `json:"p1080"`
	} `json:"downloads"`
	Quality  *string `json:"quality"`
	Featured *bool   `json:"featured"`
	Visible  *bool   `json:"visible"`
}

func (req movieUpdateRequest) patch() model.MoviePatch {
	p := model.MoviePatch{
		Title:        req.Title,
		Description:  req.Description,
		Year:         req.Year,
		Category:     req.Category,
		Genres:       req.Genres,
		ThumbnailURL: req.ThumbnailURL,
		Quality:      req.Quality,
		Featured:     req.Featured,
		Visible:      req.Visible,
	}
	if req.Links != nil {
		p.Server1, p.Server2, p.Server3 = req.Links.Server1, req.Links.Server2, req.Links.Server3
	}
	if req.Downloads != nil {
		p.Download480, p.Download720, p.Download1080 = req.Downloads.P480, req.Downloads.P720, req.Downloads.P1080
	}
	return p
}

type metadataRequest struct {
	Name string `json:"name"`
}

// Dashboard は非公開を含む全データと統計、フォーム初期値を返す。
// GET /admin/api/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Dashboard())
}

// CreateMovie は映画を追加する。
// POST /admin/api/movies
func (h *AdminHandler) CreateMovie(w http.ResponseWriter, r *http.Request) {
	var in admin.MovieInput
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}
	movie, err := h.gateway.CreateMovie(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

// UpdateMovie は指定フィールドのみ映画を更新する。
// PATCH /admin/api/movies/{id}
func (h *AdminHandler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	var req movieUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.gateway.UpdateMovie(r.Context(), chi.URLParam(r, "id"), req.patch()); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleVisibility は公開状態を反転する。
// POST /admin/api/movies/{id}/visibility
func (h *AdminHandler) ToggleVisibility(w http.ResponseWriter, r *http.Request) {
	visible, err := h.gateway.ToggleVisibility(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"visible": visible})
}

// ToggleFeatured は注目フラグを反転する。
// POST /admin/api/movies/{id}/featured
func (h *AdminHandler) ToggleFeatured(w http.ResponseWriter, r *http.Request) {
	featured, err := h.gateway.ToggleFeatured(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"featured": featured})
}

// DeleteMovie は映画を削除する。?confirm=true がない場合は428を返し、何も削除しない。
// DELETE /admin/api/movies/{id}
func (h *AdminHandler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := h.gateway.DeleteMovie(r.Context(), chi.URLParam(r, "id"), confirmed); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBanner はバナーを追加する。
// POST /admin/api/banners
func (h *AdminHandler) CreateBanner(w http.ResponseWriter, r *http.Request) {
	var in admin.BannerInput
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}
	banner, err := h.gateway.CreateBanner(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, banner)
}

// DeleteBanner はバナーを削除する。
// DELETE /admin/api/banners/{id}
func (h *AdminHandler) DeleteBanner(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.DeleteBanner(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateMetadata はカテゴリまたはジャンルを追加するハンドラーを返す。
// POST /admin/api/categories, POST /admin/api/genres
func (h *AdminHandler) CreateMetadata(kind model.MetadataKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req metadataRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err)
			return
		}
		item, err := h.gateway.CreateMetadata(r.Context(), kind, req.Name)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

// DeleteMetadata はカテゴリまたはジャンルを削除するハンドラーを返す。
// 参照している映画は変更しない。
// DELETE /admin/api/categories/{id}, DELETE /admin/api/genres/{id}
func (h *AdminHandler) DeleteMetadata(kind model.MetadataKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.gateway.DeleteMetadata(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
