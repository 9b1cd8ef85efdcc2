package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	CurrentAdmin(ctx context.Context, sessionID string) (*model.AdminUser, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は管理者のサインイン・サインアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Login はメールアドレスとパスワードを検証し、セッションCookieを発行する。
// 失敗理由は区別せず 401 INVALID_CREDENTIALS を返す。
// POST /admin/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, model.NewInvalidCredentialsError())
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	w.WriteHeader(http.StatusNoContent)
}

// Logout はセッションを破棄し、Cookieをクリアする。
// POST /admin/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.SignOut(r.Context(), cookie.Value); err != nil {
			// サインアウトに失敗してもCookieはクリアする
			slog.Error("failed to sign out", slog.String("error", err.Error()))
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在サインインしている管理者を返す。
// GET /admin/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	admin, err := h.service.CurrentAdmin(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, adminResponse{ID: admin.ID, Email: admin.Email})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
