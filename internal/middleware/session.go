// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tipflix/internal/model"
)

// SessionCookieName は管理者セッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

const (
	adminIDContextKey     = contextKey("admin_id")
	adminIDSinkContextKey = contextKey("admin_id_sink")
	viewerContextKey      = contextKey("viewer")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware は管理者セッションCookieを検証するミドルウェアを返す。
// 有効なセッションの管理者IDをコンテキストに注入し、それ以外は401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithAdminID(r.Context(), session.AdminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminIDFromContext はリクエストコンテキストから管理者IDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AdminIDFromContext(ctx context.Context) (string, error) {
	adminID, ok := ctx.Value(adminIDContextKey).(string)
	if !ok || adminID == "" {
		return "", fmt.Errorf("admin ID not found in context")
	}
	return adminID, nil
}

// ContextWithAdminID はコンテキストに管理者IDを注入する。
// 外側のロギングミドルウェアが待ち受けている場合はそちらにも通知する。
func ContextWithAdminID(ctx context.Context, adminID string) context.Context {
	if sink, ok := ctx.Value(adminIDSinkContextKey).(*string); ok {
		*sink = adminID
	}
	return context.WithValue(ctx, adminIDContextKey, adminID)
}

func withAdminIDSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, adminIDSinkContextKey, sink)
}
