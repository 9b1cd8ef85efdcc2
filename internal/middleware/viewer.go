package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/tipflix/internal/viewer"
)

// ViewerCookieName は閲覧者セッションIDを保持するCookieの名前。
const ViewerCookieName = "viewer_id"

// ViewerSessions は閲覧者セッションの取得・生成を行うインターフェース。
type ViewerSessions interface {
	GetOrCreate(id string) (*viewer.Session, bool)
}

// ViewerCookieConfig は閲覧者Cookieの属性。
type ViewerCookieConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewViewerMiddleware は viewer_id Cookie から閲覧者セッションを解決するミドルウェアを返す。
// 未知のIDや期限切れのIDには新しいセッションを割り当て、Cookieを書き直す。
func NewViewerMiddleware(sessions ViewerSessions, config ViewerCookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(ViewerCookieName); err == nil {
				id = cookie.Value
			}

			session, created := sessions.GetOrCreate(id)
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     ViewerCookieName,
					Value:    session.ID,
					Path:     "/",
					Domain:   config.CookieDomain,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(ContextWithViewer(r.Context(), session)))
		})
	}
}

// ViewerFromContext はリクエストコンテキストから閲覧者セッションを取得する。
func ViewerFromContext(ctx context.Context) (*viewer.Session, bool) {
	s, ok := ctx.Value(viewerContextKey).(*viewer.Session)
	return s, ok && s != nil
}

// ContextWithViewer はコンテキストに閲覧者セッションを注入する。
func ContextWithViewer(ctx context.Context, s *viewer.Session) context.Context {
	return context.WithValue(ctx, viewerContextKey, s)
}
