package handler

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/model"
)

// ContentSanitizer は配信前にテキストとHTMLを無害化する。security.Sanitizer が実装する。
type ContentSanitizer interface {
	PlainText(raw string) string
	MediaHTML(rawHTML string) string
}

// RSSConfig はフィードのチャネル情報。
type RSSConfig struct {
	Title   string
	BaseURL string
}

// RSSHandler は新着一覧をRSS 2.0で配信する。
// GET /feed/latest.xml
type RSSHandler struct {
	catalog   CatalogReader
	sanitizer ContentSanitizer
	config    RSSConfig
}

// NewRSSHandler はRSSHandlerを生成する。
func NewRSSHandler(reader CatalogReader, sanitizer ContentSanitizer, config RSSConfig) *RSSHandler {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &RSSHandler{catalog: reader, sanitizer: sanitizer, config: config}
}

// ServeHTTP は現在のスナップショットから新着フィードを組み立てる。
func (h *RSSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	latest := catalog.Latest(h.catalog.Snapshot().Movies)

	feed := &feeds.Feed{
		Title:       h.config.Title,
		Link:        &feeds.Link{Href: h.config.BaseURL + "/"},
		Description: "The latest movies added to the catalog.",
		Items:       make([]*feeds.Item, 0, len(latest)),
	}
	if len(latest) > 0 {
		feed.Updated = createdAt(latest[0].CreatedAt)
	}
	for _, m := range latest {
		feed.Items = append(feed.Items, h.item(m))
	}

	rss := (&feeds.Rss{Feed: feed}).RssFeed()
	for i, m := range latest {
		rss.Items[i].Category = h.sanitizer.PlainText(m.Category)
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := feeds.WriteXML(rss, w); err != nil {
		slog.Error("failed to encode rss feed", slog.String("error", err.Error()))
	}
}

func (h *RSSHandler) item(m model.Movie) *feeds.Item {
	title := h.sanitizer.PlainText(m.Title)
	if m.Year != "" {
		title = fmt.Sprintf("%s (%s)", title, h.sanitizer.PlainText(m.Year))
	}

	var body strings.Builder
	if m.ThumbnailURL != "" {
		fmt.Fprintf(&body, `<p><img src="%s" alt="%s"></p>`,
			html.EscapeString(m.ThumbnailURL), html.EscapeString(title))
	}
	fmt.Fprintf(&body, "<p>%s</p>", html.EscapeString(h.sanitizer.PlainText(m.Description)))

	return &feeds.Item{
		Title:       title,
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/movies/%s", h.config.BaseURL, m.ID)},
		Id:          m.ID,
		Description: h.sanitizer.MediaHTML(body.String()),
		Created:     createdAt(m.CreatedAt),
	}
}

// createdAt はミリ秒の作成時刻を変換する。未設定の場合はゼロ値を返し、日付要素を出力しない。
func createdAt(millis int64) time.Time {
	if millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}
