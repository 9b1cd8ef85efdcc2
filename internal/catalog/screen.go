package catalog

import (
	"fmt"

	"github.com/hitoshi/tipflix/internal/model"
)

// ServerOption は詳細画面のサーバー切り替えボタン。
type ServerOption struct {
	Server model.StreamServer `json:"server"`
	Label  string             `json:"label"`
	URL    string             `json:"url"`
	Active bool               `json:"active"`
}

// DownloadOption は詳細画面のダウンロードリンク。
type DownloadOption struct {
	Resolution string `json:"resolution"`
	Label      string `json:"label"`
	URL        string `json:"url"`
}

// MovieDetails は詳細画面に表示する映画情報。
type MovieDetails struct {
	model.Movie
	PlayerURL string           `json:"player_url"`
	Servers   []ServerOption   `json:"servers"`
	Download  []DownloadOption `json:"download_options"`
}

// NewMovieDetails は映画と再生サーバーから詳細画面の表示内容を組み立てる。
// 未設定のダウンロードリンクは一覧に含めない。
func NewMovieDetails(m model.Movie, active model.StreamServer) MovieDetails {
	if active == "" {
		active = model.Server1
	}
	servers := []model.StreamServer{model.Server1, model.Server2, model.Server3}
	options := make([]ServerOption, 0, len(servers))
	for i, s := range servers {
		options = append(options, ServerOption{
			Server: s,
			Label:  fmt.Sprintf("Server %d", i+1),
			URL:    m.Links.Get(s),
			Active: s == active,
		})
	}

	downloads := []DownloadOption{}
	add := func(resolution, label string, url *string) {
		if url != nil && *url != "" {
			downloads = append(downloads, DownloadOption{Resolution: resolution, Label: label, URL: *url})
		}
	}
	add("480p", "480p SD", m.Downloads.P480)
	add("720p", "720p HD", m.Downloads.P720)
	add("1080p", "1080p Ultra", m.Downloads.P1080)

	return MovieDetails{
		Movie:     m,
		PlayerURL: m.Links.Get(active),
		Servers:   options,
		Download:  downloads,
	}
}

// ViewState は閲覧者1人分の表示状態。
type ViewState struct {
	View        View
	Filters     Filters
	Selected    *model.Movie
	Server      model.StreamServer
	BannerIndex int
	ScrollToTop bool
}

// Screen は現在の表示状態をスナップショットに適用した結果。
type Screen struct {
	View         string         `json:"view"`
	Loading      bool           `json:"loading"`
	ScrollToTop  bool           `json:"scroll_to_top"`
	Filters      Filters        `json:"filters"`
	Banners      []model.Banner `json:"banners,omitempty"`
	ActiveBanner int            `json:"active_banner"`
	HasBanners   bool           `json:"has_banners"`
	Featured     []model.Movie  `json:"featured,omitempty"`
	Latest       []model.Movie  `json:"latest,omitempty"`
	Categories   []string       `json:"categories,omitempty"`
	Letters      []string       `json:"letters,omitempty"`
	Results      []model.Movie  `json:"results"`
	EmptyState   *EmptyState    `json:"empty_state,omitempty"`
	Selected     *MovieDetails  `json:"selected,omitempty"`
}

// Render はスナップショットと表示状態から画面を組み立てる。入力は変更しない。
func Render(snap Snapshot, st ViewState) Screen {
	screen := Screen{
		View:         st.View.String(),
		Loading:      snap.Loading,
		ScrollToTop:  st.ScrollToTop,
		Filters:      st.Filters,
		ActiveBanner: st.BannerIndex,
		HasBanners:   len(snap.Banners) > 0,
	}

	switch st.View {
	case ViewHome:
		screen.Banners = snap.Banners
		screen.Featured = Featured(snap.Movies)
		screen.Latest = Latest(snap.Movies)
	case ViewCategories:
		screen.Categories = CategoryOptions(snap.Categories)
		screen.Results = Apply(snap.Movies, st.Filters)
		screen.EmptyState = DescribeEmptyCategory(screen.Results)
	case ViewSearch:
		screen.Letters = Letters()
		screen.Results = Apply(snap.Movies, st.Filters)
		screen.EmptyState = DescribeEmpty(screen.Results, st.Filters)
	case ViewDetails:
		if st.Selected != nil {
			details := NewMovieDetails(*st.Selected, st.Server)
			screen.Selected = &details
		}
	}

	if screen.ActiveBanner >= len(snap.Banners) {
		screen.ActiveBanner = 0
	}
	return screen
}
