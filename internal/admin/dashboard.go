package admin

import (
	"strconv"

	"github.com/hitoshi/tipflix/internal/model"
)

// Stats はダッシュボードの集計値。
type Stats struct {
	TotalMovies    int `json:"total_movies"`
	FeaturedMovies int `json:"featured_movies"`
	VisibleMovies  int `json:"visible_movies"`
	Banners        int `json:"banners"`
}

// FormDefaults は映画作成フォームの初期値。
type FormDefaults struct {
	Year      string   `json:"year"`
	Quality   string   `json:"quality"`
	Category  string   `json:"category"`
	Visible   bool     `json:"visible"`
	Featured  bool     `json:"featured"`
	Qualities []string `json:"qualities"`
}

// Dashboard は管理ダッシュボードの表示内容。非公開の映画も含む。
type Dashboard struct {
	Loading    bool                 `json:"loading"`
	Movies     []model.Movie        `json:"movies"`
	Banners    []model.Banner       `json:"banners"`
	Categories []model.MetadataItem `json:"categories"`
	Genres     []model.MetadataItem `json:"genres"`
	Stats      Stats                `json:"stats"`
	Defaults   FormDefaults         `json:"defaults"`
}

// Dashboard は現在のスナップショットからダッシュボードを組み立てる。
func (g *Gateway) Dashboard() Dashboard {
	snap := g.snapshot.Snapshot()

	stats := Stats{TotalMovies: len(snap.Movies), Banners: len(snap.Banners)}
	for _, m := range snap.Movies {
		if m.Featured {
			stats.FeaturedMovies++
		}
		if m.Visible {
			stats.VisibleMovies++
		}
	}

	defaults := FormDefaults{
		Year:      strconv.Itoa(g.now().Year()),
		Quality:   model.QualityHD,
		Visible:   true,
		Qualities: model.Qualities,
	}
	if len(snap.Categories) > 0 {
		defaults.Category = snap.Categories[0].Name
	}

	return Dashboard{
		Loading:    snap.Loading,
		Movies:     snap.Movies,
		Banners:    snap.Banners,
		Categories: snap.Categories,
		Genres:     snap.Genres,
		Stats:      stats,
		Defaults:   defaults,
	}
}
