package model

import "strings"

// 品質ラベルの既定値。オープンな集合であり、これ以外の値も保存できる。
const (
	QualityHD    = "HD"
	Quality720p  = "720p"
	Quality1080p = "1080p"
	QualityCAM   = "CAM"
)

// Qualities は管理画面の選択肢として提示する品質ラベルの一覧。
var Qualities = []string{QualityHD, Quality720p, Quality1080p, QualityCAM}

// StreamServer はストリーミングリンクのスロット名を表す。
type StreamServer string

const (
	Server1 StreamServer = "server1"
	Server2 StreamServer = "server2"
	Server3 StreamServer = "server3"
)

// ParseStreamServer は文字列をStreamServerに変換する。
func ParseStreamServer(s string) (StreamServer, bool) {
	switch StreamServer(strings.ToLower(strings.TrimSpace(s))) {
	case Server1:
		return Server1, true
	case Server2:
		return Server2, true
	case Server3:
		return Server3, true
	default:
		return "", false
	}
}

// StreamLinks は3つのストリーミングサーバーのURLを保持する。
// 空文字列はリンク未設定を表す。
type StreamLinks struct {
	Server1 string `json:"server1"`
	Server2 string `json:"server2"`
	Server3 string `json:"server3"`
}

// Get は指定サーバーのURLを返す。
func (l StreamLinks) Get(server StreamServer) string {
	switch server {
	case Server2:
		return l.Server2
	case Server3:
		return l.Server3
	default:
		return l.Server1
	}
}

// Downloads は解像度ごとのダウンロードリンク。各フィールドは独立して省略可能。
type Downloads struct {
	P480  *string `json:"p480,omitempty"`
	P720  *string `json:"p720,omitempty"`
	P1080 *string `json:"p1080,omitempty"`
}

// Movie はカタログの映画エントリを表す。
// Yearはテキストとして扱い、数値としての順序付けは行わない。
// Category・Genresはメタデータ名への参照だが、削除済みの名前を指していてもよい。
type Movie struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Year         string      `json:"year"`
	Category     string      `json:"category"`
	Genres       []string    `json:"genres"`
	ThumbnailURL string      `json:"thumbnail_url"`
	Links        StreamLinks `json:"links"`
	Downloads    Downloads   `json:"downloads"`
	Quality      string      `json:"quality"`
	Featured     bool        `json:"featured"`
	Visible      bool        `json:"visible"`
	CreatedAt    int64       `json:"created_at"` // エポックからのミリ秒
}

// MoviePatch は映画の部分更新を表す。nilのフィールドは変更しない。
// ダウンロードリンクに空文字列を指定するとリンクを削除する。
type MoviePatch struct {
	Title        *string
	Description  *string
	Year         *string
	Category     *string
	Genres       *[]string
	ThumbnailURL *string
	Server1      *string
	Server2      *string
	Server3      *string
	Download480  *string
	Download720  *string
	Download1080 *string
	Quality      *string
	Featured     *bool
	Visible      *bool
}

// IsEmpty は変更対象のフィールドが1つもない場合にtrueを返す。
func (p MoviePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Year == nil && p.Category == nil &&
		p.Genres == nil && p.ThumbnailURL == nil &&
		p.Server1 == nil && p.Server2 == nil && p.Server3 == nil &&
		p.Download480 == nil && p.Download720 == nil && p.Download1080 == nil &&
		p.Quality == nil && p.Featured == nil && p.Visible == nil
}
