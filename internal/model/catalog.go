package model

import "time"

// コレクションパス。データストア上の各コレクションを識別し、変更通知のペイロードにも使う。
const (
	CollectionMovies     = "movies"
	CollectionBanners    = "banners"
	CollectionCategories = "metadata/categories"
	CollectionGenres     = "metadata/genres"
)

// Banner はトップページのプロモーションスライド。
// MovieIDは任意で、存在しない映画を指していてもよい。
type Banner struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"image_url"`
	Title     string    `json:"title"`
	MovieID   string    `json:"movie_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMovie はバナーが映画に紐づいているかを返す。
func (b Banner) HasMovie() bool {
	return b.MovieID != ""
}

// MetadataKind はメタデータコレクションの種類（カテゴリまたはジャンル）。
type MetadataKind string

const (
	MetadataCategory MetadataKind = "category"
	MetadataGenre    MetadataKind = "genre"
)

// Collection はメタデータ種別に対応するコレクションパスを返す。
func (k MetadataKind) Collection() string {
	if k == MetadataGenre {
		return CollectionGenres
	}
	return CollectionCategories
}

// MetadataItem は名前付きのカテゴリまたはジャンル。
// 名前の重複は許容し、表示側でも重複排除しない。
type MetadataItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Names はメタデータ一覧から名前だけを順序を保って取り出す。
func Names(items []MetadataItem) []string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return names
}
