package catalog

import (
	"strings"

	"github.com/hitoshi/tipflix/internal/model"
)

// AllOption はカテゴリ・頭文字フィルタで「すべて」を表す値。
const AllOption = "All"

// LatestLimit はホーム画面の新着一覧に表示する最大件数。
const LatestLimit = 20

// Filters は閲覧者ごとのフィルタ状態。データストアには保存しない。
type Filters struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Letter   string `json:"letter"`
}

// DefaultFilters は初期状態のフィルタを返す。
func DefaultFilters() Filters {
	return Filters{Category: AllOption, Letter: AllOption}
}

func (f Filters) category() string {
	if f.Category == "" {
		return AllOption
	}
	return f.Category
}

func (f Filters) letter() string {
	if f.Letter == "" {
		return AllOption
	}
	return f.Letter
}

// Matches は映画がフィルタ条件をすべて満たすかを返す。
// 非公開の映画は他の条件に関わらず常に除外される。
func Matches(m model.Movie, f Filters) bool {
	if !m.Visible {
		return false
	}

	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(m.Title), q) &&
			!strings.Contains(strings.ToLower(m.Description), q) {
			return false
		}
	}

	if c := f.category(); c != AllOption && m.Category != c {
		return false
	}

	if l := f.letter(); l != AllOption && !strings.HasPrefix(strings.ToUpper(m.Title), l) {
		return false
	}

	return true
}

// Apply はフィルタ条件を満たす映画を入力順のまま返す。
func Apply(movies []model.Movie, f Filters) []model.Movie {
	out := []model.Movie{}
	for _, m := range movies {
		if Matches(m, f) {
			out = append(out, m)
		}
	}
	return out
}

// Featured は公開中かつ注目作品の映画を返す。検索・カテゴリ・頭文字フィルタは適用しない。
func Featured(movies []model.Movie) []model.Movie {
	out := []model.Movie{}
	for _, m := range movies {
		if m.Visible && m.Featured {
			out = append(out, m)
		}
	}
	return out
}

// Latest は公開中の映画の先頭LatestLimit件を返す。
func Latest(movies []model.Movie) []model.Movie {
	out := []model.Movie{}
	for _, m := range movies {
		if !m.Visible {
			continue
		}
		out = append(out, m)
		if len(out) == LatestLimit {
			break
		}
	}
	return out
}

// Letters は頭文字フィルタの選択肢（All と A-Z）を返す。
func Letters() []string {
	letters := make([]string, 0, 27)
	letters = append(letters, AllOption)
	for c := 'A'; c <= 'Z'; c++ {
		letters = append(letters, string(c))
	}
	return letters
}

// CategoryOptions はカテゴリフィルタの選択肢を返す。先頭はAllで、名前の重複は残す。
func CategoryOptions(categories []model.MetadataItem) []string {
	return append([]string{AllOption}, model.Names(categories)...)
}

// EmptyStateKind は絞り込み結果が空のときの表示種別。
type EmptyStateKind string

const (
	EmptyNoSearchMatches    EmptyStateKind = "no_search_matches"
	EmptyNoMoviesInCategory EmptyStateKind = "no_movies_in_category"
)

// EmptyState は絞り込み結果が空のときに表示するメッセージ。
type EmptyState struct {
	Kind    EmptyStateKind `json:"kind"`
	Message string         `json:"message"`
}

// DescribeEmpty は結果が空の場合の表示内容を返す。結果がある場合はnilを返す。
// 検索語がある場合は検索不一致、ない場合はカテゴリ内に映画がない状態として扱う。
func DescribeEmpty(results []model.Movie, f Filters) *EmptyState {
	if len(results) > 0 {
		return nil
	}
	if f.Search != "" {
		return &EmptyState{
			Kind:    EmptyNoSearchMatches,
			Message: `No matches for "` + f.Search + `"`,
		}
	}
	return DescribeEmptyCategory(results)
}

// DescribeEmptyCategory はカテゴリ画面用の表示内容を返す。検索語の有無にかかわらずカテゴリ内に映画がない状態として扱う。
func DescribeEmptyCategory(results []model.Movie) *EmptyState {
	if len(results) > 0 {
		return nil
	}
	return &EmptyState{
		Kind:    EmptyNoMoviesInCategory,
		Message: "No movies found in this category.",
	}
}
