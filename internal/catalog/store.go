// Package catalog はカタログのスナップショット保持、フィルタ、画面遷移、バナーローテーションを提供する。
package catalog

import (
	"sort"
	"sync"

	"github.com/hitoshi/tipflix/internal/model"
)

// Subscribable はコレクション全体のスナップショットを配信する購読元。
// changefeed.Streamがこれを満たす。
type Subscribable[T any] interface {
	Subscribe(fn func([]T)) (unsubscribe func())
}

// Sources はStoreが購読するストリームの組。
// nilのストリームは購読せず、ロード完了の判定にも含めない。
type Sources struct {
	Movies     Subscribable[model.Movie]
	Banners    Subscribable[model.Banner]
	Categories Subscribable[model.MetadataItem]
	Genres     Subscribable[model.MetadataItem]
}

// SizeRecorder はコレクションの件数を計測するフック。
type SizeRecorder interface {
	RecordSnapshotSize(collection string, size int)
}

// Snapshot はカタログのある時点の内容。スライスは読み取り専用として扱うこと。
type Snapshot struct {
	Movies     []model.Movie
	Banners    []model.Banner
	Categories []model.MetadataItem
	Genres     []model.MetadataItem
	// Loading は必須ストリームのいずれかが未着の間trueとなる。一度falseになると戻らない。
	Loading bool
}

// MovieByID は指定IDの映画を返す。
func (s Snapshot) MovieByID(id string) (model.Movie, bool) {
	for _, m := range s.Movies {
		if m.ID == id {
			return m, true
		}
	}
	return model.Movie{}, false
}

// Store はプロセス全体で共有するカタログスナップショット。
// 書き込みは購読コールバックからのみ行われ、コレクション単位で丸ごと置き換える。
type Store struct {
	sources  Sources
	recorder SizeRecorder

	mu       sync.RWMutex
	snap     Snapshot
	required map[string]bool
	received map[string]bool

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	obsOrder  []int
	nextObs   int

	unsubs []func()
}

// NewStore は新しいStoreを生成する。recorderはnilでもよい。
func NewStore(sources Sources, recorder SizeRecorder) *Store {
	s := &Store{
		sources:  sources,
		recorder: recorder,
		snap: Snapshot{
			Movies:     []model.Movie{},
			Banners:    []model.Banner{},
			Categories: []model.MetadataItem{},
			Genres:     []model.MetadataItem{},
			Loading:    true,
		},
		required:  make(map[string]bool),
		received:  make(map[string]bool),
		observers: make(map[int]func(Snapshot)),
	}
	if sources.Movies != nil {
		s.required[model.CollectionMovies] = true
	}
	if sources.Banners != nil {
		s.required[model.CollectionBanners] = true
	}
	if sources.Categories != nil {
		s.required[model.CollectionCategories] = true
	}
	if sources.Genres != nil {
		s.required[model.CollectionGenres] = true
	}
	if len(s.required) == 0 {
		s.snap.Loading = false
	}
	return s
}

// Start は全ストリームを購読する。
func (s *Store) Start() {
	if s.sources.Movies != nil {
		s.unsubs = append(s.unsubs, s.sources.Movies.Subscribe(s.replaceMovies))
	}
	if s.sources.Banners != nil {
		s.unsubs = append(s.unsubs, s.sources.Banners.Subscribe(s.replaceBanners))
	}
	if s.sources.Categories != nil {
		s.unsubs = append(s.unsubs, s.sources.Categories.Subscribe(s.replaceCategories))
	}
	if s.sources.Genres != nil {
		s.unsubs = append(s.unsubs, s.sources.Genres.Subscribe(s.replaceGenres))
	}
}

// Close は全ストリームの購読を解除する。
func (s *Store) Close() {
	for _, unsubscribe := range s.unsubs {
		unsubscribe()
	}
	s.unsubs = nil
}

// Snapshot は現在のスナップショットを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe はスナップショット更新の通知先を登録し、解除関数を返す。
// 通知は更新ごとに直列で行われる。
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsOrder = append(s.obsOrder, id)
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			delete(s.observers, id)
			for i, oid := range s.obsOrder {
				if oid == id {
					s.obsOrder = append(s.obsOrder[:i], s.obsOrder[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) replaceMovies(movies []model.Movie) {
	sorted := SortNewestFirst(movies)
	s.apply(model.CollectionMovies, len(sorted), func(snap *Snapshot) { snap.Movies = sorted })
}

func (s *Store) replaceBanners(banners []model.Banner) {
	copied := append([]model.Banner{}, banners...)
	s.apply(model.CollectionBanners, len(copied), func(snap *Snapshot) { snap.Banners = copied })
}

func (s *Store) replaceCategories(items []model.MetadataItem) {
	copied := append([]model.MetadataItem{}, items...)
	s.apply(model.CollectionCategories, len(copied), func(snap *Snapshot) { snap.Categories = copied })
}

func (s *Store) replaceGenres(items []model.MetadataItem) {
	copied := append([]model.MetadataItem{}, items...)
	s.apply(model.CollectionGenres, len(copied), func(snap *Snapshot) { snap.Genres = copied })
}

// apply はコレクションを置き換え、ロード状態を更新して通知する。
func (s *Store) apply(collection string, size int, replace func(*Snapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	replace(&s.snap)
	s.received[collection] = true
	if s.snap.Loading && s.allReceived() {
		s.snap.Loading = false
	}
	snap := s.snap
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordSnapshotSize(collection, size)
	}

	s.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.obsOrder))
	for _, id := range s.obsOrder {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) allReceived() bool {
	for c := range s.required {
		if !s.received[c] {
			return false
		}
	}
	return true
}

// SortNewestFirst は作成日時の降順に並べた新しいスライスを返す。
// 同時刻の映画は入力の順序を保つ。
func SortNewestFirst(movies []model.Movie) []model.Movie {
	sorted := append([]model.Movie{}, movies...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})
	return sorted
}
