// Package viewer は公開サイトの閲覧者ごとの表示状態を管理する。
package viewer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/model"
)

// イベント種別
const (
	EventScreen = "screen"
	EventBanner = "banner"
)

// Event はライブ接続へ送る通知。
type Event struct {
	Type   string          `json:"type"`
	Index  *int            `json:"index,omitempty"`
	Screen *catalog.Screen `json:"screen,omitempty"`
}

// FilterUpdate はフィルタの部分更新。nilのフィールドは変更しない。
type FilterUpdate struct {
	Search   *string `json:"search"`
	Category *string `json:"category"`
	Letter   *string `json:"letter"`
}

// ApplyTo は指定された項目のみをfに反映したフィルタを返す。
// カテゴリ・頭文字の空文字列と "all" は All として扱い、頭文字は大文字に揃える。
func (u FilterUpdate) ApplyTo(f catalog.Filters) catalog.Filters {
	if u.Search != nil {
		f.Search = *u.Search
	}
	if u.Category != nil {
		f.Category = optionOrAll(*u.Category)
	}
	if u.Letter != nil {
		letter := optionOrAll(*u.Letter)
		if letter != catalog.AllOption {
			letter = strings.ToUpper(letter)
		}
		f.Letter = letter
	}
	return f
}

// Session は閲覧者1人分の表示状態。フィルタ状態はデータストアに書き戻さない。
type Session struct {
	ID string

	store SnapshotSource
	now   func() time.Time

	mu         sync.Mutex
	controller *catalog.Controller
	filters    catalog.Filters
	lastAccess time.Time
	listeners  map[int]func(Event)
	nextID     int

	rotator *catalog.Rotator
	life    context.Context
	end     context.CancelFunc
}

func newSession(id string, store SnapshotSource, now func() time.Time, opts []catalog.RotatorOption) *Session {
	s := &Session{
		ID:         id,
		store:      store,
		now:        now,
		controller: catalog.NewController(),
		filters:    catalog.DefaultFilters(),
		lastAccess: now(),
		listeners:  make(map[int]func(Event)),
	}
	s.life, s.end = context.WithCancel(context.Background())
	s.rotator = catalog.NewRotator(s.onRotate, opts...)
	s.rotator.SetCount(len(store.Snapshot().Banners))
	return s
}

// Screen は現在の画面を返す。スクロールリセット要求はここで消費される。
func (s *Session) Screen() catalog.Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	return s.renderLocked(s.store.Snapshot())
}

// Navigate はグローバルナビゲーションで画面を切り替える。
func (s *Session) Navigate(view string) (catalog.Screen, error) {
	v, err := catalog.ParseNavigableView(view)
	if err != nil {
		return catalog.Screen{}, err
	}
	return s.mutate(func(_ catalog.Snapshot) error {
		return s.controller.Navigate(v)
	})
}

// ActivateLogo はロゴ押下でHomeへ戻る。
func (s *Session) ActivateLogo() catalog.Screen {
	screen, _ := s.mutate(func(_ catalog.Snapshot) error {
		s.controller.ActivateLogo()
		return nil
	})
	return screen
}

// SelectMovie は公開中の映画を選択して詳細画面へ遷移する。
func (s *Session) SelectMovie(movieID string) (catalog.Screen, error) {
	return s.mutate(func(snap catalog.Snapshot) error {
		m, ok := snap.MovieByID(movieID)
		if !ok || !m.Visible {
			return model.NewMovieNotFoundError(movieID)
		}
		s.controller.SelectMovie(m)
		return nil
	})
}

// Back は詳細画面からHomeへ戻る。
func (s *Session) Back() catalog.Screen {
	screen, _ := s.mutate(func(_ catalog.Snapshot) error {
		s.controller.Back()
		return nil
	})
	return screen
}

// UpdateFilters は指定されたフィルタ項目のみを更新する。画面は切り替えない。
func (s *Session) UpdateFilters(u FilterUpdate) catalog.Screen {
	screen, _ := s.mutate(func(_ catalog.Snapshot) error {
		s.filters = u.ApplyTo(s.filters)
		return nil
	})
	return screen
}

// SelectServer は詳細画面の再生サーバーを切り替える。
func (s *Session) SelectServer(server string) (catalog.Screen, error) {
	srv, ok := model.ParseStreamServer(server)
	if !ok {
		return catalog.Screen{}, model.NewValidationError("server", "must be one of server1, server2, server3")
	}
	return s.mutate(func(_ catalog.Snapshot) error {
		s.controller.SelectServer(srv)
		return nil
	})
}

// SelectBanner はインジケーター操作で表示中のバナーを切り替える。タイマーはリセットしない。
func (s *Session) SelectBanner(index int) (catalog.Screen, error) {
	return s.mutate(func(_ catalog.Snapshot) error {
		if !s.rotator.Select(index) {
			return model.NewValidationError("index", fmt.Sprintf("is out of range: %d", index))
		}
		return nil
	})
}

// OpenBanner はスライド本体のクリックを処理する。
// 紐づく映画が公開中であれば詳細画面へ遷移し、そうでなければ何もしない。
func (s *Session) OpenBanner(index int) (catalog.Screen, bool, error) {
	opened := false
	screen, err := s.mutate(func(snap catalog.Snapshot) error {
		if index < 0 || index >= len(snap.Banners) {
			return model.NewValidationError("index", fmt.Sprintf("is out of range: %d", index))
		}
		b := snap.Banners[index]
		if !b.HasMovie() {
			return nil
		}
		m, ok := snap.MovieByID(b.MovieID)
		if !ok || !m.Visible {
			return nil
		}
		s.controller.SelectMovie(m)
		opened = true
		return nil
	})
	return screen, opened, err
}

// Attach はライブ接続を登録し、バナーのローテーションを開始する。
// pushはブロックしてはならない。ctxの終了または戻り値の関数で登録を解除する。
// ローテーションはセッションの寿命に従い、最後の接続が外れるまで続く。
func (s *Session) Attach(ctx context.Context, push func(Event)) (detach func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = push
	first := len(s.listeners) == 1
	s.touchLocked()
	s.mu.Unlock()

	if first {
		s.rotator.Start(s.life)
	}

	var once sync.Once
	remove := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			last := len(s.listeners) == 0
			s.touchLocked()
			s.mu.Unlock()

			if last {
				s.rotator.Stop()
			}
		})
	}
	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}
}

// Attached はライブ接続が存在するかを返す。
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners) > 0
}

// LastAccess は最終アクセス時刻を返す。
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// BannerIndex は表示中のバナーのインデックスを返す。
func (s *Session) BannerIndex() int {
	return s.rotator.Index()
}

// close はセッションの寿命を終え、ローテーションを停止する。
func (s *Session) close() {
	s.end()
	s.rotator.Stop()
}

// onSnapshot はカタログ更新時に呼ばれる。バナー件数を反映し、ライブ接続へ画面を送る。
func (s *Session) onSnapshot(snap catalog.Snapshot) {
	s.rotator.SetCount(len(snap.Banners))

	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	screen := s.renderLocked(snap)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	broadcast(listeners, Event{Type: EventScreen, Screen: &screen})
}

func (s *Session) onRotate(index int) {
	s.mu.Lock()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	broadcast(listeners, Event{Type: EventBanner, Index: &index})
}

// mutate は状態変更を適用し、成功した場合は新しい画面をライブ接続にも送る。
// 失敗した場合は状態を変更しない。
func (s *Session) mutate(fn func(snap catalog.Snapshot) error) (catalog.Screen, error) {
	snap := s.store.Snapshot()
	s.rotator.SetCount(len(snap.Banners))

	s.mu.Lock()
	s.touchLocked()
	if err := fn(snap); err != nil {
		s.mu.Unlock()
		return catalog.Screen{}, err
	}
	screen := s.renderLocked(snap)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	broadcast(listeners, Event{Type: EventScreen, Screen: &screen})
	return screen, nil
}

func (s *Session) renderLocked(snap catalog.Snapshot) catalog.Screen {
	st := catalog.ViewState{
		View:        s.controller.View(),
		Filters:     s.filters,
		Server:      s.controller.ActiveServer(),
		BannerIndex: s.rotator.Index(),
		ScrollToTop: s.controller.TakeScrollReset(),
	}
	if m, ok := s.controller.Selected(); ok {
		st.Selected = &m
	}
	return catalog.Render(snap, st)
}

func (s *Session) listenersLocked() []func(Event) {
	out := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func (s *Session) touchLocked() {
	s.lastAccess = s.now()
}

func broadcast(listeners []func(Event), ev Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}

func optionOrAll(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, catalog.AllOption) {
		return catalog.AllOption
	}
	return v
}
