package viewer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tipflix/internal/catalog"
)

// SnapshotSource はカタログスナップショットの取得元。catalog.Storeがこれを満たす。
type SnapshotSource interface {
	Snapshot() catalog.Snapshot
	Subscribe(fn func(catalog.Snapshot)) (unsubscribe func())
}

// SessionObserver は閲覧者セッション数の計測フック。
type SessionObserver interface {
	SetViewerSessions(n int)
}

// Config はRegistryの設定を保持する。
type Config struct {
	IdleTimeout     time.Duration // 最終アクセスからこの時間を過ぎたセッションを破棄する
	CleanupInterval time.Duration // 破棄判定の間隔
	RotatorOptions  []catalog.RotatorOption
	Now             func() time.Time
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Registry は閲覧者セッションを保持する。
type Registry struct {
	store    SnapshotSource
	config   Config
	observer SessionObserver
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	unsubscribe func()
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewRegistry は新しいRegistryを生成する。observerはnilでもよい。
func NewRegistry(store SnapshotSource, config Config, observer SessionObserver, logger *slog.Logger) *Registry {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:    store,
		config:   config,
		observer: observer,
		logger:   logger,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
}

// Start はカタログ更新の購読と、アイドルセッションのクリーンアップを開始する。
func (r *Registry) Start() {
	r.unsubscribe = r.store.Subscribe(r.broadcastSnapshot)
	go r.cleanupLoop()
}

// Stop は購読とクリーンアップを停止し、全セッションのローテーションを止める。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.unsubscribe != nil {
			r.unsubscribe()
		}

		r.mu.Lock()
		sessions := r.sessions
		r.sessions = make(map[string]*Session)
		r.mu.Unlock()

		for _, s := range sessions {
			s.close()
		}
		r.reportCount(0)
	})
}

// Get は既存のセッションを返す。
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetOrCreate はセッションを取得し、存在しなければ新しいIDで作成する。
// 2番目の戻り値は新規作成したかどうか。
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s, ok := r.Get(id); ok {
			return s, false
		}
	}

	r.mu.Lock()
	s := newSession(uuid.New().String(), r.store, r.config.Now, r.config.RotatorOptions)
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.reportCount(n)
	return s, true
}

// Count は保持しているセッション数を返す。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep はライブ接続がなく、アイドル時間を超えたセッションを破棄する。
// 破棄した件数を返す。
func (r *Registry) Sweep() int {
	now := r.config.Now()

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.Attached() {
			continue
		}
		if now.Sub(s.LastAccess()) > r.config.IdleTimeout {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	if len(expired) > 0 {
		r.logger.Debug("idle viewer sessions removed",
			slog.Int("removed", len(expired)),
			slog.Int("remaining", n),
		)
		r.reportCount(n)
	}
	return len(expired)
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}

// broadcastSnapshot はカタログ更新を全セッションへ伝える。
func (r *Registry) broadcastSnapshot(snap catalog.Snapshot) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.onSnapshot(snap)
	}
}

func (r *Registry) reportCount(n int) {
	if r.observer != nil {
		r.observer.SetViewerSessions(n)
	}
}
