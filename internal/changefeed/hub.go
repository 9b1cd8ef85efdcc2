package changefeed

import (
	"context"
	"log/slog"
	"sync"
)

// Source はHubに登録できるストリームの型に依存しない部分。
type Source interface {
	Collection() string
	Notify()
	Run(ctx context.Context)
}

// NotificationObserver は変更通知の計測フック。
type NotificationObserver interface {
	RecordChangeNotification(collection string)
}

// Hub はNotifierからの通知を対応するストリームへ振り分ける。
type Hub struct {
	notifier Notifier
	logger   *slog.Logger
	observer NotificationObserver

	mu      sync.RWMutex
	sources map[string]Source
}

// NewHub は新しいHubを生成する。observerはnilでもよい。
func NewHub(notifier Notifier, observer NotificationObserver, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		notifier: notifier,
		logger:   logger,
		observer: observer,
		sources:  make(map[string]Source),
	}
}

// Add はストリームを登録する。Runの前に呼び出すこと。
func (h *Hub) Add(sources ...Source) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range sources {
		h.sources[s.Collection()] = s
	}
}

// Run は各ストリームを起動して初回読み込みを要求し、
// ctxがキャンセルされるか通知チャネルが閉じられるまで通知を振り分ける。
func (h *Hub) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.mu.RLock()
	var wg sync.WaitGroup
	for _, s := range h.sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			s.Run(ctx)
		}(s)
		s.Notify()
	}
	h.mu.RUnlock()

	h.logger.Info("change feed started", slog.Int("collections", len(h.sources)))

	notifications := h.notifier.Notifications()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case collection, ok := <-notifications:
			if !ok {
				break loop
			}
			h.dispatch(collection)
		}
	}

	cancel()
	wg.Wait()
	h.logger.Info("change feed stopped")
}

// dispatch は通知を対象ストリームへ転送する。ReloadAllは全ストリームへ転送する。
func (h *Hub) dispatch(collection string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if collection == ReloadAll {
		for name, s := range h.sources {
			h.record(name)
			s.Notify()
		}
		return
	}

	s, ok := h.sources[collection]
	if !ok {
		h.logger.Warn("notification for unknown collection", slog.String("collection", collection))
		return
	}
	h.record(collection)
	s.Notify()
}

func (h *Hub) record(collection string) {
	if h.observer != nil {
		h.observer.RecordChangeNotification(collection)
	}
}
