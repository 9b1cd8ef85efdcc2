// Package changefeed はコレクション単位の変更購読を提供する。
// 通知を受けるたびにコレクション全体を読み直し、購読者へ完全なスナップショットを配信する。
package changefeed

import (
	"context"
	"log/slog"
	"sync"
)

// LoadFunc はコレクションの現在の内容をすべて読み込む。
type LoadFunc[T any] func(ctx context.Context) ([]T, error)

// Stream は1つのコレクションパスに対する購読ストリーム。
// 再読み込みは専用goroutineで直列に行われ、同一ストリーム内の配信順序は通知順と一致する。
// 再読み込み中に届いた通知は1回の追加読み込みにまとめられる。
type Stream[T any] struct {
	collection string
	load       LoadFunc[T]
	logger     *slog.Logger

	// deliverMu は配信と購読登録を直列化し、購読者が古いスナップショットを後から受け取らないようにする。
	deliverMu sync.Mutex

	mu     sync.Mutex
	subs   map[int]func([]T)
	order  []int
	nextID int
	last   []T
	loaded bool

	pending chan struct{}
}

// NewStream は新しいStreamを生成する。
func NewStream[T any](collection string, load LoadFunc[T], logger *slog.Logger) *Stream[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream[T]{
		collection: collection,
		load:       load,
		logger:     logger,
		subs:       make(map[int]func([]T)),
		pending:    make(chan struct{}, 1),
	}
}

// Collection はストリームのコレクションパスを返す。
func (s *Stream[T]) Collection() string {
	return s.collection
}

// Subscribe はスナップショットの購読を登録し、解除関数を返す。
// 既に読み込み済みの場合は直近のスナップショットを即座に配信する。
// fnの中からSubscribeを呼び出してはならない。
func (s *Stream[T]) Subscribe(fn func([]T)) (unsubscribe func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	last, loaded := s.last, s.loaded
	s.mu.Unlock()

	if loaded {
		fn(last)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			for i, sid := range s.order {
				if sid == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Notify は再読み込みを要求する。既に要求が保留中の場合はまとめられる。
func (s *Stream[T]) Notify() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Run はctxがキャンセルされるまで再読み込み要求を処理する。
func (s *Stream[T]) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pending:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("snapshot reload failed",
					slog.String("collection", s.collection),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Refresh はコレクションを読み込み、全購読者へ登録順に配信する。
// 読み込みに失敗した場合は配信せず、直前のスナップショットが有効なまま残る。
func (s *Stream[T]) Refresh(ctx context.Context) error {
	items, err := s.load(ctx)
	if err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.last = items
	s.loaded = true
	fns := make([]func([]T), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(items)
	}
	return nil
}

// SubscriberCount は現在の購読者数を返す。
func (s *Stream[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
