package catalog

import (
	"context"
	"sync"
	"time"
)

// RotationInterval はバナーが自動で切り替わる間隔。
const RotationInterval = 5 * time.Second

// Ticker はRotatorが使う周期タイマー。
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory は指定間隔のTickerを生成する。
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTimeTicker はtime.TickerによるTickerを生成する。
func NewTimeTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Rotator はバナー一覧上の巡回インデックスを管理する。
// Startで表示側に接続されている間だけタイマーを動かす。
type Rotator struct {
	interval  time.Duration
	newTicker TickerFactory
	onChange  func(index int)

	mu       sync.Mutex
	index    int
	count    int
	attached bool
	parent   context.Context
	cancel   context.CancelFunc
	gen      uint64
	wg       sync.WaitGroup
}

// RotatorOption はRotatorの設定を変更する。
type RotatorOption func(*Rotator)

// WithTickerFactory はタイマーの生成方法を差し替える。
func WithTickerFactory(f TickerFactory) RotatorOption {
	return func(r *Rotator) { r.newTicker = f }
}

// WithInterval は切り替え間隔を変更する。
func WithInterval(d time.Duration) RotatorOption {
	return func(r *Rotator) { r.interval = d }
}

// NewRotator は新しいRotatorを生成する。onChangeはタイマーによる切り替えのたびに呼ばれる。
func NewRotator(onChange func(index int), opts ...RotatorOption) *Rotator {
	r := &Rotator{
		interval:  RotationInterval,
		newTicker: NewTimeTicker,
		onChange:  onChange,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start は表示側に接続し、バナーがあればタイマーを開始する。
func (r *Rotator) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = true
	r.parent = ctx
	r.rescheduleLocked()
}

// Stop はタイマーを停止し、実行中のgoroutineの終了を待つ。
func (r *Rotator) Stop() {
	r.mu.Lock()
	r.attached = false
	r.cancelLocked()
	r.mu.Unlock()
	r.wg.Wait()
}

// SetCount はバナー件数を更新する。件数が変わった場合はタイマーを再開始する。
// インデックスが範囲外になった場合は先頭に戻す。
func (r *Rotator) SetCount(n int) {
	if n < 0 {
		n = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == r.count {
		return
	}
	r.count = n
	if r.index >= n {
		r.index = 0
	}
	if r.attached {
		r.rescheduleLocked()
	}
}

// Select はインジケーター操作でインデックスを直接設定する。タイマーはリセットしない。
func (r *Rotator) Select(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= r.count {
		return false
	}
	r.index = index
	return true
}

// Index は現在のインデックスを返す。
func (r *Rotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Count は現在のバナー件数を返す。
func (r *Rotator) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Scheduled はタイマーが動作中かを返す。
func (r *Rotator) Scheduled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Rotator) cancelLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
}

func (r *Rotator) rescheduleLocked() {
	r.cancelLocked()
	if r.count == 0 || r.parent == nil {
		return
	}

	ctx, cancel := context.WithCancel(r.parent)
	r.cancel = cancel
	gen := r.gen
	ticker := r.newTicker(r.interval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.expire(gen)
				return
			case <-ticker.C():
				idx, ok := r.advance(gen)
				if !ok {
					return
				}
				if r.onChange != nil {
					r.onChange(idx)
				}
			}
		}
	}()
}

// expire は親contextの終了で止まったタイマーを未スケジュール状態に戻す。
func (r *Rotator) expire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	r.gen++
}

// advance は世代が一致する場合のみインデックスを1つ進める。
func (r *Rotator) advance(gen uint64) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.count == 0 {
		return 0, false
	}
	r.index = (r.index + 1) % r.count
	return r.index, true
}
