package changefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceLoader はテスト用のLoadFunc。呼び出しごとにsnapshotsを順に返す。
type sliceLoader struct {
	mu        sync.Mutex
	snapshots [][]string
	err       error
	calls     int
}

func (l *sliceLoader) load(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if len(l.snapshots) == 0 {
		return nil, nil
	}
	s := l.snapshots[0]
	if len(l.snapshots) > 1 {
		l.snapshots = l.snapshots[1:]
	}
	return s, nil
}

func TestStream_Refresh_DeliversFullSnapshotToSubscribers(t *testing.T) {
	loader := &sliceLoader{snapshots: [][]string{{"a", "b"}}}
	s := NewStream("movies", loader.load, nil)

	var got []string
	s.Subscribe(func(items []string) { got = items })

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestStream_Refresh_AbsentDataBecomesEmptySlice(t *testing.T) {
	loader := &sliceLoader{}
	s := NewStream("banners", loader.load, nil)

	var got []string
	delivered := false
	s.Subscribe(func(items []string) { got, delivered = items, true })

	require.NoError(t, s.Refresh(context.Background()))
	assert.True(t, delivered)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStream_Refresh_ErrorKeepsPreviousSnapshot(t *testing.T) {
	loader := &sliceLoader{snapshots: [][]string{{"a"}}}
	s := NewStream("movies", loader.load, nil)

	deliveries := 0
	s.Subscribe(func(items []string) { deliveries++ })
	require.NoError(t, s.Refresh(context.Background()))

	loader.err = errors.New("connection refused")
	assert.Error(t, s.Refresh(context.Background()))
	assert.Equal(t, 1, deliveries)

	// 遅れて購読しても直前の成功スナップショットが届く
	var late []string
	s.Subscribe(func(items []string) { late = items })
	assert.Equal(t, []string{"a"}, late)
}

func TestStream_Subscribe_LateSubscriberReceivesLastSnapshot(t *testing.T) {
	loader := &sliceLoader{snapshots: [][]string{{"x"}}}
	s := NewStream("metadata/categories", loader.load, nil)
	require.NoError(t, s.Refresh(context.Background()))

	var got []string
	s.Subscribe(func(items []string) { got = items })
	assert.Equal(t, []string{"x"}, got)
}

func TestStream_Unsubscribe_StopsDelivery(t *testing.T) {
	loader := &sliceLoader{snapshots: [][]string{{"a"}, {"b"}}}
	s := NewStream("movies", loader.load, nil)

	var got []string
	unsubscribe := s.Subscribe(func(items []string) { got = items })
	require.NoError(t, s.Refresh(context.Background()))

	unsubscribe()
	unsubscribe() // 2回目の呼び出しは無視される
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 0, s.SubscriberCount())
}

func TestStream_Refresh_DeliversInSubscriptionOrder(t *testing.T) {
	loader := &sliceLoader{snapshots: [][]string{{"a"}}}
	s := NewStream("movies", loader.load, nil)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.Subscribe(func([]string) { order = append(order, i) })
	}
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestStream_Notify_CoalescesPendingRequests(t *testing.T) {
	loader := &sliceLoader{snapshots: [][]string{{"a"}}}
	s := NewStream("movies", loader.load, nil)

	// Run開始前の複数要求は1件にまとめられる
	s.Notify()
	s.Notify()
	s.Notify()

	delivered := make(chan struct{}, 4)
	s.Subscribe(func([]string) { delivered <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot was not delivered")
	}

	select {
	case <-delivered:
		t.Fatal("pending notifications should have been coalesced into one reload")
	case <-time.After(50 * time.Millisecond):
	}

	loader.mu.Lock()
	defer loader.mu.Unlock()
	assert.Equal(t, 1, loader.calls)
}
