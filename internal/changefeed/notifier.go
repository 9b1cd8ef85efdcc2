package changefeed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// ReloadAll は全コレクションの再読み込みを意味する通知ペイロード。
// 再接続などで通知を取りこぼした可能性がある場合に送られる。
const ReloadAll = ""

// Notifier はコレクションパスを運ぶ変更通知の供給元。
type Notifier interface {
	// Notifications は変更されたコレクションパスを受け取るチャネルを返す。
	Notifications() <-chan string
	// Close は通知の受信を停止する。
	Close() error
}

// PQNotifier はPostgreSQLのLISTEN/NOTIFYを使ったNotifier。
type PQNotifier struct {
	listener *pq.Listener
	out      chan string
	done     chan struct{}
	once     sync.Once
}

// PQNotifierConfig はPQNotifierの設定。
type PQNotifierConfig struct {
	DatabaseURL          string
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
}

// NewPQNotifier は指定チャネルをLISTENするPQNotifierを生成する。
// 接続断からの復帰時にはReloadAllを送出する。
func NewPQNotifier(cfg PQNotifierConfig, logger *slog.Logger) (*PQNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	eventCallback := func(ev pq.ListenerEventType, err error) {
		attrs := []any{slog.String("channel", cfg.Channel)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("change listener connected", attrs...)
		case pq.ListenerEventDisconnected:
			logger.Warn("change listener disconnected", attrs...)
		case pq.ListenerEventReconnected:
			logger.Info("change listener reconnected", attrs...)
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Error("change listener connection attempt failed", attrs...)
		}
	}

	listener := pq.NewListener(cfg.DatabaseURL, cfg.MinReconnectInterval, cfg.MaxReconnectInterval, eventCallback)
	if err := listener.Listen(cfg.Channel); err != nil {
		listener.Close()
		return nil, err
	}

	n := &PQNotifier{
		listener: listener,
		out:      make(chan string, 16),
		done:     make(chan struct{}),
	}
	go n.forward()
	return n, nil
}

// forward はpq.Notificationをコレクションパスへ変換して転送する。
// pq.Listenerは再接続後にnilを送るため、これを全件再読み込みとして扱う。
func (n *PQNotifier) forward() {
	defer close(n.out)
	for {
		select {
		case <-n.done:
			return
		case notification, ok := <-n.listener.Notify:
			if !ok {
				return
			}
			payload := ReloadAll
			if notification != nil {
				payload = notification.Extra
			}
			select {
			case n.out <- payload:
			case <-n.done:
				return
			}
		}
	}
}

// Notifications は変更通知チャネルを返す。
func (n *PQNotifier) Notifications() <-chan string {
	return n.out
}

// Close はLISTEN接続を閉じる。
func (n *PQNotifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.listener.Close()
	})
	return err
}

// ChannelNotifier はプロセス内で通知を発行するNotifier。
// 単一プロセス構成とテストで使用する。
type ChannelNotifier struct {
	ch   chan string
	once sync.Once
}

// NewChannelNotifier はChannelNotifierを生成する。
func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{ch: make(chan string, 16)}
}

// Publish はコレクションパスの変更を通知する。
func (n *ChannelNotifier) Publish(collection string) {
	n.ch <- collection
}

// Notifications は変更通知チャネルを返す。
func (n *ChannelNotifier) Notifications() <-chan string {
	return n.ch
}

// Close は通知チャネルを閉じる。
func (n *ChannelNotifier) Close() error {
	n.once.Do(func() { close(n.ch) })
	return nil
}
