package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/model"
	"github.com/hitoshi/tipflix/internal/viewer"
)

// ライブチャネルのクライアントメッセージ種別
const (
	liveSelectBanner = "select_banner"
	liveOpenBanner   = "open_banner"
	liveNavigate     = "navigate"
	liveSelectMovie  = "select_movie"
	liveBack         = "back"
	liveHome         = "home"
	liveFilters      = "filters"
	liveServer       = "server"

	liveEventError = "error"
)

// LiveObserver はライブ接続数を記録する。metrics.Collector が実装する。
type LiveObserver interface {
	LiveConnectionOpened()
	LiveConnectionClosed()
}

// LiveConfig はライブチャネルの設定。
type LiveConfig struct {
	AllowedOrigin string
	SendBuffer    int
	WriteWait     time.Duration
	PongWait      time.Duration
	PingInterval  time.Duration
	MaxMessage    int64
}

// DefaultLiveConfig はデフォルトのライブチャネル設定を返す。
func DefaultLiveConfig(allowedOrigin string) LiveConfig {
	return LiveConfig{
		AllowedOrigin: allowedOrigin,
		SendBuffer:    16,
		WriteWait:     10 * time.Second,
		PongWait:      60 * time.Second,
		PingInterval:  50 * time.Second,
		MaxMessage:    4096,
	}
}

// liveClientMessage はブラウザから届く操作。typeごとに使うフィールドが異なる。
type liveClientMessage struct {
	Type    string               `json:"type"`
	View    string               `json:"view,omitempty"`
	MovieID string               `json:"movie_id,omitempty"`
	Index   *int                 `json:"index,omitempty"`
	Server  string               `json:"server,omitempty"`
	Filters *viewer.FilterUpdate `json:"filters,omitempty"`
}

// liveServerMessage はブラウザへ送る通知。
type liveServerMessage struct {
	Type   string                        `json:"type"`
	Index  *int                          `json:"index,omitempty"`
	Screen *catalog.Screen               `json:"screen,omitempty"`
	Error  *middleware.ErrorResponseBody `json:"error,omitempty"`
}

// LiveHandler は GET /ws/catalog のWebSocketハンドラー。
// 接続中のみ閲覧者のバナー自動送りが動き、カタログ更新と送りのたびに通知を送る。
type LiveHandler struct {
	config   LiveConfig
	upgrader websocket.Upgrader
	observer LiveObserver
	logger   *slog.Logger
}

// NewLiveHandler はLiveHandlerを生成する。observerはnilでもよい。
func NewLiveHandler(config LiveConfig, observer LiveObserver, logger *slog.Logger) *LiveHandler {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultLiveConfig("").SendBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &LiveHandler{config: config, observer: observer, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP は接続をアップグレードし、切断まで読み書きを続ける。
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade が400系のレスポンスを書き込み済み
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	if h.observer != nil {
		h.observer.LiveConnectionOpened()
		defer h.observer.LiveConnectionClosed()
	}
	h.logger.Info("live connection opened", slog.String("viewer_id", s.ID))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	send := make(chan liveServerMessage, h.config.SendBuffer)
	push := func(msg liveServerMessage) {
		select {
		case send <- msg:
		default:
			h.logger.Warn("live send buffer full, dropping event",
				slog.String("viewer_id", s.ID),
				slog.String("type", msg.Type),
			)
		}
	}

	initial := s.Screen()
	push(liveServerMessage{Type: viewer.EventScreen, Screen: &initial})

	detach := s.Attach(ctx, func(ev viewer.Event) {
		push(liveServerMessage{Type: ev.Type, Index: ev.Index, Screen: ev.Screen})
	})
	defer detach()

	go h.writeLoop(ctx, cancel, conn, send)
	h.readLoop(conn, s, push)

	h.logger.Info("live connection closed", slog.String("viewer_id", s.ID))
}

// readLoop はクライアントの操作を読み取り、閲覧者セッションに適用する。
// 操作結果の画面はセッションの通知経由で届くため、ここではエラーのみ返す。
func (h *LiveHandler) readLoop(conn *websocket.Conn, s *viewer.Session, push func(liveServerMessage)) {
	defer conn.Close()

	if h.config.MaxMessage > 0 {
		conn.SetReadLimit(h.config.MaxMessage)
	}
	if h.config.PongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
		})
	}

	for {
		var msg liveClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.logger.Debug("live read ended", slog.String("error", err.Error()))
			}
			return
		}

		if err := applyLiveMessage(s, msg); err != nil {
			push(liveErrorMessage(err))
		}
	}
}

// writeLoop は送信キューとpingを1つのゴルーチンから書き込む。
func (h *LiveHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, send <-chan liveServerMessage) {
	defer cancel()
	defer conn.Close()

	var pings <-chan time.Time
	if h.config.PingInterval > 0 {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteWait))
			return
		case msg := <-send:
			h.setWriteDeadline(conn)
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("live write failed", slog.String("error", err.Error()))
				return
			}
		case <-pings:
			h.setWriteDeadline(conn)
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) setWriteDeadline(conn *websocket.Conn) {
	if h.config.WriteWait > 0 {
		conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
	}
}

// checkOrigin は Origin ヘッダーが設定済みオリジンか同一ホストの場合のみ許可する。
func (h *LiveHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == h.config.AllowedOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func applyLiveMessage(s *viewer.Session, msg liveClientMessage) error {
	var err error
	switch msg.Type {
	case liveNavigate:
		_, err = s.Navigate(msg.View)
	case liveHome:
		s.ActivateLogo()
	case liveSelectMovie:
		_, err = s.SelectMovie(msg.MovieID)
	case liveBack:
		s.Back()
	case liveFilters:
		if msg.Filters == nil {
			return model.NewValidationError("filters", "is required")
		}
		s.UpdateFilters(*msg.Filters)
	case liveServer:
		_, err = s.SelectServer(msg.Server)
	case liveSelectBanner, liveOpenBanner:
		if msg.Index == nil {
			return model.NewValidationError("index", "is required")
		}
		if msg.Type == liveSelectBanner {
			_, err = s.SelectBanner(*msg.Index)
		} else {
			_, _, err = s.OpenBanner(*msg.Index)
		}
	default:
		return model.NewInvalidRequestError()
	}
	return err
}

func liveErrorMessage(err error) liveServerMessage {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("live operation failed", slog.String("error", err.Error()))
		apiErr = model.NewInternalError()
	}
	body := middleware.NewErrorResponseBody(apiErr)
	return liveServerMessage{Type: liveEventError, Error: &body}
}
