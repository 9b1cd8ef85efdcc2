// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 変更通知、カタログストア、管理操作、ライブ接続、リンクチェックの各フックを満たす。
type Collector struct {
	changeNotifications *prometheus.CounterVec
	snapshotUpdates     *prometheus.CounterVec
	snapshotSize        *prometheus.GaugeVec
	adminMutations      *prometheus.CounterVec
	adminLogins         *prometheus.CounterVec
	liveConnections     prometheus.Gauge
	viewerSessions      prometheus.Gauge
	brokenImages        *prometheus.GaugeVec
	linkCheckDuration   prometheus.Histogram
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		changeNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipflix_change_notifications_total",
			Help: "コレクション別の変更通知の受信数",
		}, []string{"collection"}),
		snapshotUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipflix_snapshot_updates_total",
			Help: "コレクション別のスナップショット置き換え回数",
		}, []string{"collection"}),
		snapshotSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tipflix_snapshot_size",
			Help: "コレクション別の現在の件数",
		}, []string{"collection"}),
		adminMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipflix_admin_mutations_total",
			Help: "管理操作の実行数",
		}, []string{"operation", "result"}),
		adminLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipflix_admin_logins_total",
			Help: "管理者サインインの試行数",
		}, []string{"result"}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tipflix_live_connections",
			Help: "接続中のWebSocket数",
		}),
		viewerSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tipflix_viewer_sessions",
			Help: "保持している閲覧者セッション数",
		}),
		brokenImages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tipflix_broken_images",
			Help: "直近のリンクチェックで取得できなかった画像の数",
		}, []string{"collection"}),
		linkCheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tipflix_linkcheck_duration_seconds",
			Help:    "リンクチェック1回の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipflix_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.changeNotifications,
		c.snapshotUpdates,
		c.snapshotSize,
		c.adminMutations,
		c.adminLogins,
		c.liveConnections,
		c.viewerSessions,
		c.brokenImages,
		c.linkCheckDuration,
		c.httpStatus,
	)

	return c
}

// RecordChangeNotification は変更通知の受信を記録する。
func (c *Collector) RecordChangeNotification(collection string) {
	c.changeNotifications.WithLabelValues(collection).Inc()
}

// RecordSnapshotSize はスナップショットの置き換えと件数を記録する。
func (c *Collector) RecordSnapshotSize(collection string, size int) {
	c.snapshotUpdates.WithLabelValues(collection).Inc()
	c.snapshotSize.WithLabelValues(collection).Set(float64(size))
}

// RecordAdminMutation は管理操作の結果を記録する。
func (c *Collector) RecordAdminMutation(operation, result string) {
	c.adminMutations.WithLabelValues(operation, result).Inc()
}

// RecordAdminLogin はサインインの結果を記録する。
func (c *Collector) RecordAdminLogin(result string) {
	c.adminLogins.WithLabelValues(result).Inc()
}

// LiveConnectionOpened はWebSocket接続の開始を記録する。
func (c *Collector) LiveConnectionOpened() {
	c.liveConnections.Inc()
}

// LiveConnectionClosed はWebSocket接続の終了を記録する。
func (c *Collector) LiveConnectionClosed() {
	c.liveConnections.Dec()
}

// SetViewerSessions は閲覧者セッション数を記録する。
func (c *Collector) SetViewerSessions(n int) {
	c.viewerSessions.Set(float64(n))
}

// SetBrokenImages はコレクション別の取得できなかった画像数を記録する。
func (c *Collector) SetBrokenImages(collection string, n int) {
	c.brokenImages.WithLabelValues(collection).Set(float64(n))
}

// RecordLinkCheckDuration はリンクチェックの所要時間を記録する。
func (c *Collector) RecordLinkCheckDuration(d time.Duration) {
	c.linkCheckDuration.Observe(d.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
