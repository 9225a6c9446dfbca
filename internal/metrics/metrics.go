// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 同期のトリガー種別（ラベル値）
const (
	TriggerDebounce  = "debounce"
	TriggerManual    = "manual"
	TriggerMigration = "migration"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期処理やHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSyncSuccess(trigger string)
	RecordSyncFailure(trigger string)
	RecordSyncLatency(duration time.Duration)
	RecordRemoteChangeApplied()
	RecordHTTPStatus(statusCode int)
	SetTeaCount(count int)
	SetRealtimeClients(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess     *prometheus.CounterVec
	syncFail        *prometheus.CounterVec
	syncLatency     prometheus.Histogram
	remoteApplied   prometheus.Counter
	httpStatus      *prometheus.CounterVec
	teaCount        prometheus.Gauge
	realtimeClients prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teerotation_sync_success_total",
			Help: "リモートへの同期成功の合計数",
		}, []string{"trigger"}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teerotation_sync_fail_total",
			Help: "リモートへの同期失敗の合計数",
		}, []string{"trigger"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "teerotation_sync_latency_seconds",
			Help:    "リモートへのupsertのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		remoteApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teerotation_remote_changes_applied_total",
			Help: "適用したリモート変更通知の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teerotation_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		teaCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teerotation_teas",
			Help: "登録されているお茶の数",
		}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teerotation_realtime_clients",
			Help: "接続中のWebSocketクライアント数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.syncLatency,
		c.remoteApplied,
		c.httpStatus,
		c.teaCount,
		c.realtimeClients,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録する。
func (c *Collector) RecordSyncSuccess(trigger string) {
	c.syncSuccess.WithLabelValues(trigger).Inc()
}

// RecordSyncFailure は同期失敗を記録する。
func (c *Collector) RecordSyncFailure(trigger string) {
	c.syncFail.WithLabelValues(trigger).Inc()
}

// RecordSyncLatency はupsertのレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordRemoteChangeApplied はリモート変更の適用を記録する。
func (c *Collector) RecordRemoteChangeApplied() {
	c.remoteApplied.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetTeaCount は登録済みのお茶の数を設定する。
func (c *Collector) SetTeaCount(count int) {
	c.teaCount.Set(float64(count))
}

// SetRealtimeClients は接続中のWebSocketクライアント数を設定する。
func (c *Collector) SetRealtimeClients(count int) {
	c.realtimeClients.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var _ MetricsCollector = (*Collector)(nil)
