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
// claim.Metricsとbroadcast.Metricsの両方を満たす。
type Collector struct {
	claims         prometheus.Counter
	claimConflicts prometheus.Counter
	releases       prometheus.Counter
	resets         prometheus.Counter
	claimLatency   prometheus.Histogram
	eventsDropped  prometheus.Counter
	subscribers    prometheus.Gauge
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partban_claims_total",
			Help: "パート確保成功の合計数",
		}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partban_claim_conflicts_total",
			Help: "確保競合（ALREADY_CLAIMED）の合計数",
		}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partban_releases_total",
			Help: "パート解放成功の合計数",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partban_resets_total",
			Help: "週リセット成功の合計数",
		}),
		claimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "partban_claim_latency_seconds",
			Help:    "確保操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partban_events_dropped_total",
			Help: "バッファ満杯により破棄されたイベントの合計数",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "partban_subscribers",
			Help: "現在のライブ購読者数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "partban_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.claims,
		c.claimConflicts,
		c.releases,
		c.resets,
		c.claimLatency,
		c.eventsDropped,
		c.subscribers,
		c.httpStatus,
	)

	return c
}

// RecordClaim は確保成功を記録する。
func (c *Collector) RecordClaim() {
	c.claims.Inc()
}

// RecordClaimConflict は確保競合を記録する。
func (c *Collector) RecordClaimConflict() {
	c.claimConflicts.Inc()
}

// RecordRelease は解放成功を記録する。
func (c *Collector) RecordRelease() {
	c.releases.Inc()
}

// RecordReset は週リセット成功を記録する。
func (c *Collector) RecordReset() {
	c.resets.Inc()
}

// ObserveClaimLatency は確保操作のレイテンシを記録する。
func (c *Collector) ObserveClaimLatency(d time.Duration) {
	c.claimLatency.Observe(d.Seconds())
}

// RecordEventDropped はイベント破棄を記録する。
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
}

// SetSubscriberCount は現在の購読者総数を記録する。
func (c *Collector) SetSubscriberCount(count int) {
	c.subscribers.Set(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
