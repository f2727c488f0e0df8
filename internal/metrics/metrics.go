// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ワーカー、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordSignup(method string)
	RecordLogin(method, result string)
	RecordHandoffVerification(result string)
	RecordListingCreated()
	RecordListingPublished(packageType string)
	RecordListingBoosted()
	RecordSubmission(authenticated bool)
	RecordListingsExpired(count int64)
	RecordBoostsCleared(count int64)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups        *prometheus.CounterVec
	logins         *prometheus.CounterVec
	handoffs       *prometheus.CounterVec
	created        prometheus.Counter
	published      *prometheus.CounterVec
	boosted        prometheus.Counter
	submissions    *prometheus.CounterVec
	expired        prometheus.Counter
	boostsCleared  prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomie_signups_total",
			Help: "ユーザー登録の合計数",
		}, []string{"method"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomie_logins_total",
			Help: "ログイン試行の合計数",
		}, []string{"method", "result"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomie_handoff_verifications_total",
			Help: "ハンドオフコード検証の合計数",
		}, []string{"result"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomie_listings_created_total",
			Help: "作成された募集の合計数",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomie_listings_published_total",
			Help: "決済により公開された募集の合計数",
		}, []string{"package"}),
		boosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomie_listings_boosted_total",
			Help: "ブーストされた募集の合計数",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomie_submissions_total",
			Help: "応募の合計数",
		}, []string{"authenticated"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomie_listings_expired_total",
			Help: "有効期限切れで非公開にした募集の合計数",
		}),
		boostsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomie_boosts_cleared_total",
			Help: "期限切れで解除したブーストの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomie_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomie_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signups,
		c.logins,
		c.handoffs,
		c.created,
		c.published,
		c.boosted,
		c.submissions,
		c.expired,
		c.boostsCleared,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSignup はユーザー登録を記録する。methodは"password"または"google"。
func (c *Collector) RecordSignup(method string) {
	c.signups.WithLabelValues(method).Inc()
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(method, result string) {
	c.logins.WithLabelValues(method, result).Inc()
}

// RecordHandoffVerification はハンドオフコード検証を記録する。
func (c *Collector) RecordHandoffVerification(result string) {
	c.handoffs.WithLabelValues(result).Inc()
}

// RecordListingCreated は募集作成を記録する。
func (c *Collector) RecordListingCreated() {
	c.created.Inc()
}

// RecordListingPublished は募集の公開を記録する。
func (c *Collector) RecordListingPublished(packageType string) {
	c.published.WithLabelValues(packageType).Inc()
}

// RecordListingBoosted はブーストを記録する。
func (c *Collector) RecordListingBoosted() {
	c.boosted.Inc()
}

// RecordSubmission は応募を記録する。
func (c *Collector) RecordSubmission(authenticated bool) {
	c.submissions.WithLabelValues(strconv.FormatBool(authenticated)).Inc()
}

// RecordListingsExpired は期限切れで非公開にした件数を記録する。
func (c *Collector) RecordListingsExpired(count int64) {
	c.expired.Add(float64(count))
}

// RecordBoostsCleared は解除したブーストの件数を記録する。
func (c *Collector) RecordBoostsCleared(count int64) {
	c.boostsCleared.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。メトリクス無効時とテストで使用する。
type Nop struct{}

func (Nop) RecordSignup(string)                {}
func (Nop) RecordLogin(string, string)         {}
func (Nop) RecordHandoffVerification(string)   {}
func (Nop) RecordListingCreated()              {}
func (Nop) RecordListingPublished(string)      {}
func (Nop) RecordListingBoosted()              {}
func (Nop) RecordSubmission(bool)              {}
func (Nop) RecordListingsExpired(int64)        {}
func (Nop) RecordBoostsCleared(int64)          {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

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
