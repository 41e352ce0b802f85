// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ジョブキュー、ワーカー、HTTP層から利用する。
type MetricsCollector interface {
	RecordJobProcessed(queue string)
	RecordJobRetried(queue string)
	RecordJobFailed(queue string, reason string)
	RecordJobLatency(queue string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordFileCreated(fileType string)
	RecordThumbnailsGenerated(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	jobProcessed *prometheus.CounterVec
	jobRetried   *prometheus.CounterVec
	jobFailed    *prometheus.CounterVec
	jobLatency   *prometheus.HistogramVec
	httpStatus   *prometheus.CounterVec
	filesCreated *prometheus.CounterVec
	thumbnails   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesman_job_processed_total",
			Help: "正常に処理されたジョブの合計数",
		}, []string{"queue"}),
		jobRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesman_job_retried_total",
			Help: "再試行に回されたジョブの合計数",
		}, []string{"queue"}),
		jobFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesman_job_failed_total",
			Help: "最終的に失敗したジョブの合計数",
		}, []string{"queue", "reason"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filesman_job_latency_seconds",
			Help:    "ジョブ処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		filesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesman_files_created_total",
			Help: "種別ごとの作成されたファイル数",
		}, []string{"type"}),
		thumbnails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filesman_thumbnails_generated_total",
			Help: "生成されたサムネイルの合計数",
		}),
	}

	reg.MustRegister(
		c.jobProcessed,
		c.jobRetried,
		c.jobFailed,
		c.jobLatency,
		c.httpStatus,
		c.filesCreated,
		c.thumbnails,
	)

	return c
}

// RecordJobProcessed はジョブの正常完了を記録する。
func (c *Collector) RecordJobProcessed(queue string) {
	c.jobProcessed.WithLabelValues(queue).Inc()
}

// RecordJobRetried はジョブの再試行を記録する。
func (c *Collector) RecordJobRetried(queue string) {
	c.jobRetried.WithLabelValues(queue).Inc()
}

// RecordJobFailed はジョブの最終失敗を記録する。
func (c *Collector) RecordJobFailed(queue string, reason string) {
	c.jobFailed.WithLabelValues(queue, reason).Inc()
}

// RecordJobLatency はジョブ処理のレイテンシを記録する。
func (c *Collector) RecordJobLatency(queue string, duration time.Duration) {
	c.jobLatency.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFileCreated はファイル作成を記録する。
func (c *Collector) RecordFileCreated(fileType string) {
	c.filesCreated.WithLabelValues(fileType).Inc()
}

// RecordThumbnailsGenerated は生成したサムネイル数を記録する。
func (c *Collector) RecordThumbnailsGenerated(count int) {
	c.thumbnails.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストや未設定時に使用する。
type Nop struct{}

func (Nop) RecordJobProcessed(string) {}
func (Nop) RecordJobRetried(string) {}
func (Nop) RecordJobFailed(string, string) {}
func (Nop) RecordJobLatency(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordFileCreated(string) {}
func (Nop) RecordThumbnailsGenerated(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
