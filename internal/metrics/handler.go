package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics endpoint.
type Summary struct {
	HTTP      httpSummary   `json:"http"`
	Auth      authInfo      `json:"auth"`
	RateLimit rateLimitInfo `json:"rateLimit"`
	Coins     coinInfo      `json:"coins"`
	Trips     tripInfo      `json:"trips"`
	Recorder  recorderInfo  `json:"recorder"`
	Uploads   uploadInfo    `json:"uploads"`
	DB        dbInfo        `json:"db"`
	Server    serverInfo    `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type coinInfo struct {
	Transfers float64 `json:"transfers"`
	Rejects   float64 `json:"rejects"`
}

type tripInfo struct {
	Transitions       float64 `json:"transitions"`
	SealVerifications float64 `json:"sealVerifications"`
	SealMismatches    float64 `json:"sealMismatches"`
}

type recorderInfo struct {
	Entries     float64 `json:"entries"`
	FlushErrors float64 `json:"flushErrors"`
}

type uploadInfo struct {
	Total    float64 `json:"total"`
	Rejected float64 `json:"rejected"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler returns an http.HandlerFunc that serves a JSON summary of the live
// metric values.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleLive(w)
	}
}

func (m *Metrics) handleLive(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	uploadsTotal := sumCounter(fam["cbums_uploads_total"])
	uploadsOK := counterWithLabel(fam["cbums_uploads_total"], "result", "ok")

	summary := Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["cbums_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["cbums_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["cbums_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["cbums_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["cbums_http_request_duration_seconds"], 0.99),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["cbums_auth_failures_total"]),
			Successes: sumCounter(fam["cbums_auth_successes_total"]),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["cbums_ratelimit_rejections_total"]),
		},
		Coins: coinInfo{
			Transfers: sumCounter(fam["cbums_coin_transfers_total"]),
			Rejects:   sumCounter(fam["cbums_coin_transfer_rejects_total"]),
		},
		Trips: tripInfo{
			Transitions:       sumCounter(fam["cbums_trip_transitions_total"]),
			SealVerifications: sumCounter(fam["cbums_seal_verifications_total"]),
			SealMismatches:    counterWithLabel(fam["cbums_seal_verifications_total"], "result", "mismatch"),
		},
		Recorder: recorderInfo{
			Entries:     counterValue(fam["cbums_recorder_entries_total"]),
			FlushErrors: counterValue(fam["cbums_recorder_flush_errors_total"]),
		},
		Uploads: uploadInfo{
			Total:    uploadsTotal,
			Rejected: uploadsTotal - uploadsOK,
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["cbums_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["cbums_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["cbums_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     gaugeValue(fam["cbums_server_start_time_seconds"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["cbums_server_start_time_seconds"]),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile estimates the q-th percentile from a histogram family
// by linear interpolation within the containing bucket.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)
	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if float64(b.cumulativeCount) >= rank {
			if math.IsInf(b.upperBound, 1) {
				return prevBound
			}
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}
	return prevBound
}
