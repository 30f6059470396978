package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 上传结果标签。
const (
	UploadAccepted  = "accepted"
	UploadRejected  = "rejected"
	UploadMalicious = "malicious"
)

var (
	documentUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "材料上传次数，按结果区分。",
		},
		[]string{"result"},
	)

	applicationsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "submitted_total",
			Help:      "成功提交的申请数。",
		},
	)

	applicationStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "status_changes_total",
			Help:      "HR 修改申请状态的次数，按目标状态区分。",
		},
		[]string{"status"},
	)
)

// ObserveUpload 记录一次上传结果。
func ObserveUpload(result string) {
	documentUploads.WithLabelValues(result).Inc()
}

func ApplicationSubmitted() {
	applicationsSubmitted.Inc()
}

func StatusChanged(status string) {
	applicationStatusChanges.WithLabelValues(status).Inc()
}
