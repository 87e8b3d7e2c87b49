package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "poundcake"

var (
	// WebhooksReceived 按响应状态码统计 webhook 请求
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_received_total",
		Help:      "Alertmanager webhook requests by response code.",
	}, []string{"code"})

	// AlertsReceived accepted / rejected
	AlertsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_received_total",
		Help:      "Alerts parsed from webhook payloads.",
	}, []string{"result"})

	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_jobs_total",
		Help:      "Dispatch job outcomes: acked, retried, failed.",
	}, []string{"result"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "executions_total",
		Help:      "Remediation executions by result: created, skipped, error.",
	}, []string{"result"})

	EngineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_request_duration_seconds",
		Help:      "Latency of requests to the remediation engine.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "result"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Dispatch queue length per state.",
	}, []string{"state"})
)
