package types

import (
	"time"
)

// RequestWebhook webhook 原始请求，由 api 层从 gin.Context 中提取
type RequestWebhook struct {
	Method      string
	Path        string
	Headers     map[string]string
	QueryParams map[string]string
	Body        []byte
	ClientHost  string
	ReceivedAt  time.Time
}

type ResponseWebhook struct {
	Status         string `json:"status"`
	RequestId      string `json:"request_id"`
	AlertsReceived int    `json:"alerts_received"`
	AlertsRejected int    `json:"alerts_rejected"`
}
