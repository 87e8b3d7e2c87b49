package types

import (
	"poundcake/internal/models"
)

type RequestStatus struct {
	RequestId string `uri:"request_id" binding:"required"`
	Engine    bool   `form:"engine"`
}

type RequestList struct {
	Page  int64 `form:"page"`
	Limit int64 `form:"limit"`
}

type RequestDeadJobs struct {
	Limit int64 `form:"limit"`
}

type AlertView struct {
	Id           uint              `json:"id"`
	Fingerprint  string            `json:"fingerprint"`
	AlertName    string            `json:"alert_name"`
	Status       string            `json:"status"`
	Severity     string            `json:"severity"`
	Instance     string            `json:"instance"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     int64             `json:"starts_at"`
	EndsAt       int64             `json:"ends_at"`
	GeneratorURL string            `json:"generator_url"`
	RuleMatched  *bool             `json:"rule_matched"`
	MatchState   string            `json:"match_state"`
	RuleRef      string            `json:"rule_ref"`
	RequestId    string            `json:"request_id"`
	CreatedAt    int64             `json:"created_at"`
}

type EngineView struct {
	Status         string `json:"status"`
	Action         string `json:"action"`
	StartTimestamp string `json:"start_timestamp,omitempty"`
	EndTimestamp   string `json:"end_timestamp,omitempty"`
}

type ExecutionView struct {
	ExecutionId string      `json:"execution_id"`
	RuleRef     string      `json:"rule_ref"`
	ActionRef   string      `json:"action_ref"`
	AlertId     *uint       `json:"alert_id"`
	CreatedAt   int64       `json:"created_at"`
	Engine      *EngineView `json:"engine,omitempty"`
	EngineError string      `json:"engine_error,omitempty"`
}

type ResponseStatus struct {
	RequestId        string          `json:"request_id"`
	Method           string          `json:"method"`
	Path             string          `json:"path"`
	StatusCode       int             `json:"status_code"`
	ReceivedAt       int64           `json:"received_at"`
	CompletedAt      int64           `json:"completed_at"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	Alerts           []AlertView     `json:"alerts"`
	Executions       []ExecutionView `json:"executions"`
}

type RecentRequestView struct {
	RequestId        string `json:"request_id"`
	Method           string `json:"method"`
	Path             string `json:"path"`
	StatusCode       int    `json:"status_code"`
	ReceivedAt       int64  `json:"received_at"`
	CompletedAt      int64  `json:"completed_at"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	AlertCount       int    `json:"alert_count"`
	ExecutionCount   int64  `json:"execution_count"`
}

type ResponseRecent struct {
	Requests []RecentRequestView `json:"requests"`
	Count    int                 `json:"count"`
}

type ResponseActiveAlerts struct {
	Alerts []AlertView `json:"alerts"`
	Count  int         `json:"count"`
}

type LinkView struct {
	ExecutionView
	RequestId   string `json:"request_id"`
	AlertName   string `json:"alert_name,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type ResponseLinks struct {
	Executions []LinkView `json:"executions"`
	Count      int        `json:"count"`
}

type ResponseStats struct {
	ApiCalls           int64            `json:"api_calls"`
	Alerts             int64            `json:"alerts"`
	AlertsLast24h      int64            `json:"alerts_last_24h"`
	ExecutionLinks     int64            `json:"execution_links"`
	AlertsByStatus     map[string]int64 `json:"alerts_by_status"`
	AlertsByMatchState map[string]int64 `json:"alerts_by_match_state"`
	Queue              *QueueView       `json:"queue,omitempty"`
	QueueError         string           `json:"queue_error,omitempty"`
}

type QueueView struct {
	Name       string `json:"name"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Delayed    int64  `json:"delayed"`
	Dead       int64  `json:"dead"`
}

type DeadJobView struct {
	JobId       string `json:"job_id"`
	RequestId   string `json:"request_id"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	EnqueuedAt  int64  `json:"enqueued_at"`
	LastError   string `json:"last_error"`
}

type ResponseDeadJobs struct {
	Jobs  []DeadJobView `json:"jobs"`
	Count int           `json:"count"`
}

type RequestAlerts struct {
	models.AlertQuery
	RequestList
}

type ResponseAlerts struct {
	Alerts []AlertView `json:"alerts"`
	Count  int         `json:"count"`
}

type RequestRedispatch struct {
	RequestId string `uri:"request_id" binding:"required"`
}

type ResponseRedispatch struct {
	Status    string `json:"status"`
	RequestId string `json:"request_id"`
	JobId     string `json:"job_id"`
}
