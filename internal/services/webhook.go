package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/zeromicro/go-zero/core/logc"
	"github.com/zeromicro/go-zero/core/logx"

	"poundcake/internal/ctx"
	"poundcake/internal/metrics"
	"poundcake/internal/models"
	"poundcake/internal/queue"
	"poundcake/internal/types"
	"poundcake/pkg/tools"
)

type (
	webhookService struct {
		ctx *ctx.Context
	}

	InterWebhookService interface {
		Receive(c context.Context, req *types.RequestWebhook) (*types.ResponseWebhook, error)
	}
)

func newInterWebhookService(ctx *ctx.Context) InterWebhookService {
	return &webhookService{
		ctx: ctx,
	}
}

// Receive 持久化请求与告警后投递一个分发任务，不等待外部引擎
func (s webhookService) Receive(c context.Context, req *types.RequestWebhook) (*types.ResponseWebhook, error) {
	requestId := tools.NewRequestId()
	c = logx.ContextWithFields(c, logx.Field("request_id", requestId))

	payload, err := parseWebhook(req.Body)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("400").Inc()
		logc.Infof(c, "webhook 请求体无效: %s", err.Error())
		return nil, err
	}

	alerts, rejected := s.buildAlerts(c, payload)

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	call := &models.ApiCall{
		RequestId:   requestId,
		Method:      req.Method,
		Path:        req.Path,
		Headers:     req.Headers,
		QueryParams: req.QueryParams,
		Body:        string(req.Body),
		ClientHost:  req.ClientHost,
		ReceivedAt:  receivedAt.Unix(),
	}

	if err := s.ctx.DB.ApiCall().CreateWithAlerts(call, alerts); err != nil {
		metrics.WebhooksReceived.WithLabelValues("500").Inc()
		logc.Errorf(c, "保存 webhook 请求失败: %s", err.Error())
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err.Error())
	}

	// 行已落库后才投递，任务只携带 request_id
	if err := s.ctx.Queue.Enqueue(c, &queue.Job{Type: queue.JobTypeDispatch, RequestId: requestId}); err != nil {
		metrics.WebhooksReceived.WithLabelValues("503").Inc()
		logc.Errorf(c, "投递分发任务失败: %s", err.Error())
		s.complete(c, requestId, http.StatusServiceUnavailable, receivedAt)
		return nil, fmt.Errorf("%w: %s", ErrEnqueue, err.Error())
	}

	s.complete(c, requestId, http.StatusAccepted, receivedAt)

	metrics.WebhooksReceived.WithLabelValues("202").Inc()
	metrics.AlertsReceived.WithLabelValues("accepted").Add(float64(len(alerts)))
	metrics.AlertsReceived.WithLabelValues("rejected").Add(float64(rejected))
	logc.Infow(c, "webhook 已受理",
		logc.Field("alerts_received", len(alerts)),
		logc.Field("alerts_rejected", rejected))

	return &types.ResponseWebhook{
		Status:         "accepted",
		RequestId:      requestId,
		AlertsReceived: len(alerts),
		AlertsRejected: rejected,
	}, nil
}

// complete 回写响应状态，失败只记录日志
func (s webhookService) complete(c context.Context, requestId string, statusCode int, receivedAt time.Time) {
	now := time.Now()
	err := s.ctx.DB.ApiCall().Complete(requestId, statusCode, now.Unix(), now.Sub(receivedAt).Milliseconds())
	if err != nil {
		logc.Errorf(c, "回写请求状态失败: %s", err.Error())
	}
}

// parseWebhook 顶层必须是 JSON 对象，alerts 缺省视为空列表
func parseWebhook(body []byte) (*models.AlertmanagerWebhook, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: 请求体必须是 JSON 对象", ErrMalformedPayload)
	}

	var payload models.AlertmanagerWebhook
	if err := sonic.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}

	return &payload, nil
}

// buildAlerts 逐条解析，单条格式错误只跳过该条
func (s webhookService) buildAlerts(c context.Context, payload *models.AlertmanagerWebhook) ([]models.Alert, int) {
	alerts := make([]models.Alert, 0, len(payload.Alerts))
	rejected := 0

	for i, raw := range payload.Alerts {
		var entry models.AlertmanagerAlert
		if err := sonic.Unmarshal(raw, &entry); err != nil {
			rejected++
			logc.Infof(c, "alerts[%d] 解析失败, 已跳过: %s", i, err.Error())
			continue
		}

		alertName := entry.Labels["alertname"]
		if entry.Fingerprint == "" || alertName == "" {
			rejected++
			logc.Infof(c, "alerts[%d] 缺少 fingerprint 或 alertname, 已跳过", i)
			continue
		}

		status := entry.Status
		if status == "" {
			status = payload.Status
		}
		if status == "" {
			status = string(models.AlertFiring)
		}

		alerts = append(alerts, models.Alert{
			Fingerprint:  entry.Fingerprint,
			Status:       status,
			AlertName:    alertName,
			Severity:     entry.Labels["severity"],
			Instance:     entry.Labels["instance"],
			Labels:       entry.Labels,
			Annotations:  entry.Annotations,
			StartsAt:     tools.UnixOrZero(entry.StartsAt),
			EndsAt:       tools.UnixOrZero(entry.EndsAt),
			GeneratorURL: entry.GeneratorURL,
		})
	}

	return alerts, rejected
}
