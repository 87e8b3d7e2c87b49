package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"poundcake/internal/middleware"
	"poundcake/internal/services"
	"poundcake/internal/types"
	"poundcake/pkg/response"
	"poundcake/pkg/tools"
)

// RequestIdHeader 受理后回写给调用方的请求标识
const RequestIdHeader = "X-Request-ID"

type webhookController struct {
	token string
}

// NewWebhookController token 来自 server.webhookToken，为空时不校验
func NewWebhookController(token string) *webhookController {
	return &webhookController{token: token}
}

func (webhookController webhookController) API(gin *gin.RouterGroup) {
	gin.POST("webhook",
		middleware.WebhookToken(webhookController.token),
		webhookController.Receive,
	)
}

// Receive 接收 Alertmanager 推送，落库并投递分发任务后立即返回 202
func (webhookController webhookController) Receive(ctx *gin.Context) {
	receivedAt := time.Now()

	body, err := ctx.GetRawData()
	if err != nil {
		response.Fail(ctx, http.StatusBadRequest, "读取请求体失败: "+err.Error())
		return
	}

	query := make(map[string]string, len(ctx.Request.URL.Query()))
	for k, v := range ctx.Request.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	r := &types.RequestWebhook{
		Method:      ctx.Request.Method,
		Path:        ctx.Request.URL.Path,
		Headers:     tools.FlattenHeaders(ctx.Request.Header),
		QueryParams: query,
		Body:        body,
		ClientHost:  ctx.ClientIP(),
		ReceivedAt:  receivedAt,
	}

	resp, err := services.WebhookService.Receive(ctx.Request.Context(), r)
	if err != nil {
		response.Fail(ctx, StatusCode(err), err.Error())
		return
	}

	ctx.Header(RequestIdHeader, resp.RequestId)
	ctx.Set(middleware.RequestIdKey, resp.RequestId)
	response.Accepted(ctx, resp)
}
