package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zeromicro/go-zero/core/logc"

	"poundcake/pkg/response"
)

// WebhookToken 校验 Authorization: Bearer <token> 或 X-API-Key；token 为空表示不校验
func WebhookToken(webhookToken string) gin.HandlerFunc {
	return func(context *gin.Context) {
		if webhookToken == "" {
			context.Next()
			return
		}

		token := context.Request.Header.Get("X-API-Key")
		if token == "" {
			auth := context.Request.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(webhookToken)) != 1 {
			logc.Infof(context.Request.Context(), "拒绝未授权的 webhook 请求, ip: %s", context.ClientIP())
			response.TokenFail(context)
			return
		}

		context.Next()
	}
}
