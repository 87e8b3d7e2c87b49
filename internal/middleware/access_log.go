package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeromicro/go-zero/core/logc"
	"github.com/zeromicro/go-zero/core/logx"
)

// RequestIdKey 处理器受理 webhook 后写入 gin.Context 的请求标识
const RequestIdKey = "RequestId"

// AccessLog 请求处理完成后输出一条结构化访问日志
func AccessLog() gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()

		// 当请求处理完成后才会执行 Next() 后面的代码
		context.Next()

		fields := []logx.LogField{
			logx.Field("method", context.Request.Method),
			logx.Field("path", context.Request.URL.Path),
			logx.Field("status", context.Writer.Status()),
			logx.Field("client_ip", context.ClientIP()),
			logx.Field("latency_ms", time.Since(start).Milliseconds()),
		}
		if rid := context.GetString(RequestIdKey); rid != "" {
			fields = append(fields, logx.Field("request_id", rid))
		}
		if len(context.Errors) > 0 {
			fields = append(fields, logx.Field("errors", context.Errors.String()))
		}

		c := logx.ContextWithFields(context.Request.Context(), fields...)
		switch {
		case context.Writer.Status() >= 500:
			logc.Error(c, "请求处理失败")
		default:
			logc.Info(c, "请求完成")
		}
	}
}
