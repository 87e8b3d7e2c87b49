package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeromicro/go-zero/core/logc"

	"poundcake/internal/global"
	"poundcake/internal/services"
)

type healthController struct{}

var HealthController = new(healthController)

func (healthController healthController) API(gin *gin.RouterGroup) {
	h := gin.Group("health")
	{
		h.GET("", healthController.Health)
		h.GET("ready", healthController.Health)
		h.GET("live", healthController.Live)
	}
}

// Health 数据库或队列不可达时返回 503
func (healthController healthController) Health(ctx *gin.Context) {
	resp, err := services.HealthService.Check(ctx.Request.Context())
	if err != nil {
		logc.Errorf(ctx.Request.Context(), "健康检查失败: %s", err.Error())
		ctx.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// Live 只表示进程存活，不检查依赖
func (healthController healthController) Live(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":     "alive",
		"version":    global.Version,
		"uptime_sec": int64(time.Since(global.StartTime).Seconds()),
	})
}
