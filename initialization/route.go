package initialization

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logc"

	"poundcake/api"
	"poundcake/internal/ctx"
	"poundcake/internal/middleware"
	"poundcake/internal/registry"
)

type controller interface {
	API(r *gin.RouterGroup)
}

// NewRouter 注册全部路由
func NewRouter(ctx *ctx.Context) *gin.Engine {
	if ctx.Config.Server.Mode != "" {
		gin.SetMode(ctx.Config.Server.Mode)
	}

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery(), middleware.AccessLog())

	root := ginEngine.Group("/")
	for _, c := range []controller{
		api.IndexController,
		api.NewWebhookController(ctx.Config.Server.WebhookToken),
		api.QueryController,
		api.HealthController,
	} {
		c.API(root)
	}
	ginEngine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	registry.Check(ctx.Ctx, ginEngine)
	return ginEngine
}

// InitRoute 启动 HTTP 服务，c 取消后在 shutdownTimeout 内优雅退出
func InitRoute(c context.Context, ctx *ctx.Context) error {
	srv := &http.Server{
		Addr:    ":" + ctx.Config.Server.Port,
		Handler: NewRouter(ctx),
	}

	errCh := make(chan error, 1)
	go func() {
		logc.Infof(c, "服务启动, 监听端口: %s", ctx.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logc.Errorf(c, "服务启动失败: %s", err.Error())
			return err
		}
		return nil
	case <-c.Done():
	}

	timeout := ctx.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sc, cancel := context.WithTimeout(context.WithoutCancel(c), timeout)
	defer cancel()

	logc.Info(c, "服务正在关闭")
	if err := srv.Shutdown(sc); err != nil {
		logc.Errorf(c, "服务关闭超时: %s", err.Error())
		return err
	}
	return nil
}
