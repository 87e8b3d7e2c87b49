package registry

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/zeromicro/go-zero/core/logc"
)

// ApiEndpoint 表示单个API接口
type ApiEndpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
	Group       string `json:"group"`
}

// GetAllApiEndpoints 服务对外暴露的全部接口
func GetAllApiEndpoints() []ApiEndpoint {
	return []ApiEndpoint{
		// 告警接入
		{"/webhook", "POST", "接收 Alertmanager webhook", "ingest"},

		// 查询
		{"/status/:request_id", "GET", "查询请求的告警与执行关联", "query"},
		{"/requests/:request_id/retry", "POST", "重新投递分发任务", "query"},
		{"/alerts", "GET", "按条件查询告警", "query"},
		{"/alerts/active", "GET", "firing 状态的告警", "query"},
		{"/executions/recent", "GET", "最近的请求", "query"},
		{"/executions/links", "GET", "执行关联列表", "query"},
		{"/stats", "GET", "汇总统计", "query"},
		{"/queue/dead", "GET", "死信任务", "query"},

		// 运维
		{"/", "GET", "接口目录", "ops"},
		{"/health", "GET", "健康检查", "ops"},
		{"/health/ready", "GET", "就绪检查", "ops"},
		{"/health/live", "GET", "存活检查", "ops"},
		{"/metrics", "GET", "Prometheus 指标", "ops"},
	}
}

// Missing 返回目录中有但路由未注册的接口
func Missing(routes gin.RoutesInfo) []ApiEndpoint {
	registered := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		registered[r.Method+" "+r.Path] = struct{}{}
	}

	var missing []ApiEndpoint
	for _, e := range GetAllApiEndpoints() {
		if _, ok := registered[e.Method+" "+e.Path]; !ok {
			missing = append(missing, e)
		}
	}
	return missing
}

// Check 启动时核对接口目录与实际路由
func Check(ctx context.Context, engine *gin.Engine) {
	missing := Missing(engine.Routes())
	for _, e := range missing {
		logc.Errorf(ctx, "接口未注册: %s %s", e.Method, e.Path)
	}
	if len(missing) == 0 {
		logc.Infof(ctx, "已注册 %d 个接口", len(GetAllApiEndpoints()))
	}
}
