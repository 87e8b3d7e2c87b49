package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"poundcake/internal/services"
	"poundcake/internal/types"
	"poundcake/pkg/response"
)

type queryController struct{}

var QueryController = new(queryController)

func (queryController queryController) API(gin *gin.RouterGroup) {
	gin.GET("status/:request_id", queryController.Status)
	gin.POST("requests/:request_id/retry", queryController.Redispatch)
	gin.GET("stats", queryController.Stats)

	alerts := gin.Group("alerts")
	{
		alerts.GET("", queryController.Alerts)
		alerts.GET("active", queryController.ActiveAlerts)
	}

	executions := gin.Group("executions")
	{
		executions.GET("recent", queryController.Recent)
		executions.GET("links", queryController.Links)
	}

	gin.GET("queue/dead", queryController.DeadJobs)
}

func (queryController queryController) Status(ctx *gin.Context) {
	r := new(types.RequestStatus)
	if !BindUri(ctx, r) || !BindQuery(ctx, r) {
		return
	}

	Service(ctx, func() (interface{}, interface{}) {
		return services.QueryService.Status(r)
	})
}

func (queryController queryController) Recent(ctx *gin.Context) {
	r := new(types.RequestList)
	if !BindQuery(ctx, r) {
		return
	}

	Service(ctx, func() (interface{}, interface{}) {
		return services.QueryService.Recent(r)
	})
}

func (queryController queryController) ActiveAlerts(ctx *gin.Context) {
	r := new(types.RequestList)
	if !BindQuery(ctx, r) {
		return
	}

	Service(ctx, func() (interface{}, interface{}) {
		return services.QueryService.ActiveAlerts(r)
	})
}

func (queryController queryController) Alerts(ctx *gin.Context) {
	r := new(types.RequestAlerts)
	if !BindQuery(ctx, r) {
		return
	}

	Service(ctx, func() (interface{}, interface{}) {
		return services.QueryService.Alerts(r)
	})
}

func (queryController queryController) Links(ctx *gin.Context) {
	r := new(types.RequestList)
	if !BindQuery(ctx, r) {
		return
	}

	Service(ctx, func() (interface{}, interface{}) {
		return services.QueryService.Links(r)
	})
}

func (queryController queryController) Stats(ctx *gin.Context) {
	Service(ctx, func() (interface{}, interface{}) {
		return services.QueryService.Stats(nil)
	})
}

func (queryController queryController) DeadJobs(ctx *gin.Context) {
	r := new(types.RequestDeadJobs)
	if !BindQuery(ctx, r) {
		return
	}

	Service(ctx, func() (interface{}, interface{}) {
		return services.QueryService.DeadJobs(r)
	})
}

// Redispatch 为已有请求重新投递分发任务，已建立的关联不会重复执行
func (queryController queryController) Redispatch(ctx *gin.Context) {
	r := new(types.RequestRedispatch)
	if !BindUri(ctx, r) {
		return
	}

	resp, err := services.DispatchService.Redispatch(ctx.Request.Context(), r.RequestId)
	if err != nil {
		response.Fail(ctx, StatusCode(err), err.Error())
		return
	}

	ctx.JSON(http.StatusAccepted, resp)
}
