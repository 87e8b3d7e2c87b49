package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zeromicro/go-zero/core/logc"

	"poundcake/internal/services"
	"poundcake/pkg/response"
)

// Service 执行业务函数并输出结果，错误按类型映射为状态码
func Service(ctx *gin.Context, fu func() (interface{}, interface{})) {
	data, err := fu()
	if err != nil {
		e, ok := err.(error)
		if !ok {
			e = errors.New(fmt.Sprint(err))
		}
		code := StatusCode(e)
		if code >= http.StatusInternalServerError {
			logc.Errorf(ctx.Request.Context(), "%s %s 处理失败: %s", ctx.Request.Method, ctx.FullPath(), e.Error())
		}
		response.Fail(ctx, code, e.Error())
		return
	}

	response.Success(ctx, data)
}

// StatusCode 服务层错误到 HTTP 状态码
func StatusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEnqueue):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func BindQuery(ctx *gin.Context, r interface{}) bool {
	if err := ctx.ShouldBindQuery(r); err != nil {
		response.Fail(ctx, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func BindUri(ctx *gin.Context, r interface{}) bool {
	if err := ctx.ShouldBindUri(r); err != nil {
		response.Fail(ctx, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
