package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody 错误响应
type ErrorBody struct {
	Detail string `json:"detail"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, data)
}

func Accepted(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusAccepted, data)
}

// Fail 输出错误并中止后续处理
func Fail(ctx *gin.Context, code int, msg string) {
	ctx.AbortWithStatusJSON(code, ErrorBody{Detail: msg})
}

func TokenFail(ctx *gin.Context) {
	ctx.Header("WWW-Authenticate", `Bearer realm="poundcake"`)
	Fail(ctx, http.StatusUnauthorized, "unauthorized")
}
