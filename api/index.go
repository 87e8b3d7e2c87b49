package api

import (
	"github.com/gin-gonic/gin"

	"poundcake/internal/global"
	"poundcake/internal/registry"
	"poundcake/pkg/response"
)

type indexController struct{}

var IndexController = new(indexController)

func (indexController indexController) API(gin *gin.RouterGroup) {
	gin.GET("", indexController.Index)
}

func (indexController indexController) Index(ctx *gin.Context) {
	response.Success(ctx, gin.H{
		"service":   "poundcake",
		"version":   global.Version,
		"endpoints": registry.GetAllApiEndpoints(),
	})
}
