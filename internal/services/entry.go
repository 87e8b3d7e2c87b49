package services

import (
	"poundcake/internal/ctx"
)

var (
	WebhookService  InterWebhookService
	DispatchService InterDispatchService
	QueryService    InterQueryService
	HealthService   InterHealthService
)

func NewServices(ctx *ctx.Context) {
	WebhookService = newInterWebhookService(ctx)
	DispatchService = newInterDispatchService(ctx)
	QueryService = newInterQueryService(ctx)
	HealthService = newInterHealthService(ctx)
}
