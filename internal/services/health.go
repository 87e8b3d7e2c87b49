package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"poundcake/internal/ctx"
	"poundcake/internal/global"
	"poundcake/internal/types"
)

const healthCheckTimeout = 3 * time.Second

type (
	healthService struct {
		ctx *ctx.Context
	}

	InterHealthService interface {
		Check(c context.Context) (types.ResponseHealth, error)
	}
)

func newInterHealthService(ctx *ctx.Context) InterHealthService {
	return &healthService{
		ctx: ctx,
	}
}

// Check 检查数据库与队列 broker 的连通性，任一失败即为 unhealthy
func (s healthService) Check(c context.Context) (types.ResponseHealth, error) {
	c, cancel := context.WithTimeout(c, healthCheckTimeout)
	defer cancel()

	resp := types.ResponseHealth{
		Status:    types.HealthHealthy,
		Version:   global.Version,
		UptimeSec: int64(time.Since(global.StartTime).Seconds()),
		Checks:    map[string]string{},
	}

	var errs error
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"database", s.ctx.DB.Ping},
		{"queue", s.ctx.Queue.Ping},
	}
	for _, check := range checks {
		if err := check.fn(c); err != nil {
			resp.Checks[check.name] = err.Error()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", check.name, err))
			continue
		}
		resp.Checks[check.name] = "ok"
	}

	if errs != nil {
		resp.Status = types.HealthUnhealthy
	}

	return resp, errs
}
