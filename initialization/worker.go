package initialization

import (
	"context"

	"github.com/zeromicro/go-zero/core/logc"

	"poundcake/internal/ctx"
	"poundcake/internal/queue"
	"poundcake/internal/services"
)

// Dispatcher 后台分发：消费协程与队列维护任务
type Dispatcher struct {
	worker     *queue.Worker
	maintainer *queue.Maintainer
}

func NewDispatcher(ctx *ctx.Context) *Dispatcher {
	cfg := ctx.Config.Queue
	return &Dispatcher{
		worker:     queue.NewWorker(ctx.Queue, cfg.Concurrency, services.DispatchService.HandleJob),
		maintainer: queue.NewMaintainer(ctx.Queue, cfg.PromoteEvery, cfg.ReapEvery),
	}
}

// Run 阻塞直到 c 取消；正在处理的任务完成后返回
func (d *Dispatcher) Run(c context.Context) error {
	if err := d.maintainer.Start(c); err != nil {
		logc.Errorf(c, "队列维护任务启动失败: %s", err.Error())
		return err
	}
	defer d.maintainer.Stop()

	return d.worker.Run(c)
}
