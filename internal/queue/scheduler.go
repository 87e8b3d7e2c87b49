package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logc"

	"poundcake/internal/metrics"
)

// Maintainer 队列维护定时任务: 延迟任务到期转移、过期租约回收、队列长度指标
type Maintainer struct {
	queue        *Queue
	cron         *cron.Cron
	promoteEvery time.Duration
	reapEvery    time.Duration
}

func NewMaintainer(q *Queue, promoteEvery, reapEvery time.Duration) *Maintainer {
	if promoteEvery <= 0 {
		promoteEvery = time.Second
	}
	if reapEvery <= 0 {
		reapEvery = 30 * time.Second
	}

	return &Maintainer{
		queue: q,
		// 秒级精度，上一轮未结束时跳过
		cron:         cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		promoteEvery: promoteEvery,
		reapEvery:    reapEvery,
	}
}

func (m *Maintainer) Start(ctx context.Context) error {
	jobs := []struct {
		every time.Duration
		fn    func()
	}{
		{m.promoteEvery, func() { m.promote(ctx) }},
		{m.reapEvery, func() { m.reap(ctx) }},
		{m.promoteEvery, func() { m.observe(ctx) }},
	}

	for _, j := range jobs {
		if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", j.every), j.fn); err != nil {
			return err
		}
	}

	m.cron.Start()
	logc.Infof(ctx, "队列 %s 维护任务已启动, promote: %s, reap: %s", m.queue.Name(), m.promoteEvery, m.reapEvery)
	return nil
}

// Stop 等待正在执行的维护任务结束
func (m *Maintainer) Stop() {
	<-m.cron.Stop().Done()
}

func (m *Maintainer) promote(ctx context.Context) {
	n, err := m.queue.PromoteDue(ctx)
	if err != nil {
		logc.Errorf(ctx, "延迟任务转移失败: %s", err.Error())
		return
	}
	if n > 0 {
		logc.Infof(ctx, "延迟任务到期转移 %d 个", n)
	}
}

func (m *Maintainer) reap(ctx context.Context) {
	n, err := m.queue.ReapExpired(ctx)
	if err != nil {
		logc.Errorf(ctx, "过期租约回收失败: %s", err.Error())
		return
	}
	if n > 0 {
		logc.Infof(ctx, "回收过期租约任务 %d 个", n)
	}
}

func (m *Maintainer) observe(ctx context.Context) {
	s, err := m.queue.Stats(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues("pending").Set(float64(s.Pending))
	metrics.QueueDepth.WithLabelValues("processing").Set(float64(s.Processing))
	metrics.QueueDepth.WithLabelValues("delayed").Set(float64(s.Delayed))
	metrics.QueueDepth.WithLabelValues("dead").Set(float64(s.Dead))
}
