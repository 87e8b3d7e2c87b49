package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/zeromicro/go-zero/core/logc"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"poundcake/internal/metrics"
)

const (
	ResultAcked   = "acked"
	ResultRetried = "retried"
	ResultFailed  = "failed"
)

type Handler func(ctx context.Context, job Job) error

// Worker 固定数量的消费协程，单个任务出错或 panic 不影响其他任务
type Worker struct {
	queue       *Queue
	handler     Handler
	concurrency int
	backoff     time.Duration
	// 每个租约周期内至少续租两次
	renewEvery  time.Duration
}

func NewWorker(q *Queue, concurrency int, handler Handler) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:       q,
		handler:     handler,
		concurrency: concurrency,
		backoff:     time.Second,
		renewEvery:  q.VisibilityTimeout() / 3,
	}
}

// Run 阻塞直到 ctx 取消；取消后不再出队，正在处理的任务不受取消影响，完成后才返回
func (w *Worker) Run(ctx context.Context) error {
	logc.Infof(ctx, "队列 %s 启动 %d 个消费协程", w.queue.Name(), w.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.loop(gctx)
			return nil
		})
	}

	err := g.Wait()
	logc.Infof(ctx, "队列 %s 消费协程已退出", w.queue.Name())
	return err
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logc.Errorf(ctx, "队列 %s 出队失败: %s", w.queue.Name(), err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}
		if d == nil {
			continue
		}

		w.Process(ctx, d)
	}
}

// Process 执行单个任务并根据结果确认、重试或移入死信
func (w *Worker) Process(ctx context.Context, d *Delivery) string {
	job := d.Job
	ctx = logx.ContextWithFields(ctx,
		logx.Field("job_id", job.Id),
		logx.Field("request_id", job.RequestId),
		logx.Field("attempt", job.Attempt+1),
	)

	// 处理过程中收到退出信号时任务仍需完成并确认，否则退出会被计为一次失败
	ackCtx := context.WithoutCancel(ctx)

	stop := w.keepAlive(ackCtx, d)
	err := w.handle(ackCtx, job)
	stop()

	var result string
	switch {
	case err == nil:
		if ackErr := w.queue.Ack(ackCtx, d); ackErr != nil {
			logc.Errorf(ctx, "任务确认失败: %s", ackErr.Error())
		}
		result = ResultAcked
	case IsPermanent(err):
		logc.Errorw(ctx, "任务不可重试, 移入死信", logc.Field("error", err.Error()))
		if failErr := w.queue.Fail(ackCtx, d, err); failErr != nil {
			logc.Errorf(ctx, "任务移入死信失败: %s", failErr.Error())
		}
		result = ResultFailed
	default:
		retried, retryErr := w.queue.Retry(ackCtx, d, err)
		if retryErr != nil {
			logc.Errorf(ctx, "任务重试登记失败: %s", retryErr.Error())
		}
		if retried {
			logc.Infow(ctx, "任务处理失败, 等待重试", logc.Field("error", err.Error()))
			result = ResultRetried
		} else {
			logc.Errorw(ctx, "任务重试次数耗尽, 移入死信",
				logc.Field("error", err.Error()),
				logc.Field("max_attempts", job.MaxAttempts))
			result = ResultFailed
		}
	}

	metrics.Jobs.WithLabelValues(result).Inc()
	return result
}

// keepAlive 处理期间定期续租，返回的函数停止续租并等待续租协程退出
func (w *Worker) keepAlive(ctx context.Context, d *Delivery) func() {
	if w.renewEvery <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)

		ticker := time.NewTicker(w.renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := w.queue.Extend(ctx, d)
				if errors.Is(err, ErrLeaseLost) {
					logc.Errorf(ctx, "任务租约已被回收, 可能被重复处理")
					return
				}
				if err != nil {
					logc.Errorf(ctx, "任务续租失败: %s", err.Error())
				}
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

func (w *Worker) handle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logc.Errorf(ctx, "任务处理 panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return w.handler(ctx, job)
}
