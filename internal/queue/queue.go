package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/zeromicro/go-zero/core/logc"
)

var (
	ErrInvalidJob = errors.New("invalid job")
	// ErrLeaseLost 租约已被回收，任务可能已交给其他 worker
	ErrLeaseLost = errors.New("lease lost")
)

// 到期的延迟任务移回 pending
var promoteScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(items) do
  redis.call('ZREM', KEYS[1], item)
  redis.call('LPUSH', KEYS[2], item)
end
return #items
`)

// 租约过期的任务从 processing 移回 pending 队尾，优先被再次消费
var reapScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local n = 0
for _, item in ipairs(items) do
  redis.call('ZREM', KEYS[1], item)
  if redis.call('LREM', KEYS[2], 1, item) > 0 then
    redis.call('RPUSH', KEYS[3], item)
    n = n + 1
  end
end
return n
`)

// 仅在租约仍存在时续期
var extendScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[2]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
  return 1
end
return 0
`)

// processing 中没有租约的任务 (出队后写租约前进程退出) 补一个租约，到期后照常回收
var adoptScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[2], 0, -1)
local n = 0
for _, item in ipairs(items) do
  if not redis.call('ZSCORE', KEYS[1], item) then
    redis.call('ZADD', KEYS[1], ARGV[1], item)
    n = n + 1
  end
end
return n
`)

const batchSize = 100

type Options struct {
	Name              string
	Retry             RetryConfig
	PollTimeout       time.Duration
	VisibilityTimeout time.Duration
}

// Queue 基于 Redis list/zset 的可靠队列
//
//	pending    list  待消费
//	processing list  已出队未确认
//	leases     zset  processing 中任务的租约到期时间
//	delayed    zset  等待重试的任务，score 为可执行时间
//	dead       list  超过重试次数或不可重试的任务
type Queue struct {
	client *redis.Client
	opts   Options
	now    func() time.Time
}

type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

func New(client *redis.Client, opts Options) *Queue {
	if opts.Name == "" {
		opts.Name = JobTypeDispatch
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Second
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = NewDefaultRetryConfig().MaxAttempts
	}

	return &Queue{client: client, opts: opts, now: time.Now}
}

func (q *Queue) key(state string) string {
	return fmt.Sprintf("poundcake:queue:%s:%s", q.opts.Name, state)
}

func (q *Queue) Name() string {
	return q.opts.Name
}

func (q *Queue) VisibilityTimeout() time.Duration {
	return q.opts.VisibilityTimeout
}

func (q *Queue) millis(t time.Time) float64 {
	return float64(t.UnixNano() / int64(time.Millisecond))
}

// Enqueue 写入 pending，补全 Id / MaxAttempts / EnqueuedAt
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job == nil || job.RequestId == "" {
		return ErrInvalidJob
	}
	if job.Id == "" {
		job.Id = newJobId()
	}
	if job.Type == "" {
		job.Type = JobTypeDispatch
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.Retry.MaxAttempts
	}
	if job.EnqueuedAt == 0 {
		job.EnqueuedAt = q.now().Unix()
	}

	raw, err := encodeJob(*job)
	if err != nil {
		return err
	}

	return q.client.WithContext(ctx).LPush(q.key("pending"), raw).Err()
}

// Dequeue 阻塞至多 PollTimeout，无任务时返回 nil, nil
func (q *Queue) Dequeue(ctx context.Context) (*Delivery, error) {
	c := q.client.WithContext(ctx)

	raw, err := c.BRPopLPush(q.key("pending"), q.key("processing"), q.opts.PollTimeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job, err := decodeJob(raw)
	if err != nil {
		// 无法解析的任务直接进入死信
		logc.Errorf(ctx, "队列 %s 任务解析失败, 移入死信: %s", q.opts.Name, err.Error())
		_, txErr := c.TxPipelined(func(p redis.Pipeliner) error {
			p.LRem(q.key("processing"), 1, raw)
			p.LPush(q.key("dead"), raw)
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidJob, err.Error())
	}

	// 写租约失败时任务留在 processing，由 ReapExpired 补租约后回收
	deadline := q.now().Add(q.opts.VisibilityTimeout)
	if err := c.ZAdd(q.key("leases"), redis.Z{Score: q.millis(deadline), Member: raw}).Err(); err != nil {
		return nil, err
	}

	return &Delivery{Job: job, raw: raw}, nil
}

// Extend 处理期间续租，租约已被回收时返回 ErrLeaseLost
func (q *Queue) Extend(ctx context.Context, d *Delivery) error {
	deadline := q.now().Add(q.opts.VisibilityTimeout)
	n, err := q.runScript(ctx, extendScript, []string{q.key("leases")}, q.millis(deadline), d.raw)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Ack 处理成功，从 processing 移除
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.client.WithContext(ctx).TxPipelined(func(p redis.Pipeliner) error {
		p.LRem(q.key("processing"), 1, d.raw)
		p.ZRem(q.key("leases"), d.raw)
		return nil
	})
	return err
}

// Retry 记录失败并按退避时间放入 delayed；次数用尽时进入死信，返回 false
func (q *Queue) Retry(ctx context.Context, d *Delivery, cause error) (bool, error) {
	job := d.Job
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}

	if job.Exhausted() {
		return false, q.moveToDead(ctx, d, job)
	}

	raw, err := encodeJob(job)
	if err != nil {
		return false, err
	}

	runAt := q.now().Add(q.opts.Retry.GetDelay(job.Attempt))
	_, err = q.client.WithContext(ctx).TxPipelined(func(p redis.Pipeliner) error {
		p.LRem(q.key("processing"), 1, d.raw)
		p.ZRem(q.key("leases"), d.raw)
		p.ZAdd(q.key("delayed"), redis.Z{Score: q.millis(runAt), Member: raw})
		return nil
	})

	return err == nil, err
}

// Fail 不再重试，直接进入死信
func (q *Queue) Fail(ctx context.Context, d *Delivery, cause error) error {
	job := d.Job
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	return q.moveToDead(ctx, d, job)
}

func (q *Queue) moveToDead(ctx context.Context, d *Delivery, job Job) error {
	raw, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = q.client.WithContext(ctx).TxPipelined(func(p redis.Pipeliner) error {
		p.LRem(q.key("processing"), 1, d.raw)
		p.ZRem(q.key("leases"), d.raw)
		p.LPush(q.key("dead"), raw)
		return nil
	})
	return err
}

// PromoteDue 将到期的延迟任务移回 pending
func (q *Queue) PromoteDue(ctx context.Context) (int64, error) {
	return q.runScript(ctx, promoteScript, []string{q.key("delayed"), q.key("pending")}, q.millis(q.now()), batchSize)
}

// ReapExpired 回收租约过期的任务（worker 崩溃或超时）
func (q *Queue) ReapExpired(ctx context.Context) (int64, error) {
	deadline := q.now().Add(q.opts.VisibilityTimeout)
	adopted, err := q.runScript(ctx, adoptScript, []string{q.key("leases"), q.key("processing")}, q.millis(deadline))
	if err != nil {
		return 0, err
	}
	if adopted > 0 {
		logc.Infof(ctx, "队列 %s 发现 %d 个无租约的任务, 已补租约", q.opts.Name, adopted)
	}

	return q.runScript(ctx, reapScript, []string{q.key("leases"), q.key("processing"), q.key("pending")}, q.millis(q.now()), batchSize)
}

func (q *Queue) runScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (int64, error) {
	res, err := script.Run(q.client.WithContext(ctx), keys, args...).Result()
	if err != nil {
		return 0, err
	}

	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result %T", res)
	}
	return n, nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	c := q.client.WithContext(ctx)

	var (
		pending    *redis.IntCmd
		processing *redis.IntCmd
		delayed    *redis.IntCmd
		dead       *redis.IntCmd
	)
	_, err := c.Pipelined(func(p redis.Pipeliner) error {
		pending = p.LLen(q.key("pending"))
		processing = p.LLen(q.key("processing"))
		delayed = p.ZCard(q.key("delayed"))
		dead = p.LLen(q.key("dead"))
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

// DeadJobs 最近进入死信的任务，新的在前
func (q *Queue) DeadJobs(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = batchSize
	}

	raws, err := q.client.WithContext(ctx).LRange(q.key("dead"), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.WithContext(ctx).Ping().Err()
}
