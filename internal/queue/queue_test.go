package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestQueue(t *testing.T, maxAttempts int) (*Queue, *fakeClock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := New(client, Options{
		Name: "test",
		Retry: RetryConfig{
			MaxAttempts:   maxAttempts,
			InitialDelay:  time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2,
		},
		PollTimeout:       time.Second,
		VisibilityTimeout: time.Minute,
	})
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	q.now = clock.now

	return q, clock, mr
}

func mustDequeue(t *testing.T, q *Queue) *Delivery {
	t.Helper()
	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func TestEnqueueDequeueAck(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)
	ctx := context.Background()

	job := &Job{RequestId: "req-1"}
	require.NoError(t, q.Enqueue(ctx, job))
	assert.NotEmpty(t, job.Id)
	assert.Equal(t, JobTypeDispatch, job.Type)
	assert.Equal(t, 3, job.MaxAttempts)

	d := mustDequeue(t, q)
	assert.Equal(t, "req-1", d.Job.RequestId)
	assert.Equal(t, job.Id, d.Job.Id)
	assert.Zero(t, d.Job.Attempt)

	s, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processing: 1}, s)

	require.NoError(t, q.Ack(ctx, d))
	s, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, s)
}

func TestEnqueueRejectsEmptyRequestId(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)
	assert.ErrorIs(t, q.Enqueue(context.Background(), &Job{}), ErrInvalidJob)
}

func TestDequeueFIFO(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, &Job{RequestId: id}))
	}
	for _, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, mustDequeue(t, q).Job.RequestId)
	}
}

func TestDequeueEmpty(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRetryBackoffAndPromote(t *testing.T) {
	q, clock, _ := newTestQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{RequestId: "req-1"}))
	d := mustDequeue(t, q)

	retried, err := q.Retry(ctx, d, errors.New("engine unavailable"))
	require.NoError(t, err)
	assert.True(t, retried)

	s, _ := q.Stats(ctx)
	assert.Equal(t, Stats{Delayed: 1}, s)

	// 未到期不转移
	n, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.advance(time.Second)
	n, err = q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	d = mustDequeue(t, q)
	assert.Equal(t, 1, d.Job.Attempt)
	assert.Equal(t, "engine unavailable", d.Job.LastError)
}

func TestRetryExhaustedGoesToDead(t *testing.T) {
	q, clock, _ := newTestQueue(t, 2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{RequestId: "req-1"}))

	d := mustDequeue(t, q)
	retried, err := q.Retry(ctx, d, errors.New("boom"))
	require.NoError(t, err)
	assert.True(t, retried)

	clock.advance(time.Minute)
	_, err = q.PromoteDue(ctx)
	require.NoError(t, err)

	d = mustDequeue(t, q)
	retried, err = q.Retry(ctx, d, errors.New("boom again"))
	require.NoError(t, err)
	assert.False(t, retried)

	s, _ := q.Stats(ctx)
	assert.Equal(t, Stats{Dead: 1}, s)

	dead, err := q.DeadJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Attempt)
	assert.Equal(t, "boom again", dead[0].LastError)
}

func TestReapExpiredLease(t *testing.T) {
	q, clock, _ := newTestQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{RequestId: "req-1"}))
	first := mustDequeue(t, q)

	n, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.advance(2 * time.Minute)
	n, err = q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	again := mustDequeue(t, q)
	assert.Equal(t, first.Job.Id, again.Job.Id)
	require.NoError(t, q.Ack(ctx, again))

	s, _ := q.Stats(ctx)
	assert.Equal(t, Stats{}, s)
}

func TestExtendAfterReapLosesLease(t *testing.T) {
	q, clock, _ := newTestQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{RequestId: "req-1"}))
	d := mustDequeue(t, q)
	require.NoError(t, q.Extend(ctx, d))

	clock.advance(2 * time.Minute)
	n, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, q.Extend(ctx, d), ErrLeaseLost)
}

// 出队后未写入租约即退出: 先补租约，到期后回收
func TestReapAdoptsJobWithoutLease(t *testing.T) {
	q, clock, _ := newTestQueue(t, 3)
	ctx := context.Background()

	job := &Job{RequestId: "req-1"}
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.client.RPopLPush(q.key("pending"), q.key("processing")).Err())

	n, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	s, _ := q.Stats(ctx)
	assert.Equal(t, Stats{Processing: 1}, s)
	leases, err := q.client.ZCard(q.key("leases")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), leases)

	clock.advance(2 * time.Minute)
	n, err = q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	again := mustDequeue(t, q)
	assert.Equal(t, job.Id, again.Job.Id)
}

func TestDequeueInvalidPayload(t *testing.T) {
	q, _, mr := newTestQueue(t, 3)

	_, err := mr.Lpush(q.key("pending"), "{not json")
	require.NoError(t, err)

	d, err := q.Dequeue(context.Background())
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrInvalidJob)

	s, _ := q.Stats(context.Background())
	assert.Equal(t, Stats{Dead: 1}, s)
}

func TestGetDelay(t *testing.T) {
	r := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Duration(0), r.GetDelay(0))
	assert.Equal(t, time.Second, r.GetDelay(1))
	assert.Equal(t, 2*time.Second, r.GetDelay(2))
	assert.Equal(t, 4*time.Second, r.GetDelay(3))
	assert.Equal(t, 5*time.Second, r.GetDelay(4))
	assert.Equal(t, 5*time.Second, r.GetDelay(30))
}

func TestPermanent(t *testing.T) {
	base := errors.New("not found")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestWorkerProcessOutcomes(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)
	ctx := context.Background()

	var calls int32
	w := NewWorker(q, 1, func(ctx context.Context, job Job) error {
		switch job.RequestId {
		case "panic":
			panic("handler exploded")
		case "permanent":
			return Permanent(errors.New("unknown request"))
		case "flaky":
			return errors.New("timeout")
		}
		atomic.AddInt32(&calls, 1)
		return nil
	})

	for _, id := range []string{"panic", "permanent", "flaky", "ok"} {
		require.NoError(t, q.Enqueue(ctx, &Job{RequestId: id}))
	}

	assert.Equal(t, ResultRetried, w.Process(ctx, mustDequeue(t, q)))
	assert.Equal(t, ResultFailed, w.Process(ctx, mustDequeue(t, q)))
	assert.Equal(t, ResultRetried, w.Process(ctx, mustDequeue(t, q)))
	assert.Equal(t, ResultAcked, w.Process(ctx, mustDequeue(t, q)))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	s, _ := q.Stats(ctx)
	assert.Equal(t, Stats{Delayed: 2, Dead: 1}, s)
}

// 处理时间超过租约时长时持续续租，不会被回收给其他 worker
func TestWorkerRenewsLeaseWhileRunning(t *testing.T) {
	q, clock, _ := newTestQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{RequestId: "req-1"}))
	d := mustDequeue(t, q)

	w := NewWorker(q, 1, func(ctx context.Context, job Job) error {
		clock.advance(2 * time.Minute)

		require.Eventually(t, func() bool {
			score, err := q.client.ZScore(q.key("leases"), d.raw).Result()
			return err == nil && score > q.millis(clock.now())
		}, 5*time.Second, 5*time.Millisecond)

		n, err := q.ReapExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		other, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, other)
		return nil
	})
	w.renewEvery = 5 * time.Millisecond

	assert.Equal(t, ResultAcked, w.Process(ctx, d))

	s, _ := q.Stats(ctx)
	assert.Equal(t, Stats{}, s)
	leases, err := q.client.ZCard(q.key("leases")).Result()
	require.NoError(t, err)
	assert.Zero(t, leases)
}

// 退出信号不会中断正在处理的任务，也不计入失败次数
func TestWorkerFinishesJobAfterCancel(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)

	require.NoError(t, q.Enqueue(context.Background(), &Job{RequestId: "req-1"}))
	d := mustDequeue(t, q)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(q, 1, func(ctx context.Context, job Job) error {
		return ctx.Err()
	})
	assert.Equal(t, ResultAcked, w.Process(ctx, d))

	s, _ := q.Stats(context.Background())
	assert.Equal(t, Stats{}, s)
}

func TestWorkerRunDrainsAndStops(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 20
	for i := 0; i < total; i++ {
		require.NoError(t, q.Enqueue(ctx, &Job{RequestId: "req"}))
	}

	var handled int32
	w := NewWorker(q, 4, func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&handled) == total
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker 未在取消后退出")
	}

	s, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, s)
}

func TestMaintainerPromotes(t *testing.T) {
	q, _, _ := newTestQueue(t, 3)
	q.now = time.Now
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{RequestId: "req-1"}))
	d := mustDequeue(t, q)
	_, err := q.Retry(ctx, d, errors.New("later"))
	require.NoError(t, err)

	m := NewMaintainer(q, time.Second, time.Second)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, err := q.Stats(ctx)
		return err == nil && s.Pending == 1 && s.Delayed == 0
	}, 5*time.Second, 50*time.Millisecond)
}
