package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poundcake/internal/queue"
	"poundcake/internal/types"
	"poundcake/pkg/stackstorm"
)

func (e *testEnv) status(t *testing.T, requestId string) types.ResponseStatus {
	t.Helper()
	data, err := e.query.Status(&types.RequestStatus{RequestId: requestId})
	require.Nil(t, err)
	return data.(types.ResponseStatus)
}

func TestDispatchMatchedAlert(t *testing.T) {
	env := newTestEnv(t)

	resp, d := env.ingest(t, payload(alertJSON("HostDown", "f1", "firing")))
	require.NoError(t, env.dispatch.HandleJob(context.Background(), d.Job))

	calls := env.engine.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "remediation.host_down_workflow", calls[0].Action)
	assert.Equal(t, resp.RequestId, calls[0].Params["poundcake_request_id"])
	assert.Equal(t, "HostDown", calls[0].Params["alert_name"])
	assert.Equal(t, "f1", calls[0].Params["fingerprint"])

	st := env.status(t, resp.RequestId)
	require.Len(t, st.Alerts, 1)
	assert.Equal(t, "HostDown", st.Alerts[0].AlertName)
	assert.Equal(t, "matched", st.Alerts[0].MatchState)
	assert.Equal(t, "poundcake.host_down", st.Alerts[0].RuleRef)
	require.Len(t, st.Executions, 1)
	assert.Equal(t, "E1", st.Executions[0].ExecutionId)
	assert.Equal(t, "poundcake.host_down", st.Executions[0].RuleRef)
	assert.Equal(t, "remediation.host_down_workflow", st.Executions[0].ActionRef)
}

func TestDispatchIdempotent(t *testing.T) {
	env := newTestEnv(t)

	resp, d := env.ingest(t, payload(alertJSON("HostDown", "f1", "firing"), alertJSON("DiskFull", "f2", "firing")))
	require.NoError(t, env.dispatch.HandleJob(context.Background(), d.Job))
	require.NoError(t, env.dispatch.HandleJob(context.Background(), d.Job))

	assert.Len(t, env.engine.Calls(), 2)
	links, err := env.ctx.DB.ExecutionLink().ListByRequestId(resp.RequestId)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestDispatchNoMatch(t *testing.T) {
	env := newTestEnv(t)

	resp, d := env.ingest(t, payload(alertJSON("SomethingElse", "f9", "firing"), alertJSON("HostDown", "f1", "resolved")))
	require.NoError(t, env.dispatch.HandleJob(context.Background(), d.Job))

	assert.Empty(t, env.engine.Calls())

	st := env.status(t, resp.RequestId)
	require.Len(t, st.Alerts, 2)
	assert.Equal(t, "unmatched", st.Alerts[0].MatchState)
	assert.Equal(t, "unmatched", st.Alerts[1].MatchState)
	assert.NotNil(t, st.Executions)
	assert.Empty(t, st.Executions)
}

func TestDispatchUnknownRequest(t *testing.T) {
	env := newTestEnv(t)

	err := env.dispatch.HandleJob(context.Background(), queue.Job{RequestId: "missing"})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatchEngineFailureRetries(t *testing.T) {
	env := newTestEnv(t)

	failing := true
	env.engine.create = func(action string, params map[string]interface{}) error {
		if failing && params["fingerprint"] == "f1" {
			return &stackstorm.APIError{StatusCode: 503, Body: "busy"}
		}
		return nil
	}

	resp, d := env.ingest(t, payload(alertJSON("HostDown", "f1", "firing"), alertJSON("DiskFull", "f2", "firing")))

	err := env.dispatch.HandleJob(context.Background(), d.Job)
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))

	links, _ := env.ctx.DB.ExecutionLink().ListByRequestId(resp.RequestId)
	require.Len(t, links, 1)

	// 重试时只补发失败的告警
	failing = false
	require.NoError(t, env.dispatch.HandleJob(context.Background(), d.Job))
	assert.Len(t, env.engine.Calls(), 3)

	links, _ = env.ctx.DB.ExecutionLink().ListByRequestId(resp.RequestId)
	assert.Len(t, links, 2)
}

// 引擎返回 4xx 同样按重试策略处理，恢复后补发
func TestDispatchEngineRejectIsRetried(t *testing.T) {
	env := newTestEnv(t)
	rejecting := true
	env.engine.create = func(string, map[string]interface{}) error {
		if rejecting {
			return &stackstorm.APIError{StatusCode: 400, Body: "unknown action"}
		}
		return nil
	}

	w := queue.NewWorker(env.ctx.Queue, 1, env.dispatch.HandleJob)
	c := context.Background()
	resp, d := env.ingest(t, payload(alertJSON("HostDown", "f1", "firing")))

	err := env.dispatch.HandleJob(c, d.Job)
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
	assert.Equal(t, queue.ResultRetried, w.Process(c, d))

	require.Eventually(t, func() bool {
		n, err := env.ctx.Queue.PromoteDue(c)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	rejecting = false
	d, err = env.ctx.Queue.Dequeue(c)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Job.Attempt)
	assert.Equal(t, queue.ResultAcked, w.Process(c, d))

	links, err := env.ctx.DB.ExecutionLink().ListByRequestId(resp.RequestId)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

// 引擎已受理却没有返回执行 ID: 不重试，避免重复创建执行
func TestDispatchMissingExecutionIdIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	env.engine.create = func(string, map[string]interface{}) error {
		return stackstorm.ErrMissingExecutionId
	}

	resp, d := env.ingest(t, payload(alertJSON("HostDown", "f1", "firing")))

	err := env.dispatch.HandleJob(context.Background(), d.Job)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, stackstorm.ErrMissingExecutionId)

	w := queue.NewWorker(env.ctx.Queue, 1, env.dispatch.HandleJob)
	assert.Equal(t, queue.ResultFailed, w.Process(context.Background(), d))
	assert.Len(t, env.engine.Calls(), 2)

	links, err := env.ctx.DB.ExecutionLink().ListByRequestId(resp.RequestId)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestDispatchEngineTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.ctx.Config.StackStorm.Timeout = 50 * time.Millisecond

	env.engine.create = nil
	blocking := &blockingEngine{}
	env.ctx.Engine = blocking

	_, d := env.ingest(t, payload(alertJSON("HostDown", "f1", "firing")))

	start := time.Now()
	err := env.dispatch.HandleJob(context.Background(), d.Job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, queue.IsPermanent(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

type blockingEngine struct{}

func (blockingEngine) CreateExecution(c context.Context, action string, params map[string]interface{}) (stackstorm.Execution, error) {
	<-c.Done()
	return stackstorm.Execution{}, c.Err()
}

func (blockingEngine) GetExecution(c context.Context, id string) (stackstorm.Execution, error) {
	return stackstorm.Execution{}, stackstorm.ErrUnavailable
}

// 引擎持续失败: 重试耗尽后任务进入死信，没有关联记录，后续任务照常处理
func TestDispatchRetryExhaustedThroughWorker(t *testing.T) {
	env := newTestEnv(t)
	env.engine.create = func(action string, params map[string]interface{}) error {
		if params["fingerprint"] == "bad" {
			return errors.New("connection refused")
		}
		return nil
	}

	w := queue.NewWorker(env.ctx.Queue, 1, env.dispatch.HandleJob)
	c := context.Background()

	bad, err := env.webhook.Receive(c, webhookRequest(payload(alertJSON("HostDown", "bad", "firing"))))
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		d, err := env.ctx.Queue.Dequeue(c)
		require.NoError(t, err)
		require.NotNil(t, d, "attempt %d", attempt)

		result := w.Process(c, d)
		if attempt < 3 {
			assert.Equal(t, queue.ResultRetried, result)
			require.Eventually(t, func() bool {
				n, err := env.ctx.Queue.PromoteDue(c)
				return err == nil && n == 1
			}, time.Second, 5*time.Millisecond)
		} else {
			assert.Equal(t, queue.ResultFailed, result)
		}
	}

	links, err := env.ctx.DB.ExecutionLink().ListByRequestId(bad.RequestId)
	require.NoError(t, err)
	assert.Empty(t, links)

	dead, err := env.ctx.Queue.DeadJobs(c, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, bad.RequestId, dead[0].RequestId)
	assert.Contains(t, dead[0].LastError, "connection refused")

	good, d := env.ingest(t, payload(alertJSON("HostDown", "good", "firing")))
	assert.Equal(t, queue.ResultAcked, w.Process(c, d))

	links, err = env.ctx.DB.ExecutionLink().ListByRequestId(good.RequestId)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestRedispatch(t *testing.T) {
	env := newTestEnv(t)
	c := context.Background()

	resp, d := env.ingest(t, payload(alertJSON("HostDown", "f1", "firing")))
	require.NoError(t, env.dispatch.HandleJob(c, d.Job))
	require.NoError(t, env.ctx.Queue.Ack(c, d))

	out, err := env.dispatch.Redispatch(c, resp.RequestId)
	require.NoError(t, err)
	assert.Equal(t, "queued", out.Status)
	assert.NotEmpty(t, out.JobId)

	again, err := env.ctx.Queue.Dequeue(c)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.NoError(t, env.dispatch.HandleJob(c, again.Job))

	// 已关联的告警不会再次调用引擎
	assert.Len(t, env.engine.Calls(), 1)

	_, err = env.dispatch.Redispatch(c, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
