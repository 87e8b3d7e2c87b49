package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeromicro/go-zero/core/logc"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"poundcake/alert/process"
	"poundcake/internal/ctx"
	"poundcake/internal/metrics"
	"poundcake/internal/models"
	"poundcake/internal/queue"
	"poundcake/internal/types"
	"poundcake/pkg/stackstorm"
	"poundcake/pkg/tools"
)

const (
	executionCreated = "created"
	executionSkipped = "skipped"
	executionError   = "error"
	executionNoMatch = "no_match"
)

type (
	dispatchService struct {
		ctx *ctx.Context
	}

	InterDispatchService interface {
		HandleJob(c context.Context, job queue.Job) error
		Redispatch(c context.Context, requestId string) (*types.ResponseRedispatch, error)
	}
)

func newInterDispatchService(ctx *ctx.Context) InterDispatchService {
	return &dispatchService{
		ctx: ctx,
	}
}

// HandleJob 以数据库中的记录为准重新加载告警，逐条匹配规则并调用外部引擎
// 可重复执行：已存在关联的 (request, alert, rule) 不会再次调用引擎
func (s dispatchService) HandleJob(c context.Context, job queue.Job) error {
	call, err := s.ctx.DB.ApiCall().GetByRequestId(job.RequestId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return queue.Permanent(fmt.Errorf("%w: request %s", ErrNotFound, job.RequestId))
	}
	if err != nil {
		return err
	}

	alerts, err := s.ctx.DB.Alert().ListByApiCall(call.ID)
	if err != nil {
		return err
	}

	var (
		errs      error
		retryable bool
	)
	for _, alert := range alerts {
		rules := s.ctx.Rules.Match(alert)
		if len(rules) == 0 {
			metrics.Executions.WithLabelValues(executionNoMatch).Inc()
			if err := s.ctx.DB.Alert().MarkMatched(alert.ID, false, ""); err != nil {
				errs = multierr.Append(errs, err)
				retryable = true
			}
			continue
		}

		if err := s.ctx.DB.Alert().MarkMatched(alert.ID, true, rules[0].Name); err != nil {
			errs = multierr.Append(errs, err)
			retryable = true
			continue
		}

		for _, rule := range rules {
			if err := s.dispatch(c, call.RequestId, alert, rule); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("alert %d rule %s: %w", alert.ID, rule.Name, err))
				if !errors.Is(err, stackstorm.ErrMissingExecutionId) {
					retryable = true
				}
			}
		}
	}

	if errs != nil && !retryable {
		// 引擎已受理但没有返回执行 ID，重试只会再创建一次执行
		return queue.Permanent(errs)
	}

	return errs
}

// Redispatch 为已有请求重新投递分发任务，已关联的告警不会重复调用引擎
func (s dispatchService) Redispatch(c context.Context, requestId string) (*types.ResponseRedispatch, error) {
	if !tools.ValidRequestId(requestId) {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestId)
	}
	if _, err := s.ctx.DB.ApiCall().GetByRequestId(requestId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestId)
		}
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err.Error())
	}

	job := &queue.Job{Type: queue.JobTypeDispatch, RequestId: requestId}
	if err := s.ctx.Queue.Enqueue(c, job); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEnqueue, err.Error())
	}

	logc.Infof(c, "request %s 已重新投递, job: %s", requestId, job.Id)
	return &types.ResponseRedispatch{Status: "queued", RequestId: requestId, JobId: job.Id}, nil
}

func (s dispatchService) dispatch(c context.Context, requestId string, alert models.Alert, rule process.Rule) error {
	exists, err := s.ctx.DB.ExecutionLink().Exists(requestId, alert.ID, rule.Name)
	if err != nil {
		return err
	}
	if exists {
		metrics.Executions.WithLabelValues(executionSkipped).Inc()
		logc.Infof(c, "告警 %d 已关联规则 %s 的执行, 跳过", alert.ID, rule.Name)
		return nil
	}

	callCtx := c
	if timeout := s.ctx.Config.StackStorm.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(c, timeout)
		defer cancel()
	}

	exec, err := s.ctx.Engine.CreateExecution(callCtx, rule.Action, process.BuildParameters(requestId, alert, rule))
	if errors.Is(err, stackstorm.ErrMissingExecutionId) {
		metrics.Executions.WithLabelValues(executionError).Inc()
		logc.Errorf(c, "告警 %d 已被引擎受理但缺少执行 ID, 不再重试, action: %s", alert.ID, rule.Action)
		return err
	}
	if err != nil {
		metrics.Executions.WithLabelValues(executionError).Inc()
		logc.Errorw(c, "调用外部引擎失败",
			logc.Field("alert_id", alert.ID),
			logc.Field("action", rule.Action),
			logc.Field("temporary", stackstorm.IsTemporary(err)),
			logc.Field("error", err.Error()))
		return err
	}

	alertId := alert.ID
	link := &models.ExecutionLink{
		RequestId:   requestId,
		AlertId:     &alertId,
		ExecutionId: exec.Id,
		RuleRef:     rule.Name,
		ActionRef:   rule.Action,
	}
	if err := s.ctx.DB.ExecutionLink().Create(link); err != nil {
		// 引擎已受理但关联未写入，重试时会再次调用引擎
		logc.Errorf(c, "保存执行关联失败, execution: %s, err: %s", exec.Id, err.Error())
		return err
	}

	metrics.Executions.WithLabelValues(executionCreated).Inc()
	logc.Infow(c, "已创建修复执行",
		logc.Field("alert_id", alert.ID),
		logc.Field("rule", rule.Name),
		logc.Field("action", rule.Action),
		logc.Field("execution_id", exec.Id))

	return nil
}
