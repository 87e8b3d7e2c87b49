package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logc"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"poundcake/internal/ctx"
	"poundcake/internal/models"
	"poundcake/internal/types"
	"poundcake/pkg/tools"
)

// 引擎回查的最大并发
const engineLookupConcurrency = 8

type (
	queryService struct {
		ctx *ctx.Context
	}

	InterQueryService interface {
		Status(req interface{}) (interface{}, interface{})
		Recent(req interface{}) (interface{}, interface{})
		ActiveAlerts(req interface{}) (interface{}, interface{})
		Alerts(req interface{}) (interface{}, interface{})
		Links(req interface{}) (interface{}, interface{})
		Stats(req interface{}) (interface{}, interface{})
		DeadJobs(req interface{}) (interface{}, interface{})
	}
)

func newInterQueryService(ctx *ctx.Context) InterQueryService {
	return &queryService{
		ctx: ctx,
	}
}

// Status 按 request_id 汇总请求、告警与执行关联
func (s queryService) Status(req interface{}) (interface{}, interface{}) {
	r := req.(*types.RequestStatus)
	if !tools.ValidRequestId(r.RequestId) {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, r.RequestId)
	}

	call, err := s.ctx.DB.ApiCall().GetByRequestId(r.RequestId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logc.Debugf(s.ctx.Ctx, "request %s 不存在", r.RequestId)
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, r.RequestId)
	}
	if err != nil {
		return nil, err
	}

	alerts, err := s.ctx.DB.Alert().ListByApiCall(call.ID)
	if err != nil {
		return nil, err
	}

	links, err := s.ctx.DB.ExecutionLink().ListByRequestId(call.RequestId)
	if err != nil {
		return nil, err
	}

	executions := make([]types.ExecutionView, 0, len(links))
	for _, link := range links {
		executions = append(executions, toExecutionView(link))
	}

	if r.Engine && len(executions) > 0 {
		s.attachEngineRecords(executions)
	}

	return types.ResponseStatus{
		RequestId:        call.RequestId,
		Method:           call.Method,
		Path:             call.Path,
		StatusCode:       call.StatusCode,
		ReceivedAt:       call.ReceivedAt,
		CompletedAt:      call.CompletedAt,
		ProcessingTimeMs: call.ProcessingTimeMs,
		Alerts:           toAlertViews(alerts),
		Executions:       executions,
	}, nil
}

// attachEngineRecords 并发回查引擎中的执行状态，单条失败只记录在该条目上
func (s queryService) attachEngineRecords(executions []types.ExecutionView) {
	g := new(errgroup.Group)
	g.SetLimit(engineLookupConcurrency)

	for i := range executions {
		g.Go(func() error {
			exec, err := s.ctx.Engine.GetExecution(s.ctx.Ctx, executions[i].ExecutionId)
			if err != nil {
				executions[i].EngineError = err.Error()
				return nil
			}
			executions[i].Engine = &types.EngineView{
				Status:         exec.Status,
				Action:         exec.Action.Ref,
				StartTimestamp: exec.StartTimestamp,
				EndTimestamp:   exec.EndTimestamp,
			}
			return nil
		})
	}

	_ = g.Wait()
}

// Recent 最近的 webhook 请求，新的在前
func (s queryService) Recent(req interface{}) (interface{}, interface{}) {
	r := req.(*types.RequestList)

	calls, err := s.ctx.DB.ApiCall().ListRecent(s.page(r))
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(calls))
	requestIds := make([]string, 0, len(calls))
	for _, call := range calls {
		ids = append(ids, call.ID)
		requestIds = append(requestIds, call.RequestId)
	}

	alerts, err := s.ctx.DB.Alert().ListByApiCallIds(ids)
	if err != nil {
		return nil, err
	}
	alertCount := make(map[uint]int, len(calls))
	for _, a := range alerts {
		alertCount[a.ApiCallId]++
	}

	linkCount, err := s.ctx.DB.ExecutionLink().CountByRequestIds(requestIds)
	if err != nil {
		return nil, err
	}

	items := make([]types.RecentRequestView, 0, len(calls))
	for _, call := range calls {
		items = append(items, types.RecentRequestView{
			RequestId:        call.RequestId,
			Method:           call.Method,
			Path:             call.Path,
			StatusCode:       call.StatusCode,
			ReceivedAt:       call.ReceivedAt,
			CompletedAt:      call.CompletedAt,
			ProcessingTimeMs: call.ProcessingTimeMs,
			AlertCount:       alertCount[call.ID],
			ExecutionCount:   linkCount[call.RequestId],
		})
	}

	return types.ResponseRecent{Requests: items, Count: len(items)}, nil
}

// ActiveAlerts 处于 firing 状态的告警
func (s queryService) ActiveAlerts(req interface{}) (interface{}, interface{}) {
	r := req.(*types.RequestList)

	alerts, err := s.ctx.DB.Alert().ListActive(s.page(r))
	if err != nil {
		return nil, err
	}

	views := toAlertViews(alerts)
	return types.ResponseActiveAlerts{Alerts: views, Count: len(views)}, nil
}

// Alerts 按状态、名称、级别、指纹过滤告警
func (s queryService) Alerts(req interface{}) (interface{}, interface{}) {
	r := req.(*types.RequestAlerts)

	alerts, err := s.ctx.DB.Alert().List(r.AlertQuery, s.page(&r.RequestList))
	if err != nil {
		return nil, err
	}

	views := toAlertViews(alerts)
	return types.ResponseAlerts{Alerts: views, Count: len(views)}, nil
}

// Links 全部执行关联，附带告警摘要
func (s queryService) Links(req interface{}) (interface{}, interface{}) {
	r := req.(*types.RequestList)

	links, err := s.ctx.DB.ExecutionLink().ListRecent(s.page(r))
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(links))
	for _, link := range links {
		if link.AlertId != nil {
			ids = append(ids, *link.AlertId)
		}
	}

	alerts, err := s.ctx.DB.Alert().GetByIds(ids)
	if err != nil {
		return nil, err
	}
	byId := make(map[uint]models.Alert, len(alerts))
	for _, a := range alerts {
		byId[a.ID] = a
	}

	views := make([]types.LinkView, 0, len(links))
	for _, link := range links {
		v := types.LinkView{ExecutionView: toExecutionView(link), RequestId: link.RequestId}
		if a, ok := byId[link.GetAlertId()]; ok {
			v.AlertName = a.AlertName
			v.Fingerprint = a.Fingerprint
		}
		views = append(views, v)
	}

	return types.ResponseLinks{Executions: views, Count: len(views)}, nil
}

// Stats 汇总统计，队列不可用时只在结果中标注
func (s queryService) Stats(req interface{}) (interface{}, interface{}) {
	var (
		resp types.ResponseStats
		err  error
	)

	if resp.ApiCalls, err = s.ctx.DB.ApiCall().Count(); err != nil {
		return nil, err
	}
	if resp.Alerts, err = s.ctx.DB.Alert().Count(); err != nil {
		return nil, err
	}
	if resp.AlertsLast24h, err = s.ctx.DB.Alert().CountSince(time.Now().Add(-24 * time.Hour).Unix()); err != nil {
		return nil, err
	}
	if resp.ExecutionLinks, err = s.ctx.DB.ExecutionLink().Count(); err != nil {
		return nil, err
	}
	if resp.AlertsByStatus, err = s.ctx.DB.Alert().CountByStatus(); err != nil {
		return nil, err
	}
	if resp.AlertsByMatchState, err = s.ctx.DB.Alert().CountByMatchState(); err != nil {
		return nil, err
	}

	qs, err := s.ctx.Queue.Stats(s.ctx.Ctx)
	if err != nil {
		resp.QueueError = err.Error()
	} else {
		resp.Queue = &types.QueueView{
			Name:       s.ctx.Queue.Name(),
			Pending:    qs.Pending,
			Processing: qs.Processing,
			Delayed:    qs.Delayed,
			Dead:       qs.Dead,
		}
	}

	return resp, nil
}

// DeadJobs 进入死信的分发任务
func (s queryService) DeadJobs(req interface{}) (interface{}, interface{}) {
	r := req.(*types.RequestDeadJobs)

	jobs, err := s.ctx.Queue.DeadJobs(s.ctx.Ctx, s.limit(r.Limit))
	if err != nil {
		return nil, err
	}

	views := make([]types.DeadJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, types.DeadJobView{
			JobId:       j.Id,
			RequestId:   j.RequestId,
			Attempts:    j.Attempt,
			MaxAttempts: j.MaxAttempts,
			EnqueuedAt:  j.EnqueuedAt,
			LastError:   j.LastError,
		})
	}

	return types.ResponseDeadJobs{Jobs: views, Count: len(views)}, nil
}

func (s queryService) limit(limit int64) int64 {
	q := s.ctx.Config.Query
	if limit <= 0 {
		limit = int64(q.DefaultLimit)
	}
	if q.MaxLimit > 0 && limit > int64(q.MaxLimit) {
		limit = int64(q.MaxLimit)
	}
	if limit <= 0 {
		limit = 20
	}
	return limit
}

func (s queryService) page(r *types.RequestList) models.Page {
	index := r.Page
	if index <= 0 {
		index = 1
	}
	return models.Page{Index: index, Size: s.limit(r.Limit)}
}

func toAlertViews(alerts []models.Alert) []types.AlertView {
	views := make([]types.AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, types.AlertView{
			Id:           a.ID,
			Fingerprint:  a.Fingerprint,
			AlertName:    a.AlertName,
			Status:       a.Status,
			Severity:     a.Severity,
			Instance:     a.Instance,
			Labels:       a.Labels,
			Annotations:  a.Annotations,
			StartsAt:     a.StartsAt,
			EndsAt:       a.EndsAt,
			GeneratorURL: a.GeneratorURL,
			RuleMatched:  a.RuleMatched,
			MatchState:   a.MatchState(),
			RuleRef:      a.RuleRef,
			RequestId:    a.RequestId,
			CreatedAt:    a.CreatedAt,
		})
	}
	return views
}

func toExecutionView(link models.ExecutionLink) types.ExecutionView {
	return types.ExecutionView{
		ExecutionId: link.ExecutionId,
		RuleRef:     link.RuleRef,
		ActionRef:   link.ActionRef,
		AlertId:     link.AlertId,
		CreatedAt:   link.CreatedAt,
	}
}
