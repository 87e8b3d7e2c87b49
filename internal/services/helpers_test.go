package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"poundcake/alert/process"
	"poundcake/config"
	"poundcake/internal/ctx"
	"poundcake/internal/queue"
	"poundcake/internal/repo"
	"poundcake/internal/types"
	"poundcake/pkg/stackstorm"
)

type engineCall struct {
	Action string
	Params map[string]interface{}
}

type fakeEngine struct {
	mu     sync.Mutex
	calls  []engineCall
	seq    int
	create func(action string, params map[string]interface{}) error
	get    func(id string) (stackstorm.Execution, error)
}

func (f *fakeEngine) CreateExecution(c context.Context, action string, params map[string]interface{}) (stackstorm.Execution, error) {
	f.mu.Lock()
	f.calls = append(f.calls, engineCall{Action: action, Params: params})
	f.seq++
	id := fmt.Sprintf("E%d", f.seq)
	create := f.create
	f.mu.Unlock()

	if create != nil {
		if err := create(action, params); err != nil {
			return stackstorm.Execution{}, err
		}
	}
	return stackstorm.Execution{Id: id, Status: "requested"}, nil
}

func (f *fakeEngine) GetExecution(c context.Context, id string) (stackstorm.Execution, error) {
	if f.get != nil {
		return f.get(id)
	}
	return stackstorm.Execution{Id: id, Status: "succeeded"}, nil
}

func (f *fakeEngine) Calls() []engineCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engineCall(nil), f.calls...)
}

type testEnv struct {
	ctx    *ctx.Context
	db     *gorm.DB
	mr     *miniredis.Miniredis
	engine *fakeEngine

	webhook  InterWebhookService
	dispatch InterDispatchService
	query    InterQueryService
	health   InterHealthService
}

func testRules() []config.Rule {
	return []config.Rule{
		{Name: "poundcake.host_down", Action: "remediation.host_down_workflow", AlertName: "HostDown|NodeDown", Statuses: []string{"firing"}},
		{Name: "poundcake.disk", Action: "remediation.disk_cleanup_workflow", AlertName: "DiskFull"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "poundcake.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.StackStorm.Timeout = time.Second
	cfg.Query.DefaultLimit = 10
	cfg.Query.MaxLimit = 50
	cfg.Dispatch.Rules = testRules()

	rules, err := process.CompileRules(cfg.Dispatch.Rules)
	require.NoError(t, err)

	q := queue.New(client, queue.Options{
		Name:        "test",
		Retry:       queue.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		PollTimeout: time.Second,
	})

	engine := &fakeEngine{}
	c := ctx.NewContext(context.Background(), cfg, repo.NewRepoEntry(db), q, engine, rules)

	return &testEnv{
		ctx:      c,
		db:       db,
		mr:       mr,
		engine:   engine,
		webhook:  newInterWebhookService(c),
		dispatch: newInterDispatchService(c),
		query:    newInterQueryService(c),
		health:   newInterHealthService(c),
	}
}

func webhookRequest(body string) *types.RequestWebhook {
	return &types.RequestWebhook{
		Method:     "POST",
		Path:       "/webhook",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
		ClientHost: "127.0.0.1",
		ReceivedAt: time.Now(),
	}
}

func alertJSON(name, fingerprint, status string) string {
	return fmt.Sprintf(`{"status":%q,"labels":{"alertname":%q,"instance":"server1","severity":"critical"},"annotations":{"summary":"s"},"startsAt":"2024-01-01T00:00:00Z","endsAt":"0001-01-01T00:00:00Z","generatorURL":"http://prom/graph","fingerprint":%q}`,
		status, name, fingerprint)
}

func payload(alerts ...string) string {
	body := `{"version":"4","status":"firing","receiver":"poundcake","groupLabels":{},"commonLabels":{},"commonAnnotations":{},"alerts":[`
	for i, a := range alerts {
		if i > 0 {
			body += ","
		}
		body += a
	}
	return body + "]}"
}

// ingest 受理 webhook 并取出对应的分发任务
func (e *testEnv) ingest(t *testing.T, body string) (*types.ResponseWebhook, *queue.Delivery) {
	t.Helper()

	resp, err := e.webhook.Receive(context.Background(), webhookRequest(body))
	require.NoError(t, err)

	d, err := e.ctx.Queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, resp.RequestId, d.Job.RequestId)

	return resp, d
}
