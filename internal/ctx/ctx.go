package ctx

import (
	"context"

	"poundcake/alert/process"
	"poundcake/config"
	"poundcake/internal/queue"
	"poundcake/internal/repo"
	"poundcake/pkg/stackstorm"
)

// Context 启动时显式构建，传入各个服务
type Context struct {
	Ctx    context.Context
	Config config.App
	DB     repo.InterEntryRepo
	Queue  *queue.Queue
	Engine stackstorm.Engine
	Rules  *process.Ruleset
}

func NewContext(ctx context.Context, cfg config.App, db repo.InterEntryRepo, q *queue.Queue, engine stackstorm.Engine, rules *process.Ruleset) *Context {
	return &Context{
		Ctx:    ctx,
		Config: cfg,
		DB:     db,
		Queue:  q,
		Engine: engine,
		Rules:  rules,
	}
}
