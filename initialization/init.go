package initialization

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis"
	"github.com/zeromicro/go-zero/core/logc"
	"github.com/zeromicro/go-zero/core/logx"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"poundcake/alert/process"
	"poundcake/config"
	"poundcake/internal/ctx"
	"poundcake/internal/queue"
	"poundcake/internal/repo"
	"poundcake/internal/services"
	"poundcake/pkg/client"
	"poundcake/pkg/stackstorm"
)

// Basic 启动阶段构建的依赖，退出时由 Close 释放
type Basic struct {
	Ctx   *ctx.Context
	db    *gorm.DB
	redis *redis.Client
}

// InitBasic 加载配置并初始化数据库、队列、修复引擎与服务层，任一失败直接退出
func InitBasic() *Basic {
	cfg := config.InitConfig()

	logx.MustSetup(logx.LogConf{
		ServiceName: cfg.Log.ServiceName,
		Mode:        cfg.Log.Mode,
		Encoding:    cfg.Log.Encoding,
		Level:       cfg.Log.Level,
	})

	b, err := NewBasic(context.Background(), cfg)
	logx.Must(err)

	return b
}

func NewBasic(c context.Context, cfg config.App) (*Basic, error) {
	db, err := client.NewDBClient(dbConfig(cfg))
	if err != nil {
		return nil, err
	}

	return newBasic(c, cfg, db)
}

// dbConfig server.mode 为 debug 时打开 gorm SQL 日志
func dbConfig(cfg config.App) client.DBConfig {
	return client.DBConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Pass:         cfg.Database.Pass,
		DBName:       cfg.Database.DBName,
		Timeout:      cfg.Database.Timeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		Debug:        cfg.Server.Mode == gin.DebugMode,
	}
}

func newBasic(c context.Context, cfg config.App, db *gorm.DB) (*Basic, error) {
	if err := repo.AutoMigrate(db); err != nil {
		logc.Errorf(c, "数据表迁移失败: %s", err.Error())
		return nil, err
	}

	rdb, err := client.NewRedisClient(client.RedisConfig{
		Host: cfg.Redis.Host,
		Port: cfg.Redis.Port,
		Pass: cfg.Redis.Pass,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}

	rules, err := process.CompileRules(cfg.Dispatch.Rules)
	if err != nil {
		_ = rdb.Close()
		logc.Errorf(c, "加载修复规则失败: %s", err.Error())
		return nil, err
	}
	logc.Infof(c, "已加载 %d 条修复规则", rules.Len())

	q := queue.New(rdb, queue.Options{
		Name: cfg.Queue.Name,
		Retry: queue.RetryConfig{
			MaxAttempts:   cfg.Queue.MaxAttempts,
			InitialDelay:  cfg.Queue.InitialDelay,
			MaxDelay:      cfg.Queue.MaxDelay,
			BackoffFactor: cfg.Queue.BackoffFactor,
		},
		PollTimeout:       cfg.Queue.PollTimeout,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})

	engine := stackstorm.NewClient(stackstorm.Config{
		Url:       cfg.StackStorm.Url,
		ApiKey:    cfg.StackStorm.ApiKey,
		AuthToken: cfg.StackStorm.AuthToken,
		Timeout:   cfg.StackStorm.Timeout,
	})

	ctx := ctx.NewContext(c, cfg, repo.NewRepoEntry(db), q, engine, rules)
	services.NewServices(ctx)

	return &Basic{Ctx: ctx, db: db, redis: rdb}, nil
}

// Close 释放数据库与 Redis 连接
func (b *Basic) Close() error {
	var errs error
	if sqlDB, err := b.db.DB(); err == nil {
		errs = multierr.Append(errs, sqlDB.Close())
	}
	errs = multierr.Append(errs, b.redis.Close())
	return errs
}
