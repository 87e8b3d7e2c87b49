package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"poundcake/internal/models"
)

type (
	entryRepo struct {
		g  InterGormDBCli
		db *gorm.DB
	}

	InterEntryRepo interface {
		ApiCall() InterApiCallRepo
		Alert() InterAlertRepo
		ExecutionLink() InterExecutionLinkRepo
		Ping(ctx context.Context) error
	}
)

func NewRepoEntry(db *gorm.DB) InterEntryRepo {
	g := NewInterGormDBCli(db)
	return &entryRepo{
		g:  g,
		db: db,
	}
}

func (e *entryRepo) ApiCall() InterApiCallRepo {
	return newApiCallRepo(e.db, e.g)
}

func (e *entryRepo) Alert() InterAlertRepo {
	return newAlertRepo(e.db, e.g)
}

func (e *entryRepo) ExecutionLink() InterExecutionLinkRepo {
	return newExecutionLinkRepo(e.db, e.g)
}

// Ping 检查数据库连接
func (e *entryRepo) Ping(ctx context.Context) error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接失败: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate 结构变化时迁移三张表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ApiCall{},
		&models.Alert{},
		&models.ExecutionLink{},
	)
}
