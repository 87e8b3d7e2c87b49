package client

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logc"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DBConfig struct {
	Host         string
	Port         string
	User         string
	Pass         string
	DBName       string
	Timeout      string
	MaxOpenConns int
	MaxIdleConns int
	Debug        bool
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=True&loc=Local&timeout=%s",
		c.User,
		c.Pass,
		c.Host,
		c.Port,
		c.DBName,
		c.Timeout)
}

// NewDBClient 连接 MySQL，表结构迁移由调用方完成
func NewDBClient(config DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(config.DSN()), &gorm.Config{})
	if err != nil {
		logc.Errorf(context.Background(), "failed to connect database: %s", err.Error())
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}

	if config.Debug {
		db = db.Debug()
	} else {
		db.Logger = logger.Default.LogMode(logger.Silent)
	}

	return db, nil
}
