package repo

import (
	"fmt"

	"gorm.io/gorm"
)

type GormDBCli struct {
	db *gorm.DB
}

// InterGormDBCli 所有写操作都包在事务里
type InterGormDBCli interface {
	Create(table, value interface{}) error
	Updates(value Updates) error
	Transaction(operation func(tx *gorm.DB) error) error
}

func NewInterGormDBCli(db *gorm.DB) InterGormDBCli {
	return &GormDBCli{
		db: db,
	}
}

// Create 插入数据，value 必须是指针以便回填自增主键
func (g GormDBCli) Create(table, value interface{}) error {
	return g.executeTransaction(func(tx *gorm.DB) error {
		return tx.Model(table).Create(value).Error
	}, "数据写入失败")
}

// Updates 按条件更新
func (g GormDBCli) Updates(value Updates) error {
	return g.executeTransaction(func(tx *gorm.DB) error {
		tx = tx.Model(value.Table)
		for column, val := range value.Where {
			tx = tx.Where(column, val)
		}
		return tx.Updates(value.Updates).Error
	}, "数据更新失败")
}

// Transaction 一组写操作作为一个整体提交
func (g GormDBCli) Transaction(operation func(tx *gorm.DB) error) error {
	return g.executeTransaction(operation, "事务执行失败")
}

// executeTransaction 执行事务并处理错误
func (g GormDBCli) executeTransaction(operation func(tx *gorm.DB) error, errorMessage string) error {
	tx := g.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("事务启动失败, err: %w", tx.Error)
	}

	if err := operation(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("%s -> %w", errorMessage, err)
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("事务提交失败, err: %w", err)
	}

	return nil
}

// Updates 定义更新数据的结构
type Updates struct {
	Table   interface{}
	Where   map[string]interface{}
	Updates interface{}
}
