package repo

import (
	"gorm.io/gorm"

	"poundcake/internal/models"
)

type (
	apiCallRepo struct {
		entryRepo
	}

	InterApiCallRepo interface {
		CreateWithAlerts(call *models.ApiCall, alerts []models.Alert) error
		Complete(requestId string, statusCode int, completedAt, processingTimeMs int64) error
		GetByRequestId(requestId string) (models.ApiCall, error)
		ListRecent(page models.Page) ([]models.ApiCall, error)
		Count() (int64, error)
	}
)

func newApiCallRepo(db *gorm.DB, g InterGormDBCli) InterApiCallRepo {
	return &apiCallRepo{
		entryRepo{
			g:  g,
			db: db,
		},
	}
}

// CreateWithAlerts 在同一事务中写入请求记录及其告警
// 写入成功后 call.ID 与 alerts[i].ID 会被回填
func (r apiCallRepo) CreateWithAlerts(call *models.ApiCall, alerts []models.Alert) error {
	return r.g.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(call).Error; err != nil {
			return err
		}

		if len(alerts) == 0 {
			return nil
		}

		for i := range alerts {
			alerts[i].ApiCallId = call.ID
			alerts[i].RequestId = call.RequestId
		}
		return tx.CreateInBatches(&alerts, 100).Error
	})
}

// Complete 回写响应状态，每条记录只回写一次
func (r apiCallRepo) Complete(requestId string, statusCode int, completedAt, processingTimeMs int64) error {
	u := Updates{
		Table: &models.ApiCall{},
		Where: map[string]interface{}{
			"request_id = ?":   requestId,
			"completed_at = ?": 0,
		},
		Updates: map[string]interface{}{
			"status_code":        statusCode,
			"completed_at":       completedAt,
			"processing_time_ms": processingTimeMs,
		},
	}
	return r.g.Updates(u)
}

// GetByRequestId 未找到时返回 gorm.ErrRecordNotFound
func (r apiCallRepo) GetByRequestId(requestId string) (models.ApiCall, error) {
	var call models.ApiCall
	err := r.db.Model(&models.ApiCall{}).
		Where("request_id = ?", requestId).
		First(&call).Error

	return call, err
}

// ListRecent 按接收时间倒序
func (r apiCallRepo) ListRecent(page models.Page) ([]models.ApiCall, error) {
	var calls []models.ApiCall
	err := r.db.Model(&models.ApiCall{}).
		Order("received_at DESC").
		Order("id DESC").
		Limit(int(page.Size)).
		Offset(page.Offset()).
		Find(&calls).Error

	return calls, err
}

func (r apiCallRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.ApiCall{}).Count(&count).Error
	return count, err
}
