package repo

import (
	"gorm.io/gorm"

	"poundcake/internal/models"
)

type (
	executionLinkRepo struct {
		entryRepo
	}

	InterExecutionLinkRepo interface {
		Create(link *models.ExecutionLink) error
		Exists(requestId string, alertId uint, ruleRef string) (bool, error)
		ListByRequestId(requestId string) ([]models.ExecutionLink, error)
		ListRecent(page models.Page) ([]models.ExecutionLink, error)
		CountByRequestIds(requestIds []string) (map[string]int64, error)
		Count() (int64, error)
	}
)

func newExecutionLinkRepo(db *gorm.DB, g InterGormDBCli) InterExecutionLinkRepo {
	return &executionLinkRepo{
		entryRepo{
			g:  g,
			db: db,
		},
	}
}

func (r executionLinkRepo) Create(link *models.ExecutionLink) error {
	return r.g.Create(&models.ExecutionLink{}, link)
}

// Exists 分发前的幂等检查：同一请求、同一告警、同一规则只允许一条关联
func (r executionLinkRepo) Exists(requestId string, alertId uint, ruleRef string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ExecutionLink{}).
		Where("request_id = ? AND alert_id = ? AND rule_ref = ?", requestId, alertId, ruleRef).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r executionLinkRepo) ListByRequestId(requestId string) ([]models.ExecutionLink, error) {
	var links []models.ExecutionLink
	err := r.db.Model(&models.ExecutionLink{}).
		Where("request_id = ?", requestId).
		Order("id ASC").
		Find(&links).Error

	return links, err
}

// ListRecent 最新的关联在前
func (r executionLinkRepo) ListRecent(page models.Page) ([]models.ExecutionLink, error) {
	var links []models.ExecutionLink
	err := r.db.Model(&models.ExecutionLink{}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(int(page.Size)).
		Offset(page.Offset()).
		Find(&links).Error

	return links, err
}

func (r executionLinkRepo) CountByRequestIds(requestIds []string) (map[string]int64, error) {
	result := make(map[string]int64, len(requestIds))
	if len(requestIds) == 0 {
		return result, nil
	}

	var rows []groupCount
	err := r.db.Model(&models.ExecutionLink{}).
		Select("request_id AS group_key, COUNT(*) AS total").
		Where("request_id IN ?", requestIds).
		Group("request_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.GroupKey] = row.Total
	}
	return result, nil
}

func (r executionLinkRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.ExecutionLink{}).Count(&count).Error
	return count, err
}
