package repo

import (
	"gorm.io/gorm"

	"poundcake/internal/models"
)

type (
	alertRepo struct {
		entryRepo
	}

	InterAlertRepo interface {
		ListByApiCall(apiCallId uint) ([]models.Alert, error)
		ListByApiCallIds(apiCallIds []uint) ([]models.Alert, error)
		GetByIds(ids []uint) ([]models.Alert, error)
		ListActive(page models.Page) ([]models.Alert, error)
		List(query models.AlertQuery, page models.Page) ([]models.Alert, error)
		MarkMatched(id uint, matched bool, ruleRef string) error

		Count() (int64, error)
		CountSince(createdAt int64) (int64, error)
		CountByStatus() (map[string]int64, error)
		CountByMatchState() (map[string]int64, error)
	}
)

func newAlertRepo(db *gorm.DB, g InterGormDBCli) InterAlertRepo {
	return &alertRepo{
		entryRepo{
			g:  g,
			db: db,
		},
	}
}

// ListByApiCall 按写入顺序返回某次请求的全部告警
func (r alertRepo) ListByApiCall(apiCallId uint) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.Model(&models.Alert{}).
		Where("api_call_id = ?", apiCallId).
		Order("id ASC").
		Find(&alerts).Error

	return alerts, err
}

func (r alertRepo) ListByApiCallIds(apiCallIds []uint) ([]models.Alert, error) {
	var alerts []models.Alert
	if len(apiCallIds) == 0 {
		return alerts, nil
	}

	err := r.db.Model(&models.Alert{}).
		Where("api_call_id IN ?", apiCallIds).
		Order("id ASC").
		Find(&alerts).Error

	return alerts, err
}

func (r alertRepo) GetByIds(ids []uint) ([]models.Alert, error) {
	var alerts []models.Alert
	if len(ids) == 0 {
		return alerts, nil
	}

	err := r.db.Model(&models.Alert{}).
		Where("id IN ?", ids).
		Find(&alerts).Error

	return alerts, err
}

// ListActive 处于 firing 状态的告警，最新的在前
func (r alertRepo) ListActive(page models.Page) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.Model(&models.Alert{}).
		Where("status = ?", string(models.AlertFiring)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(int(page.Size)).
		Offset(page.Offset()).
		Find(&alerts).Error

	return alerts, err
}

// List 按条件过滤，空字段不参与过滤
func (r alertRepo) List(query models.AlertQuery, page models.Page) ([]models.Alert, error) {
	var alerts []models.Alert
	db := r.db.Model(&models.Alert{})

	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.AlertName != "" {
		db = db.Where("alert_name = ?", query.AlertName)
	}
	if query.Severity != "" {
		db = db.Where("severity = ?", query.Severity)
	}
	if query.Fingerprint != "" {
		db = db.Where("fingerprint = ?", query.Fingerprint)
	}
	switch query.MatchState {
	case "pending":
		db = db.Where("rule_matched IS NULL")
	case "matched":
		db = db.Where("rule_matched = ?", true)
	case "unmatched":
		db = db.Where("rule_matched = ?", false)
	}

	err := db.Order("created_at DESC").
		Order("id DESC").
		Limit(int(page.Size)).
		Offset(page.Offset()).
		Find(&alerts).Error

	return alerts, err
}

// MarkMatched 记录分发规则的判定结果
func (r alertRepo) MarkMatched(id uint, matched bool, ruleRef string) error {
	u := Updates{
		Table: &models.Alert{},
		Where: map[string]interface{}{
			"id = ?": id,
		},
		Updates: map[string]interface{}{
			"rule_matched": matched,
			"rule_ref":     ruleRef,
		},
	}
	return r.g.Updates(u)
}

func (r alertRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Alert{}).Count(&count).Error
	return count, err
}

func (r alertRepo) CountSince(createdAt int64) (int64, error) {
	var count int64
	err := r.db.Model(&models.Alert{}).
		Where("created_at >= ?", createdAt).
		Count(&count).Error
	return count, err
}

type groupCount struct {
	GroupKey string
	Total    int64
}

func (r alertRepo) CountByStatus() (map[string]int64, error) {
	var rows []groupCount
	err := r.db.Model(&models.Alert{}).
		Select("status AS group_key, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.GroupKey] = row.Total
	}
	return result, nil
}

// CountByMatchState 按 pending/matched/unmatched 统计
func (r alertRepo) CountByMatchState() (map[string]int64, error) {
	result := map[string]int64{"pending": 0, "matched": 0, "unmatched": 0}

	conditions := map[string]func(db *gorm.DB) *gorm.DB{
		"pending":   func(db *gorm.DB) *gorm.DB { return db.Where("rule_matched IS NULL") },
		"matched":   func(db *gorm.DB) *gorm.DB { return db.Where("rule_matched = ?", true) },
		"unmatched": func(db *gorm.DB) *gorm.DB { return db.Where("rule_matched = ?", false) },
	}

	for state, scope := range conditions {
		var count int64
		if err := r.db.Model(&models.Alert{}).Scopes(scope).Count(&count).Error; err != nil {
			return nil, err
		}
		result[state] = count
	}

	return result, nil
}
