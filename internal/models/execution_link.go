package models

// ExecutionLink 本系统请求与外部引擎执行之间的关联
// 只有在外部引擎确认受理之后才会写入
type ExecutionLink struct {
	ID          uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	RequestId   string `json:"requestId" gorm:"size:36;not null;index;uniqueIndex:idx_link_dispatch"`
	AlertId     *uint  `json:"alertId" gorm:"index;uniqueIndex:idx_link_dispatch"`
	ExecutionId string `json:"executionId" gorm:"size:100;not null;index"`
	RuleRef     string `json:"ruleRef" gorm:"size:200;uniqueIndex:idx_link_dispatch"`
	ActionRef   string `json:"actionRef" gorm:"size:200"`
	CreatedAt   int64  `json:"createdAt" gorm:"index"`
}

func (ExecutionLink) TableName() string {
	return "poundcake_execution_links"
}

func (l *ExecutionLink) GetAlertId() uint {
	if l.AlertId == nil {
		return 0
	}
	return *l.AlertId
}
