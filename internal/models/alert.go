package models

type AlertStatus string

const (
	AlertFiring   AlertStatus = "firing"
	AlertResolved AlertStatus = "resolved"
)

// Alert webhook 中的单条告警
// 同一 Fingerprint 会在 firing/resolved 之间反复出现，不做全局唯一约束
type Alert struct {
	ID           uint              `json:"id" gorm:"primaryKey;autoIncrement"`
	ApiCallId    uint              `json:"apiCallId" gorm:"not null;index"`
	RequestId    string            `json:"requestId" gorm:"size:36;not null;index"`
	Fingerprint  string            `json:"fingerprint" gorm:"size:64;not null;index"`
	Status       string            `json:"status" gorm:"size:20;index"`
	AlertName    string            `json:"alertName" gorm:"size:200;not null;index"`
	Severity     string            `json:"severity" gorm:"size:50;index"`
	Instance     string            `json:"instance" gorm:"size:200;index"`
	Labels       map[string]string `json:"labels" gorm:"type:text;serializer:json"`
	Annotations  map[string]string `json:"annotations" gorm:"type:text;serializer:json"`
	StartsAt     int64             `json:"startsAt"`
	EndsAt       int64             `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL" gorm:"size:1024"`

	// RuleMatched 为空表示尚未经过分发判定
	RuleMatched *bool  `json:"ruleMatched"`
	RuleRef     string `json:"ruleRef" gorm:"size:200;index"`
	CreatedAt   int64  `json:"createdAt" gorm:"index"`
	UpdatedAt   int64  `json:"updatedAt"`
}

func (Alert) TableName() string {
	return "poundcake_alerts"
}

// MatchState pending / matched / unmatched
func (a *Alert) MatchState() string {
	switch {
	case a.RuleMatched == nil:
		return "pending"
	case *a.RuleMatched:
		return "matched"
	default:
		return "unmatched"
	}
}

func (a *Alert) IsFiring() bool {
	return a.Status == string(AlertFiring)
}
