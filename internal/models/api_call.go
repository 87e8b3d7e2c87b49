package models

// ApiCall 一次 webhook 请求的审计记录
// RequestId 在接收时生成，同时作为外部引擎的关联标识
type ApiCall struct {
	ID               uint              `json:"id" gorm:"primaryKey;autoIncrement"`
	RequestId        string            `json:"requestId" gorm:"size:36;not null;uniqueIndex"`
	Method           string            `json:"method" gorm:"size:10;not null"`
	Path             string            `json:"path" gorm:"size:500;not null"`
	Headers          map[string]string `json:"headers" gorm:"type:text;serializer:json"`
	QueryParams      map[string]string `json:"queryParams" gorm:"type:text;serializer:json"`
	Body             string            `json:"body" gorm:"type:longtext"`
	ClientHost       string            `json:"clientHost" gorm:"size:100"`
	StatusCode       int               `json:"statusCode"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	ReceivedAt       int64             `json:"receivedAt" gorm:"index"`
	CompletedAt      int64             `json:"completedAt"`
}

func (ApiCall) TableName() string {
	return "poundcake_api_calls"
}

// IsCompleted 响应状态是否已回写
func (a *ApiCall) IsCompleted() bool {
	return a.CompletedAt > 0
}
