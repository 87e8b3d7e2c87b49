package models

// Page 列表查询的分页参数，Index 从 1 开始
type Page struct {
	Index int64 `json:"index" form:"index"`
	Size  int64 `json:"size" form:"size"`
}

func (p Page) Offset() int {
	if p.Index <= 1 {
		return 0
	}
	return int((p.Index - 1) * p.Size)
}

// AlertQuery 告警列表过滤条件
type AlertQuery struct {
	Status      string `form:"status"`
	AlertName   string `form:"alert_name"`
	Severity    string `form:"severity"`
	Fingerprint string `form:"fingerprint"`
	MatchState  string `form:"match_state"`
}
