package process

import (
	"poundcake/internal/models"
)

// BuildParameters 组装提交给修复引擎的参数，规则中的静态参数不会覆盖告警字段
func BuildParameters(requestId string, alert models.Alert, rule Rule) map[string]interface{} {
	params := make(map[string]interface{}, len(rule.Parameters)+8)
	for k, v := range rule.Parameters {
		params[k] = v
	}

	params["alert_name"] = alert.AlertName
	params["instance"] = alert.Instance
	params["severity"] = alert.Severity
	params["fingerprint"] = alert.Fingerprint
	params["status"] = alert.Status
	params["starts_at"] = alert.StartsAt
	params["ends_at"] = alert.EndsAt
	params["labels"] = nonNil(alert.Labels)
	params["annotations"] = nonNil(alert.Annotations)
	params["poundcake_request_id"] = requestId
	params["alert_data"] = map[string]interface{}{
		"status":        alert.Status,
		"starts_at":     alert.StartsAt,
		"ends_at":       alert.EndsAt,
		"generator_url": alert.GeneratorURL,
		"rule":          rule.Name,
	}

	return params
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
