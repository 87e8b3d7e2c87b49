package tools

import (
	"strings"
	"time"
)

// RedactedValue 敏感请求头落库时的替换值
const RedactedValue = "[REDACTED]"

// 落库前需要脱敏的请求头，比较时忽略大小写
var sensitiveHeaders = []string{"Authorization", "X-Api-Key", "Cookie", "Proxy-Authorization"}

// FlattenHeaders 多值请求头以逗号拼接，凭证类请求头脱敏
func FlattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if isSensitiveHeader(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func isSensitiveHeader(key string) bool {
	for _, s := range sensitiveHeaders {
		if strings.EqualFold(key, s) {
			return true
		}
	}
	return false
}

// UnixOrZero 零值时间返回 0
func UnixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Truncate 按字节截断
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
