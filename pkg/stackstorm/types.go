package stackstorm

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable = errors.New("stackstorm unavailable")
	// ErrMissingExecutionId 引擎已受理 (2xx) 但响应中没有执行 ID，重试会再次创建执行
	ErrMissingExecutionId = errors.New("stackstorm accepted without execution id")
)

// Execution StackStorm 执行记录，只保留关心的字段
type Execution struct {
	Id             string                 `json:"id" mapstructure:"id"`
	Status         string                 `json:"status" mapstructure:"status"`
	Action         ActionRef              `json:"action" mapstructure:"action"`
	Parameters     map[string]interface{} `json:"parameters,omitempty" mapstructure:"parameters"`
	StartTimestamp string                 `json:"start_timestamp,omitempty" mapstructure:"start_timestamp"`
	EndTimestamp   string                 `json:"end_timestamp,omitempty" mapstructure:"end_timestamp"`
	Result         interface{}            `json:"result,omitempty" mapstructure:"result"`
}

type ActionRef struct {
	Ref string `json:"ref" mapstructure:"ref"`
}

type executionRequest struct {
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stackstorm 返回状态码 %d: %s", e.StatusCode, e.Body)
}

// Temporary 5xx、408、429 可重试，其余 4xx 为请求本身的问题
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}

// IsTemporary 网络错误、超时与可重试的状态码
func IsTemporary(err error) bool {
	if err == nil || errors.Is(err, ErrMissingExecutionId) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
