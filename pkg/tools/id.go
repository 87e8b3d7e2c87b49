package tools

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// NewRequestId 生成 webhook 请求的唯一标识 (uuid v4)
func NewRequestId() string {
	return uuid.NewString()
}

// ValidRequestId 判断是否为合法的 uuid 格式
func ValidRequestId(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// RandId 生成短的有序 ID，用于队列任务
func RandId() string {
	return xid.New().String()
}
