package queue

import (
	"github.com/bytedance/sonic"

	"poundcake/pkg/tools"
)

const JobTypeDispatch = "dispatch"

// Job 一次 webhook 对应一个分发任务
type Job struct {
	Id          string `json:"id"`
	Type        string `json:"type"`
	RequestId   string `json:"request_id"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	EnqueuedAt  int64  `json:"enqueued_at"`
	LastError   string `json:"last_error,omitempty"`
}

// Exhausted 已达到最大尝试次数
func (j Job) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempt >= j.MaxAttempts
}

func encodeJob(j Job) (string, error) {
	return sonic.MarshalString(j)
}

func decodeJob(raw string) (Job, error) {
	var j Job
	err := sonic.UnmarshalString(raw, &j)
	return j, err
}

// Delivery 出队后的任务，raw 为 processing 列表中的原始内容，Ack/Retry/Fail 依赖它定位
type Delivery struct {
	Job Job
	raw string
}

func newJobId() string {
	return tools.RandId()
}
