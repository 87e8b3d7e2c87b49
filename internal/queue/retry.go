package queue

import (
	"errors"
	"math"
	"time"
)

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts   int           // 最大尝试次数 (含首次)
	InitialDelay  time.Duration // 初始延迟
	MaxDelay      time.Duration // 最大延迟
	BackoffFactor float64       // 退避因子
}

func NewDefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}
}

// GetDelay 计算第 attempt 次失败后的延迟（指数退避）
func (r RetryConfig) GetDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	factor := r.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	// initialDelay * (backoffFactor ^ (attempt-1))
	delay := float64(r.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}

	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Permanent 标记不可重试的错误，任务直接进入死信
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
