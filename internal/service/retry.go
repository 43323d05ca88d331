package service

import (
	"context"
	"time"
)

// RetryPolicy 是一个有界重试策略：最多尝试次数加上每次失败后的退避
// 探测与竞态恢复用同一种策略对象参数化，不再散落各自的重试循环
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy 返回缺省策略：3 次尝试，200ms × 次数 线性退避
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(200 * time.Millisecond),
	}
}

// LinearBackoff 构造 step × attempt 的线性退避函数
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * step
	}
}

// Wait 在第 attempt 次尝试失败后等待退避间隔
// context 先取消时返回其错误；Backoff 为 nil 时不等待（测试常用）
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return ctx.Err()
	}
	delay := p.Backoff(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
