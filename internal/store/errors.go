package store

import (
	"errors"
	"fmt"
)

// 存储层把各实现的原始错误统一翻译成下面的分类，
// 上层只依赖这些分类做决策，不感知具体实现
var (
	// ErrCancelled 表示请求在客户端被后发的同类请求取代，远端结果未知
	ErrCancelled = errors.New("request was autocancelled")
	// ErrNotFound 表示目标记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrPermissionDenied 表示当前身份无权执行该操作
	ErrPermissionDenied = errors.New("permission denied")
)

// ConstraintViolation 表示写入触发了集合的唯一性约束
// 约束覆盖多个字段时，Field 是存储报告冲突的那一个字段
type ConstraintViolation struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ConstraintViolation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unique constraint violated on %s: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("unique constraint violated on %s.%s: %s", e.Collection, e.Field, e.Reason)
}

// IsConstraintViolation 判断错误链中是否包含唯一性约束冲突
func IsConstraintViolation(err error) bool {
	var violation *ConstraintViolation
	return errors.As(err, &violation)
}
