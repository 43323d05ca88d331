package store

import "context"

// Fields 表示一条记录的字段集合，键为集合中的字段名
// 创建/更新时只携带需要写入的字段，未出现的字段保持存储中的原值
type Fields map[string]any

// Record 是集合中的一条记录
// Fields 里的值来自 JSON 解码或本地适配层，读取时通过类型化 getter 取值
type Record struct {
	ID         string
	Collection string
	Fields     Fields
	Created    string
	Updated    string
}

// Str 读取字符串字段，第二个返回值表示字段存在且类型匹配
func (r Record) Str(key string) (string, bool) {
	v, ok := r.Fields[key].(string)
	return v, ok
}

// Float 读取数值字段，兼容 JSON 解码产生的 float64 与本地写入的整型
func (r Record) Float(key string) (float64, bool) {
	switch v := r.Fields[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool 读取布尔字段
func (r Record) Bool(key string) (bool, bool) {
	v, ok := r.Fields[key].(bool)
	return v, ok
}

// Op 是过滤条件使用的比较操作符，取值与远端过滤语法一致
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLt  Op = "<"
)

// Cond 是单个字段上的过滤条件
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Eq 构造等值条件
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

// Gte 构造大于等于条件
func Gte(field string, value any) Cond {
	return Cond{Field: field, Op: OpGte, Value: value}
}

// Lt 构造小于条件
func Lt(field string, value any) Cond {
	return Cond{Field: field, Op: OpLt, Value: value}
}

// Filter 是按 AND 连接的条件列表
type Filter []Cond

// Query 描述一次集合查询
// Sort 形如 "date" 或 "-date"；Page/PerPage 为零时由适配层取默认值
type Query struct {
	Filter  Filter
	Sort    string
	Page    int
	PerPage int
}

// Store 是记录存储的统一访问能力，远端与本地实现共用
// 所有方法都接受 context，超时与取消由调用方控制
type Store interface {
	Query(ctx context.Context, collection string, q Query) ([]Record, error)
	Create(ctx context.Context, collection string, fields Fields) (Record, error)
	Update(ctx context.Context, collection, id string, fields Fields) (Record, error)
	Delete(ctx context.Context, collection, id string) error
}

// Credentials 是换取用户身份时携带的凭据，令牌与账号密码二选一
type Credentials struct {
	Token    string
	Name     string
	Password string
}

// UserRef 标识一个已通过校验的用户
type UserRef struct {
	ID   string
	Name string
}

// Authenticator 校验凭据并返回对应的用户身份
type Authenticator interface {
	Authenticate(ctx context.Context, cred Credentials) (UserRef, error)
}

type tokenKey struct{}

// WithToken 把请求级访问令牌写入 context，远端适配器优先使用它
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom 读取 context 中的访问令牌，未设置时返回空串
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
