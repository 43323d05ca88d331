// Package storetest 提供一个脚本化的内存存储，用于确定性地重放
// 打卡协议关心的竞态：唯一约束冲突、请求被顶掉、读不到刚写入的记录
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/store"
)

// Store 实现 store.Store
// daily_logs 的 (task, user, date) 唯一约束由它自己执行：检查与插入
// 在同一把锁内完成，对应真实存储端对该约束的线性化语义
type Store struct {
	// BeforeCreate 在每次 Create 进入临界区之前被调用（不持锁），
	// 测试借它在两次写入之间插入竞争动作
	BeforeCreate func(collection string, fields store.Fields)

	mu      sync.Mutex
	records map[string][]store.Record
	seq     int

	cancelQueries int
	failCreate    map[string][]error
	visibilityLag int
	invisible     map[string]int
	dateEcho      string

	queryCalls  map[string]int
	createCalls map[string]int
}

var _ store.Store = (*Store)(nil)

// New 构造空的脚本化存储
func New() *Store {
	return &Store{
		records:     make(map[string][]store.Record),
		failCreate:  make(map[string][]error),
		invisible:   make(map[string]int),
		queryCalls:  make(map[string]int),
		createCalls: make(map[string]int),
	}
}

// CancelNextQueries 让接下来 n 次 Query 返回 store.ErrCancelled，
// 模拟请求层的后发优先取消
func (s *Store) CancelNextQueries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelQueries = n
}

// FailNextCreate 给集合的下一次 Create 排队一个错误
func (s *Store) FailNextCreate(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate[collection] = append(s.failCreate[collection], err)
}

// SetVisibilityLag 让之后创建的记录对接下来 n 次同集合查询不可见，
// 模拟写后读的可见性延迟
func (s *Store) SetVisibilityLag(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibilityLag = n
}

// SetDateEcho 模拟存储端给纯日期补时间分量的回显行为：
// 创建时 date 字段若是裸日键，落库值变成 day+suffix
func (s *Store) SetDateEcho(suffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dateEcho = suffix
}

// QueryCalls 返回集合累计被查询的次数（含被取消的请求）
func (s *Store) QueryCalls(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCalls[collection]
}

// CreateCalls 返回集合累计收到的创建请求数（含失败的）
func (s *Store) CreateCalls(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls[collection]
}

// Seed 直接放入一条记录，绕过所有脚本开关，返回带 ID 的副本
func (s *Store) Seed(collection string, fields store.Fields) store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.newRecord(collection, fields)
	s.records[collection] = append(s.records[collection], rec)
	return cloneRecord(rec)
}

// All 返回集合中全部记录（含暂不可见的），按插入序
func (s *Store) All(collection string) []store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Record, 0, len(s.records[collection]))
	for _, rec := range s.records[collection] {
		out = append(out, cloneRecord(rec))
	}
	return out
}

// Query 按条件查询集合
// 被脚本取消的查询不消耗可见性延迟：调用方没拿到任何结果
func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queryCalls[collection]++

	if s.cancelQueries > 0 {
		s.cancelQueries--
		return nil, store.ErrCancelled
	}

	var matched []store.Record
	for i := range s.records[collection] {
		rec := s.records[collection][i]
		if s.invisible[rec.ID] > 0 {
			s.invisible[rec.ID]--
			continue
		}
		if matchesFilter(rec, q.Filter) {
			matched = append(matched, cloneRecord(rec))
		}
	}

	sortRecords(matched, q.Sort)

	if q.PerPage > 0 {
		start := 0
		if q.Page > 1 {
			start = (q.Page - 1) * q.PerPage
		}
		if start >= len(matched) {
			return nil, nil
		}
		end := start + q.PerPage
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, nil
}

// Create 新建记录；daily_logs 的唯一约束冲突返回 ConstraintViolation
func (s *Store) Create(ctx context.Context, collection string, fields store.Fields) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}

	if s.BeforeCreate != nil {
		s.BeforeCreate(collection, fields)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls[collection]++

	if queue := s.failCreate[collection]; len(queue) > 0 {
		err := queue[0]
		s.failCreate[collection] = queue[1:]
		return store.Record{}, err
	}

	rec := s.newRecord(collection, fields)

	if collection == model.CollectionDailyLogs {
		key := logKey(rec)
		for _, existing := range s.records[collection] {
			if logKey(existing) == key {
				return store.Record{}, &store.ConstraintViolation{
					Collection: collection,
					Field:      model.FieldDate,
					Reason:     "value must be unique",
				}
			}
		}
	}

	s.records[collection] = append(s.records[collection], rec)
	if s.visibilityLag > 0 {
		s.invisible[rec.ID] = s.visibilityLag
	}
	return cloneRecord(rec), nil
}

// Update 稀疏更新：只覆盖 fields 里出现的字段
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records[collection] {
		if s.records[collection][i].ID != id {
			continue
		}
		for k, v := range fields {
			s.records[collection][i].Fields[k] = v
		}
		return cloneRecord(s.records[collection][i]), nil
	}
	return store.Record{}, store.ErrNotFound
}

// Delete 删除记录
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records[collection] {
		if s.records[collection][i].ID == id {
			s.records[collection] = append(s.records[collection][:i], s.records[collection][i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) newRecord(collection string, fields store.Fields) store.Record {
	s.seq++
	stamp := fmt.Sprintf("2024-01-01 00:%02d:%02d.000Z", (s.seq/60)%60, s.seq%60)
	rec := store.Record{
		ID:         fmt.Sprintf("rec-%d", s.seq),
		Collection: collection,
		Fields:     store.Fields{},
		Created:    stamp,
		Updated:    stamp,
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	if s.dateEcho != "" {
		if day, ok := rec.Fields[model.FieldDate].(string); ok && len(day) == 10 {
			rec.Fields[model.FieldDate] = day + s.dateEcho
		}
	}
	return rec
}

// logKey 是唯一约束的比较键；date 取落库的原始值，与真实存储一致
func logKey(rec store.Record) string {
	task, _ := rec.Str(model.FieldTask)
	user, _ := rec.Str(model.FieldUser)
	date, _ := rec.Str(model.FieldDate)
	return task + "\x00" + user + "\x00" + date
}

func cloneRecord(rec store.Record) store.Record {
	out := rec
	out.Fields = make(store.Fields, len(rec.Fields))
	for k, v := range rec.Fields {
		out.Fields[k] = v
	}
	return out
}

func matchesFilter(rec store.Record, filter store.Filter) bool {
	for _, cond := range filter {
		v, ok := fieldValue(rec, cond.Field)
		if !ok {
			return false
		}
		if !condHolds(v, cond) {
			return false
		}
	}
	return true
}

// fieldValue 取过滤/排序用的字段值，系统字段走记录元数据
func fieldValue(rec store.Record, field string) (any, bool) {
	switch field {
	case "id":
		return rec.ID, true
	case "created":
		return rec.Created, true
	case "updated":
		return rec.Updated, true
	}
	v, ok := rec.Fields[field]
	return v, ok
}

func condHolds(v any, cond store.Cond) bool {
	switch want := cond.Value.(type) {
	case string:
		got, ok := v.(string)
		if !ok {
			return false
		}
		switch cond.Op {
		case store.OpEq:
			return got == want
		case store.OpGte:
			return got >= want
		case store.OpLt:
			return got < want
		}
	case bool:
		got, ok := v.(bool)
		return ok && cond.Op == store.OpEq && got == want
	default:
		got, okGot := asFloat(v)
		wantF, okWant := asFloat(cond.Value)
		if !okGot || !okWant {
			return false
		}
		switch cond.Op {
		case store.OpEq:
			return got == wantF
		case store.OpGte:
			return got >= wantF
		case store.OpLt:
			return got < wantF
		}
	}
	return false
}

func sortRecords(records []store.Record, key string) {
	if key == "" {
		return
	}
	field, desc := key, false
	if rest, ok := strings.CutPrefix(key, "-"); ok {
		field, desc = rest, true
	}
	sort.SliceStable(records, func(i, j int) bool {
		less := recordLess(records[i], records[j], field)
		if desc {
			return !less
		}
		return less
	})
}

func recordLess(a, b store.Record, field string) bool {
	av, _ := fieldValue(a, field)
	bv, _ := fieldValue(b, field)

	if as, ok := av.(string); ok {
		bs, _ := bv.(string)
		return as < bs
	}
	af, _ := asFloat(av)
	bf, _ := asFloat(bv)
	return af < bf
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}
