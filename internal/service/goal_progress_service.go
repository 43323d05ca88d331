package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/store"
)

// GoalSummary 汇总一个目标任务的累计进度
type GoalSummary struct {
	Total   float64
	Target  float64
	Percent float64
	Entries int
}

// GoalProgressService 负责目标任务的进度记录
// goal_progress 没有唯一约束：进度按求和聚合，重复记录不破坏正确性，
// 所以这里只做打卡协议的简化变体，不需要完整的竞态恢复
type GoalProgressService struct {
	store store.Store
}

// NewGoalProgressService 构造 GoalProgressService
func NewGoalProgressService(st store.Store) *GoalProgressService {
	return &GoalProgressService{store: st}
}

// Add 把一次投入并入当天的进度：当天已有记录时在其数值上累加，
// 否则新建。读取被顶掉时按当天无记录处理直接新建——聚合是求和，
// 宁可当天多一条记录也不丢增量；真正的丢失窗口只在两个并发调用
// 同时累加同一条旧记录时出现，按产品约定接受
func (s *GoalProgressService) Add(ctx context.Context, userID, taskID, day string, delta float64) (*model.GoalProgressEntry, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("progress value must be positive")
	}
	day = NormalizeDayKey(day)
	if day == "" {
		day = Today()
	}

	existing, err := s.entryForDay(ctx, userID, taskID, day)
	if err != nil && !errors.Is(err, store.ErrCancelled) {
		return nil, err
	}

	if existing != nil {
		rec, err := s.store.Update(ctx, model.CollectionGoalProgress, existing.ID, store.Fields{
			model.FieldValue: existing.Value + delta,
		})
		if err != nil {
			return nil, fmt.Errorf("update goal progress: %w", err)
		}
		entry := model.GoalEntryFromRecord(rec)
		return &entry, nil
	}

	rec, err := s.store.Create(ctx, model.CollectionGoalProgress, store.Fields{
		model.FieldUser:  userID,
		model.FieldTask:  taskID,
		model.FieldDate:  day,
		model.FieldValue: delta,
	})
	if err != nil {
		return nil, fmt.Errorf("create goal progress: %w", err)
	}
	entry := model.GoalEntryFromRecord(rec)
	return &entry, nil
}

// Entries 返回任务在闭区间 [from, to] 内的进度记录，按日期升序
func (s *GoalProgressService) Entries(ctx context.Context, userID, taskID, from, to string) ([]model.GoalProgressEntry, error) {
	from = NormalizeDayKey(from)
	to = NormalizeDayKey(to)
	if to < from {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	start, _ := DayBounds(from)
	_, end := DayBounds(to)

	records, err := s.store.Query(ctx, model.CollectionGoalProgress, store.Query{
		Filter: store.Filter{
			store.Eq(model.FieldUser, userID),
			store.Eq(model.FieldTask, taskID),
			store.Gte(model.FieldDate, start),
			store.Lt(model.FieldDate, end),
		},
		Sort: model.FieldDate,
	})
	if err != nil {
		return nil, fmt.Errorf("list goal progress: %w", err)
	}

	entries := make([]model.GoalProgressEntry, 0, len(records))
	for _, rec := range records {
		entry := model.GoalEntryFromRecord(rec)
		day := NormalizeDayKey(entry.Date)
		if day < from || day > to {
			continue
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return NormalizeDayKey(entries[i].Date) < NormalizeDayKey(entries[j].Date)
	})
	return entries, nil
}

// Summary 计算任务的累计进度与目标完成比
func (s *GoalProgressService) Summary(ctx context.Context, userID string, task model.Task) (*GoalSummary, error) {
	records, err := s.store.Query(ctx, model.CollectionGoalProgress, store.Query{
		Filter: store.Filter{
			store.Eq(model.FieldUser, userID),
			store.Eq(model.FieldTask, task.ID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sum goal progress: %w", err)
	}

	summary := &GoalSummary{Target: task.Target, Entries: len(records)}
	for _, rec := range records {
		entry := model.GoalEntryFromRecord(rec)
		summary.Total += entry.Value
	}
	if summary.Target > 0 {
		summary.Percent = summary.Total / summary.Target
	}
	return summary, nil
}

// entryForDay 找出当天已有的进度记录，没有时返回 (nil, nil)
func (s *GoalProgressService) entryForDay(ctx context.Context, userID, taskID, day string) (*model.GoalProgressEntry, error) {
	start, end := DayBounds(day)

	records, err := s.store.Query(ctx, model.CollectionGoalProgress, store.Query{
		Filter: store.Filter{
			store.Eq(model.FieldUser, userID),
			store.Eq(model.FieldTask, taskID),
			store.Gte(model.FieldDate, start),
			store.Lt(model.FieldDate, end),
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("probe goal progress: %w", err)
	}

	for _, rec := range records {
		entry := model.GoalEntryFromRecord(rec)
		if entry.Task == taskID && NormalizeDayKey(entry.Date) == day {
			return &entry, nil
		}
	}
	return nil, nil
}
