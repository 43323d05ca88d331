package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/store"
)

var (
	// ErrLogNotFound 在更新目标打卡记录不存在时返回
	ErrLogNotFound = errors.New("daily log not found")
)

// EnsureOutcome 是幂等创建的封闭结果集，调用方可以穷举匹配
type EnsureOutcome string

const (
	// LogFound 预探测直接命中已有记录
	LogFound EnsureOutcome = "found"
	// LogCreated 本次调用新建了记录
	LogCreated EnsureOutcome = "created"
	// LogRecovered 输掉创建竞态后找回了并发胜者的记录
	LogRecovered EnsureOutcome = "recovered"
	// LogInconclusive 记录此刻已存在，但本次调用拿不到它，
	// 调用方应整体重查当天数据而不是当作失败
	LogInconclusive EnsureOutcome = "inconclusive"
)

// EnsureResult 是 EnsureLog 的结果；Outcome 为 LogInconclusive 时 Log 为 nil
type EnsureResult struct {
	Outcome EnsureOutcome
	Log     *model.DailyLog
}

// ReconcileSummary 汇总一次整天对账的结果
type ReconcileSummary struct {
	Ensured int      // 对账后确认有记录的任务数
	Created int      // 本次新建的记录数
	Failed  []string // 处理失败被跳过的任务 ID
}

// TaskStats 汇总一个任务在区间内的完成情况
type TaskStats struct {
	RangeStart     string
	RangeEnd       string
	CompletedCount int
	TargetCount    int
	CompletionRate float64
	CurrentStreak  int
	LongestStreak  int
}

// LogPatch 描述打卡记录的稀疏更新，nil 字段不发送、远端保持原值
type LogPatch struct {
	Done  *bool
	Value *float64
	Note  *string
}

// DailyLogService 实现每日打卡记录的对账协议：
// 同一 (task, user, date) 至多一条记录由存储端唯一约束担保，
// 这里负责在并发、重试、请求被顶掉、写后读延迟之下发现既成事实
type DailyLogService struct {
	store  store.Store
	retry  RetryPolicy
	logger *log.Logger
}

// NewDailyLogService 构造 DailyLogService
func NewDailyLogService(st store.Store) *DailyLogService {
	return &DailyLogService{
		store:  st,
		retry:  DefaultRetryPolicy(),
		logger: log.Default(),
	}
}

// SetRetryPolicy 替换探测与竞态恢复共用的重试策略，主要面向测试场景
func (s *DailyLogService) SetRetryPolicy(p RetryPolicy) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	s.retry = p
}

// SetLogger 替换日志输出目标
func (s *DailyLogService) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	s.logger = logger
}

// FindLog 探测 (user, task, day) 是否已有打卡记录，没有时返回 (nil, nil)
// 查询被后发请求顶掉时按策略重试；重试耗尽仍无果同样按没找到上报，
// 调用方必须把这种"没找到"当作未证实，而不是证实不存在
func (s *DailyLogService) FindLog(ctx context.Context, userID, taskID, day string) (*model.DailyLog, error) {
	day = NormalizeDayKey(day)
	start, end := DayBounds(day)

	records, err := s.queryLogs(ctx, store.Query{
		Filter: store.Filter{
			store.Eq(model.FieldUser, userID),
			store.Eq(model.FieldTask, taskID),
			store.Gte(model.FieldDate, start),
			store.Lt(model.FieldDate, end),
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrCancelled) {
			return nil, nil
		}
		return nil, fmt.Errorf("probe daily log: %w", err)
	}
	return pickLogForDay(records, taskID, day), nil
}

// EnsureLog 确保 (user, task, day) 恰好有一条打卡记录并交回它
// 预探测只是减少无谓约束冲突的优化，不是不变量的执行机制：
// 即便探测给出陈旧答案，存储端约束仍会拦下重复创建，协议保持正确
func (s *DailyLogService) EnsureLog(ctx context.Context, userID, taskID, day string) (EnsureResult, error) {
	day = NormalizeDayKey(day)

	existing, err := s.FindLog(ctx, userID, taskID, day)
	if err != nil {
		return EnsureResult{}, err
	}
	if existing != nil {
		return EnsureResult{Outcome: LogFound, Log: existing}, nil
	}

	return s.createLog(ctx, userID, taskID, day)
}

// ReconcileDay 保证 tasks 里每个 daily 任务在 day 当天都有打卡记录
// 先用一次快照查询圈出已覆盖的任务，再对缺口逐个二次核对并补建——
// 严格串行处理，避免同一请求窗口内跨任务放大创建竞态
// 单个任务失败只记日志并跳过，不阻塞其余任务；错误返回值只保留给
// 调用方 context 被取消的情形
func (s *DailyLogService) ReconcileDay(ctx context.Context, userID string, tasks []model.Task, day string) (ReconcileSummary, error) {
	day = NormalizeDayKey(day)
	summary := ReconcileSummary{}

	covered := make(map[string]bool)
	snapshot, err := s.LogsForDay(ctx, userID, day)
	if err != nil {
		// 快照失败不终止对账：降级为逐任务直接补建，
		// 多吃一些约束冲突，幂等创建本来就会消化它们
		s.logger.Printf("[reconcile] day snapshot failed, falling back to per-task probing: %v", err)
	} else {
		for _, logRec := range snapshot {
			covered[logRec.Task] = true
		}
	}

	for _, task := range tasks {
		if task.Type != model.TaskDaily {
			continue
		}
		if covered[task.ID] {
			summary.Ensured++
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, ctxErr
		}

		result, err := s.EnsureLog(ctx, userID, task.ID, day)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			s.logger.Printf("[reconcile] task %s: ensure log for %s failed: %v", task.ID, day, err)
			summary.Failed = append(summary.Failed, task.ID)
			continue
		}

		summary.Ensured++
		if result.Outcome == LogCreated {
			summary.Created++
		}
	}

	return summary, nil
}

// UpdateLog 对已有打卡记录应用稀疏更新并返回更新后的记录
// 记录不存在按致命错误上报，这里不做再对账；权限错误单独成类
// Done 置回 false 时不清 value_number，沿用"记住上次数值"的行为
func (s *DailyLogService) UpdateLog(ctx context.Context, userID, logID string, patch LogPatch) (*model.DailyLog, error) {
	fields := store.Fields{}
	if patch.Done != nil {
		fields[model.FieldValueBool] = *patch.Done
	}
	if patch.Value != nil {
		fields[model.FieldValueNumber] = *patch.Value
	}
	if patch.Note != nil {
		fields[model.FieldNote] = *patch.Note
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("log patch is empty")
	}

	rec, err := s.store.Update(ctx, model.CollectionDailyLogs, logID, fields)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLogNotFound
		}
		if errors.Is(err, store.ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("update daily log: %w", err)
	}

	logRec := model.DailyLogFromRecord(rec)
	if logRec.User != "" && userID != "" && logRec.User != userID {
		return nil, fmt.Errorf("log %s belongs to another user: %w", logID, store.ErrPermissionDenied)
	}
	return &logRec, nil
}

// LogsForDay 返回用户在 day 当天的全部打卡记录
func (s *DailyLogService) LogsForDay(ctx context.Context, userID, day string) ([]model.DailyLog, error) {
	day = NormalizeDayKey(day)
	start, end := DayBounds(day)

	records, err := s.queryLogs(ctx, store.Query{
		Filter: store.Filter{
			store.Eq(model.FieldUser, userID),
			store.Gte(model.FieldDate, start),
			store.Lt(model.FieldDate, end),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list daily logs: %w", err)
	}

	logs := make([]model.DailyLog, 0, len(records))
	for _, rec := range records {
		logRec := model.DailyLogFromRecord(rec)
		if NormalizeDayKey(logRec.Date) != day {
			continue
		}
		logs = append(logs, logRec)
	}
	return logs, nil
}

// StatsBetween 计算任务在闭区间 [from, to] 内的完成数、完成率与连胜
func (s *DailyLogService) StatsBetween(ctx context.Context, userID string, task model.Task, from, to string) (*TaskStats, error) {
	from = NormalizeDayKey(from)
	to = NormalizeDayKey(to)
	if to < from {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	start, _ := DayBounds(from)
	_, end := DayBounds(to)

	records, err := s.queryLogs(ctx, store.Query{
		Filter: store.Filter{
			store.Eq(model.FieldUser, userID),
			store.Eq(model.FieldTask, task.ID),
			store.Gte(model.FieldDate, start),
			store.Lt(model.FieldDate, end),
		},
		Sort: model.FieldDate,
	})
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}

	seen := make(map[string]bool)
	days := make([]string, 0, len(records))
	for _, rec := range records {
		logRec := model.DailyLogFromRecord(rec)
		day := NormalizeDayKey(logRec.Date)
		if day < from || day > to || seen[day] {
			continue
		}
		if !logCompleted(task, logRec) {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Strings(days)

	stats := &TaskStats{
		RangeStart:     from,
		RangeEnd:       to,
		CompletedCount: len(days),
		TargetCount:    daysBetween(from, to),
	}
	if stats.TargetCount > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TargetCount)
	}
	stats.CurrentStreak, stats.LongestStreak = calculateStreaks(days)

	return stats, nil
}

// createLog 执行创建步骤并消化唯一约束冲突
// 冲突意味着并发请求赢了竞态，转入重探测找回胜者记录；
// 其余创建失败按致命错误原样上抛
func (s *DailyLogService) createLog(ctx context.Context, userID, taskID, day string) (EnsureResult, error) {
	rec, err := s.store.Create(ctx, model.CollectionDailyLogs, store.Fields{
		model.FieldUser:      userID,
		model.FieldTask:      taskID,
		model.FieldDate:      day,
		model.FieldValueBool: false,
	})
	if err == nil {
		logRec := model.DailyLogFromRecord(rec)
		return EnsureResult{Outcome: LogCreated, Log: &logRec}, nil
	}
	if !store.IsConstraintViolation(err) {
		return EnsureResult{}, fmt.Errorf("create daily log: %w", err)
	}

	return s.recoverWinner(ctx, userID, taskID, day)
}

// recoverWinner 在输掉创建竞态后找回既已存在的胜者记录
// 有界退避重探测应对写后读可见性延迟；仍无果退回全量线性扫描；
// 再无果只能上报 inconclusive——此刻记录确实存在，本次调用拿不到
func (s *DailyLogService) recoverWinner(ctx context.Context, userID, taskID, day string) (EnsureResult, error) {
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		if err := s.retry.Wait(ctx, attempt); err != nil {
			return EnsureResult{}, err
		}

		found, err := s.FindLog(ctx, userID, taskID, day)
		if err != nil {
			return EnsureResult{}, err
		}
		if found != nil {
			return EnsureResult{Outcome: LogRecovered, Log: found}, nil
		}
	}

	if found := s.scanAllLogs(ctx, userID, taskID, day); found != nil {
		return EnsureResult{Outcome: LogRecovered, Log: found}, nil
	}

	s.logger.Printf("[reconcile] task %s: lost create race on %s and could not recover the winner", taskID, day)
	return EnsureResult{Outcome: LogInconclusive}, nil
}

// scanAllLogs 是恢复路径的最后兜底：拉取用户全量打卡记录做线性匹配
// 这里任何失败都不再升级，交由调用方按 inconclusive 处理
func (s *DailyLogService) scanAllLogs(ctx context.Context, userID, taskID, day string) *model.DailyLog {
	records, err := s.queryLogs(ctx, store.Query{
		Filter: store.Filter{store.Eq(model.FieldUser, userID)},
		Sort:   "-" + model.FieldDate,
	})
	if err != nil {
		s.logger.Printf("[reconcile] full log scan failed: %v", err)
		return nil
	}
	return pickLogForDay(records, taskID, day)
}

// queryLogs 查询 daily_logs 并按策略消化被顶掉的请求
// 重试耗尽后把最后一次的 ErrCancelled 交还调用方分别处置
func (s *DailyLogService) queryLogs(ctx context.Context, q store.Query) ([]store.Record, error) {
	for attempt := 1; ; attempt++ {
		records, err := s.store.Query(ctx, model.CollectionDailyLogs, q)
		if err == nil {
			return records, nil
		}
		if !errors.Is(err, store.ErrCancelled) {
			return nil, err
		}
		if attempt >= s.retry.MaxAttempts {
			return nil, err
		}
		if werr := s.retry.Wait(ctx, attempt); werr != nil {
			return nil, werr
		}
	}
}

// pickLogForDay 在查询结果里用归一日键做精确匹配
// 范围查询只负责粗筛，时间戳噪声与时区漂移靠这一步兜底
func pickLogForDay(records []store.Record, taskID, day string) *model.DailyLog {
	for _, rec := range records {
		logRec := model.DailyLogFromRecord(rec)
		if logRec.Task == taskID && NormalizeDayKey(logRec.Date) == day {
			return &logRec
		}
	}
	return nil
}

// logCompleted 按任务的打卡方式判断一条记录算不算完成当天
func logCompleted(task model.Task, logRec model.DailyLog) bool {
	if task.DailyMode == model.ModeNumber {
		return logRec.ValueNumber != nil && *logRec.ValueNumber > 0
	}
	return logRec.Done()
}

// calculateStreaks 在升序日键序列上计算末端连胜与最长连胜
func calculateStreaks(days []string) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	longest = 1
	current = 1

	for i := 1; i < len(days); i++ {
		if days[i] == ShiftDay(days[i-1], 1) {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 1
		}
	}

	return current, longest
}
