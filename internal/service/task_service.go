package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/store"
)

var (
	// ErrTaskNotFound 在指定任务不存在或不属于当前用户时返回
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskInvalid 当任务配置不合法时返回
	ErrTaskInvalid = errors.New("invalid task configuration")
)

// TaskService 负责任务定义的增删改查
// 每次访问都带上属主过滤，用户之间互不可见
type TaskService struct {
	store store.Store
}

// TaskFilter 描述任务列表的过滤条件
type TaskFilter struct {
	Type   string
	Tag    string
	Search string
}

// TaskInput 定义创建/更新任务时可配置的字段
type TaskInput struct {
	Name        string
	Description string
	Tag         string
	Type        string
	DailyMode   string
	Target      float64
	Unit        string
}

// NewTaskService 构造 TaskService
func NewTaskService(st store.Store) *TaskService {
	return &TaskService{store: st}
}

// List 返回用户的任务集合，支持基本筛选
func (s *TaskService) List(ctx context.Context, userID string, filter TaskFilter) ([]model.Task, error) {
	q := store.Query{
		Filter: store.Filter{store.Eq(model.FieldUser, userID)},
		Sort:   "-created",
	}
	if filter.Type != "" {
		q.Filter = append(q.Filter, store.Eq(model.FieldType, strings.TrimSpace(filter.Type)))
	}
	if filter.Tag != "" {
		q.Filter = append(q.Filter, store.Eq(model.FieldTag, strings.TrimSpace(filter.Tag)))
	}

	records, err := s.store.Query(ctx, model.CollectionTasks, q)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := model.TasksFromRecords(records)
	if search := strings.TrimSpace(filter.Search); search != "" {
		// 存储端过滤语法只有等值和范围，模糊匹配在内存里做
		search = strings.ToLower(search)
		filtered := tasks[:0]
		for _, task := range tasks {
			if strings.Contains(strings.ToLower(task.Name), search) ||
				strings.Contains(strings.ToLower(task.Description), search) {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}
	return tasks, nil
}

// Get 按 ID 获取用户自己的任务
func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	records, err := s.store.Query(ctx, model.CollectionTasks, store.Query{
		Filter: store.Filter{
			store.Eq(model.FieldID, taskID),
			store.Eq(model.FieldUser, userID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrTaskNotFound
	}

	task := model.TaskFromRecord(records[0])
	return &task, nil
}

// Create 新建任务
func (s *TaskService) Create(ctx context.Context, userID string, input TaskInput) (*model.Task, error) {
	if err := validateTaskInput(&input); err != nil {
		return nil, err
	}

	rec, err := s.store.Create(ctx, model.CollectionTasks, taskFields(userID, input))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	task := model.TaskFromRecord(rec)
	return &task, nil
}

// Update 更新任务配置
func (s *TaskService) Update(ctx context.Context, userID, taskID string, input TaskInput) (*model.Task, error) {
	if err := validateTaskInput(&input); err != nil {
		return nil, err
	}

	if _, err := s.Get(ctx, userID, taskID); err != nil {
		return nil, err
	}

	rec, err := s.store.Update(ctx, model.CollectionTasks, taskID, taskFields(userID, input))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}

	task := model.TaskFromRecord(rec)
	return &task, nil
}

// Delete 删除任务；远端通过集合关系级联清掉其打卡与进度记录，
// 本地适配层保持同样语义
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	if _, err := s.Get(ctx, userID, taskID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, model.CollectionTasks, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func taskFields(userID string, input TaskInput) store.Fields {
	return store.Fields{
		model.FieldUser:        userID,
		model.FieldName:        input.Name,
		model.FieldDescription: input.Description,
		model.FieldTag:         input.Tag,
		model.FieldType:        input.Type,
		model.FieldDailyMode:   input.DailyMode,
		model.FieldTarget:      input.Target,
		model.FieldUnit:        input.Unit,
	}
}

func validateTaskInput(input *TaskInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Tag = strings.TrimSpace(input.Tag)
	input.Unit = strings.TrimSpace(input.Unit)
	input.Type = strings.TrimSpace(strings.ToLower(input.Type))
	input.DailyMode = strings.TrimSpace(strings.ToLower(input.DailyMode))

	if input.Name == "" {
		return fmt.Errorf("%w: task name is required", ErrTaskInvalid)
	}

	switch model.TaskType(input.Type) {
	case model.TaskDaily:
		if input.DailyMode == "" {
			input.DailyMode = string(model.ModeChecklist)
		}
		switch model.DailyMode(input.DailyMode) {
		case model.ModeChecklist:
			input.Target = 0
			input.Unit = ""
		case model.ModeNumber:
			if input.Target < 0 {
				return fmt.Errorf("%w: number target cannot be negative", ErrTaskInvalid)
			}
		default:
			return fmt.Errorf("%w: unsupported daily mode %s", ErrTaskInvalid, input.DailyMode)
		}
	case model.TaskGoal:
		if input.Target <= 0 {
			return fmt.Errorf("%w: goal target must be positive", ErrTaskInvalid)
		}
		input.DailyMode = ""
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrTaskInvalid, input.Type)
	}

	return nil
}
