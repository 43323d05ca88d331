package model

import "github.com/habitlog/internal/store"

// TaskType 区分任务大类：daily 按天打卡，goal 面向累计目标
type TaskType string

const (
	TaskDaily TaskType = "daily"
	TaskGoal  TaskType = "goal"
)

// DailyMode 区分每日任务的打卡方式：勾选完成或记录数值
type DailyMode string

const (
	ModeChecklist DailyMode = "checklist"
	ModeNumber    DailyMode = "number"
)

// Task 是用户拥有的一个习惯或目标定义
// DailyMode/Unit 仅对 daily 类型有意义，Target 仅对 goal 类型有意义
// 核心打卡逻辑只读取 Task，增删改由任务管理接口负责
type Task struct {
	ID          string
	User        string
	Name        string
	Description string
	Tag         string
	Type        TaskType
	DailyMode   DailyMode
	Target      float64
	Unit        string
	Created     string
	Updated     string
}

// TaskFromRecord 把存储记录解码为 Task
func TaskFromRecord(r store.Record) Task {
	task := Task{
		ID:      r.ID,
		Created: r.Created,
		Updated: r.Updated,
	}

	task.User, _ = r.Str(FieldUser)
	task.Name, _ = r.Str(FieldName)
	task.Description, _ = r.Str(FieldDescription)
	task.Tag, _ = r.Str(FieldTag)
	task.Target, _ = r.Float(FieldTarget)
	task.Unit, _ = r.Str(FieldUnit)

	if v, ok := r.Str(FieldType); ok {
		task.Type = TaskType(v)
	}
	if v, ok := r.Str(FieldDailyMode); ok {
		task.DailyMode = DailyMode(v)
	}

	return task
}

// TasksFromRecords 批量解码
func TasksFromRecords(records []store.Record) []Task {
	tasks := make([]Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, TaskFromRecord(r))
	}
	return tasks
}
