package model

import "github.com/habitlog/internal/store"

// GoalProgressEntry 是 goal 任务的一次累计投入
// 同一天允许多条记录，进度取区间内 Value 之和，无唯一约束
type GoalProgressEntry struct {
	ID      string
	Task    string
	User    string
	Date    string
	Value   float64
	Created string
	Updated string
}

// GoalEntryFromRecord 把存储记录解码为 GoalProgressEntry
func GoalEntryFromRecord(r store.Record) GoalProgressEntry {
	entry := GoalProgressEntry{
		ID:      r.ID,
		Created: r.Created,
		Updated: r.Updated,
	}

	entry.Task, _ = r.Str(FieldTask)
	entry.User, _ = r.Str(FieldUser)
	entry.Date, _ = r.Str(FieldDate)
	entry.Value, _ = r.Float(FieldValue)

	return entry
}
