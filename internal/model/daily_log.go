package model

import "github.com/habitlog/internal/store"

// DailyLog 是 daily 任务在某一天的打卡记录
// 同一 (task, user, date) 至多存在一条，由存储端的唯一约束保证
// ValueBool/ValueNumber 为 nil 表示该字段从未写入
type DailyLog struct {
	ID          string
	Task        string
	User        string
	Date        string
	ValueBool   *bool
	ValueNumber *float64
	Note        string
	Created     string
	Updated     string
}

// Done 返回是否已勾选完成，字段缺失按未完成处理
func (l DailyLog) Done() bool {
	return l.ValueBool != nil && *l.ValueBool
}

// DailyLogFromRecord 把存储记录解码为 DailyLog
// Date 保留存储返回的原始串，调用方比较前需自行归一成日键
func DailyLogFromRecord(r store.Record) DailyLog {
	log := DailyLog{
		ID:      r.ID,
		Created: r.Created,
		Updated: r.Updated,
	}

	log.Task, _ = r.Str(FieldTask)
	log.User, _ = r.Str(FieldUser)
	log.Date, _ = r.Str(FieldDate)
	log.Note, _ = r.Str(FieldNote)

	if v, ok := r.Bool(FieldValueBool); ok {
		log.ValueBool = &v
	}
	if v, ok := r.Float(FieldValueNumber); ok {
		log.ValueNumber = &v
	}

	return log
}
