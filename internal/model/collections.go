package model

// 集合名，与存储端的集合一一对应
const (
	CollectionUsers        = "users"
	CollectionTasks        = "tasks"
	CollectionDailyLogs    = "daily_logs"
	CollectionGoalProgress = "goal_progress"
)

// 字段名集中定义：三套存储适配层与服务层必须对同一份字段
// 词汇表达成一致，散落的字符串字面量容易在适配层之间漂移
const (
	FieldID          = "id"
	FieldUser        = "user"
	FieldTask        = "task"
	FieldDate        = "date"
	FieldName        = "name"
	FieldDescription = "description"
	FieldTag         = "tag"
	FieldType        = "type"
	FieldDailyMode   = "daily_mode"
	FieldTarget      = "target"
	FieldUnit        = "unit"
	FieldValueBool   = "value_bool"
	FieldValueNumber = "value_number"
	FieldNote        = "note"
	FieldValue       = "value"
)
