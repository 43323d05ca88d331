package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/store"
)

// 时间戳与远端存储保持同一种展示格式，方便两种模式下前端无差别处理
const timeLayout = "2006-01-02 15:04:05.000Z"

// Store 是自托管模式的嵌入式存储：gorm + sqlite 实现 store.Store，
// daily_logs 上的三列唯一索引承担与远端相同的约束职责
type Store struct {
	db *gorm.DB
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.Authenticator = (*Store)(nil)
)

// Open 打开（必要时创建）本地数据库并完成自动迁移
// databasePath 为空时回退到默认值 habitlog.db
func Open(databasePath string) (*Store, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "habitlog.db"
	}

	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := gdb.AutoMigrate(
		&userRow{},
		&taskRow{},
		&dailyLogRow{},
		&goalProgressRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: gdb}, nil
}

// OpenDB 直接包装一个已初始化的 gorm 连接，面向测试场景
func OpenDB(gdb *gorm.DB) (*Store, error) {
	if err := gdb.AutoMigrate(
		&userRow{},
		&taskRow{},
		&dailyLogRow{},
		&goalProgressRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: gdb}, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex"`
	PasswordHash string
	Created      time.Time
	Updated      time.Time
}

func (userRow) TableName() string { return "users" }

type taskRow struct {
	ID          string `gorm:"primaryKey"`
	User        string `gorm:"index"`
	Name        string
	Description string
	Tag         string
	Type        string
	DailyMode   string
	Target      float64
	Unit        string
	Created     time.Time
	Updated     time.Time
}

func (taskRow) TableName() string { return "tasks" }

// dailyLogRow 承载核心不变量：task + user + date 的三列唯一索引
// 保证同一任务同一天至多一条打卡记录，客户端只负责发现冲突
type dailyLogRow struct {
	ID          string `gorm:"primaryKey"`
	Task        string `gorm:"index;index:idx_daily_log_unique,unique"`
	User        string `gorm:"index:idx_daily_log_unique,unique"`
	Date        string `gorm:"index:idx_daily_log_unique,unique"`
	ValueBool   *bool
	ValueNumber *float64
	Note        string
	Created     time.Time
	Updated     time.Time
}

func (dailyLogRow) TableName() string { return "daily_logs" }

type goalProgressRow struct {
	ID      string `gorm:"primaryKey"`
	Task    string `gorm:"index"`
	User    string `gorm:"index"`
	Date    string `gorm:"index"`
	Value   float64
	Created time.Time
	Updated time.Time
}

func (goalProgressRow) TableName() string { return "goal_progress" }

// Query 按条件查询集合
func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	tx := applyQuery(s.db.WithContext(ctx), q)

	switch collection {
	case model.CollectionTasks:
		var rows []taskRow
		if err := tx.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query tasks: %w", err)
		}
		records := make([]store.Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, row.record())
		}
		return records, nil
	case model.CollectionDailyLogs:
		var rows []dailyLogRow
		if err := tx.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query daily logs: %w", err)
		}
		records := make([]store.Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, row.record())
		}
		return records, nil
	case model.CollectionGoalProgress:
		var rows []goalProgressRow
		if err := tx.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query goal progress: %w", err)
		}
		records := make([]store.Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, row.record())
		}
		return records, nil
	case model.CollectionUsers:
		var rows []userRow
		if err := tx.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query users: %w", err)
		}
		records := make([]store.Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, row.record())
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unknown collection %s", collection)
	}
}

// Create 在集合中新建一条记录，唯一索引冲突翻译成 ConstraintViolation
func (s *Store) Create(ctx context.Context, collection string, fields store.Fields) (store.Record, error) {
	now := time.Now().UTC()

	switch collection {
	case model.CollectionTasks:
		row := taskRow{ID: uuid.NewString(), Created: now, Updated: now}
		row.apply(fields)
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return store.Record{}, translateErr(collection, "create task", err)
		}
		return row.record(), nil
	case model.CollectionDailyLogs:
		row := dailyLogRow{ID: uuid.NewString(), Created: now, Updated: now}
		row.apply(fields)
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return store.Record{}, translateErr(collection, "create daily log", err)
		}
		return row.record(), nil
	case model.CollectionGoalProgress:
		row := goalProgressRow{ID: uuid.NewString(), Created: now, Updated: now}
		row.apply(fields)
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return store.Record{}, translateErr(collection, "create goal progress", err)
		}
		return row.record(), nil
	default:
		return store.Record{}, fmt.Errorf("unknown collection %s", collection)
	}
}

// Update 对已有记录做稀疏更新，fields 中没有的字段保持原值
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) (store.Record, error) {
	switch collection {
	case model.CollectionTasks:
		var row taskRow
		if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
			return store.Record{}, translateErr(collection, "find task", err)
		}
		row.apply(fields)
		row.Updated = time.Now().UTC()
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return store.Record{}, translateErr(collection, "update task", err)
		}
		return row.record(), nil
	case model.CollectionDailyLogs:
		var row dailyLogRow
		if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
			return store.Record{}, translateErr(collection, "find daily log", err)
		}
		row.apply(fields)
		row.Updated = time.Now().UTC()
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return store.Record{}, translateErr(collection, "update daily log", err)
		}
		return row.record(), nil
	case model.CollectionGoalProgress:
		var row goalProgressRow
		if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
			return store.Record{}, translateErr(collection, "find goal progress", err)
		}
		row.apply(fields)
		row.Updated = time.Now().UTC()
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return store.Record{}, translateErr(collection, "update goal progress", err)
		}
		return row.record(), nil
	default:
		return store.Record{}, fmt.Errorf("unknown collection %s", collection)
	}
}

// Delete 删除一条记录
// 删除任务时在同一事务里清掉其打卡与进度记录，与远端的级联删除语义一致
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if collection == model.CollectionTasks {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("task = ?", id).Delete(&dailyLogRow{}).Error; err != nil {
				return err
			}
			if err := tx.Where("task = ?", id).Delete(&goalProgressRow{}).Error; err != nil {
				return err
			}
			result := tx.Where("id = ?", id).Delete(&taskRow{})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return store.ErrNotFound
			}
			return nil
		})
		if err != nil {
			return translateErr(collection, "delete task", err)
		}
		return nil
	}

	var result *gorm.DB
	switch collection {
	case model.CollectionDailyLogs:
		result = s.db.WithContext(ctx).Where("id = ?", id).Delete(&dailyLogRow{})
	case model.CollectionGoalProgress:
		result = s.db.WithContext(ctx).Where("id = ?", id).Delete(&goalProgressRow{})
	default:
		return fmt.Errorf("unknown collection %s", collection)
	}
	if result.Error != nil {
		return translateErr(collection, "delete record", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// EnsureOwner 播种自托管模式的属主账户并返回其用户 ID
// 账户已存在但密码变化时更新口令散列，保证引导脚本可重复执行
func (s *Store) EnsureOwner(name, password string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("owner name is required")
	}
	if strings.TrimSpace(password) == "" {
		return "", errors.New("owner password is required")
	}

	var row userRow
	err := s.db.Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			return "", fmt.Errorf("hash owner password: %w", hashErr)
		}
		now := time.Now().UTC()
		row = userRow{ID: uuid.NewString(), Name: name, PasswordHash: string(hash), Created: now, Updated: now}
		if err := s.db.Create(&row).Error; err != nil {
			return "", fmt.Errorf("create owner: %w", err)
		}
		return row.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("find owner: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) != nil {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			return "", fmt.Errorf("hash owner password: %w", hashErr)
		}
		row.PasswordHash = string(hash)
		row.Updated = time.Now().UTC()
		if err := s.db.Save(&row).Error; err != nil {
			return "", fmt.Errorf("update owner password: %w", err)
		}
	}
	return row.ID, nil
}

// Authenticate 用账号密码校验本地用户，本地模式不支持令牌登录
func (s *Store) Authenticate(ctx context.Context, cred store.Credentials) (store.UserRef, error) {
	if strings.TrimSpace(cred.Name) == "" || cred.Password == "" {
		return store.UserRef{}, fmt.Errorf("name and password are required: %w", store.ErrPermissionDenied)
	}

	var row userRow
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(cred.Name)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.UserRef{}, fmt.Errorf("unknown user: %w", store.ErrPermissionDenied)
	}
	if err != nil {
		return store.UserRef{}, fmt.Errorf("find user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(cred.Password)) != nil {
		return store.UserRef{}, fmt.Errorf("wrong password: %w", store.ErrPermissionDenied)
	}
	return store.UserRef{ID: row.ID, Name: row.Name}, nil
}

func applyQuery(tx *gorm.DB, q store.Query) *gorm.DB {
	for _, cond := range q.Filter {
		tx = tx.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Op), cond.Value)
	}

	if q.Sort != "" {
		if field, ok := strings.CutPrefix(q.Sort, "-"); ok {
			tx = tx.Order(field + " DESC")
		} else {
			tx = tx.Order(q.Sort + " ASC")
		}
	}

	if q.PerPage > 0 {
		tx = tx.Limit(q.PerPage)
		if q.Page > 1 {
			tx = tx.Offset((q.Page - 1) * q.PerPage)
		}
	}
	return tx
}

// translateErr 把 gorm/sqlite 的原始错误翻译成存储层错误分类
// 唯一冲突的识别走两步：先认 gorm 的哨兵，再退回消息匹配，
// 不同 sqlite 驱动对同一种冲突的报法并不一致
func translateErr(collection, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &store.ConstraintViolation{
			Collection: collection,
			Field:      uniqueViolationField(err.Error()),
			Reason:     err.Error(),
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// uniqueViolationField 从 sqlite 报错里提取第一个冲突列名
func uniqueViolationField(msg string) string {
	const marker = "UNIQUE constraint failed:"
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(msg[idx+len(marker):])
	if comma := strings.Index(rest, ","); comma >= 0 {
		rest = rest[:comma]
	}
	if dot := strings.LastIndex(rest, "."); dot >= 0 {
		rest = rest[dot+1:]
	}
	return strings.TrimSpace(rest)
}

func (r taskRow) record() store.Record {
	fields := store.Fields{
		model.FieldUser:        r.User,
		model.FieldName:        r.Name,
		model.FieldDescription: r.Description,
		model.FieldTag:         r.Tag,
		model.FieldType:        r.Type,
		model.FieldDailyMode:   r.DailyMode,
		model.FieldTarget:      r.Target,
		model.FieldUnit:        r.Unit,
	}
	return store.Record{
		ID:         r.ID,
		Collection: model.CollectionTasks,
		Fields:     fields,
		Created:    r.Created.Format(timeLayout),
		Updated:    r.Updated.Format(timeLayout),
	}
}

func (r *taskRow) apply(fields store.Fields) {
	if v, ok := fields[model.FieldUser].(string); ok {
		r.User = v
	}
	if v, ok := fields[model.FieldName].(string); ok {
		r.Name = v
	}
	if v, ok := fields[model.FieldDescription].(string); ok {
		r.Description = v
	}
	if v, ok := fields[model.FieldTag].(string); ok {
		r.Tag = v
	}
	if v, ok := fields[model.FieldType].(string); ok {
		r.Type = v
	}
	if v, ok := fields[model.FieldDailyMode].(string); ok {
		r.DailyMode = v
	}
	if v, ok := asFloat(fields[model.FieldTarget]); ok {
		r.Target = v
	}
	if v, ok := fields[model.FieldUnit].(string); ok {
		r.Unit = v
	}
}

func (r dailyLogRow) record() store.Record {
	fields := store.Fields{
		model.FieldTask: r.Task,
		model.FieldUser: r.User,
		model.FieldDate: r.Date,
		model.FieldNote: r.Note,
	}
	if r.ValueBool != nil {
		fields[model.FieldValueBool] = *r.ValueBool
	}
	if r.ValueNumber != nil {
		fields[model.FieldValueNumber] = *r.ValueNumber
	}
	return store.Record{
		ID:         r.ID,
		Collection: model.CollectionDailyLogs,
		Fields:     fields,
		Created:    r.Created.Format(timeLayout),
		Updated:    r.Updated.Format(timeLayout),
	}
}

func (r *dailyLogRow) apply(fields store.Fields) {
	if v, ok := fields[model.FieldTask].(string); ok {
		r.Task = v
	}
	if v, ok := fields[model.FieldUser].(string); ok {
		r.User = v
	}
	if v, ok := fields[model.FieldDate].(string); ok {
		r.Date = v
	}
	if v, ok := asBool(fields[model.FieldValueBool]); ok {
		r.ValueBool = &v
	}
	if v, ok := asFloat(fields[model.FieldValueNumber]); ok {
		r.ValueNumber = &v
	}
	if v, ok := fields[model.FieldNote].(string); ok {
		r.Note = v
	}
}

func (r goalProgressRow) record() store.Record {
	return store.Record{
		ID:         r.ID,
		Collection: model.CollectionGoalProgress,
		Fields: store.Fields{
			model.FieldTask:  r.Task,
			model.FieldUser:  r.User,
			model.FieldDate:  r.Date,
			model.FieldValue: r.Value,
		},
		Created: r.Created.Format(timeLayout),
		Updated: r.Updated.Format(timeLayout),
	}
}

func (r *goalProgressRow) apply(fields store.Fields) {
	if v, ok := fields[model.FieldTask].(string); ok {
		r.Task = v
	}
	if v, ok := fields[model.FieldUser].(string); ok {
		r.User = v
	}
	if v, ok := fields[model.FieldDate].(string); ok {
		r.Date = v
	}
	if v, ok := asFloat(fields[model.FieldValue]); ok {
		r.Value = v
	}
}

func (r userRow) record() store.Record {
	return store.Record{
		ID:         r.ID,
		Collection: model.CollectionUsers,
		Fields:     store.Fields{model.FieldName: r.Name},
		Created:    r.Created.Format(timeLayout),
		Updated:    r.Updated.Format(timeLayout),
	}
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

func asBool(v any) (bool, bool) {
	val, ok := v.(bool)
	return val, ok
}
