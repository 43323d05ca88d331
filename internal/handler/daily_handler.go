package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/service"
)

type logPatchPayload struct {
	Done  *bool    `json:"done"`
	Value *float64 `json:"value"`
	Note  *string  `json:"note"`
}

type ensureLogPayload struct {
	Task string `json:"task"`
	Date string `json:"date"`
}

// GetDaily 返回某天的打卡视图：先对账补齐当天缺失的记录，
// 再把任务和记录合并成一份清单
func (a *API) GetDaily(c *gin.Context) {
	day := strings.TrimSpace(c.Query("date"))
	if day == "" {
		day = service.Today()
	}
	day, ok := parseDayParam(day)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的日期")
		return
	}

	userID := actingUser(c)
	ctx := c.Request.Context()

	tasks, err := a.tasks.List(ctx, userID, service.TaskFilter{Type: string(model.TaskDaily)})
	if err != nil {
		respondStoreError(c, err, "获取任务列表失败")
		return
	}

	summary, err := a.logs.ReconcileDay(ctx, userID, tasks, day)
	if err != nil {
		// 只会是调用方 context 结束：客户端已放弃本次请求
		c.Abort()
		return
	}

	logs, err := a.logs.LogsForDay(ctx, userID, day)
	if err != nil {
		respondStoreError(c, err, "获取打卡记录失败")
		return
	}

	byTask := make(map[string]model.DailyLog, len(logs))
	for _, entry := range logs {
		byTask[entry.Task] = entry
	}

	items := make([]gin.H, 0, len(tasks))
	for _, task := range tasks {
		item := gin.H{"task": taskToPayload(task)}
		if entry, found := byTask[task.ID]; found {
			item["log"] = logToPayload(entry)
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"date":  day,
		"items": items,
		"reconcile": gin.H{
			"ensured": summary.Ensured,
			"created": summary.Created,
			"failed":  summary.Failed,
		},
	})
}

// EnsureLog 幂等地保证某任务某天恰有一条打卡记录。
// 结果仍未可见时返回 202，前端稍后重查即可。
func (a *API) EnsureLog(c *gin.Context) {
	var payload ensureLogPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	day := strings.TrimSpace(payload.Date)
	if day == "" {
		day = service.Today()
	}
	day, ok := parseDayParam(day)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的日期")
		return
	}

	userID := actingUser(c)
	task, err := a.tasks.Get(c.Request.Context(), userID, payload.Task)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	if task.Type != model.TaskDaily {
		respondError(c, http.StatusBadRequest, "只有每日任务才有打卡记录")
		return
	}

	result, err := a.logs.EnsureLog(c.Request.Context(), userID, task.ID, day)
	if err != nil {
		respondStoreError(c, err, "打卡记录保存失败")
		return
	}

	if result.Outcome == service.LogInconclusive {
		respondRetryLater(c, "打卡记录尚未同步完成，请稍后刷新")
		return
	}

	status := http.StatusOK
	if result.Outcome == service.LogCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"outcome": string(result.Outcome),
		"log":     logToPayload(*result.Log),
	})
}

// PatchLog 对单条打卡记录做稀疏更新，缺省字段保持原值
func (a *API) PatchLog(c *gin.Context) {
	var payload logPatchPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}
	if payload.Done == nil && payload.Value == nil && payload.Note == nil {
		respondError(c, http.StatusBadRequest, "没有需要更新的字段")
		return
	}

	patch := service.LogPatch{
		Done:  payload.Done,
		Value: payload.Value,
		Note:  payload.Note,
	}

	entry, err := a.logs.UpdateLog(c.Request.Context(), actingUser(c), c.Param("id"), patch)
	if err != nil {
		if errors.Is(err, service.ErrLogNotFound) {
			respondError(c, http.StatusNotFound, "打卡记录不存在")
			return
		}
		respondStoreError(c, err, "保存打卡记录失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"log": logToPayload(*entry)})
}

func logToPayload(entry model.DailyLog) gin.H {
	item := gin.H{
		"id":      entry.ID,
		"task":    entry.Task,
		"date":    service.NormalizeDayKey(entry.Date),
		"done":    entry.Done(),
		"note":    entry.Note,
		"created": entry.Created,
		"updated": entry.Updated,
	}

	if entry.ValueNumber != nil {
		item["value"] = *entry.ValueNumber
	}
	if entry.Note != "" {
		if rendered, err := renderMarkdown(entry.Note); err == nil {
			item["note_html"] = rendered
		}
	}

	return item
}
