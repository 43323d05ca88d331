package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/service"
)

type progressPayload struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// AddGoalProgress 为目标任务记一笔投入
func (a *API) AddGoalProgress(c *gin.Context) {
	task, ok := a.goalTask(c)
	if !ok {
		return
	}

	var payload progressPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}
	if payload.Value <= 0 {
		respondError(c, http.StatusBadRequest, "进度数值必须大于 0")
		return
	}

	day := strings.TrimSpace(payload.Date)
	if day == "" {
		day = service.Today()
	}
	day, okDay := parseDayParam(day)
	if !okDay {
		respondError(c, http.StatusBadRequest, "无效的日期")
		return
	}

	entry, err := a.goals.Add(c.Request.Context(), actingUser(c), task.ID, day, payload.Value)
	if err != nil {
		respondStoreError(c, err, "保存进度失败")
		return
	}

	response := gin.H{"entry": goalEntryToPayload(*entry)}
	if summary, err := a.goals.Summary(c.Request.Context(), actingUser(c), *task); err == nil {
		response["summary"] = goalSummaryToPayload(summary)
	}

	c.JSON(http.StatusOK, response)
}

// GetGoalProgress 返回目标任务的进度明细与汇总
func (a *API) GetGoalProgress(c *gin.Context) {
	task, ok := a.goalTask(c)
	if !ok {
		return
	}

	end := strings.TrimSpace(c.Query("end"))
	if end == "" {
		end = service.Today()
	}
	endDay, okDay := parseDayParam(end)
	if !okDay {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return
	}

	start := strings.TrimSpace(c.Query("start"))
	if start == "" {
		// 默认从任务创建那天起查
		start = service.NormalizeDayKey(task.Created)
	}
	startDay, okDay := parseDayParam(start)
	if !okDay {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return
	}

	entries, err := a.goals.Entries(c.Request.Context(), actingUser(c), task.ID, startDay, endDay)
	if err != nil {
		respondStoreError(c, err, "获取进度明细失败")
		return
	}

	summary, err := a.goals.Summary(c.Request.Context(), actingUser(c), *task)
	if err != nil {
		respondStoreError(c, err, "汇总进度失败")
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		items = append(items, goalEntryToPayload(entry))
	}

	c.JSON(http.StatusOK, gin.H{
		"task":    taskToPayload(*task),
		"entries": items,
		"summary": goalSummaryToPayload(summary),
		"range":   gin.H{"start": startDay, "end": endDay},
	})
}

// goalTask 解析路径里的任务并确认是目标类型
func (a *API) goalTask(c *gin.Context) (*model.Task, bool) {
	task, err := a.tasks.Get(c.Request.Context(), actingUser(c), c.Param("id"))
	if err != nil {
		handleTaskError(c, err)
		return nil, false
	}
	if task.Type != model.TaskGoal {
		respondError(c, http.StatusBadRequest, "该任务不是目标类型")
		return nil, false
	}
	return task, true
}

func goalEntryToPayload(entry model.GoalProgressEntry) gin.H {
	return gin.H{
		"id":      entry.ID,
		"task":    entry.Task,
		"date":    service.NormalizeDayKey(entry.Date),
		"value":   entry.Value,
		"created": entry.Created,
		"updated": entry.Updated,
	}
}

func goalSummaryToPayload(summary *service.GoalSummary) gin.H {
	return gin.H{
		"total":   summary.Total,
		"target":  summary.Target,
		"percent": summary.Percent,
		"entries": summary.Entries,
	}
}
