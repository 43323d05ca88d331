package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/service"
)

type taskPayload struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Tag         string  `json:"tag"`
	Type        string  `json:"type"`
	DailyMode   string  `json:"daily_mode"`
	Target      float64 `json:"target"`
	Unit        string  `json:"unit"`
}

// ListTasks 返回当前用户的任务列表
func (a *API) ListTasks(c *gin.Context) {
	filter := service.TaskFilter{
		Type:   c.Query("type"),
		Tag:    c.Query("tag"),
		Search: c.Query("search"),
	}

	tasks, err := a.tasks.List(c.Request.Context(), actingUser(c), filter)
	if err != nil {
		respondStoreError(c, err, "获取任务列表失败")
		return
	}

	items := make([]gin.H, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskToPayload(task))
	}

	c.JSON(http.StatusOK, gin.H{"tasks": items})
}

// GetTask 返回单个任务详情
func (a *API) GetTask(c *gin.Context) {
	task, err := a.tasks.Get(c.Request.Context(), actingUser(c), c.Param("id"))
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": taskToPayload(*task)})
}

// CreateTask 创建任务
func (a *API) CreateTask(c *gin.Context) {
	input, ok := parseTaskInput(c)
	if !ok {
		return
	}

	task, err := a.tasks.Create(c.Request.Context(), actingUser(c), input)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task": taskToPayload(*task)})
}

// UpdateTask 更新任务
func (a *API) UpdateTask(c *gin.Context) {
	input, ok := parseTaskInput(c)
	if !ok {
		return
	}

	task, err := a.tasks.Update(c.Request.Context(), actingUser(c), c.Param("id"), input)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": taskToPayload(*task)})
}

// DeleteTask 删除任务及其打卡记录
func (a *API) DeleteTask(c *gin.Context) {
	if err := a.tasks.Delete(c.Request.Context(), actingUser(c), c.Param("id")); err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetTaskStats 返回任务在日期区间内的完成统计
func (a *API) GetTaskStats(c *gin.Context) {
	task, err := a.tasks.Get(c.Request.Context(), actingUser(c), c.Param("id"))
	if err != nil {
		handleTaskError(c, err)
		return
	}

	end := strings.TrimSpace(c.Query("end"))
	if end == "" {
		end = service.Today()
	}
	endDay, ok := parseDayParam(end)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return
	}

	start := strings.TrimSpace(c.Query("start"))
	if start == "" {
		start = service.ShiftDay(endDay, -29)
	}
	startDay, ok := parseDayParam(start)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return
	}
	if endDay < startDay {
		respondError(c, http.StatusBadRequest, "结束日期不能早于开始日期")
		return
	}

	stats, err := a.logs.StatsBetween(c.Request.Context(), actingUser(c), *task, startDay, endDay)
	if err != nil {
		respondStoreError(c, err, "计算统计信息失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task":  taskToPayload(*task),
		"stats": serializeTaskStats(stats),
	})
}

func parseTaskInput(c *gin.Context) (service.TaskInput, bool) {
	var payload taskPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return service.TaskInput{}, false
	}

	return service.TaskInput{
		Name:        payload.Name,
		Description: payload.Description,
		Tag:         payload.Tag,
		Type:        payload.Type,
		DailyMode:   payload.DailyMode,
		Target:      payload.Target,
		Unit:        payload.Unit,
	}, true
}

func taskToPayload(task model.Task) gin.H {
	item := gin.H{
		"id":          task.ID,
		"name":        task.Name,
		"description": task.Description,
		"tag":         task.Tag,
		"type":        string(task.Type),
		"created":     task.Created,
		"updated":     task.Updated,
	}

	switch task.Type {
	case model.TaskDaily:
		item["daily_mode"] = string(task.DailyMode)
		if task.DailyMode == model.ModeNumber {
			item["target"] = task.Target
			item["unit"] = task.Unit
		}
	case model.TaskGoal:
		item["target"] = task.Target
		item["unit"] = task.Unit
	}

	if task.Description != "" {
		if rendered, err := renderMarkdown(task.Description); err == nil {
			item["description_html"] = rendered
		}
	}

	return item
}

func serializeTaskStats(stats *service.TaskStats) gin.H {
	return gin.H{
		"range_start":     stats.RangeStart,
		"range_end":       stats.RangeEnd,
		"completed_count": stats.CompletedCount,
		"target_count":    stats.TargetCount,
		"completion_rate": stats.CompletionRate,
		"current_streak":  stats.CurrentStreak,
		"longest_streak":  stats.LongestStreak,
	}
}

func handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		respondError(c, http.StatusNotFound, "任务不存在")
	case errors.Is(err, service.ErrTaskInvalid):
		respondError(c, http.StatusBadRequest, "任务配置无效："+err.Error())
	default:
		respondStoreError(c, err, "操作失败")
	}
}
