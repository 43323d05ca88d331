package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/service"
	"github.com/habitlog/internal/store"
)

const dateFormat = "2006-01-02"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// respondRetryLater 用 202 告知前端本次结果尚未可见，稍后整页刷新即可。
// 这不是失败：记录多半已经写入，只是读路径还没追上。
func respondRetryLater(c *gin.Context, message string) {
	c.JSON(http.StatusAccepted, gin.H{"retry": true, "message": message})
}

// respondStoreError 把存储层错误映射到 HTTP 响应。权限错误原样带出
// 服务端信息，方便排查集合访问规则配置。
func respondStoreError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrPermissionDenied):
		respondError(c, http.StatusForbidden, "没有权限执行该操作："+err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "记录不存在")
	case errors.Is(err, store.ErrCancelled):
		respondRetryLater(c, "数据暂不可用，请稍后刷新")
	default:
		respondError(c, http.StatusInternalServerError, fallback)
	}
}

// parseDayParam 规整日期入参并校验是否是合法的 YYYY-MM-DD。
func parseDayParam(raw string) (string, bool) {
	day := service.NormalizeDayKey(strings.TrimSpace(raw))
	if _, err := time.Parse(dateFormat, day); err != nil {
		return "", false
	}
	return day, true
}
