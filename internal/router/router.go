package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("habitlog_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// 会话管理：登录、查询、登出
	r.POST("/api/session", api.CreateSession)
	r.GET("/api/session", api.GetSession)
	r.DELETE("/api/session", api.DeleteSession)

	// 需要认证的业务路由
	authed := r.Group("/api")
	authed.Use(handler.RequireUser())
	{
		authed.GET("/tasks", api.ListTasks)
		authed.POST("/tasks", api.CreateTask)
		authed.GET("/tasks/:id", api.GetTask)
		authed.PUT("/tasks/:id", api.UpdateTask)
		authed.DELETE("/tasks/:id", api.DeleteTask)
		authed.GET("/tasks/:id/stats", api.GetTaskStats)

		authed.GET("/daily", api.GetDaily)
		authed.POST("/logs", api.EnsureLog)
		authed.PATCH("/logs/:id", api.PatchLog)

		authed.POST("/goals/:id/progress", api.AddGoalProgress)
		authed.GET("/goals/:id/progress", api.GetGoalProgress)
	}

	return r
}
