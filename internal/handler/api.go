package handler

import (
	"github.com/habitlog/internal/service"
	"github.com/habitlog/internal/store"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	store store.Store
	auth  store.Authenticator
	tasks *service.TaskService
	logs  *service.DailyLogService
	goals *service.GoalProgressService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(st store.Store, auth store.Authenticator) *API {
	return &API{
		store: st,
		auth:  auth,
		tasks: service.NewTaskService(st),
		logs:  service.NewDailyLogService(st),
		goals: service.NewGoalProgressService(st),
	}
}

// DailyLogs exposes the reconciliation service so the entrypoint can
// tune retry behaviour before the router starts serving.
func (a *API) DailyLogs() *service.DailyLogService {
	return a.logs
}
