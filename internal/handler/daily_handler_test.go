package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/store"
)

func TestGetDailyReconcilesMissingLogs(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	taskA := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "拉伸",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeChecklist),
	})
	taskB := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "阅读",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeChecklist),
	})
	// 目标任务和别人的任务都不该进当日清单
	fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser: "u1",
		model.FieldName: "年度阅读",
		model.FieldType: string(model.TaskGoal),
	})
	fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser: "u2",
		model.FieldName: "别人的任务",
		model.FieldType: string(model.TaskDaily),
	})

	fake.Seed(model.CollectionDailyLogs, store.Fields{
		model.FieldTask:      taskA.ID,
		model.FieldUser:      "u1",
		model.FieldDate:      "2024-03-02",
		model.FieldValueBool: true,
	})

	w := doJSON(t, engine, cookies, http.MethodGet, "/api/daily?date=2024-03-02", "")
	if w.Code != http.StatusOK {
		t.Fatalf("daily view failed with status %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["date"] != "2024-03-02" {
		t.Fatalf("unexpected date %v", body["date"])
	}

	reconcile, ok := body["reconcile"].(map[string]any)
	if !ok {
		t.Fatal("expected reconcile summary")
	}
	if got, _ := reconcile["ensured"].(float64); got != 2 {
		t.Fatalf("expected 2 ensured tasks, got %v", reconcile["ensured"])
	}
	if got, _ := reconcile["created"].(float64); got != 1 {
		t.Fatalf("expected 1 created log, got %v", reconcile["created"])
	}

	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	logsByTask := make(map[string]map[string]any, len(items))
	for _, raw := range items {
		item := raw.(map[string]any)
		task := item["task"].(map[string]any)
		entry, hasLog := item["log"].(map[string]any)
		if !hasLog {
			t.Fatalf("expected every daily task to carry a log after reconciliation, item %v", item)
		}
		logsByTask[task["id"].(string)] = entry
	}
	if done, _ := logsByTask[taskA.ID]["done"].(bool); !done {
		t.Fatal("expected existing log to stay done")
	}
	if done, _ := logsByTask[taskB.ID]["done"].(bool); done {
		t.Fatal("expected backfilled log to start not-done")
	}

	if got := len(fake.All(model.CollectionDailyLogs)); got != 2 {
		t.Fatalf("expected exactly 2 log records, got %d", got)
	}
}

func TestGetDailyIsIdempotent(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "拉伸",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeChecklist),
	})

	for i := 0; i < 2; i++ {
		w := doJSON(t, engine, cookies, http.MethodGet, "/api/daily?date=2024-03-02", "")
		if w.Code != http.StatusOK {
			t.Fatalf("daily view %d failed with status %d", i+1, w.Code)
		}
	}
	if got := len(fake.All(model.CollectionDailyLogs)); got != 1 {
		t.Fatalf("expected repeated views to keep 1 record, got %d", got)
	}
}

func TestGetDailyRejectsMalformedDate(t *testing.T) {
	_, engine, cookies := setupAuthedAPI(t)

	w := doJSON(t, engine, cookies, http.MethodGet, "/api/daily?date=not-a-date", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "无效的日期" {
		t.Fatalf("unexpected error message %v", body["error"])
	}
}

func TestEnsureLogLifecycle(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	task := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "拉伸",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeChecklist),
	})
	payload := fmt.Sprintf(`{"task":%q,"date":"2024-03-02"}`, task.ID)

	w := doJSON(t, engine, cookies, http.MethodPost, "/api/logs", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first ensure, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["outcome"] != "created" {
		t.Fatalf("expected outcome created, got %v", body["outcome"])
	}
	first, _ := body["log"].(map[string]any)
	if first["date"] != "2024-03-02" {
		t.Fatalf("unexpected log date %v", first["date"])
	}
	if done, _ := first["done"].(bool); done {
		t.Fatal("expected fresh log to start not-done")
	}

	w = doJSON(t, engine, cookies, http.MethodPost, "/api/logs", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on second ensure, got %d", w.Code)
	}
	body = decodeBody(t, w)
	if body["outcome"] != "found" {
		t.Fatalf("expected outcome found, got %v", body["outcome"])
	}
	second, _ := body["log"].(map[string]any)
	if second["id"] != first["id"] {
		t.Fatalf("expected both calls to return the same record, got %v and %v", first["id"], second["id"])
	}

	if got := len(fake.All(model.CollectionDailyLogs)); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}
}

func TestEnsureLogRequiresDailyTask(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	goal := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser: "u1",
		model.FieldName: "年度阅读",
		model.FieldType: string(model.TaskGoal),
	})

	w := doJSON(t, engine, cookies, http.MethodPost, "/api/logs", fmt.Sprintf(`{"task":%q}`, goal.ID))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "只有每日任务才有打卡记录" {
		t.Fatalf("unexpected error message %v", body["error"])
	}

	w = doJSON(t, engine, cookies, http.MethodPost, "/api/logs", `{"task":"missing"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", w.Code)
	}
}

// 记录已存在但读路径追不上时，接口用 202 让前端稍后刷新，
// 而不是把这种暂态当成失败
func TestEnsureLogReportsPendingSync(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	task := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "拉伸",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeChecklist),
	})

	fake.SetVisibilityLag(5)
	if _, err := fake.Create(context.Background(), model.CollectionDailyLogs, store.Fields{
		model.FieldTask:      task.ID,
		model.FieldUser:      "u1",
		model.FieldDate:      "2024-03-02",
		model.FieldValueBool: true,
	}); err != nil {
		t.Fatalf("create winner record: %v", err)
	}

	w := doJSON(t, engine, cookies, http.MethodPost, "/api/logs", fmt.Sprintf(`{"task":%q,"date":"2024-03-02"}`, task.ID))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["retry"] != true {
		t.Fatalf("expected retry hint, got %v", body)
	}

	if got := len(fake.All(model.CollectionDailyLogs)); got != 1 {
		t.Fatalf("expected no duplicate record, got %d", got)
	}
}

func TestPatchLogKeepsUntouchedFields(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	task := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "喝水",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeNumber),
		model.FieldTarget:    8.0,
		model.FieldUnit:      "杯",
	})

	w := doJSON(t, engine, cookies, http.MethodPost, "/api/logs", fmt.Sprintf(`{"task":%q,"date":"2024-03-02"}`, task.ID))
	if w.Code != http.StatusCreated {
		t.Fatalf("ensure failed with status %d", w.Code)
	}
	entry, _ := decodeBody(t, w)["log"].(map[string]any)
	id := entry["id"].(string)

	w = doJSON(t, engine, cookies, http.MethodPatch, "/api/logs/"+id, `{"value":5,"note":"到下午为止"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch failed with status %d: %s", w.Code, w.Body.String())
	}
	patched, _ := decodeBody(t, w)["log"].(map[string]any)
	if got, _ := patched["value"].(float64); got != 5 {
		t.Fatalf("expected value 5, got %v", patched["value"])
	}
	if patched["note"] != "到下午为止" {
		t.Fatalf("unexpected note %v", patched["note"])
	}

	// 只勾完成位，数值与备注保持原样
	w = doJSON(t, engine, cookies, http.MethodPatch, "/api/logs/"+id, `{"done":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("second patch failed with status %d", w.Code)
	}
	patched, _ = decodeBody(t, w)["log"].(map[string]any)
	if done, _ := patched["done"].(bool); !done {
		t.Fatal("expected done to flip true")
	}
	if got, _ := patched["value"].(float64); got != 5 {
		t.Fatalf("expected value to survive, got %v", patched["value"])
	}
	if patched["note"] != "到下午为止" {
		t.Fatalf("expected note to survive, got %v", patched["note"])
	}
}

func TestPatchLogRendersNoteMarkdown(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	task := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "阅读",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeChecklist),
	})

	w := doJSON(t, engine, cookies, http.MethodPost, "/api/logs", fmt.Sprintf(`{"task":%q,"date":"2024-03-02"}`, task.ID))
	entry, _ := decodeBody(t, w)["log"].(map[string]any)

	w = doJSON(t, engine, cookies, http.MethodPatch, "/api/logs/"+entry["id"].(string), `{"note":"读完 **第三章** <script>alert(1)</script>"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch failed with status %d", w.Code)
	}
	patched, _ := decodeBody(t, w)["log"].(map[string]any)
	html, _ := patched["note_html"].(string)
	if html == "" {
		t.Fatal("expected note_html to be rendered")
	}
	if !strings.Contains(html, "<strong>第三章</strong>") {
		t.Fatalf("expected markdown rendering, got %q", html)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected script tags to be stripped, got %q", html)
	}
}

func TestPatchLogValidation(t *testing.T) {
	fake, engine, cookies := setupAuthedAPI(t)

	task := fake.Seed(model.CollectionTasks, store.Fields{
		model.FieldUser:      "u1",
		model.FieldName:      "拉伸",
		model.FieldType:      string(model.TaskDaily),
		model.FieldDailyMode: string(model.ModeChecklist),
	})
	w := doJSON(t, engine, cookies, http.MethodPost, "/api/logs", fmt.Sprintf(`{"task":%q,"date":"2024-03-02"}`, task.ID))
	entry, _ := decodeBody(t, w)["log"].(map[string]any)

	w = doJSON(t, engine, cookies, http.MethodPatch, "/api/logs/"+entry["id"].(string), `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty patch, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "没有需要更新的字段" {
		t.Fatalf("unexpected error message %v", body["error"])
	}

	w = doJSON(t, engine, cookies, http.MethodPatch, "/api/logs/missing", `{"done":true}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing log, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "打卡记录不存在" {
		t.Fatalf("unexpected error message %v", body["error"])
	}
}
