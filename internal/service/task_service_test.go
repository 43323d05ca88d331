package service

import (
	"context"
	"errors"
	"testing"

	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/store/storetest"
)

func TestCreateTaskDefaultsChecklistMode(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)

	task, err := svc.Create(context.Background(), "u1", TaskInput{
		Name:   "  晨间拉伸  ",
		Type:   "daily",
		Target: 99,
		Unit:   "次",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Name != "晨间拉伸" {
		t.Fatalf("expected trimmed name, got %q", task.Name)
	}
	if task.DailyMode != model.ModeChecklist {
		t.Fatalf("expected checklist default, got %q", task.DailyMode)
	}
	// 勾选型任务没有数值目标
	if task.Target != 0 || task.Unit != "" {
		t.Fatalf("expected cleared target for checklist task, got %v %q", task.Target, task.Unit)
	}
}

func TestCreateTaskKeepsNumberTarget(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)

	task, err := svc.Create(context.Background(), "u1", TaskInput{
		Name:      "喝水",
		Type:      "Daily",
		DailyMode: "NUMBER",
		Target:    8,
		Unit:      "杯",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Type != model.TaskDaily || task.DailyMode != model.ModeNumber {
		t.Fatalf("expected normalized daily/number, got %q/%q", task.Type, task.DailyMode)
	}
	if task.Target != 8 || task.Unit != "杯" {
		t.Fatalf("expected target preserved, got %v %q", task.Target, task.Unit)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	tests := []struct {
		name  string
		input TaskInput
	}{
		{name: "missing name", input: TaskInput{Type: "daily"}},
		{name: "unknown type", input: TaskInput{Name: "x", Type: "weekly"}},
		{name: "unknown daily mode", input: TaskInput{Name: "x", Type: "daily", DailyMode: "timer"}},
		{name: "negative number target", input: TaskInput{Name: "x", Type: "daily", DailyMode: "number", Target: -1}},
		{name: "goal without target", input: TaskInput{Name: "x", Type: "goal"}},
		{name: "goal with negative target", input: TaskInput{Name: "x", Type: "goal", Target: -3}},
	}

	fake := storetest.New()
	svc := NewTaskService(fake)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "u1", tt.input)
			if !errors.Is(err, ErrTaskInvalid) {
				t.Fatalf("expected ErrTaskInvalid, got %v", err)
			}
		})
	}

	if got := fake.CreateCalls(model.CollectionTasks); got != 0 {
		t.Fatalf("expected invalid input to never reach the store, got %d creates", got)
	}
}

func TestCreateGoalClearsDailyMode(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)

	task, err := svc.Create(context.Background(), "u1", TaskInput{
		Name:      "年度阅读",
		Type:      "goal",
		DailyMode: "checklist",
		Target:    12,
		Unit:      "本",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.DailyMode != "" {
		t.Fatalf("expected goal task without daily mode, got %q", task.DailyMode)
	}
	if task.Target != 12 {
		t.Fatalf("expected target 12, got %v", task.Target)
	}
}

func TestListTasksFiltersByOwnerTypeAndTag(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", TaskInput{Name: "拉伸", Tag: "健康", Type: "daily"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := svc.Create(ctx, "u1", TaskInput{Name: "读书", Tag: "学习", Type: "goal", Target: 12}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := svc.Create(ctx, "u2", TaskInput{Name: "跑步", Tag: "健康", Type: "daily"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	all, err := svc.List(ctx, "u1", TaskFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks for u1, got %d", len(all))
	}

	daily, err := svc.List(ctx, "u1", TaskFilter{Type: "daily"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(daily) != 1 || daily[0].Name != "拉伸" {
		t.Fatalf("expected only the daily task, got %+v", daily)
	}

	tagged, err := svc.List(ctx, "u1", TaskFilter{Tag: "学习"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tagged) != 1 || tagged[0].Name != "读书" {
		t.Fatalf("expected only the tagged task, got %+v", tagged)
	}
}

func TestListTasksSearchesInMemory(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", TaskInput{Name: "晨间拉伸", Description: "起床后 10 分钟", Type: "daily"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := svc.Create(ctx, "u1", TaskInput{Name: "睡前阅读", Description: "远离手机", Type: "daily"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := svc.List(ctx, "u1", TaskFilter{Search: "拉伸"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "晨间拉伸" {
		t.Fatalf("expected name match, got %+v", got)
	}

	got, err = svc.List(ctx, "u1", TaskFilter{Search: "手机"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "睡前阅读" {
		t.Fatalf("expected description match, got %+v", got)
	}
}

func TestGetTaskEnforcesOwnership(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)
	ctx := context.Background()

	task, err := svc.Create(ctx, "u1", TaskInput{Name: "拉伸", Type: "daily"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := svc.Get(ctx, "u1", task.ID); err != nil {
		t.Fatalf("owner should see the task: %v", err)
	}
	if _, err := svc.Get(ctx, "u2", task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for foreign user, got %v", err)
	}
	if _, err := svc.Get(ctx, "u1", "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestUpdateTaskRejectsForeignTask(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)
	ctx := context.Background()

	task, err := svc.Create(ctx, "u1", TaskInput{Name: "拉伸", Type: "daily"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err = svc.Update(ctx, "u2", task.ID, TaskInput{Name: "改名", Type: "daily"})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	updated, err := svc.Update(ctx, "u1", task.ID, TaskInput{Name: "深度拉伸", Tag: "健康", Type: "daily"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "深度拉伸" || updated.Tag != "健康" {
		t.Fatalf("expected updated fields, got %+v", updated)
	}
}

func TestDeleteTask(t *testing.T) {
	fake := storetest.New()
	svc := NewTaskService(fake)
	ctx := context.Background()

	task, err := svc.Create(ctx, "u1", TaskInput{Name: "拉伸", Type: "daily"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := svc.Delete(ctx, "u2", task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for foreign user, got %v", err)
	}
	if err := svc.Delete(ctx, "u1", task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(ctx, "u1", task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected task to be gone, got %v", err)
	}
}
