package main

import (
	"context"
	"fmt"
	"log"

	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/model"
	"github.com/habitlog/internal/service"
	"github.com/habitlog/internal/store"
	"github.com/habitlog/internal/store/local"
)

// 演示数据生成器：建一组示例任务并补上最近几周的打卡记录
func main() {
	cfg := config.Load()

	st, err := local.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	password := cfg.LocalUserPassword
	if password == "" {
		password = "habit123"
	}
	userID, err := st.EnsureOwner(cfg.LocalUserName, password)
	if err != nil {
		log.Fatal("创建用户失败:", err)
	}

	fmt.Println("开始生成演示数据...")

	if err := seedDemoData(context.Background(), st, userID); err != nil {
		log.Fatal("生成演示数据失败:", err)
	}

	fmt.Println("演示数据生成完成！")
	fmt.Println("用户:", cfg.LocalUserName, "(密码:", password+")")
}

type demoTask struct {
	input service.TaskInput
	// 最近 days 天里，第 i 天是否打卡 / 打卡数值
	days   int
	done   func(i int) bool
	number func(i int) float64
}

// seedDemoData 依次创建任务、补历史打卡、写目标进度。
// 任务已存在时跳过，重复执行不会翻倍。
func seedDemoData(ctx context.Context, st store.Store, userID string) error {
	tasks := service.NewTaskService(st)

	existing, err := tasks.List(ctx, userID, service.TaskFilter{})
	if err != nil {
		return fmt.Errorf("check existing tasks: %w", err)
	}
	if len(existing) > 0 {
		fmt.Println("任务已存在，跳过创建")
		return nil
	}

	demos := []demoTask{
		{
			input: service.TaskInput{Name: "晨间拉伸", Description: "起床后 10 分钟拉伸", Tag: "健康", Type: "daily", DailyMode: "checklist"},
			days:  21,
			done:  func(i int) bool { return i%4 != 0 },
		},
		{
			input:  service.TaskInput{Name: "喝水", Description: "每天 8 杯水", Tag: "健康", Type: "daily", DailyMode: "number", Target: 8, Unit: "杯"},
			days:   21,
			done:   func(i int) bool { return true },
			number: func(i int) float64 { return float64(5 + i%4) },
		},
		{
			input: service.TaskInput{Name: "阅读", Description: "睡前阅读 30 分钟\n\n- 远离手机\n- 做笔记", Tag: "学习", Type: "daily", DailyMode: "checklist"},
			days:  14,
			done:  func(i int) bool { return i%3 != 2 },
		},
	}

	if err := seedDailyTasks(ctx, st, tasks, userID, demos); err != nil {
		return err
	}
	fmt.Println("✅ 每日任务创建完成")

	if err := seedGoalTask(ctx, st, tasks, userID); err != nil {
		return err
	}
	fmt.Println("✅ 目标任务创建完成")

	return nil
}

func seedDailyTasks(ctx context.Context, st store.Store, tasks *service.TaskService, userID string, demos []demoTask) error {
	today := service.Today()

	for _, demo := range demos {
		task, err := tasks.Create(ctx, userID, demo.input)
		if err != nil {
			return fmt.Errorf("create task %s: %w", demo.input.Name, err)
		}

		for i := 0; i < demo.days; i++ {
			day := service.ShiftDay(today, i-demo.days+1)
			fields := store.Fields{
				model.FieldUser: userID,
				model.FieldTask: task.ID,
				model.FieldDate: day,
			}

			done := demo.done != nil && demo.done(i)
			fields[model.FieldValueBool] = done
			if done && demo.number != nil {
				fields[model.FieldValueNumber] = demo.number(i)
			}

			if _, err := st.Create(ctx, model.CollectionDailyLogs, fields); err != nil {
				return fmt.Errorf("seed log %s/%s: %w", demo.input.Name, day, err)
			}
		}
	}

	return nil
}

func seedGoalTask(ctx context.Context, st store.Store, tasks *service.TaskService, userID string) error {
	task, err := tasks.Create(ctx, userID, service.TaskInput{
		Name:        "年度阅读计划",
		Description: "今年读完 12 本书",
		Tag:         "学习",
		Type:        "goal",
		Target:      12,
		Unit:        "本",
	})
	if err != nil {
		return fmt.Errorf("create goal task: %w", err)
	}

	goals := service.NewGoalProgressService(st)
	today := service.Today()

	for i, delta := range []float64{1, 1, 2, 1} {
		day := service.ShiftDay(today, -21*(4-i))
		if _, err := goals.Add(ctx, userID, task.ID, day, delta); err != nil {
			return fmt.Errorf("seed progress %s: %w", day, err)
		}
	}

	return nil
}
