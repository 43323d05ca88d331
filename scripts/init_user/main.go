package main

import (
	"fmt"
	"log"

	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/store/local"
)

func main() {
	cfg := config.Load()

	st, err := local.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	password := cfg.LocalUserPassword
	if password == "" {
		password = "habit123" // 默认密码
	}

	userID, err := st.EnsureOwner(cfg.LocalUserName, password)
	if err != nil {
		log.Fatal("创建用户失败:", err)
	}

	fmt.Println("本地账户就绪")
	fmt.Println("用户名:", cfg.LocalUserName)
	fmt.Println("密码:", password)
	fmt.Println("用户ID:", userID)
}
