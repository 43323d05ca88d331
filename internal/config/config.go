package config

import (
	"fmt"
	"os"
	"strings"
)

// 存储模式：remote 走远端记录服务，local 使用内置 SQLite。
const (
	StoreModeRemote = "remote"
	StoreModeLocal  = "local"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	GinMode           string
	SessionSecret     string
	StoreMode         string
	RemoteStoreURL    string
	RemoteStoreToken  string
	DatabasePath      string
	LocalUserName     string
	LocalUserPassword string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = "habitlog-dev-secret"
	}

	storeMode := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_MODE")))
	remoteStoreURL := strings.TrimSpace(os.Getenv("REMOTE_STORE_URL"))
	if storeMode == "" {
		// 未显式指定时按是否配置远端地址推断
		if remoteStoreURL != "" {
			storeMode = StoreModeRemote
		} else {
			storeMode = StoreModeLocal
		}
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "habitlog.db"
	}

	localUserName := strings.TrimSpace(os.Getenv("LOCAL_USER_NAME"))
	if localUserName == "" {
		localUserName = "owner"
	}

	return AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		GinMode:           ginMode,
		SessionSecret:     sessionSecret,
		StoreMode:         storeMode,
		RemoteStoreURL:    remoteStoreURL,
		RemoteStoreToken:  strings.TrimSpace(os.Getenv("REMOTE_STORE_TOKEN")),
		DatabasePath:      databasePath,
		LocalUserName:     localUserName,
		LocalUserPassword: strings.TrimSpace(os.Getenv("LOCAL_USER_PASSWORD")),
	}
}
