package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/handler"
	"github.com/habitlog/internal/router"
	"github.com/habitlog/internal/store"
	"github.com/habitlog/internal/store/local"
	"github.com/habitlog/internal/store/rest"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	st, auth, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}

	api := handler.NewAPI(st, auth)

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, cfg.SessionSecret)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

// openStore 按配置选择存储实现：remote 连远端记录服务，
// local 打开内置 SQLite 并确保本地账户可登录。
func openStore(cfg config.AppConfig) (store.Store, store.Authenticator, error) {
	if cfg.StoreMode == config.StoreModeRemote {
		client := rest.New(cfg.RemoteStoreURL, cfg.RemoteStoreToken)
		return client, client, nil
	}

	st, err := local.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LocalUserPassword != "" {
		if _, err := st.EnsureOwner(cfg.LocalUserName, cfg.LocalUserPassword); err != nil {
			return nil, nil, err
		}
	}
	return st, st, nil
}
