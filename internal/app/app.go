// Package app 组装存储、授权与命令服务，供 server 和 CLI 共用
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/auth"
	"github.com/langchou/teslactl/internal/config"
	"github.com/langchou/teslactl/internal/repository"
	"github.com/langchou/teslactl/internal/service"
	"github.com/langchou/teslactl/internal/storage"
)

// App 已初始化的组件
type App struct {
	DB      *repository.DB // 未配置数据库时为 nil
	Store   storage.Store
	Auth    *auth.Manager
	Service *service.CommandService
}

// Options 组装选项
type Options struct {
	UseDatabase bool // 配置了 DATABASE_URL 时使用数据库存储并记录命令
	Service     []service.Option
}

// Open 打开存储、写入环境变量中的初始凭据并创建服务
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{}
	svcOpts := append([]service.Option(nil), opts.Service...)

	if cfg.StorePassphrase == "" {
		logger.Warn("STORE_PASSPHRASE is empty, secure store uses an empty passphrase")
	}

	if opts.UseDatabase && cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("Database migrated successfully")

		store, err := storage.OpenSealed(ctx, repository.NewSettingsRepository(db), cfg.StorePassphrase)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open secure settings: %w", err)
		}
		a.DB = db
		a.Store = store
		svcOpts = append(svcOpts,
			service.WithVehicleStore(repository.NewVehicleRepository(db)),
			service.WithCommandLog(repository.NewCommandLogRepository(db)),
		)
	} else {
		store, err := storage.NewFile(cfg.StoreFile, cfg.StorePassphrase)
		if err != nil {
			return nil, fmt.Errorf("open store file: %w", err)
		}
		a.Store = store
		logger.Info("Using encrypted file store", zap.String("path", cfg.StoreFile))
	}

	if err := Seed(ctx, a.Store, cfg); err != nil {
		a.Close()
		return nil, err
	}

	a.Auth = auth.NewManager(AuthConfig(cfg), a.Store, logger)
	a.Service = service.NewCommandService(cfg, logger, a.Store, a.Auth, svcOpts...)
	if err := a.Service.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("init service: %w", err)
	}
	return a, nil
}

// Close 释放数据库连接
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// AuthConfig 授权端点配置
func AuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		AuthURL:     cfg.TeslaAuthURL,
		TokenURL:    cfg.TeslaTokenURL,
		Audience:    cfg.TeslaAudience,
		RedirectURI: cfg.TeslaRedirectURI,
		Scopes:      strings.Fields(cfg.TeslaScope),
		Locale:      cfg.TeslaLocale,
	}
}

// Seed 将环境变量中的凭据写入存储，不覆盖已有值
func Seed(ctx context.Context, store storage.Store, cfg *config.Config) error {
	seeds := map[string]string{
		storage.KeyClientID:     cfg.TeslaClientID,
		storage.KeyClientSecret: cfg.TeslaClientSecret,
		storage.KeyVIN:          cfg.TeslaVIN,
	}

	values := make(map[string]string)
	for key, v := range seeds {
		if v == "" {
			continue
		}
		cur, err := store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("retrieve %s: %w", key, err)
		}
		if cur == "" {
			values[key] = v
		}
	}
	if len(values) == 0 {
		return nil
	}
	if err := store.Put(ctx, values); err != nil {
		return fmt.Errorf("seed credentials: %w", err)
	}
	return nil
}
