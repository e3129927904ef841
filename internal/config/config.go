package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string `env:"PORT" envDefault:"4000"`
	Debug      bool   `env:"DEBUG" envDefault:"false"`

	// Database (为空时使用加密文件存储，不记录命令历史)
	DatabaseURL string `env:"DATABASE_URL"`

	// Tesla OAuth2
	TeslaAuthURL     string `env:"TESLA_AUTH_URL" envDefault:"https://auth.tesla.com/oauth2/v3/authorize"`
	TeslaTokenURL    string `env:"TESLA_TOKEN_URL" envDefault:"https://auth.tesla.com/oauth2/v3/token"`
	TeslaAudience    string `env:"TESLA_AUDIENCE" envDefault:"https://fleet-api.prd.na.vn.cloud.tesla.com"`
	TeslaRedirectURI string `env:"TESLA_REDIRECT_URI" envDefault:"http://localhost:4000/auth/callback"`
	TeslaScope       string `env:"TESLA_SCOPE" envDefault:"openid user_data vehicle_device_data vehicle_cmds vehicle_charging_cmds energy_device_data energy_cmds offline_access"`
	TeslaLocale      string `env:"TESLA_LOCALE" envDefault:"en-US"`

	// 首次启动时写入安全存储的凭据（可选）
	TeslaClientID     string `env:"TESLA_CLIENT_ID"`
	TeslaClientSecret string `env:"TESLA_CLIENT_SECRET"`
	TeslaVIN          string `env:"TESLA_VIN"`

	// Tesla Fleet API
	TeslaAPIHost  string        `env:"TESLA_API_HOST" envDefault:"https://fleet-api.prd.na.vn.cloud.tesla.com"`
	TeslaProxyURL string        `env:"TESLA_PROXY_URL"` // 本地签名代理，为空时直连
	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// 唤醒等待
	WakeDelay       time.Duration `env:"WAKE_DELAY" envDefault:"8s"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	WakeMaxAttempts int           `env:"WAKE_MAX_ATTEMPTS" envDefault:"10"`

	// 安全存储
	StoreFile       string `env:"STORE_FILE" envDefault:"teslactl.store"`
	StorePassphrase string `env:"STORE_PASSPHRASE"`
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.WakeMaxAttempts < 1 {
		return nil, fmt.Errorf("WAKE_MAX_ATTEMPTS must be positive, got %d", cfg.WakeMaxAttempts)
	}

	return cfg, nil
}

// VehicleBaseURL 车辆指令使用的地址：配置了代理时走代理
func (c *Config) VehicleBaseURL() string {
	if c.TeslaProxyURL != "" {
		return c.TeslaProxyURL
	}
	return c.TeslaAPIHost
}
