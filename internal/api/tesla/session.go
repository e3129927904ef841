package tesla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// 在线等待默认参数
const (
	DefaultMaxAttempts  = 10
	DefaultWakeDelay    = 8 * time.Second
	DefaultPollInterval = 1 * time.Second
)

// StateOnline 车辆在线状态
const StateOnline = "online"

// Observer 接收在线等待过程中观察到的车辆状态
type Observer interface {
	Observe(state string)
	WakeSent()
	WakeTimeout()
}

// Session 单辆车的命令会话
type Session struct {
	client  *Client
	baseURL string
	vin     string
	logger  *zap.Logger

	maxAttempts  int
	wakeDelay    time.Duration
	pollInterval time.Duration
	observer     Observer
}

// SessionOption 会话选项
type SessionOption func(*Session)

// WithMaxAttempts 设置在线等待最大尝试次数
func WithMaxAttempts(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithWakeDelay 设置唤醒后的额外等待
func WithWakeDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.wakeDelay = d }
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.pollInterval = d }
}

// WithObserver 设置状态观察者
func WithObserver(o Observer) SessionOption {
	return func(s *Session) { s.observer = o }
}

// NewSession 创建车辆会话，baseURL 通常为签名代理地址
func NewSession(client *Client, baseURL, vin string, opts ...SessionOption) *Session {
	s := &Session{
		client:       client,
		baseURL:      baseURL,
		vin:          vin,
		logger:       client.logger.With(zap.String("vin", vin)),
		maxAttempts:  DefaultMaxAttempts,
		wakeDelay:    DefaultWakeDelay,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VIN 会话绑定的车辆
func (s *Session) VIN() string {
	return s.vin
}

// BaseURL 会话请求地址
func (s *Session) BaseURL() string {
	return s.baseURL
}

// Execute 执行单个命令，不做在线检查
func (s *Session) Execute(ctx context.Context, cmd Command) (Result, error) {
	if !cmd.Valid() {
		return Result{}, fmt.Errorf("unknown command: %q", cmd)
	}
	return s.client.Do(ctx, cmd.Method(), s.baseURL, cmd.Path(s.vin), cmd.Body())
}

// Lock 锁车
func (s *Session) Lock(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandLock)
}

// Unlock 解锁
func (s *Session) Unlock(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandUnlock)
}

// FlashLights 闪灯
func (s *Session) FlashLights(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandFlashLights)
}

// HonkHorn 鸣笛
func (s *Session) HonkHorn(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandHonkHorn)
}

// OpenChargePort 打开充电口
func (s *Session) OpenChargePort(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandChargePortOpen)
}

// CloseChargePort 关闭充电口
func (s *Session) CloseChargePort(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandChargePortClose)
}

// VentWindows 车窗通风
func (s *Session) VentWindows(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandVentWindows)
}

// ActuateFrontTrunk 打开前备箱
func (s *Session) ActuateFrontTrunk(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandFrontTrunk)
}

// ActuateRearTrunk 开关后备箱
func (s *Session) ActuateRearTrunk(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandRearTrunk)
}

// StartClimate 启动空调
func (s *Session) StartClimate(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandClimateOn)
}

// StopClimate 关闭空调
func (s *Session) StopClimate(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandClimateOff)
}

// Vehicle 获取车辆基础信息
func (s *Session) Vehicle(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandVehicle)
}

// VehicleData 获取车辆完整数据
func (s *Session) VehicleData(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandVehicleData)
}

// WakeUp 唤醒车辆
func (s *Session) WakeUp(ctx context.Context) (Result, error) {
	return s.Execute(ctx, CommandWakeUp)
}

// WaitForVehicleOnline 等待车辆上线
// 第一次查询不在线时发送唤醒命令，之后按间隔轮询，次数耗尽返回 Failure(408)
func (s *Session) WaitForVehicleOnline(ctx context.Context) (Result, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		res, err := s.Vehicle(ctx)
		if err != nil {
			return Result{}, err
		}
		if !res.OK() {
			s.logger.Debug("Failed to retrieve vehicle status", zap.Int("status", res.Code))
			return res, nil
		}

		state, err := parseVehicleState(res.Body)
		if err != nil {
			s.logger.Error("Failed to parse vehicle state", zap.Error(err))
			return Failure(http.StatusInternalServerError), nil
		}
		s.observe(state)

		if state == StateOnline {
			s.logger.Debug("Vehicle is online", zap.Int("attempts", attempt))
			return Success(http.StatusOK, nil), nil
		}

		wait := s.pollInterval
		if attempt == 1 {
			wake, err := s.WakeUp(ctx)
			if err != nil {
				return Result{}, err
			}
			if !wake.OK() {
				s.logger.Debug("Failed to wake up the vehicle", zap.Int("status", wake.Code))
				return wake, nil
			}
			if s.observer != nil {
				s.observer.WakeSent()
			}
			wait += s.wakeDelay
		}

		if attempt == s.maxAttempts {
			break
		}

		s.logger.Debug("Vehicle not online yet",
			zap.String("state", state),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxAttempts),
		)
		if err := sleep(ctx, wait); err != nil {
			return Result{}, err
		}
	}

	s.logger.Info("Max attempts reached, vehicle did not come online", zap.Int("attempts", s.maxAttempts))
	if s.observer != nil {
		s.observer.WakeTimeout()
	}
	return Failure(http.StatusRequestTimeout), nil
}

func (s *Session) observe(state string) {
	if s.observer != nil {
		s.observer.Observe(state)
	}
}

// parseVehicleState 读取 response.state
func parseVehicleState(body []byte) (string, error) {
	var resp struct {
		Response *struct {
			State *string `json:"state"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode vehicle response: %w", err)
	}
	if resp.Response == nil || resp.Response.State == nil {
		return "", errors.New("response.state missing")
	}
	return *resp.Response.State, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
