package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/auth"
	"github.com/langchou/teslactl/internal/config"
	"github.com/langchou/teslactl/internal/models"
	"github.com/langchou/teslactl/internal/repository"
	"github.com/langchou/teslactl/internal/state"
	"github.com/langchou/teslactl/internal/storage"
	"github.com/langchou/teslactl/pkg/ws"
)

// 状态文本
const (
	StatusReady             = "Status: Ready"
	StatusNoVehicleSelected = "No vehicle selected"
)

// 错误定义
var (
	ErrNoVehicleSelected = errors.New("no vehicle selected")
	ErrInvalidVIN        = errors.New("invalid VIN")
)

// VehicleStore 车辆持久化
type VehicleStore interface {
	Upsert(ctx context.Context, v *models.Vehicle) error
	GetByVIN(ctx context.Context, vin string) (*models.Vehicle, error)
	List(ctx context.Context) ([]*models.Vehicle, error)
	UpdateState(ctx context.Context, vin, state string) error
}

// CommandLogStore 命令记录持久化
type CommandLogStore interface {
	Create(ctx context.Context, l *models.CommandLog) error
	ListByVIN(ctx context.Context, vin string, limit, offset int) ([]*models.CommandLog, error)
	CountByVIN(ctx context.Context, vin string) (int64, error)
}

// Broadcaster 状态推送
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// Option 服务选项
type Option func(*CommandService)

// WithVehicleStore 启用车辆持久化
func WithVehicleStore(v VehicleStore) Option {
	return func(s *CommandService) { s.vehicles = v }
}

// WithCommandLog 启用命令记录
func WithCommandLog(l CommandLogStore) Option {
	return func(s *CommandService) { s.logs = l }
}

// WithBroadcaster 启用状态推送
func WithBroadcaster(b Broadcaster) Option {
	return func(s *CommandService) { s.hub = b }
}

// CommandService 车辆命令服务
// 管理选中车辆的会话，串行执行命令并发布状态文本
type CommandService struct {
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Store
	auth   *auth.Manager
	client *tesla.Client
	fleet  *tesla.FleetAPI
	states *state.Manager

	vehicles VehicleStore
	logs     CommandLogStore
	hub      Broadcaster

	cmdMu sync.Mutex // 同一时间只执行一个命令

	mu      sync.RWMutex
	session *tesla.Session
	status  string
	payload string
	reauth  bool
}

// NewCommandService 创建命令服务
func NewCommandService(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.Store,
	authMgr *auth.Manager,
	opts ...Option,
) *CommandService {
	client := tesla.NewClient(authMgr, logger, tesla.WithTimeout(cfg.HTTPTimeout))
	svc := &CommandService{
		cfg:    cfg,
		logger: logger,
		store:  store,
		auth:   authMgr,
		client: client,
		fleet:  tesla.NewFleetAPI(client, cfg.TeslaAPIHost),
		status: StatusReady,
	}
	for _, opt := range opts {
		opt(svc)
	}

	// 创建状态管理器
	svc.states = state.NewManager(svc.onStateChange)

	return svc
}

// Init 从存储恢复选中的车辆
func (s *CommandService) Init(ctx context.Context) error {
	vin, err := s.store.Get(ctx, storage.KeyVIN)
	if err != nil {
		return fmt.Errorf("retrieve vin: %w", err)
	}
	if vin == "" {
		s.logger.Info("No vehicle configured")
		return nil
	}
	if config.ValidateVIN(vin) != config.Valid {
		s.logger.Warn("Stored VIN is invalid, ignoring", zap.String("vin", vin))
		return nil
	}

	baseURL, err := s.baseURL(ctx)
	if err != nil {
		return err
	}
	s.restoreLinkState(ctx, vin)
	s.setSession(vin, baseURL)
	return nil
}

// SelectVehicle 选择车辆并创建新的会话
func (s *CommandService) SelectVehicle(ctx context.Context, vin string) error {
	if config.ValidateVIN(vin) != config.Valid {
		return fmt.Errorf("%w: %q", ErrInvalidVIN, vin)
	}
	if err := s.store.Put(ctx, map[string]string{storage.KeyVIN: vin}); err != nil {
		return fmt.Errorf("store vin: %w", err)
	}

	baseURL, err := s.baseURL(ctx)
	if err != nil {
		return err
	}
	s.restoreLinkState(ctx, vin)
	s.setSession(vin, baseURL)
	return nil
}

// restoreLinkState 尚未跟踪的车辆用数据库中最后一次记录的状态初始化状态机
func (s *CommandService) restoreLinkState(ctx context.Context, vin string) {
	if s.vehicles == nil {
		return
	}
	if _, ok := s.states.Get(vin); ok {
		return
	}

	v, err := s.vehicles.GetByVIN(ctx, vin)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Vehicle not found in account list", zap.String("vin", vin))
		return
	}
	if err != nil {
		s.logger.Error("Failed to load vehicle", zap.String("vin", vin), zap.Error(err))
		return
	}
	s.states.GetOrCreate(vin).Observe(v.State)
}

// Session 当前会话，未选择车辆时返回 nil
func (s *CommandService) Session() *tesla.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// LinkState 选中车辆的连接状态
func (s *CommandService) LinkState() (*state.Snapshot, error) {
	session := s.Session()
	if session == nil {
		return nil, ErrNoVehicleSelected
	}
	return s.states.GetOrCreate(session.VIN()).GetState(), nil
}

// LinkStates 所有已跟踪车辆的连接状态
func (s *CommandService) LinkStates() map[string]*state.Snapshot {
	return s.states.GetAllStates()
}

// Status 当前状态文本和最近一次查询结果
func (s *CommandService) Status() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.payload
}

// InitData WebSocket 初始化数据
func (s *CommandService) InitData() *ws.InitData {
	status, _ := s.Status()
	data := &ws.InitData{Status: status}
	if session := s.Session(); session != nil {
		data.VIN = session.VIN()
		data.LinkState = s.states.GetOrCreate(session.VIN()).GetState()
	}
	return data
}

func (s *CommandService) setSession(vin, baseURL string) {
	machine := s.states.GetOrCreate(vin)
	session := tesla.NewSession(s.client, baseURL, vin,
		tesla.WithMaxAttempts(s.cfg.WakeMaxAttempts),
		tesla.WithWakeDelay(s.cfg.WakeDelay),
		tesla.WithPollInterval(s.cfg.PollInterval),
		tesla.WithObserver(machine),
	)

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.logger.Info("Vehicle selected", zap.String("vin", vin), zap.String("base_url", baseURL))
}

// baseURL 设置中的代理地址优先，否则使用配置
func (s *CommandService) baseURL(ctx context.Context) (string, error) {
	u, err := s.store.Get(ctx, storage.KeyBaseURL)
	if err != nil {
		return "", fmt.Errorf("retrieve base url: %w", err)
	}
	if u != "" {
		return u, nil
	}
	return s.cfg.VehicleBaseURL(), nil
}

func (s *CommandService) setStatus(text string) {
	s.mu.Lock()
	s.status = text
	s.mu.Unlock()
	s.broadcast(ws.MsgTypeStatus, StatusUpdate{Text: text})
}

func (s *CommandService) broadcast(msgType string, data interface{}) {
	if s.hub != nil {
		s.hub.BroadcastMessage(msgType, data)
	}
}

// onStateChange 连接状态变化回调
func (s *CommandService) onStateChange(vin, from, to string) {
	s.logger.Info("Vehicle link state changed",
		zap.String("vin", vin),
		zap.String("from", from),
		zap.String("to", to))

	s.broadcast(ws.MsgTypeLinkState, LinkStateChange{VIN: vin, From: from, To: to})

	if s.vehicles == nil {
		return
	}
	// 回调运行在状态机锁内，不能再访问状态机
	if err := s.vehicles.UpdateState(context.Background(), vin, to); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Failed to persist link state", zap.String("vin", vin), zap.Error(err))
	}
}

// StatusUpdate 状态文本推送
type StatusUpdate struct {
	Text    string        `json:"text"`
	Command tesla.Command `json:"command,omitempty"`
	Outcome *Outcome      `json:"outcome,omitempty"`
}

// ErrorNotice 错误推送
type ErrorNotice struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// LinkStateChange 连接状态推送
type LinkStateChange struct {
	VIN  string `json:"vin"`
	From string `json:"from"`
	To   string `json:"to"`
}
