package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/auth"
	"github.com/langchou/teslactl/internal/config"
	"github.com/langchou/teslactl/internal/models"
	"github.com/langchou/teslactl/internal/service"
	"github.com/langchou/teslactl/internal/state"
	"github.com/langchou/teslactl/pkg/ws"
)

// CommandService 处理器依赖的服务
type CommandService interface {
	Login(ctx context.Context) (string, error)
	Callback(ctx context.Context, callbackURI string) error
	Refresh(ctx context.Context) (auth.TokenInfo, error)
	TokenStatus(ctx context.Context) (auth.TokenInfo, error)
	Logout(ctx context.Context) error

	Settings(ctx context.Context) (*service.SettingsView, error)
	UpdateSettings(ctx context.Context, in config.Settings) (*service.SettingsView, error)

	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
	StoredVehicles(ctx context.Context) ([]*models.Vehicle, error)
	SelectVehicle(ctx context.Context, vin string) error
	LinkState() (*state.Snapshot, error)
	LinkStates() map[string]*state.Snapshot
	Status() (string, string)
	NeedsReauth() bool

	Run(ctx context.Context, cmd tesla.Command) service.Outcome
	History(ctx context.Context, limit, offset int) (*models.CommandLogPage, error)
}

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	svc      CommandService
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, svc CommandService, wsHub *ws.Hub) *Handler {
	return &Handler{
		logger: logger,
		svc:    svc,
		wsHub:  wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 授权
		api.GET("/auth/login", h.Login)
		api.POST("/auth/refresh", h.RefreshToken)
		api.GET("/auth/status", h.TokenStatus)
		api.POST("/auth/logout", h.Logout)

		// 设置
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)

		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.POST("/vehicles/select", h.SelectVehicle)
		api.GET("/vehicles/states", h.ListLinkStates)
		api.GET("/vehicle/state", h.GetVehicleState)

		// 命令
		api.GET("/commands", h.ListCommands)
		api.GET("/commands/history", h.CommandHistory)
		api.POST("/commands/:command", h.RunCommand)
	}

	// 授权回调
	r.GET("/auth/callback", h.Callback)

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
