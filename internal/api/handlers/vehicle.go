package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/service"
)

// ListVehicles 获取车辆列表
// 默认实时查询 Fleet API，?source=stored 时读取数据库
func (h *Handler) ListVehicles(c *gin.Context) {
	ctx := c.Request.Context()

	list := h.svc.ListVehicles
	if c.Query("source") == "stored" {
		list = h.svc.StoredVehicles
	}
	vehicles, err := list(ctx)
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to list vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

type selectRequest struct {
	VIN string `json:"vin" binding:"required"`
}

// SelectVehicle 选择车辆
func (h *Handler) SelectVehicle(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vin is required"})
		return
	}

	if err := h.svc.SelectVehicle(c.Request.Context(), req.VIN); err != nil {
		if errors.Is(err, service.ErrInvalidVIN) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to select vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to select vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"vin": req.VIN}})
}

// GetVehicleState 选中车辆的连接状态与最近的状态文本
func (h *Handler) GetVehicleState(c *gin.Context) {
	link, err := h.svc.LinkState()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	status, payload := h.svc.Status()
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"link_state": link,
			"status":     status,
			"payload":    payload,
			"reauth":     h.svc.NeedsReauth(),
		},
	})
}

// ListLinkStates 所有已跟踪车辆的连接状态
func (h *Handler) ListLinkStates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.svc.LinkStates()})
}
