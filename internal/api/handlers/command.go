package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/service"
)

// ListCommands 支持的命令
func (h *Handler) ListCommands(c *gin.Context) {
	type item struct {
		Name           tesla.Command `json:"name"`
		Method         string        `json:"method"`
		RequiresOnline bool          `json:"requires_online"`
	}
	cmds := tesla.Commands()
	items := make([]item, 0, len(cmds))
	for _, cmd := range cmds {
		items = append(items, item{Name: cmd, Method: cmd.Method(), RequiresOnline: cmd.RequiresOnline()})
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// RunCommand 执行命令
// POST /api/commands/:command
func (h *Handler) RunCommand(c *gin.Context) {
	cmd, err := tesla.ParseCommand(c.Param("command"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := h.svc.Run(c.Request.Context(), cmd)
	c.JSON(outcomeStatus(out), gin.H{"data": out})
}

func outcomeStatus(out service.Outcome) int {
	switch {
	case out.Success:
		return http.StatusOK
	case out.Reauth:
		return http.StatusUnauthorized
	case out.VIN == "":
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// CommandHistory 命令记录
func (h *Handler) CommandHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage

	history, err := h.svc.History(c.Request.Context(), perPage, offset)
	if err != nil {
		if errors.Is(err, service.ErrNoVehicleSelected) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to list command history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list command history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": history.Items,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    history.Total,
		},
	})
}
