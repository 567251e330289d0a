package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type ConnectionCounter interface {
	ClientCount() int
}

type SystemHandler struct {
	DB       *sql.DB
	Engine   *gin.Engine
	Watchers ConnectionCounter
}

func (h *SystemHandler) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "message": "fare service running"}
	if h.Watchers != nil {
		body["occupancy_watchers"] = h.Watchers.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}

func (h *SystemHandler) DBCheck(c *gin.Context) {
	if h.DB == nil {
		RespondError(c, http.StatusInternalServerError, "database not connected", nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var pending int
	err := h.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments WHERE status='pending'").Scan(&pending)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "database query failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "database connection OK", "pending_payments": pending})
}

// Routes lists the mounted endpoints. Engine is set once the router is built.
func (h *SystemHandler) Routes(c *gin.Context) {
	if h.Engine == nil {
		RespondError(c, http.StatusServiceUnavailable, "router not ready", nil)
		return
	}
	routes := h.Engine.Routes()
	out := make([]gin.H, 0, len(routes))
	for _, rt := range routes {
		out = append(out, gin.H{
			"method": rt.Method,
			"path":   rt.Path,
		})
	}
	c.JSON(http.StatusOK, gin.H{"routes": out})
}
