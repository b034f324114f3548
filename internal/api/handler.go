package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"workshop-scan-backend/internal/scanerr"
	"workshop-scan-backend/internal/session"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	coord    *session.Coordinator
	upgrader websocket.Upgrader
}

// NewHandler creates a new API handler.
func NewHandler(coord *session.Coordinator) *Handler {
	return &Handler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Agents and dashboards live on the workshop LAN; origin
			// checks are left to the deployment proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// AgentSocket upgrades the scanning-agent connection and hands it to the
// coordinator.
func (h *Handler) AgentSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Agent websocket upgrade failed: %v", err)
		return
	}
	go h.coord.HandleAgent(conn)
}

// DashboardSocket upgrades a dashboard subscriber connection.
func (h *Handler) DashboardSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Dashboard websocket upgrade failed: %v", err)
		return
	}
	go h.coord.HandleDashboard(conn)
}

// GetStorageStatus handles GET /api/storage.
func (h *Handler) GetStorageStatus(c *gin.Context) {
	snapshot, err := h.coord.Snapshot(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bays": snapshot})
}

// GetDailyReport handles GET /api/report.
func (h *Handler) GetDailyReport(c *gin.Context) {
	report, err := h.coord.DailyReport(c.Request.Context())
	if err != nil {
		if scanerr.CodeOf(err) == scanerr.CodeDailyReportDisabled {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetHealth handles GET /api/healthz.
func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"scanner_ready": h.coord.AgentConnected(),
	})
}
