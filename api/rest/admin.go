package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/game/world"
	"github.com/kyrelia/astraldrift/model"
	"github.com/kyrelia/astraldrift/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	wm     *world.Manager
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, wm *world.Manager, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, wm: wm, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_sessions": h.wm.ActiveSessionCount(),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// SaveAll flushes every live session to the database.
// POST /api/admin/save
func (h *AdminHandler) SaveAll(c *gin.Context) {
	h.wm.SaveAll()
	h.logger.Info("admin triggered save-all")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CleanupIdle saves and stops sessions idle longer than ?minutes= (default 30).
// POST /api/admin/cleanup
func (h *AdminHandler) CleanupIdle(c *gin.Context) {
	minutes := 30
	if m, err := strconv.Atoi(c.Query("minutes")); err == nil && m > 0 {
		minutes = m
	}
	n := h.wm.CleanupIdle(time.Duration(minutes) * time.Minute)
	h.logger.Info("admin cleanup", zap.Int("stopped", n), zap.Int("idle_minutes", minutes))
	c.JSON(http.StatusOK, gin.H{"stopped": n})
}

// BanAccount bans or unbans a player account.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := model.AccountActive
	if req.Ban {
		status = model.AccountBanned
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	// Evict the account's live sessions so the ban takes effect now.
	if req.Ban {
		var pilots []model.Pilot
		h.db.Select("id").Where("account_id = ?", accountID).Find(&pilots)
		for _, p := range pilots {
			h.wm.Destroy(p.ID)
		}
	}
	h.logger.Info("admin ban", zap.Int64("account_id", accountID), zap.Bool("ban", req.Ban))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AuditLogs lists recent audit entries, newest first.
// GET /api/admin/audit?pilot_id=&limit=50
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	q := h.db.Model(&model.AuditLog{}).Order("id DESC").Limit(limit)
	if pid, err := strconv.ParseInt(c.Query("pilot_id"), 10, 64); err == nil {
		q = q.Where("pilot_id = ?", pid)
	}
	var logs []model.AuditLog
	if err := q.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}
