package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/game/world"
	"gorm.io/gorm"
)

// EventHandler handles random-event REST endpoints for a pilot's session.
type EventHandler struct {
	db *gorm.DB
	wm *world.Manager
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(db *gorm.DB, wm *world.Manager) *EventHandler {
	return &EventHandler{db: db, wm: wm}
}

// Active handles GET /api/pilots/:id/events.
func (h *EventHandler) Active(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": s.ActiveEvents()})
}

// History handles GET /api/pilots/:id/events/history?limit=50.
func (h *EventHandler) History(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	records := s.EventHistory()
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l < len(records) {
		// History is append-only; the tail is the most recent.
		records = records[len(records)-l:]
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// Stats handles GET /api/pilots/:id/events/stats.
func (h *EventHandler) Stats(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": s.EventStats()})
}

type choiceRequest struct {
	ChoiceID string `json:"choice_id" binding:"required"`
}

// Choose handles POST /api/pilots/:id/events/:eventID/choice. Resolving an
// event applies its outcome through the reward sink; a refusal means the
// event expired, the choice id is unknown or its requirements are not met.
func (h *EventHandler) Choose(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	var req choiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eventID := c.Param("eventID")
	if !s.MakeEventChoice(eventID, req.ChoiceID) {
		c.JSON(http.StatusConflict, gin.H{"error": "choice rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pilot":  s.View(),
		"events": s.ActiveEvents(),
	})
}
