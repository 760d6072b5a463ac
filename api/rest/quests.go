package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/game/world"
	"gorm.io/gorm"
)

// QuestHandler handles quest REST endpoints for a pilot's session.
type QuestHandler struct {
	db *gorm.DB
	wm *world.Manager
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(db *gorm.DB, wm *world.Manager) *QuestHandler {
	return &QuestHandler{db: db, wm: wm}
}

// List handles GET /api/pilots/:id/quests?status=available|active|completed|failed.
// Without a status filter it returns all four sets.
func (h *QuestHandler) List(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	switch c.Query("status") {
	case "available":
		c.JSON(http.StatusOK, gin.H{"quests": s.AvailableQuests()})
	case "active":
		c.JSON(http.StatusOK, gin.H{"quests": s.ActiveQuests()})
	case "completed":
		c.JSON(http.StatusOK, gin.H{"quests": s.CompletedQuests()})
	case "failed":
		c.JSON(http.StatusOK, gin.H{"quests": s.FailedQuests()})
	case "":
		c.JSON(http.StatusOK, gin.H{
			"available": s.AvailableQuests(),
			"active":    s.ActiveQuests(),
			"completed": s.CompletedQuests(),
			"failed":    s.FailedQuests(),
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
	}
}

// Start handles POST /api/pilots/:id/quests/:questID/start.
func (h *QuestHandler) Start(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	questID := c.Param("questID")
	if !s.StartQuest(questID) {
		c.JSON(http.StatusConflict, gin.H{"error": "quest not available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": s.ActiveQuests()})
}

// Abandon handles POST /api/pilots/:id/quests/:questID/abandon.
func (h *QuestHandler) Abandon(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	questID := c.Param("questID")
	if !s.AbandonQuest(questID) {
		c.JSON(http.StatusConflict, gin.H{"error": "quest not active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "quest abandoned"})
}

// FactionArcs handles GET /api/pilots/:id/factions/:faction/arcs.
func (h *QuestHandler) FactionArcs(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	faction := c.Param("faction")
	arcs := s.FactionArcs(faction)
	if arcs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown faction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"arcs": arcs})
}

// StorylineTiers handles GET /api/pilots/:id/factions/:faction/tiers.
func (h *QuestHandler) StorylineTiers(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	faction := c.Param("faction")
	tiers := s.StorylineTiers(faction)
	if tiers == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown faction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}
