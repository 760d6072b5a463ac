package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/resource"
)

// ContentHandler serves the static game catalog: quest templates, story
// arcs and the seasonal calendar. No auth needed, nothing here is per-pilot.
type ContentHandler struct {
	res *resource.ContentLoader
}

// NewContentHandler creates a ContentHandler.
func NewContentHandler(res *resource.ContentLoader) *ContentHandler {
	return &ContentHandler{res: res}
}

// Quests handles GET /api/content/quests.
func (h *ContentHandler) Quests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quests": h.res.Quests})
}

// Arcs handles GET /api/content/arcs.
func (h *ContentHandler) Arcs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"arcs":       h.res.Arcs,
		"storylines": h.res.Storylines,
	})
}

// Seasonal handles GET /api/content/seasonal. Returns the full calendar
// plus which bundles are live right now.
func (h *ContentHandler) Seasonal(c *gin.Context) {
	sched := h.res.SeasonalSchedule()
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"calendar":         h.res.Seasonal,
		"active":           sched.Active(now),
		"active_quest_ids": sched.ActiveQuestIDs(now),
		"active_event_ids": sched.ActiveEventIDs(now),
	})
}
