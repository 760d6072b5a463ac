package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/config"
	"github.com/kyrelia/astraldrift/game/quest"
	"github.com/kyrelia/astraldrift/game/world"
	mw "github.com/kyrelia/astraldrift/middleware"
	"github.com/kyrelia/astraldrift/model"
	"gorm.io/gorm"
)

const maxPilots = 3

// PilotHandler handles pilot REST endpoints.
type PilotHandler struct {
	db   *gorm.DB
	wm   *world.Manager
	game config.GameConfig
}

// NewPilotHandler creates a new PilotHandler.
func NewPilotHandler(db *gorm.DB, wm *world.Manager, game config.GameConfig) *PilotHandler {
	return &PilotHandler{db: db, wm: wm, game: game}
}

// ownedSession resolves the :id route param to a live session, enforcing
// that the pilot belongs to the authenticated account. Writes the error
// response itself when it returns nil.
func ownedSession(c *gin.Context, db *gorm.DB, wm *world.Manager) *world.Session {
	pilotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pilot id"})
		return nil
	}
	accountID := mw.GetAccountID(c)

	var p model.Pilot
	if err := db.Select("id, account_id").First(&p, pilotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pilot not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return nil
	}
	if p.AccountID != accountID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your pilot"})
		return nil
	}

	s, err := wm.GetOrCreate(pilotID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil
	}
	s.Touch()
	return s
}

// List handles GET /api/pilots.
func (h *PilotHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var pilots []model.Pilot
	if err := h.db.Where("account_id = ?", accountID).Find(&pilots).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pilots": pilots})
}

type createPilotRequest struct {
	Name string `json:"name" binding:"required,min=2,max=32"`
}

// Create handles POST /api/pilots.
func (h *PilotHandler) Create(c *gin.Context) {
	accountID := mw.GetAccountID(c)

	var req createPilotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing []model.Pilot
	if err := h.db.Select("id").Where("account_id = ?", accountID).Find(&existing).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if len(existing) >= maxPilots {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max pilots reached"})
		return
	}

	pilot := &model.Pilot{
		AccountID: accountID,
		Name:      req.Name,
		Level:     1,
		Credits:   h.game.StartingCredits,
		Location:  h.game.StartingLocation,
		Docked:    true,
	}
	if err := h.db.Create(pilot).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "pilot name already taken"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pilot": pilot})
}

// Delete handles DELETE /api/pilots/:id. Tears down any live session first
// so the autosave flush cannot resurrect the rows.
func (h *PilotHandler) Delete(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	pilotID := s.PilotID
	h.wm.Destroy(pilotID)

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pilot_id = ?", pilotID).Delete(&model.CargoItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("pilot_id = ?", pilotID).Delete(&model.EngineState{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Pilot{}, pilotID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": pilotID})
}

// Get handles GET /api/pilots/:id. Returns the live session view, which
// includes cargo and any pending engine state, not just the DB row.
func (h *PilotHandler) Get(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"pilot": s.View()})
}

type travelRequest struct {
	Location string `json:"location" binding:"required,min=1,max=64"`
}

// Travel handles POST /api/pilots/:id/travel. Undocks the pilot, moves them
// to the new location and fires the visit objective hook.
func (h *PilotHandler) Travel(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	var req travelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	advanced := s.Travel(req.Location)
	c.JSON(http.StatusOK, gin.H{
		"pilot":               s.View(),
		"objectives_advanced": advanced,
	})
}

type dockRequest struct {
	Docked bool `json:"docked"`
}

// Dock handles POST /api/pilots/:id/dock.
func (h *PilotHandler) Dock(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	var req dockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SetDocked(req.Docked)
	c.JSON(http.StatusOK, gin.H{"pilot": s.View()})
}

type actionRequest struct {
	Type   string `json:"type" binding:"required"`
	Target string `json:"target"`
	Amount int    `json:"amount"`
}

var objectiveTypes = map[string]quest.ObjectiveType{
	string(quest.ObjectiveDeliver): quest.ObjectiveDeliver,
	string(quest.ObjectiveDestroy): quest.ObjectiveDestroy,
	string(quest.ObjectiveVisit):   quest.ObjectiveVisit,
	string(quest.ObjectiveScan):    quest.ObjectiveScan,
	string(quest.ObjectiveTrade):   quest.ObjectiveTrade,
	string(quest.ObjectiveTalk):    quest.ObjectiveTalk,
}

// Action handles POST /api/pilots/:id/actions. Reports a gameplay action
// (delivered cargo, destroyed a target, completed a trade) to the quest
// engine and returns how many objectives it advanced.
func (h *PilotHandler) Action(c *gin.Context) {
	s := ownedSession(c, h.db, h.wm)
	if s == nil {
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	objType, ok := objectiveTypes[req.Type]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action type"})
		return
	}
	if req.Amount <= 0 {
		req.Amount = 1
	}
	advanced := s.ProgressAction(objType, req.Target, req.Amount)
	c.JSON(http.StatusOK, gin.H{"objectives_advanced": advanced})
}
