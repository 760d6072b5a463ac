package world

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/event"
	"github.com/kyrelia/astraldrift/game/hook"
	"github.com/kyrelia/astraldrift/game/pilot"
	"github.com/kyrelia/astraldrift/game/quest"
	"github.com/kyrelia/astraldrift/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// combinedSnapshot is the engine_states row payload: both engines' state in
// one versioned envelope.
type combinedSnapshot struct {
	Version int             `json:"version"`
	Quest   *quest.Snapshot `json:"quest,omitempty"`
	Events  *event.Snapshot `json:"events,omitempty"`
}

const snapshotVersion = 1

// Session is one pilot's live progression state: profile, quest engine,
// event generator and cargo, advanced by a private tick loop. All access
// goes through the session mutex; handlers call the public methods, the
// loop calls tick.
type Session struct {
	PilotID int64

	profile *pilot.Profile
	engine  *quest.Engine
	events  *event.Generator
	hooks   *hook.Center

	db     *gorm.DB
	clk    clock.Clock
	logger *zap.Logger

	mu         sync.Mutex
	cargo      map[string]int
	cargoDirty map[string]struct{}
	name       string
	accountID  int64
	lastActive time.Time
	lastTick   time.Time

	tickInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// Run starts the session tick loop. Call in a goroutine.
func (s *Session) Run() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// Stop signals the tick loop to exit. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// StopChan returns a channel closed when this session stops. Use it to
// cancel goroutines that must not outlive the session.
func (s *Session) StopChan() <-chan struct{} {
	return s.stopCh
}

func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	dt := now.Sub(s.lastTick)
	s.lastTick = now
	s.engine.Update(dt)
	s.events.Update(dt)
}

// Name returns the pilot's display name.
func (s *Session) Name() string { return s.name }

// AccountID returns the owning account id.
func (s *Session) AccountID() int64 { return s.accountID }

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.clk.Now()
	s.mu.Unlock()
}

// IdleSince returns how long ago the session was last used.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.Now().Sub(s.lastActive)
}

// ---- reward sinks ----
// The quest engine and event generator both write through the session, which
// delegates scalar rewards to the profile and buffers cargo grants for the
// next save. These run inside engine calls that already hold the session
// mutex; external callers use the locked wrappers below.

func (s *Session) AddCredits(delta int64)   { s.profile.AddCredits(delta) }
func (s *Session) AddExperience(points int) { s.profile.AddExperience(points) }

func (s *Session) AddReputation(faction string, delta int) {
	s.profile.AddReputation(faction, delta)
}

func (s *Session) GrantItem(itemID string, qty int) {
	if qty <= 0 {
		return
	}
	s.cargo[itemID] += qty
	s.cargoDirty[itemID] = struct{}{}
}

// ---- gameplay surface ----

// AdjustCredits applies an out-of-engine credit change (a trade, a fine).
func (s *Session) AdjustCredits(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.AddCredits(delta)
}

// TrainSkill raises a skill by the given number of levels.
func (s *Session) TrainSkill(name string, levels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.TrainSkill(name, levels)
}

// AddCargo stows items outside the reward path (a market purchase).
func (s *Session) AddCargo(itemID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GrantItem(itemID, qty)
}

// StartQuest starts a quest for this pilot.
func (s *Session) StartQuest(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.StartQuest(id)
}

// ProgressAction feeds a gameplay action into every matching active
// objective and returns how many objectives advanced.
func (s *Session) ProgressAction(objType quest.ObjectiveType, target string, amount int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.engine.ProgressAction(objType, target, amount)
	if n > 0 {
		// let freshly-finished objectives resolve without waiting a tick
		s.engine.Update(0)
	}
	return n
}

// AbandonQuest fails an active quest at the pilot's request.
func (s *Session) AbandonQuest(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.FailQuest(id, "abandoned")
}

// MakeEventChoice resolves a pending event with a choice.
func (s *Session) MakeEventChoice(eventID, choiceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.MakeChoice(eventID, choiceID)
}

// SetDocked updates the pilot's docked state, which reweights event pacing.
func (s *Session) SetDocked(docked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.SetDocked(docked)
}

// Travel moves the pilot to a new location, undocks them, and feeds a visit
// action to the quest engine.
func (s *Session) Travel(location string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.SetLocation(location)
	s.profile.SetDocked(false)
	n := s.engine.ProgressAction(quest.ObjectiveVisit, location, 1)
	if n > 0 {
		s.engine.Update(0)
	}
	return n
}

// ---- query surface ----

func (s *Session) AvailableQuests() []*quest.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetAvailableQuests()
}

func (s *Session) ActiveQuests() []*quest.Quest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetActiveQuests()
}

func (s *Session) CompletedQuests() []*quest.Quest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetCompletedQuests()
}

func (s *Session) FailedQuests() []*quest.Quest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetFailedQuests()
}

func (s *Session) FactionArcs(factionID string) []quest.ArcView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetFactionStoryArcs(factionID)
}

func (s *Session) StorylineTiers(factionID string) []quest.TierUnlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetStorylineTiers(factionID)
}

func (s *Session) Flag(id string) (quest.Flag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetFlag(id)
}

func (s *Session) ActiveEvents() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.ActiveEvents()
}

func (s *Session) EventHistory() []event.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.History()
}

func (s *Session) EventStats() map[event.Category]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Stats()
}

// PilotView is the API-facing profile snapshot.
type PilotView struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Level      int            `json:"level"`
	Experience int64          `json:"experience"`
	Credits    int64          `json:"credits"`
	Skills     map[string]int `json:"skills"`
	Reputation map[string]int `json:"reputation"`
	Location   string         `json:"location"`
	Docked     bool           `json:"docked"`
	Cargo      map[string]int `json:"cargo"`
}

// View returns a copy of the pilot's current profile and cargo.
func (s *Session) View() PilotView {
	s.mu.Lock()
	defer s.mu.Unlock()
	cargo := make(map[string]int, len(s.cargo))
	for id, qty := range s.cargo {
		cargo[id] = qty
	}
	return PilotView{
		ID:         s.PilotID,
		Name:       s.name,
		Level:      s.profile.Level(),
		Experience: s.profile.Experience(),
		Credits:    s.profile.Credits(),
		Skills:     s.profile.Skills(),
		Reputation: s.profile.Reputations(),
		Location:   s.profile.Location(),
		Docked:     s.profile.Docked(),
		Cargo:      cargo,
	}
}

// Save persists the profile, dirty cargo stacks and both engine snapshots
// in one transaction.
func (s *Session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Session) saveLocked() error {
	snap := combinedSnapshot{
		Version: snapshotVersion,
		Quest:   s.engine.Snapshot(),
		Events:  s.events.Snapshot(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("world: marshal snapshot for pilot %d: %w", s.PilotID, err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var m model.Pilot
		if err := tx.First(&m, s.PilotID).Error; err != nil {
			return fmt.Errorf("world: load pilot %d: %w", s.PilotID, err)
		}
		s.profile.ToModel(&m)
		if err := tx.Save(&m).Error; err != nil {
			return fmt.Errorf("world: save pilot %d: %w", s.PilotID, err)
		}

		for itemID := range s.cargoDirty {
			item := model.CargoItem{PilotID: s.PilotID, ItemID: itemID, Qty: s.cargo[itemID]}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "pilot_id"}, {Name: "item_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"qty", "updated_at"}),
			}).Create(&item).Error
			if err != nil {
				return fmt.Errorf("world: save cargo %s for pilot %d: %w", itemID, s.PilotID, err)
			}
		}

		state := model.EngineState{PilotID: s.PilotID, Version: snapshotVersion, Snapshot: datatypes.JSON(data)}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pilot_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "snapshot", "saved_at"}),
		}).Create(&state).Error
		if err != nil {
			return fmt.Errorf("world: save engine state for pilot %d: %w", s.PilotID, err)
		}
		s.cargoDirty = make(map[string]struct{})
		return nil
	})
}
