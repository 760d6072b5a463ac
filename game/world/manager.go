package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/event"
	"github.com/kyrelia/astraldrift/game/hook"
	"github.com/kyrelia/astraldrift/game/pilot"
	"github.com/kyrelia/astraldrift/game/quest"
	"github.com/kyrelia/astraldrift/model"
	"github.com/kyrelia/astraldrift/resource"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerConfig tunes session construction.
type ManagerConfig struct {
	TickInterval time.Duration
	ExpPerLevel  int64
	Events       event.Config
}

// Manager owns every live pilot session. Sessions are created on first use,
// loaded from the database, and run their own tick loops until stopped.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	db      *gorm.DB
	content *resource.ContentLoader
	cfg     ManagerConfig
	clk     clock.Clock
	logger  *zap.Logger

	// onSession lets the caller wire hook handlers (audit, notifications,
	// leaderboard) before the session's loop starts.
	onSession func(s *Session, hooks *hook.Center)
}

// NewManager creates a session manager over loaded content.
func NewManager(db *gorm.DB, content *resource.ContentLoader, cfg ManagerConfig, clk clock.Clock, logger *zap.Logger) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ExpPerLevel <= 0 {
		cfg.ExpPerLevel = 1000
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Manager{
		sessions: make(map[int64]*Session),
		db:       db,
		content:  content,
		cfg:      cfg,
		clk:      clk,
		logger:   logger,
	}
}

// OnSession registers the hook-wiring callback. Call before any session is
// created.
func (m *Manager) OnSession(fn func(s *Session, hooks *hook.Center)) {
	m.onSession = fn
}

// ErrPilotNotFound is returned when the pilot id has no database row.
var ErrPilotNotFound = errors.New("world: pilot not found")

// GetOrCreate returns the session for a pilot, loading and starting it on
// first use.
func (m *Manager) GetOrCreate(pilotID int64) (*Session, error) {
	// Fast path: session already running.
	m.mu.RLock()
	s, ok := m.sessions[pilotID]
	m.mu.RUnlock()
	if ok {
		s.Touch()
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring the write lock.
	if s, ok = m.sessions[pilotID]; ok {
		s.Touch()
		return s, nil
	}
	s, err := m.loadSession(pilotID)
	if err != nil {
		return nil, err
	}
	m.sessions[pilotID] = s
	go s.Run()
	m.logger.Info("pilot session started", zap.Int64("pilot_id", pilotID), zap.String("pilot", s.name))
	return s, nil
}

// Get returns a running session, or nil.
func (m *Manager) Get(pilotID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[pilotID]
}

func (m *Manager) loadSession(pilotID int64) (*Session, error) {
	var pm model.Pilot
	if err := m.db.First(&pm, pilotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPilotNotFound
		}
		return nil, fmt.Errorf("world: load pilot %d: %w", pilotID, err)
	}

	now := m.clk.Now()
	s := &Session{
		PilotID:      pilotID,
		profile:      pilot.FromModel(&pm, m.cfg.ExpPerLevel),
		db:           m.db,
		clk:          m.clk,
		logger:       m.logger.With(zap.Int64("pilot_id", pilotID)),
		cargo:        make(map[string]int),
		cargoDirty:   make(map[string]struct{}),
		name:         pm.Name,
		accountID:    pm.AccountID,
		lastActive:   now,
		lastTick:     now,
		tickInterval: m.cfg.TickInterval,
		stopCh:       make(chan struct{}),
	}

	var cargo []model.CargoItem
	if err := m.db.Where("pilot_id = ?", pilotID).Find(&cargo).Error; err != nil {
		return nil, fmt.Errorf("world: load cargo for pilot %d: %w", pilotID, err)
	}
	for _, item := range cargo {
		s.cargo[item.ItemID] = item.Qty
	}

	s.hooks = hook.NewCenter()
	s.engine = quest.NewEngine(m.content.Quests, m.content.Arcs, m.content.Storylines, quest.Options{
		Clock:   m.clk,
		State:   s.profile,
		Sink:    s,
		Seasons: m.content.SeasonalSchedule(),
		Hooks:   s.hooks,
		Logger:  s.logger,
	})
	s.events = event.NewGenerator(event.GeneratorOptions{
		Config:  m.cfg.Events,
		Catalog: m.content.EventCatalog(),
		Clock:   m.clk,
		Rand:    rand.New(rand.NewSource(time.Now().UnixNano() ^ pilotID)),
		State:   s.profile,
		Sink:    s,
		Hooks:   s.hooks,
		Logger:  s.logger,
	})
	s.profile.OnLevelUp(func(newLevel int) {
		_, _ = s.hooks.Trigger(context.Background(), hook.OnPilotLevelUp, newLevel)
	})

	m.restoreState(s)
	if m.onSession != nil {
		m.onSession(s, s.hooks)
	}
	return s, nil
}

// restoreState loads the saved engine snapshot, if any. A missing or
// unreadable snapshot starts the pilot fresh rather than blocking login.
func (m *Manager) restoreState(s *Session) {
	var row model.EngineState
	err := m.db.First(&row, "pilot_id = ?", s.PilotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("engine state unreadable, starting fresh", zap.Error(err))
		return
	}
	var snap combinedSnapshot
	if err := json.Unmarshal(row.Snapshot, &snap); err != nil {
		s.logger.Warn("engine snapshot corrupt, starting fresh", zap.Error(err))
		return
	}
	if snap.Quest != nil && !s.engine.Restore(snap.Quest) {
		s.logger.Warn("quest snapshot rejected, starting fresh", zap.Int("version", snap.Quest.Version))
	}
	if snap.Events != nil && !s.events.Restore(snap.Events) {
		s.logger.Warn("event snapshot rejected, starting fresh", zap.Int("version", snap.Events.Version))
	}
}

// Destroy saves, stops and removes one session.
func (m *Manager) Destroy(pilotID int64) {
	m.mu.Lock()
	s, ok := m.sessions[pilotID]
	if ok {
		delete(m.sessions, pilotID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := s.Save(); err != nil {
		m.logger.Error("save on session destroy failed", zap.Int64("pilot_id", pilotID), zap.Error(err))
	}
	s.Stop()
	m.logger.Info("pilot session destroyed", zap.Int64("pilot_id", pilotID))
}

// SaveAll persists every running session. Used by the autosave task and on
// shutdown.
func (m *Manager) SaveAll() {
	for _, s := range m.snapshotSessions() {
		if err := s.Save(); err != nil {
			m.logger.Error("autosave failed", zap.Int64("pilot_id", s.PilotID), zap.Error(err))
		}
	}
}

// CleanupIdle saves and stops sessions idle longer than maxIdle, returning
// how many were removed.
func (m *Manager) CleanupIdle(maxIdle time.Duration) int {
	removed := 0
	for _, s := range m.snapshotSessions() {
		if s.IdleSince() < maxIdle {
			continue
		}
		m.Destroy(s.PilotID)
		removed++
	}
	return removed
}

// StopAll saves and stops every session. Used at server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		if err := s.Save(); err != nil {
			m.logger.Error("save on shutdown failed", zap.Int64("pilot_id", s.PilotID), zap.Error(err))
		}
		s.Stop()
	}
}

// ActiveSessionCount returns how many sessions are live.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) snapshotSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
