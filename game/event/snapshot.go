package event

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SnapshotVersion tags the persisted generator layout.
const SnapshotVersion = 1

// Snapshot is the serializable generator state: active instances, history,
// cooldown anchors and counters. Config and catalog are content and are not
// persisted.
type Snapshot struct {
	Version     int                    `json:"version"`
	Active      []*Event               `json:"active"`
	History     []Record               `json:"history,omitempty"`
	LastTrigger map[Category]time.Time `json:"last_trigger,omitempty"`
	Stats       map[Category]int       `json:"stats,omitempty"`
	LastCheck   time.Time              `json:"last_check,omitempty"`
	Seq         uint64                 `json:"seq,omitempty"`
}

// Snapshot captures the generator state for persistence.
func (g *Generator) Snapshot() *Snapshot {
	s := &Snapshot{
		Version:     SnapshotVersion,
		LastTrigger: make(map[Category]time.Time, len(g.lastTrigger)),
		Stats:       make(map[Category]int, len(g.stats)),
		LastCheck:   g.lastCheck,
		Seq:         g.seq,
	}
	for _, id := range g.activeOrder {
		if ev, ok := g.active[id]; ok {
			s.Active = append(s.Active, ev)
		}
	}
	s.History = append(s.History, g.history...)
	for cat, at := range g.lastTrigger {
		s.LastTrigger[cat] = at
	}
	for cat, n := range g.stats {
		s.Stats[cat] = n
	}
	return s
}

// MarshalSnapshot serializes the current state to JSON.
func (g *Generator) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(g.Snapshot())
}

// Restore replaces the generator state from a snapshot. Missing fields load
// as empty collections; newer versions are refused.
func (g *Generator) Restore(s *Snapshot) bool {
	if s == nil || s.Version > SnapshotVersion {
		return false
	}
	g.active = make(map[string]*Event)
	g.activeOrder = nil
	g.history = nil
	g.lastTrigger = make(map[Category]time.Time)
	g.stats = make(map[Category]int)
	g.lastCheck = s.LastCheck
	g.seq = s.Seq

	for _, ev := range s.Active {
		if ev == nil || ev.ID == "" {
			continue
		}
		ev.Status = StatusPending
		g.active[ev.ID] = ev
		g.activeOrder = append(g.activeOrder, ev.ID)
	}
	g.history = append(g.history, s.History...)
	for cat, at := range s.LastTrigger {
		g.lastTrigger[cat] = at
	}
	for cat, n := range s.Stats {
		g.stats[cat] = n
	}
	return true
}

// UnmarshalSnapshot restores state from JSON produced by MarshalSnapshot.
func (g *Generator) UnmarshalSnapshot(data []byte) bool {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		g.logger.Warn("event snapshot unreadable, starting fresh", zap.Error(err))
		return false
	}
	return g.Restore(&s)
}
