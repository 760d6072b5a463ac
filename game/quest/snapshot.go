package quest

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SnapshotVersion tags the persisted engine layout. Bump on breaking
// changes; Restore skips entries it cannot resolve rather than failing the
// whole load.
const SnapshotVersion = 1

// Snapshot is the serializable progression state. Templates, arcs and
// storylines are content, not state, and are never persisted here.
type Snapshot struct {
	Version   int                  `json:"version"`
	Available []string             `json:"available"`
	Active    []*Quest             `json:"active"`
	Completed []*Quest             `json:"completed"`
	Failed    []*Quest             `json:"failed"`
	History   []*Quest             `json:"history,omitempty"`
	Ever      map[string]time.Time `json:"completed_ever,omitempty"`
	Flags     map[string]Flag      `json:"flags,omitempty"`
	Arcs      map[string]ArcStatus `json:"arcs,omitempty"`
}

// Snapshot captures the engine state for persistence. Instance slices keep
// insertion order so a restore reproduces iteration order exactly.
func (e *Engine) Snapshot() *Snapshot {
	s := &Snapshot{
		Version:   SnapshotVersion,
		Available: append([]string(nil), e.availOrder...),
		Ever:      make(map[string]time.Time, len(e.completedEver)),
		Flags:     make(map[string]Flag, len(e.flags)),
		Arcs:      make(map[string]ArcStatus, len(e.arcStatus)),
	}
	for _, id := range e.activeOrder {
		if q, ok := e.active[id]; ok {
			s.Active = append(s.Active, q)
		}
	}
	for _, id := range e.completedOrder {
		if q, ok := e.completed[id]; ok {
			s.Completed = append(s.Completed, q)
		}
	}
	for _, id := range e.failedOrder {
		if q, ok := e.failed[id]; ok {
			s.Failed = append(s.Failed, q)
		}
	}
	s.History = append(s.History, e.history...)
	for id, at := range e.completedEver {
		s.Ever[id] = at
	}
	for id, f := range e.flags {
		s.Flags[id] = f
	}
	for id, st := range e.arcStatus {
		s.Arcs[id] = st
	}
	return s
}

// MarshalSnapshot serializes the current state to JSON.
func (e *Engine) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

// Restore replaces the engine state from a snapshot. Loading is lenient:
// entries whose quest id no longer exists in the content set are dropped
// with a warning instead of failing the restore, so content updates never
// strand a save. Unknown newer versions are refused.
func (e *Engine) Restore(s *Snapshot) bool {
	if s == nil || s.Version > SnapshotVersion {
		return false
	}
	e.available = make(map[string]struct{})
	e.availOrder = nil
	e.active = make(map[string]*Quest)
	e.activeOrder = nil
	e.completed = make(map[string]*Quest)
	e.completedOrder = nil
	e.failed = make(map[string]*Quest)
	e.failedOrder = nil
	e.history = nil
	e.completedEver = make(map[string]time.Time)
	e.flags = make(map[string]Flag)
	e.arcStatus = make(map[string]ArcStatus)

	for _, id := range s.Available {
		if !e.knownQuest(id, "available") {
			continue
		}
		if _, dup := e.available[id]; dup {
			continue
		}
		e.available[id] = struct{}{}
		e.availOrder = append(e.availOrder, id)
	}
	for _, q := range s.Active {
		if q == nil || !e.knownQuest(q.ID, "active") {
			continue
		}
		q.Status = StatusActive
		e.active[q.ID] = q
		e.activeOrder = append(e.activeOrder, q.ID)
	}
	for _, q := range s.Completed {
		if q == nil || !e.knownQuest(q.ID, "completed") {
			continue
		}
		q.Status = StatusCompleted
		e.completed[q.ID] = q
		e.completedOrder = append(e.completedOrder, q.ID)
	}
	for _, q := range s.Failed {
		if q == nil || !e.knownQuest(q.ID, "failed") {
			continue
		}
		q.Status = StatusFailed
		e.failed[q.ID] = q
		e.failedOrder = append(e.failedOrder, q.ID)
	}
	for _, q := range s.History {
		if q == nil {
			continue
		}
		e.history = append(e.history, q)
	}
	for id, at := range s.Ever {
		e.completedEver[id] = at
	}
	// older saves predate the ever map; rebuild it from the completed set
	for id, q := range e.completed {
		if _, ok := e.completedEver[id]; !ok {
			e.completedEver[id] = q.CompletedAt
		}
	}
	for id, f := range s.Flags {
		e.flags[id] = f
	}
	for id, st := range s.Arcs {
		if _, ok := e.arcs[id]; ok {
			e.arcStatus[id] = st
		}
	}
	e.refreshArcStatus()
	return true
}

// UnmarshalSnapshot restores state from JSON produced by MarshalSnapshot.
func (e *Engine) UnmarshalSnapshot(data []byte) bool {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		e.logger.Warn("quest snapshot unreadable, starting fresh")
		return false
	}
	return e.Restore(&s)
}

func (e *Engine) knownQuest(id, set string) bool {
	if _, ok := e.defs[id]; ok {
		return true
	}
	e.logger.Warn("snapshot references removed quest, dropping",
		zap.String("quest_id", id), zap.String("set", set))
	return false
}
