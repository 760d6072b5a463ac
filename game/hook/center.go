package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt signals that a handler wants to stop further processing.
var ErrInterrupt = errors.New("hook interrupted")

// Fn is a hook handler. It receives the event name and payload and returns
// the (possibly modified) payload. Returning ErrInterrupt stops the chain.
type Fn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type entry struct {
	priority int
	name     string
	fn       Fn
}

// Center dispatches engine lifecycle events to registered handlers in
// priority order. It decouples the progression engine from side channels
// like the audit trail and SSE notifications.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]*entry
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{hooks: make(map[string][]*entry)}
}

// Register adds a handler for event. Lower priority runs first. The name is
// used for Unregister.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], &entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.hooks[event] = entries
}

// Unregister removes all handlers with the given name for the given event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.hooks[event]
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	c.hooks[event] = entries[:n]
}

// Trigger runs every handler for event in priority order. The payload flows
// through each handler. If a handler returns ErrInterrupt the chain stops.
func (c *Center) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	c.mu.RLock()
	entries := make([]*entry, len(c.hooks[event]))
	copy(entries, c.hooks[event])
	c.mu.RUnlock()

	var err error
	for _, e := range entries {
		data, err = e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return data, err
		}
	}
	return data, nil
}

// Engine lifecycle event names.
const (
	OnQuestStarted   = "on_quest_started"
	OnQuestComplete  = "on_quest_complete"
	OnQuestFailed    = "on_quest_failed"
	OnArcComplete    = "on_arc_complete"
	OnEventTriggered = "on_event_triggered"
	OnEventResolved  = "on_event_resolved"
	OnEventExpired   = "on_event_expired"
	OnPilotLevelUp   = "on_pilot_level_up"
)
