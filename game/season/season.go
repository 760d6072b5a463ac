package season

import "time"

// Content is one calendar-gated content bundle. Months are inclusive on
// both ends and may wrap the year end, so StartMonth November with EndMonth
// January covers Nov, Dec and Jan. A window whose start equals its end is
// active for that single month only.
type Content struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	StartMonth time.Month `json:"start_month"`
	EndMonth   time.Month `json:"end_month"`
	QuestIDs   []string   `json:"quest_ids,omitempty"`
	EventIDs   []string   `json:"event_ids,omitempty"`
}

// ActiveIn reports whether the content window covers the given time's month.
func (c Content) ActiveIn(now time.Time) bool {
	m := now.Month()
	if c.StartMonth <= c.EndMonth {
		return m >= c.StartMonth && m <= c.EndMonth
	}
	// wraps the year end
	return m >= c.StartMonth || m <= c.EndMonth
}

// Schedule holds every seasonal bundle and answers what is live right now.
type Schedule struct {
	entries []Content
}

// NewSchedule builds a schedule; entry order is preserved in query results.
func NewSchedule(entries []Content) *Schedule {
	return &Schedule{entries: append([]Content(nil), entries...)}
}

// Active returns the bundles whose window covers now, in definition order.
func (s *Schedule) Active(now time.Time) []Content {
	var out []Content
	for _, c := range s.entries {
		if c.ActiveIn(now) {
			out = append(out, c)
		}
	}
	return out
}

// ActiveQuestIDs flattens the quest ids of every live bundle. Satisfies the
// quest engine's seasonal source.
func (s *Schedule) ActiveQuestIDs(now time.Time) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, c := range s.entries {
		if !c.ActiveIn(now) {
			continue
		}
		for _, id := range c.QuestIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// ActiveEventIDs flattens the event subtype ids of every live bundle.
func (s *Schedule) ActiveEventIDs(now time.Time) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, c := range s.entries {
		if !c.ActiveIn(now) {
			continue
		}
		for _, id := range c.EventIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
