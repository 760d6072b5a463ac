package quest

// PlayerState is the engine's read-only view of the pilot. Every requirement
// check goes through it live; the engine never caches these values.
type PlayerState interface {
	Level() int
	Skill(name string) int
	Credits() int64
	Reputation(faction string) int
}

// RewardSink receives reward applications on quest completion. The engine
// only writes through it, never reads back.
type RewardSink interface {
	AddCredits(delta int64)
	AddExperience(points int)
	AddReputation(faction string, delta int)
	GrantItem(itemID string, qty int)
}

// MetBy evaluates the requirement conjunction against live player state.
// completed reports whether a quest id has ever been completed.
func (r Requirements) MetBy(state PlayerState, completed func(questID string) bool) bool {
	if r.MinLevel > 0 && state.Level() < r.MinLevel {
		return false
	}
	if r.MinCredits > 0 && state.Credits() < r.MinCredits {
		return false
	}
	for faction, min := range r.Reputation {
		if state.Reputation(faction) < min {
			return false
		}
	}
	for skill, min := range r.Skills {
		if state.Skill(skill) < min {
			return false
		}
	}
	for _, id := range r.CompletedQuests {
		if !completed(id) {
			return false
		}
	}
	return true
}
