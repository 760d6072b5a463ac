package event

import "time"

// Category groups random events for cooldown and pacing purposes.
type Category string

const (
	CategorySpaceEncounter    Category = "space_encounter"
	CategoryStationEvent      Category = "station_event"
	CategorySystemCrisis      Category = "system_crisis"
	CategoryEmergencyContract Category = "emergency_contract"
	CategoryDistressSignal    Category = "distress_signal"
)

// Categories lists every category in evaluation order. The generator walks
// this slice each check so trigger order is deterministic for a seeded rng.
var Categories = []Category{
	CategorySpaceEncounter,
	CategoryStationEvent,
	CategorySystemCrisis,
	CategoryEmergencyContract,
	CategoryDistressSignal,
}

// Status is the lifecycle state of an event instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Payload carries category-specific data. Only the fields relevant to the
// event's category are populated.
type Payload struct {
	ThreatLevel int     `json:"threat_level,omitempty"`
	Sector      string  `json:"sector,omitempty"`
	RewardScale float64 `json:"reward_scale,omitempty"`
}

// Outcome is the consequence bundle a resolved choice applies through the
// external sinks.
type Outcome struct {
	Credits    int64          `json:"credits,omitempty"`
	Experience int            `json:"experience,omitempty"`
	Reputation map[string]int `json:"reputation,omitempty"`
	Items      map[string]int `json:"items,omitempty"`
	Text       string         `json:"text,omitempty"`
}

// ChoiceRequirements gates a choice on current player state. Absent clauses
// are vacuously satisfied.
type ChoiceRequirements struct {
	MinCredits int64          `json:"min_credits,omitempty"`
	Skills     map[string]int `json:"skills,omitempty"`
}

// Choice is one way a pilot can resolve a pending event. When SuccessSkill
// is set the outcome is stochastic: the success chance is BaseChance plus
// ChancePerSkill for each point of the named skill, clamped to [0,1], and a
// failed roll applies FailOutcome instead.
type Choice struct {
	ID             string             `json:"id"`
	Text           string             `json:"text"`
	Requires       ChoiceRequirements `json:"requires"`
	SuccessSkill   string             `json:"success_skill,omitempty"`
	BaseChance     float64            `json:"base_chance,omitempty"`
	ChancePerSkill float64            `json:"chance_per_skill,omitempty"`
	Outcome        Outcome            `json:"outcome"`
	FailOutcome    Outcome            `json:"fail_outcome,omitempty"`
}

// Event is one live random event instance.
type Event struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Subtype     string    `json:"subtype"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Status      Status    `json:"status"`
	TriggeredAt time.Time `json:"triggered_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Choices     []Choice  `json:"choices"`
	Payload     Payload   `json:"payload"`
}

// Record is the immutable history entry an event leaves behind. History is
// append-only and backs cooldown lookups and statistics.
type Record struct {
	EventID     string    `json:"event_id"`
	Category    Category  `json:"category"`
	Subtype     string    `json:"subtype"`
	Title       string    `json:"title"`
	Status      Status    `json:"status"`
	TriggeredAt time.Time `json:"triggered_at"`
	ResolvedAt  time.Time `json:"resolved_at"`
	ChoiceID    string    `json:"choice_id,omitempty"`
	Succeeded   bool      `json:"succeeded,omitempty"`
}

// PlayerState is the generator's read-only view of the pilot.
type PlayerState interface {
	Level() int
	Credits() int64
	Skill(name string) int
	Docked() bool
}

// Sink receives choice consequences.
type Sink interface {
	AddCredits(delta int64)
	AddExperience(points int)
	AddReputation(faction string, delta int)
	GrantItem(itemID string, qty int)
}
