package quest

import "time"

// Status is the lifecycle state of a quest.
type Status string

const (
	StatusLocked    Status = "locked"
	StatusAvailable Status = "available"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ObjectiveType categorizes a quest objective.
type ObjectiveType string

const (
	ObjectiveDeliver ObjectiveType = "deliver"
	ObjectiveDestroy ObjectiveType = "destroy"
	ObjectiveVisit   ObjectiveType = "visit"
	ObjectiveScan    ObjectiveType = "scan"
	ObjectiveTrade   ObjectiveType = "trade"
	ObjectiveTalk    ObjectiveType = "talk"
)

// Category tags a quest for display grouping.
type Category string

const (
	CategoryStory    Category = "story"
	CategoryContract Category = "contract"
	CategoryFaction  Category = "faction"
	CategorySeasonal Category = "seasonal"
)

// Objective is a single countable sub-goal within a quest. Completed latches
// once Progress reaches Quantity and never unsets.
type Objective struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Type        ObjectiveType `json:"type"`
	Target      string        `json:"target"`
	Quantity    int           `json:"quantity"`
	Progress    int           `json:"progress"`
	Completed   bool          `json:"completed"`
}

// Requirements is the gating predicate over player state. Every present
// clause must hold; absent clauses are vacuously satisfied.
type Requirements struct {
	MinLevel        int            `json:"min_level,omitempty"`
	MinCredits      int64          `json:"min_credits,omitempty"`
	Reputation      map[string]int `json:"reputation,omitempty"`
	Skills          map[string]int `json:"skills,omitempty"`
	CompletedQuests []string       `json:"completed_quests,omitempty"`
}

// ItemGrant is a single item reward entry.
type ItemGrant struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

// Rewards lists what quest completion grants, applied through the RewardSink.
// Unlocks name quest flags set to true on completion.
type Rewards struct {
	Credits    int64          `json:"credits,omitempty"`
	Experience int            `json:"experience,omitempty"`
	Reputation map[string]int `json:"reputation,omitempty"`
	Items      []ItemGrant    `json:"items,omitempty"`
	Unlocks    []string       `json:"unlocks,omitempty"`
}

// Template is an immutable quest definition. Runtime instances are deep
// copies; a template is never mutated after load.
type Template struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    Category      `json:"category"`
	Objectives  []Objective   `json:"objectives"`
	Requires    Requirements  `json:"requires"`
	Reward      Rewards       `json:"reward"`
	NextQuest   string        `json:"next_quest,omitempty"`
	StoryArc    string        `json:"story_arc,omitempty"`
	TimeLimit   time.Duration `json:"time_limit,omitempty"`
	Deadline    time.Time     `json:"deadline,omitempty"`
	Priority    int           `json:"priority"`
	Repeatable  bool          `json:"repeatable"`
}

// Quest is a runtime instance of a template. Its Objectives slice is an
// independent copy so template and instance never share state.
type Quest struct {
	Template
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	FailedAt    time.Time `json:"failed_at,omitempty"`
	FailReason  string    `json:"fail_reason,omitempty"`
}

// instantiate deep-copies the template into a fresh active instance with
// zeroed objective progress.
func (t *Template) instantiate(now time.Time) *Quest {
	q := &Quest{
		Template:  *t,
		Status:    StatusActive,
		StartedAt: now,
	}
	q.Objectives = make([]Objective, len(t.Objectives))
	for i, obj := range t.Objectives {
		obj.Progress = 0
		obj.Completed = false
		q.Objectives[i] = obj
	}
	// maps and item slices in Rewards/Requires are never mutated at runtime,
	// so sharing them with the template is safe
	return q
}

// objectivesDone reports whether every objective has latched completed.
func (q *Quest) objectivesDone() bool {
	for i := range q.Objectives {
		if !q.Objectives[i].Completed {
			return false
		}
	}
	return len(q.Objectives) > 0
}

// ArcStatus is the lifecycle state of a story arc.
type ArcStatus string

const (
	ArcAvailable ArcStatus = "available"
	ArcLocked    ArcStatus = "locked"
	ArcCompleted ArcStatus = "completed"
)

// StoryArc is a named, ordered grouping of quests forming one narrative
// thread. It completes when every member quest has been completed.
type StoryArc struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	FactionID  string       `json:"faction_id,omitempty"`
	QuestIDs   []string     `json:"quest_ids"`
	PrereqArcs []string     `json:"prereq_arcs,omitempty"`
	Requires   Requirements `json:"requires"`
}

// ReputationTier is one unlock threshold in a faction storyline.
type ReputationTier struct {
	Name      string   `json:"name"` // friendly, allied, trusted
	Threshold int      `json:"threshold"`
	Unlocks   []string `json:"unlocks"`
}

// FactionStoryline groups a faction's arcs with its reputation unlock table.
// Purely a query surface: it never gates quest availability by itself.
type FactionStoryline struct {
	FactionID string           `json:"faction_id"`
	Title     string           `json:"title"`
	ArcIDs    []string         `json:"arc_ids"`
	Tiers     []ReputationTier `json:"tiers"`
}

// Flag is a generic cross-quest side channel value, last-write-wins.
type Flag struct {
	Value interface{} `json:"value"`
	SetAt time.Time   `json:"set_at"`
}
