package event

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/hook"
	"go.uber.org/zap"
)

// CategoryConfig tunes one event category's pacing.
type CategoryConfig struct {
	// BaseRate is the per-second trigger probability before multipliers.
	BaseRate float64 `json:"base_rate"`
	// Cooldown is the minimum gap between two triggers of this category.
	Cooldown time.Duration `json:"cooldown"`
	// DockedMult and TravelMult re-weight the category by pilot context.
	DockedMult float64 `json:"docked_mult"`
	TravelMult float64 `json:"travel_mult"`
	// Lifetime is how long a pending instance stays resolvable; zero means
	// the event never expires on its own.
	Lifetime time.Duration `json:"lifetime"`
}

// Config tunes the generator as a whole. All values are pacing knobs, not
// behavioral contracts; content updates may retune them freely.
type Config struct {
	GlobalRate    float64
	CheckInterval time.Duration
	MaxActive     int
	// LevelBonus is the linear per-level probability bonus, 0.1 meaning
	// +10% per pilot level.
	LevelBonus float64
	Categories map[Category]CategoryConfig
}

// DefaultConfig returns the tuning the game ships with.
func DefaultConfig() Config {
	return Config{
		GlobalRate:    1.0,
		CheckInterval: 10 * time.Second,
		MaxActive:     3,
		LevelBonus:    0.1,
		Categories: map[Category]CategoryConfig{
			CategorySpaceEncounter:    {BaseRate: 0.004, Cooldown: 2 * time.Minute, DockedMult: 0.1, TravelMult: 1.5, Lifetime: 5 * time.Minute},
			CategoryStationEvent:      {BaseRate: 0.003, Cooldown: 3 * time.Minute, DockedMult: 2.0, TravelMult: 0.1, Lifetime: 10 * time.Minute},
			CategorySystemCrisis:      {BaseRate: 0.001, Cooldown: 10 * time.Minute, DockedMult: 1.0, TravelMult: 1.0, Lifetime: 30 * time.Minute},
			CategoryEmergencyContract: {BaseRate: 0.002, Cooldown: 5 * time.Minute, DockedMult: 1.2, TravelMult: 0.8, Lifetime: 15 * time.Minute},
			CategoryDistressSignal:    {BaseRate: 0.002, Cooldown: 4 * time.Minute, DockedMult: 0.2, TravelMult: 1.3, Lifetime: 8 * time.Minute},
		},
	}
}

// Generator synthesizes random events for one pilot. Like the quest engine
// it is single-owner: the pilot's session serializes all calls.
type Generator struct {
	cfg     Config
	catalog *Catalog
	clk     clock.Clock
	rng     *rand.Rand
	state   PlayerState
	sink    Sink
	hooks   *hook.Center
	logger  *zap.Logger

	active      map[string]*Event
	activeOrder []string
	history     []Record
	lastTrigger map[Category]time.Time
	stats       map[Category]int
	lastCheck   time.Time
	seq         uint64
}

// GeneratorOptions carries the generator's collaborators. A nil Rand gets a
// time-seeded source; tests pass a fixed seed.
type GeneratorOptions struct {
	Config  Config
	Catalog *Catalog
	Clock   clock.Clock
	Rand    *rand.Rand
	State   PlayerState
	Sink    Sink
	Hooks   *hook.Center
	Logger  *zap.Logger
}

// NewGenerator builds a generator. Zero-value config fields fall back to the
// defaults so partial tuning overrides stay safe.
func NewGenerator(opts GeneratorOptions) *Generator {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.GlobalRate <= 0 {
		cfg.GlobalRate = def.GlobalRate
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = def.MaxActive
	}
	if cfg.LevelBonus == 0 {
		cfg.LevelBonus = def.LevelBonus
	}
	if cfg.Categories == nil {
		cfg.Categories = def.Categories
	}
	g := &Generator{
		cfg:         cfg,
		catalog:     opts.Catalog,
		clk:         opts.Clock,
		rng:         opts.Rand,
		state:       opts.State,
		sink:        opts.Sink,
		hooks:       opts.Hooks,
		logger:      opts.Logger,
		active:      make(map[string]*Event),
		lastTrigger: make(map[Category]time.Time),
		stats:       make(map[Category]int),
	}
	if g.clk == nil {
		g.clk = clock.SystemClock{}
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if g.catalog == nil {
		g.catalog = DefaultCatalog()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Update advances the generator by one tick. Expiry always runs; trigger
// evaluation is throttled to the configured check interval so event pacing
// is independent of the caller's tick rate.
func (g *Generator) Update(dt time.Duration) {
	_ = dt
	now := g.clk.Now()
	g.sweepExpired(now)

	if !g.lastCheck.IsZero() && now.Sub(g.lastCheck) < g.cfg.CheckInterval {
		return
	}
	elapsed := g.cfg.CheckInterval
	if !g.lastCheck.IsZero() {
		elapsed = now.Sub(g.lastCheck)
	}
	g.lastCheck = now

	for _, cat := range Categories {
		if len(g.active) >= g.cfg.MaxActive {
			return
		}
		cc, ok := g.cfg.Categories[cat]
		if !ok {
			continue
		}
		if !g.CanTrigger(cat) {
			continue
		}
		p := g.triggerProbability(cc, elapsed)
		if g.rng.Float64() >= p {
			continue
		}
		g.trigger(cat, now)
	}
}

// triggerProbability folds the base rate, the global rate, the pilot-level
// bonus and the docked/traveling context weight into one clamped
// probability for this check window.
func (g *Generator) triggerProbability(cc CategoryConfig, elapsed time.Duration) float64 {
	p := cc.BaseRate * elapsed.Seconds() * g.cfg.GlobalRate
	p *= 1 + g.cfg.LevelBonus*float64(g.state.Level())
	if g.state.Docked() {
		p *= cc.DockedMult
	} else {
		p *= cc.TravelMult
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// CanTrigger reports whether a category is off cooldown: either it never
// triggered, or its last trigger is older than the configured cooldown.
func (g *Generator) CanTrigger(cat Category) bool {
	cc, ok := g.cfg.Categories[cat]
	if !ok {
		return false
	}
	last, ok := g.lastTrigger[cat]
	if !ok {
		return true
	}
	return g.clk.Now().Sub(last) >= cc.Cooldown
}

func (g *Generator) trigger(cat Category, now time.Time) {
	g.seq++
	id := fmt.Sprintf("evt_%d_%06d", now.UnixMilli(), g.seq)
	ev := g.catalog.Synthesize(cat, id, now, g.rng, g.state)
	if ev == nil {
		return
	}
	if cc := g.cfg.Categories[cat]; cc.Lifetime > 0 {
		ev.ExpiresAt = now.Add(cc.Lifetime)
	}
	g.active[ev.ID] = ev
	g.activeOrder = append(g.activeOrder, ev.ID)
	g.lastTrigger[cat] = now
	g.stats[cat]++
	g.logger.Info("event triggered",
		zap.String("event_id", ev.ID),
		zap.String("category", string(cat)),
		zap.String("subtype", ev.Subtype))
	g.notify(hook.OnEventTriggered, ev)
}

func (g *Generator) sweepExpired(now time.Time) {
	ids := make([]string, len(g.activeOrder))
	copy(ids, g.activeOrder)
	for _, id := range ids {
		ev, ok := g.active[id]
		if !ok {
			continue
		}
		if ev.ExpiresAt.IsZero() || now.Before(ev.ExpiresAt) {
			continue
		}
		ev.Status = StatusExpired
		g.remove(id)
		g.history = append(g.history, Record{
			EventID:     ev.ID,
			Category:    ev.Category,
			Subtype:     ev.Subtype,
			Title:       ev.Title,
			Status:      StatusExpired,
			TriggeredAt: ev.TriggeredAt,
			ResolvedAt:  now,
		})
		g.logger.Debug("event expired", zap.String("event_id", id))
		g.notify(hook.OnEventExpired, ev)
	}
}

// MakeChoice resolves a pending event with one of its choices. Returns false
// with no state change when the event is not active, the choice id is
// unknown, or the choice's requirements are unmet. Skill-gated choices roll
// for success; a failed roll applies the fail outcome but still resolves the
// event.
func (g *Generator) MakeChoice(eventID, choiceID string) bool {
	ev, ok := g.active[eventID]
	if !ok {
		return false
	}
	var choice *Choice
	for i := range ev.Choices {
		if ev.Choices[i].ID == choiceID {
			choice = &ev.Choices[i]
			break
		}
	}
	if choice == nil {
		return false
	}
	if !g.choiceAllowed(choice) {
		return false
	}

	succeeded := true
	outcome := choice.Outcome
	if choice.SuccessSkill != "" {
		chance := choice.BaseChance + choice.ChancePerSkill*float64(g.state.Skill(choice.SuccessSkill))
		if chance < 0 {
			chance = 0
		}
		if chance > 1 {
			chance = 1
		}
		if g.rng.Float64() >= chance {
			succeeded = false
			outcome = choice.FailOutcome
		}
	}
	g.applyOutcome(outcome)

	now := g.clk.Now()
	ev.Status = StatusCompleted
	g.remove(eventID)
	g.history = append(g.history, Record{
		EventID:     ev.ID,
		Category:    ev.Category,
		Subtype:     ev.Subtype,
		Title:       ev.Title,
		Status:      StatusCompleted,
		TriggeredAt: ev.TriggeredAt,
		ResolvedAt:  now,
		ChoiceID:    choiceID,
		Succeeded:   succeeded,
	})
	g.logger.Info("event resolved",
		zap.String("event_id", eventID),
		zap.String("choice_id", choiceID),
		zap.Bool("succeeded", succeeded))
	g.notify(hook.OnEventResolved, ev)
	return true
}

func (g *Generator) choiceAllowed(c *Choice) bool {
	if c.Requires.MinCredits > 0 && g.state.Credits() < c.Requires.MinCredits {
		return false
	}
	for skill, min := range c.Requires.Skills {
		if g.state.Skill(skill) < min {
			return false
		}
	}
	return true
}

func (g *Generator) applyOutcome(o Outcome) {
	if g.sink == nil {
		return
	}
	if o.Credits != 0 {
		g.sink.AddCredits(o.Credits)
	}
	if o.Experience > 0 {
		g.sink.AddExperience(o.Experience)
	}
	for faction, delta := range o.Reputation {
		g.sink.AddReputation(faction, delta)
	}
	for itemID, qty := range o.Items {
		g.sink.GrantItem(itemID, qty)
	}
}

func (g *Generator) remove(id string) {
	delete(g.active, id)
	for i, v := range g.activeOrder {
		if v == id {
			g.activeOrder = append(g.activeOrder[:i], g.activeOrder[i+1:]...)
			break
		}
	}
}

// ActiveEvents returns pending events in trigger order.
func (g *Generator) ActiveEvents() []*Event {
	out := make([]*Event, 0, len(g.activeOrder))
	for _, id := range g.activeOrder {
		if ev, ok := g.active[id]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// History returns the append-only record log, oldest first.
func (g *Generator) History() []Record {
	return append([]Record(nil), g.history...)
}

// Stats returns per-category trigger counts since the generator started.
func (g *Generator) Stats() map[Category]int {
	out := make(map[Category]int, len(g.stats))
	for cat, n := range g.stats {
		out[cat] = n
	}
	return out
}

func (g *Generator) notify(event string, ev *Event) {
	if g.hooks == nil {
		return
	}
	_, _ = g.hooks.Trigger(context.Background(), event, ev)
}
