package quest

import (
	"context"
	"sort"
	"time"

	"github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/hook"
	"go.uber.org/zap"
)

// SeasonalSource surfaces calendar-gated quest ids. The engine injects them
// into availability each tick, still subject to normal requirement gating.
type SeasonalSource interface {
	ActiveQuestIDs(now time.Time) []string
}

// Notice is the payload delivered to lifecycle hooks.
type Notice struct {
	QuestID string
	Title   string
	Status  Status
	ArcID   string
	Reason  string
	At      time.Time
}

// Engine is the quest/story progression engine for one pilot. All mutation
// happens inside Update or an explicit public call; the owner (the pilot's
// session) serializes access, the engine holds no lock of its own.
type Engine struct {
	defs     map[string]*Template
	defOrder []string
	arcs     map[string]*StoryArc
	arcOrder []string
	lines    map[string]*FactionStoryline
	lineOrder []string

	clk     clock.Clock
	state   PlayerState
	sink    RewardSink
	seasons SeasonalSource
	hooks   *hook.Center
	logger  *zap.Logger

	available map[string]struct{}
	availOrder []string
	active    map[string]*Quest
	activeOrder []string
	completed map[string]*Quest
	completedOrder []string
	failed    map[string]*Quest
	failedOrder []string

	// history keeps every terminal instance record, including repeatable
	// runs that were later restarted.
	history []*Quest
	// completedEver backs prerequisite checks and survives repeatable
	// restarts that pull an id out of the completed set.
	completedEver map[string]time.Time

	flags     map[string]Flag
	arcStatus map[string]ArcStatus
}

// Options carries the engine's collaborators.
type Options struct {
	Clock   clock.Clock
	State   PlayerState
	Sink    RewardSink
	Seasons SeasonalSource
	Hooks   *hook.Center
	Logger  *zap.Logger
}

// NewEngine builds an engine over the given content. Templates, arcs and
// storylines are treated as immutable; iteration follows definition order so
// tie-breaks stay stable.
func NewEngine(templates []*Template, arcs []*StoryArc, lines []*FactionStoryline, opts Options) *Engine {
	e := &Engine{
		defs:          make(map[string]*Template, len(templates)),
		arcs:          make(map[string]*StoryArc, len(arcs)),
		lines:         make(map[string]*FactionStoryline, len(lines)),
		clk:           opts.Clock,
		state:         opts.State,
		sink:          opts.Sink,
		seasons:       opts.Seasons,
		hooks:         opts.Hooks,
		logger:        opts.Logger,
		available:     make(map[string]struct{}),
		active:        make(map[string]*Quest),
		completed:     make(map[string]*Quest),
		failed:        make(map[string]*Quest),
		completedEver: make(map[string]time.Time),
		flags:         make(map[string]Flag),
		arcStatus:     make(map[string]ArcStatus),
	}
	if e.clk == nil {
		e.clk = clock.SystemClock{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	for _, t := range templates {
		if _, dup := e.defs[t.ID]; dup {
			continue
		}
		e.defs[t.ID] = t
		e.defOrder = append(e.defOrder, t.ID)
	}
	for _, a := range arcs {
		if _, dup := e.arcs[a.ID]; dup {
			continue
		}
		e.arcs[a.ID] = a
		e.arcOrder = append(e.arcOrder, a.ID)
	}
	for _, l := range lines {
		if _, dup := e.lines[l.FactionID]; dup {
			continue
		}
		e.lines[l.FactionID] = l
		e.lineOrder = append(e.lineOrder, l.FactionID)
	}
	e.refreshArcStatus()
	return e
}

// refreshArcStatus recomputes locked/available for every non-completed arc.
func (e *Engine) refreshArcStatus() {
	for _, id := range e.arcOrder {
		if e.arcStatus[id] == ArcCompleted {
			continue
		}
		arc := e.arcs[id]
		status := ArcAvailable
		for _, prereq := range arc.PrereqArcs {
			if e.arcStatus[prereq] != ArcCompleted {
				status = ArcLocked
				break
			}
		}
		if status == ArcAvailable && !arc.Requires.MetBy(e.state, e.QuestCompleted) {
			status = ArcLocked
		}
		e.arcStatus[id] = status
	}
}

// Update advances the engine by one tick. Phase order matters: availability
// discovery runs before the active sweep so a quest unlocked this tick can be
// started by the caller, and the active sweep runs before seasonal injection
// so a completion this tick can surface its nextQuest within the same tick.
// A final expiry re-check catches deadlines crossed by earlier phases.
func (e *Engine) Update(dt time.Duration) {
	_ = dt // the injected clock carries time; dt is the caller's cadence
	e.refreshArcStatus()
	e.refreshAvailable()
	e.sweepActive(true)
	e.injectSeasonal()
	e.sweepActive(false)
}

// refreshAvailable surfaces every template whose requirements now hold.
// Repeatable quests re-surface out of the completed/failed sets; their
// terminal records stay in history and completedEver.
func (e *Engine) refreshAvailable() {
	for _, id := range e.defOrder {
		t := e.defs[id]
		if _, ok := e.available[id]; ok {
			continue
		}
		if _, ok := e.active[id]; ok {
			continue
		}
		if _, ok := e.completed[id]; ok {
			if !t.Repeatable {
				continue
			}
		}
		if _, ok := e.failed[id]; ok {
			if !t.Repeatable {
				continue
			}
		}
		if t.Category == CategorySeasonal {
			continue // surfaced by injectSeasonal only while in season
		}
		if !t.Requires.MetBy(e.state, e.QuestCompleted) {
			continue
		}
		e.surface(id)
	}
}

// surface moves a quest id into the available set, withdrawing any stale
// terminal-set membership for repeatable quests.
func (e *Engine) surface(id string) {
	if _, ok := e.completed[id]; ok {
		delete(e.completed, id)
		e.completedOrder = removeID(e.completedOrder, id)
	}
	if _, ok := e.failed[id]; ok {
		delete(e.failed, id)
		e.failedOrder = removeID(e.failedOrder, id)
	}
	e.available[id] = struct{}{}
	e.availOrder = append(e.availOrder, id)
}

// sweepActive checks every active quest for expiry and, when full is set,
// for completion. Iterates over a snapshot because transitions mutate the
// active set mid-walk.
func (e *Engine) sweepActive(full bool) {
	now := e.clk.Now()
	ids := make([]string, len(e.activeOrder))
	copy(ids, e.activeOrder)
	for _, id := range ids {
		q, ok := e.active[id]
		if !ok {
			continue
		}
		if reason, expired := q.expiredAt(now); expired {
			e.FailQuest(id, reason)
			continue
		}
		if full && q.objectivesDone() {
			e.CompleteQuest(id)
		}
	}
}

func (q *Quest) expiredAt(now time.Time) (string, bool) {
	if q.TimeLimit > 0 && now.Sub(q.StartedAt) > q.TimeLimit {
		return "time limit exceeded", true
	}
	if !q.Deadline.IsZero() && now.After(q.Deadline) {
		return "deadline passed", true
	}
	return "", false
}

// injectSeasonal surfaces in-season quests that pass normal gating.
func (e *Engine) injectSeasonal() {
	if e.seasons == nil {
		return
	}
	for _, id := range e.seasons.ActiveQuestIDs(e.clk.Now()) {
		t, ok := e.defs[id]
		if !ok {
			e.logger.Warn("seasonal content references unknown quest", zap.String("quest_id", id))
			continue
		}
		if _, ok := e.available[id]; ok {
			continue
		}
		if _, ok := e.active[id]; ok {
			continue
		}
		if _, done := e.completed[id]; done && !t.Repeatable {
			continue
		}
		if _, lost := e.failed[id]; lost && !t.Repeatable {
			continue
		}
		if !t.Requires.MetBy(e.state, e.QuestCompleted) {
			continue
		}
		e.surface(id)
	}
}

// StartQuest clones the template into a live instance. Returns false, with
// no state change, when the id is unknown, the quest is already active, a
// non-repeatable quest already ended, or requirements do not hold.
func (e *Engine) StartQuest(id string) bool {
	t, ok := e.defs[id]
	if !ok {
		return false
	}
	if _, running := e.active[id]; running {
		return false
	}
	if _, done := e.completed[id]; done && !t.Repeatable {
		return false
	}
	if _, lost := e.failed[id]; lost && !t.Repeatable {
		return false
	}
	if !t.Requires.MetBy(e.state, e.QuestCompleted) {
		return false
	}

	if _, ok := e.available[id]; ok {
		delete(e.available, id)
		e.availOrder = removeID(e.availOrder, id)
	} else if t.Repeatable {
		// repeatable restart without waiting for the next availability scan
		e.surface(id)
		delete(e.available, id)
		e.availOrder = removeID(e.availOrder, id)
	}

	q := t.instantiate(e.clk.Now())
	e.active[id] = q
	e.activeOrder = append(e.activeOrder, id)
	e.logger.Debug("quest started", zap.String("quest_id", id))
	e.notify(hook.OnQuestStarted, q, "")
	return true
}

// ProgressObjective advances one objective counter. Returns false when the
// quest is not active or the objective id is unknown. Progress past a
// completed objective is a no-op that still reports true.
func (e *Engine) ProgressObjective(questID, objectiveID string, amount int) bool {
	q, ok := e.active[questID]
	if !ok {
		return false
	}
	if amount <= 0 {
		amount = 1
	}
	for i := range q.Objectives {
		obj := &q.Objectives[i]
		if obj.ID != objectiveID {
			continue
		}
		if obj.Completed {
			return true
		}
		obj.Progress += amount
		if obj.Quantity > 0 && obj.Progress >= obj.Quantity {
			obj.Progress = obj.Quantity
			obj.Completed = true
		}
		return true
	}
	return false
}

// ProgressAction feeds one gameplay action (a trade, a kill, a station
// visit) into every matching objective of every active quest, and returns
// how many objectives advanced.
func (e *Engine) ProgressAction(objType ObjectiveType, target string, amount int) int {
	if amount <= 0 {
		amount = 1
	}
	advanced := 0
	for _, id := range e.activeOrder {
		q, ok := e.active[id]
		if !ok {
			continue
		}
		for i := range q.Objectives {
			obj := &q.Objectives[i]
			if obj.Type != objType || obj.Completed {
				continue
			}
			if obj.Target != "" && obj.Target != target {
				continue
			}
			obj.Progress += amount
			if obj.Quantity > 0 && obj.Progress >= obj.Quantity {
				obj.Progress = obj.Quantity
				obj.Completed = true
			}
			advanced++
		}
	}
	return advanced
}

// CompleteQuest resolves an active quest whose objectives are all done:
// rewards flow through the sink, the nextQuest may surface, and the story
// arc is re-evaluated. Returns false if the quest is not active or any
// objective is still open, leaving the active set untouched.
func (e *Engine) CompleteQuest(id string) bool {
	q, ok := e.active[id]
	if !ok {
		return false
	}
	if !q.objectivesDone() {
		return false
	}
	now := e.clk.Now()
	delete(e.active, id)
	e.activeOrder = removeID(e.activeOrder, id)
	q.Status = StatusCompleted
	q.CompletedAt = now
	e.completed[id] = q
	e.completedOrder = append(e.completedOrder, id)
	e.completedEver[id] = now
	e.history = append(e.history, q)

	e.applyRewards(q)
	e.logger.Info("quest completed", zap.String("quest_id", id), zap.String("title", q.Title))
	e.notify(hook.OnQuestComplete, q, "")

	if q.NextQuest != "" {
		e.cascadeNext(q.NextQuest)
	}
	if q.StoryArc != "" {
		e.evaluateArc(q.StoryArc)
	}
	return true
}

func (e *Engine) applyRewards(q *Quest) {
	if e.sink == nil {
		return
	}
	r := q.Reward
	if r.Credits != 0 {
		e.sink.AddCredits(r.Credits)
	}
	if r.Experience > 0 {
		e.sink.AddExperience(r.Experience)
	}
	for faction, delta := range r.Reputation {
		e.sink.AddReputation(faction, delta)
	}
	for _, item := range r.Items {
		e.sink.GrantItem(item.ItemID, item.Qty)
	}
	for _, flagID := range r.Unlocks {
		e.SetFlag(flagID, true)
	}
}

func (e *Engine) cascadeNext(nextID string) {
	t, ok := e.defs[nextID]
	if !ok {
		e.logger.Warn("next quest not defined", zap.String("quest_id", nextID))
		return
	}
	if _, ok := e.available[nextID]; ok {
		return
	}
	if _, ok := e.active[nextID]; ok {
		return
	}
	if _, done := e.completed[nextID]; done && !t.Repeatable {
		return
	}
	if !t.Requires.MetBy(e.state, e.QuestCompleted) {
		return
	}
	e.surface(nextID)
}

func (e *Engine) evaluateArc(arcID string) {
	arc, ok := e.arcs[arcID]
	if !ok {
		return
	}
	if e.arcStatus[arcID] == ArcCompleted {
		return
	}
	for _, qid := range arc.QuestIDs {
		if !e.QuestCompleted(qid) {
			return
		}
	}
	e.arcStatus[arcID] = ArcCompleted
	e.refreshArcStatus()
	e.logger.Info("story arc completed", zap.String("arc_id", arcID))
	e.notify(hook.OnArcComplete, &Quest{Template: Template{ID: arcID, Title: arc.Title}, Status: StatusCompleted}, "")
}

// FailQuest fails an active quest. Failure is terminal for the instance; a
// repeatable template may later be restarted fresh.
func (e *Engine) FailQuest(id, reason string) bool {
	q, ok := e.active[id]
	if !ok {
		return false
	}
	now := e.clk.Now()
	delete(e.active, id)
	e.activeOrder = removeID(e.activeOrder, id)
	q.Status = StatusFailed
	q.FailedAt = now
	q.FailReason = reason
	e.failed[id] = q
	e.failedOrder = append(e.failedOrder, id)
	e.history = append(e.history, q)
	e.logger.Info("quest failed", zap.String("quest_id", id), zap.String("reason", reason))
	e.notify(hook.OnQuestFailed, q, reason)
	return true
}

// SetFlag stores a cross-quest side-channel value, last-write-wins.
func (e *Engine) SetFlag(id string, value interface{}) {
	e.flags[id] = Flag{Value: value, SetAt: e.clk.Now()}
}

// GetFlag reads a flag; ok is false if it was never set.
func (e *Engine) GetFlag(id string) (Flag, bool) {
	f, ok := e.flags[id]
	return f, ok
}

// QuestCompleted reports whether a quest has ever been completed, surviving
// repeatable restarts.
func (e *Engine) QuestCompleted(id string) bool {
	_, ok := e.completedEver[id]
	return ok
}

// ---- query surface ----

// GetAvailableQuests returns available templates sorted by priority
// descending; equal priorities keep surfacing order.
func (e *Engine) GetAvailableQuests() []*Template {
	out := make([]*Template, 0, len(e.availOrder))
	for _, id := range e.availOrder {
		if t, ok := e.defs[id]; ok {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// GetActiveQuests returns active instances sorted by priority descending.
func (e *Engine) GetActiveQuests() []*Quest {
	return e.sortedInstances(e.activeOrder, e.active)
}

// GetCompletedQuests returns the currently-completed set sorted by priority
// descending.
func (e *Engine) GetCompletedQuests() []*Quest {
	return e.sortedInstances(e.completedOrder, e.completed)
}

// GetFailedQuests returns the currently-failed set sorted by priority
// descending.
func (e *Engine) GetFailedQuests() []*Quest {
	return e.sortedInstances(e.failedOrder, e.failed)
}

func (e *Engine) sortedInstances(order []string, set map[string]*Quest) []*Quest {
	out := make([]*Quest, 0, len(order))
	for _, id := range order {
		if q, ok := set[id]; ok {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// ArcView pairs an arc definition with its current status.
type ArcView struct {
	Arc    *StoryArc `json:"arc"`
	Status ArcStatus `json:"status"`
}

// GetFactionStoryArcs returns the arcs belonging to a faction's storyline
// with their current status, in storyline order.
func (e *Engine) GetFactionStoryArcs(factionID string) []ArcView {
	line, ok := e.lines[factionID]
	if !ok {
		return nil
	}
	out := make([]ArcView, 0, len(line.ArcIDs))
	for _, arcID := range line.ArcIDs {
		arc, ok := e.arcs[arcID]
		if !ok {
			continue
		}
		out = append(out, ArcView{Arc: arc, Status: e.arcStatus[arcID]})
	}
	return out
}

// TierUnlock is one reputation tier with its reached state for the pilot.
type TierUnlock struct {
	Tier    ReputationTier `json:"tier"`
	Reached bool           `json:"reached"`
}

// GetStorylineTiers reports which reputation tiers the pilot has reached for
// a faction.
func (e *Engine) GetStorylineTiers(factionID string) []TierUnlock {
	line, ok := e.lines[factionID]
	if !ok {
		return nil
	}
	rep := e.state.Reputation(factionID)
	out := make([]TierUnlock, 0, len(line.Tiers))
	for _, tier := range line.Tiers {
		out = append(out, TierUnlock{Tier: tier, Reached: rep >= tier.Threshold})
	}
	return out
}

// ActiveQuestCount returns the number of active quests.
func (e *Engine) ActiveQuestCount() int { return len(e.active) }

func (e *Engine) notify(event string, q *Quest, reason string) {
	if e.hooks == nil {
		return
	}
	_, _ = e.hooks.Trigger(context.Background(), event, &Notice{
		QuestID: q.ID,
		Title:   q.Title,
		Status:  q.Status,
		ArcID:   q.StoryArc,
		Reason:  reason,
		At:      e.clk.Now(),
	})
}

func removeID(s []string, id string) []string {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
