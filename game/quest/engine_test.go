package quest

import (
	"context"
	"testing"
	"time"

	"github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	level      int
	credits    int64
	skills     map[string]int
	reputation map[string]int
}

func (s *fakeState) Level() int                   { return s.level }
func (s *fakeState) Credits() int64               { return s.credits }
func (s *fakeState) Skill(name string) int        { return s.skills[name] }
func (s *fakeState) Reputation(faction string) int { return s.reputation[faction] }

type fakeSink struct {
	credits    int64
	experience int
	reputation map[string]int
	items      map[string]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{reputation: map[string]int{}, items: map[string]int{}}
}

func (s *fakeSink) AddCredits(delta int64)                  { s.credits += delta }
func (s *fakeSink) AddExperience(points int)                { s.experience += points }
func (s *fakeSink) AddReputation(faction string, delta int) { s.reputation[faction] += delta }
func (s *fakeSink) GrantItem(itemID string, qty int)        { s.items[itemID] += qty }

type fixedSeasons struct{ ids []string }

func (f fixedSeasons) ActiveQuestIDs(time.Time) []string { return f.ids }

func haulTemplate() *Template {
	return &Template{
		ID:          "haul_ore",
		Title:       "Ore Run",
		Description: "Deliver ore to Meridian Station.",
		Category:    CategoryContract,
		Objectives: []Objective{
			{ID: "deliver_ore", Description: "Deliver 10 ore", Type: ObjectiveDeliver, Target: "ore", Quantity: 10},
		},
		Reward:   Rewards{Credits: 500, Experience: 50, Reputation: map[string]int{"miners_guild": 5}},
		Priority: 5,
	}
}

func newTestEngine(t *testing.T, templates []*Template, arcs []*StoryArc, lines []*FactionStoryline) (*Engine, *fakeState, *fakeSink, *clock.ManualClock) {
	t.Helper()
	clk := clock.NewManual(time.Date(2186, time.March, 10, 12, 0, 0, 0, time.UTC))
	state := &fakeState{level: 3, credits: 1000, skills: map[string]int{}, reputation: map[string]int{}}
	sink := newFakeSink()
	e := NewEngine(templates, arcs, lines, Options{Clock: clk, State: state, Sink: sink})
	return e, state, sink, clk
}

func TestStartProgressComplete(t *testing.T) {
	e, _, sink, _ := newTestEngine(t, []*Template{haulTemplate()}, nil, nil)
	e.Update(time.Second)

	avail := e.GetAvailableQuests()
	require.Len(t, avail, 1)
	assert.Equal(t, "haul_ore", avail[0].ID)

	require.True(t, e.StartQuest("haul_ore"))
	assert.False(t, e.StartQuest("haul_ore"), "already active")
	assert.Empty(t, e.GetAvailableQuests())

	// completion refused while objectives remain open
	assert.False(t, e.CompleteQuest("haul_ore"))

	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 4))
	assert.False(t, e.ProgressObjective("haul_ore", "wrong_id", 1))
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 6))

	require.True(t, e.CompleteQuest("haul_ore"))
	assert.False(t, e.CompleteQuest("haul_ore"), "already completed")
	assert.Empty(t, e.GetActiveQuests())
	require.Len(t, e.GetCompletedQuests(), 1)

	assert.Equal(t, int64(500), sink.credits)
	assert.Equal(t, 50, sink.experience)
	assert.Equal(t, 5, sink.reputation["miners_guild"])
}

func TestObjectiveLatchesAtQuantity(t *testing.T) {
	e, _, _, _ := newTestEngine(t, []*Template{haulTemplate()}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))

	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 25))
	q := e.GetActiveQuests()[0]
	assert.Equal(t, 10, q.Objectives[0].Progress)
	assert.True(t, q.Objectives[0].Completed)

	// further progress is a no-op on a latched objective
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 3))
	assert.Equal(t, 10, q.Objectives[0].Progress)
}

func TestTemplateNotMutatedByInstance(t *testing.T) {
	tpl := haulTemplate()
	e, _, _, _ := newTestEngine(t, []*Template{tpl}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 7))

	assert.Equal(t, 0, tpl.Objectives[0].Progress)
	assert.False(t, tpl.Objectives[0].Completed)
}

func TestTimeLimitFailsOnUpdate(t *testing.T) {
	tpl := haulTemplate()
	tpl.TimeLimit = 30 * time.Minute
	e, _, _, clk := newTestEngine(t, []*Template{tpl}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))

	clk.Advance(29 * time.Minute)
	e.Update(time.Second)
	assert.Len(t, e.GetActiveQuests(), 1)

	clk.Advance(2 * time.Minute)
	e.Update(time.Second)
	assert.Empty(t, e.GetActiveQuests())
	failed := e.GetFailedQuests()
	require.Len(t, failed, 1)
	assert.Equal(t, "time limit exceeded", failed[0].FailReason)
}

func TestDeadlineFailsOnUpdate(t *testing.T) {
	tpl := haulTemplate()
	e, _, _, clk := newTestEngine(t, []*Template{tpl}, nil, nil)
	tpl.Deadline = clk.Now().Add(time.Hour)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))

	clk.Advance(2 * time.Hour)
	e.Update(time.Second)
	require.Len(t, e.GetFailedQuests(), 1)
	assert.Equal(t, "deadline passed", e.GetFailedQuests()[0].FailReason)
}

func TestRequirementsGateAvailability(t *testing.T) {
	tpl := haulTemplate()
	tpl.Requires = Requirements{MinLevel: 5, Skills: map[string]int{"piloting": 2}}
	e, state, _, _ := newTestEngine(t, []*Template{tpl}, nil, nil)

	e.Update(time.Second)
	assert.Empty(t, e.GetAvailableQuests())
	assert.False(t, e.StartQuest("haul_ore"))

	state.level = 5
	e.Update(time.Second)
	assert.Empty(t, e.GetAvailableQuests(), "skill still missing")

	state.skills["piloting"] = 2
	e.Update(time.Second)
	require.Len(t, e.GetAvailableQuests(), 1)
	assert.True(t, e.StartQuest("haul_ore"))
}

func TestNextQuestCascade(t *testing.T) {
	first := haulTemplate()
	first.NextQuest = "haul_fuel"
	second := &Template{
		ID:       "haul_fuel",
		Title:    "Fuel Run",
		Category: CategoryContract,
		Objectives: []Objective{
			{ID: "deliver_fuel", Type: ObjectiveDeliver, Target: "fuel", Quantity: 5},
		},
		Requires: Requirements{CompletedQuests: []string{"haul_ore"}},
	}
	e, _, _, _ := newTestEngine(t, []*Template{first, second}, nil, nil)
	e.Update(time.Second)
	require.Len(t, e.GetAvailableQuests(), 1, "chained quest gated until prerequisite done")

	require.True(t, e.StartQuest("haul_ore"))
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 10))
	require.True(t, e.CompleteQuest("haul_ore"))

	avail := e.GetAvailableQuests()
	require.Len(t, avail, 1)
	assert.Equal(t, "haul_fuel", avail[0].ID)
}

func TestRepeatableRestartKeepsHistory(t *testing.T) {
	tpl := haulTemplate()
	tpl.Repeatable = true
	e, _, sink, _ := newTestEngine(t, []*Template{tpl}, nil, nil)
	e.Update(time.Second)

	for run := 0; run < 2; run++ {
		require.True(t, e.StartQuest("haul_ore"))
		require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 10))
		require.True(t, e.CompleteQuest("haul_ore"))
		e.Update(time.Second)
	}
	assert.Equal(t, int64(1000), sink.credits, "rewards granted per run")
	assert.True(t, e.QuestCompleted("haul_ore"))
	assert.Len(t, e.Snapshot().History, 2)
}

func TestNonRepeatableStaysDone(t *testing.T) {
	e, _, _, _ := newTestEngine(t, []*Template{haulTemplate()}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 10))
	require.True(t, e.CompleteQuest("haul_ore"))

	e.Update(time.Second)
	assert.Empty(t, e.GetAvailableQuests())
	assert.False(t, e.StartQuest("haul_ore"))
}

func TestProgressActionFansOut(t *testing.T) {
	a := haulTemplate()
	b := &Template{
		ID:       "ore_rush",
		Title:    "Ore Rush",
		Category: CategoryContract,
		Objectives: []Objective{
			{ID: "any_delivery", Type: ObjectiveDeliver, Quantity: 3},
			{ID: "scan_belt", Type: ObjectiveScan, Target: "asteroid_belt", Quantity: 1},
		},
	}
	e, _, _, _ := newTestEngine(t, []*Template{a, b}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))
	require.True(t, e.StartQuest("ore_rush"))

	// targeted "ore" objective and untargeted delivery objective both advance
	assert.Equal(t, 2, e.ProgressAction(ObjectiveDeliver, "ore", 2))
	// a fuel delivery only matches the untargeted objective
	assert.Equal(t, 1, e.ProgressAction(ObjectiveDeliver, "fuel", 1))
	assert.Equal(t, 0, e.ProgressAction(ObjectiveScan, "nebula", 1))
	assert.Equal(t, 1, e.ProgressAction(ObjectiveScan, "asteroid_belt", 1))
}

func TestQueriesSortByPriorityDesc(t *testing.T) {
	low := haulTemplate()
	low.ID, low.Priority = "low", 1
	mid := haulTemplate()
	mid.ID, mid.Priority = "mid", 5
	high := haulTemplate()
	high.ID, high.Priority = "high", 9
	e, _, _, _ := newTestEngine(t, []*Template{low, mid, high}, nil, nil)
	e.Update(time.Second)

	avail := e.GetAvailableQuests()
	require.Len(t, avail, 3)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{avail[0].ID, avail[1].ID, avail[2].ID})
}

func TestSeasonalInjection(t *testing.T) {
	seasonal := haulTemplate()
	seasonal.ID = "winter_rally"
	seasonal.Category = CategorySeasonal
	e, _, _, _ := newTestEngine(t, []*Template{seasonal}, nil, nil)

	e.Update(time.Second)
	assert.Empty(t, e.GetAvailableQuests(), "seasonal quest hidden out of season")

	e.seasons = fixedSeasons{ids: []string{"winter_rally"}}
	e.Update(time.Second)
	require.Len(t, e.GetAvailableQuests(), 1)
	assert.Equal(t, "winter_rally", e.GetAvailableQuests()[0].ID)
}

func TestFlagsAndUnlockRewards(t *testing.T) {
	tpl := haulTemplate()
	tpl.Reward.Unlocks = []string{"meridian_docking_rights"}
	e, _, _, _ := newTestEngine(t, []*Template{tpl}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 10))
	require.True(t, e.CompleteQuest("haul_ore"))

	f, ok := e.GetFlag("meridian_docking_rights")
	require.True(t, ok)
	assert.Equal(t, true, f.Value)

	_, ok = e.GetFlag("never_set")
	assert.False(t, ok)

	e.SetFlag("met_broker", "station_bar")
	f, ok = e.GetFlag("met_broker")
	require.True(t, ok)
	assert.Equal(t, "station_bar", f.Value)
}

func TestArcCompletionAndLocking(t *testing.T) {
	q1 := haulTemplate()
	q1.ID, q1.StoryArc = "arc_q1", "guild_intro"
	q2 := haulTemplate()
	q2.ID, q2.StoryArc = "arc_q2", "guild_intro"
	arcs := []*StoryArc{
		{ID: "guild_intro", Title: "Guild Introduction", FactionID: "miners_guild", QuestIDs: []string{"arc_q1", "arc_q2"}},
		{ID: "guild_deep", Title: "Deep Contracts", FactionID: "miners_guild", PrereqArcs: []string{"guild_intro"}},
	}
	lines := []*FactionStoryline{{
		FactionID: "miners_guild",
		Title:     "Miners Guild",
		ArcIDs:    []string{"guild_intro", "guild_deep"},
		Tiers: []ReputationTier{
			{Name: "Associate", Threshold: 0},
			{Name: "Partner", Threshold: 50},
		},
	}}
	e, state, _, _ := newTestEngine(t, []*Template{q1, q2}, arcs, lines)
	e.Update(time.Second)

	views := e.GetFactionStoryArcs("miners_guild")
	require.Len(t, views, 2)
	assert.Equal(t, ArcAvailable, views[0].Status)
	assert.Equal(t, ArcLocked, views[1].Status)

	for _, id := range []string{"arc_q1", "arc_q2"} {
		require.True(t, e.StartQuest(id))
		require.True(t, e.ProgressObjective(id, "deliver_ore", 10))
		require.True(t, e.CompleteQuest(id))
	}

	views = e.GetFactionStoryArcs("miners_guild")
	assert.Equal(t, ArcCompleted, views[0].Status)
	assert.Equal(t, ArcAvailable, views[1].Status, "prereq satisfied unlocks next arc")

	tiers := e.GetStorylineTiers("miners_guild")
	require.Len(t, tiers, 2)
	assert.True(t, tiers[0].Reached)
	assert.False(t, tiers[1].Reached)
	state.reputation["miners_guild"] = 60
	tiers = e.GetStorylineTiers("miners_guild")
	assert.True(t, tiers[1].Reached)
}

func TestHookNotifications(t *testing.T) {
	center := hook.NewCenter()
	var events []string
	recorder := func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		n, ok := data.(*Notice)
		require.True(t, ok)
		events = append(events, event+":"+n.QuestID)
		return data, nil
	}
	center.Register(hook.OnQuestStarted, 0, "recorder", recorder)
	center.Register(hook.OnQuestComplete, 0, "recorder", recorder)
	center.Register(hook.OnQuestFailed, 0, "recorder", recorder)

	tpl := haulTemplate()
	other := haulTemplate()
	other.ID = "doomed"
	clk := clock.NewManual(time.Date(2186, time.March, 10, 12, 0, 0, 0, time.UTC))
	state := &fakeState{level: 3, skills: map[string]int{}, reputation: map[string]int{}}
	e := NewEngine([]*Template{tpl, other}, nil, nil, Options{Clock: clk, State: state, Sink: newFakeSink(), Hooks: center})
	e.Update(time.Second)

	require.True(t, e.StartQuest("haul_ore"))
	require.True(t, e.StartQuest("doomed"))
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 10))
	require.True(t, e.CompleteQuest("haul_ore"))
	require.True(t, e.FailQuest("doomed", "abandoned"))

	assert.Equal(t, []string{
		hook.OnQuestStarted + ":haul_ore",
		hook.OnQuestStarted + ":doomed",
		hook.OnQuestComplete + ":haul_ore",
		hook.OnQuestFailed + ":doomed",
	}, events)
}

func TestSnapshotRoundTrip(t *testing.T) {
	tpl := haulTemplate()
	tpl.TimeLimit = time.Hour
	other := haulTemplate()
	other.ID = "side_job"
	e, _, _, clk := newTestEngine(t, []*Template{tpl, other}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))
	require.True(t, e.ProgressObjective("haul_ore", "deliver_ore", 6))
	e.SetFlag("met_broker", true)

	data, err := e.MarshalSnapshot()
	require.NoError(t, err)

	restored, _, _, _ := newTestEngine(t, []*Template{haulTemplate(), other}, nil, nil)
	require.True(t, restored.UnmarshalSnapshot(data))

	require.Len(t, restored.GetActiveQuests(), 1)
	q := restored.GetActiveQuests()[0]
	assert.Equal(t, 6, q.Objectives[0].Progress)
	assert.Equal(t, clk.Now(), q.StartedAt.UTC())
	_, ok := restored.GetFlag("met_broker")
	assert.True(t, ok)
	require.Len(t, restored.GetAvailableQuests(), 1)
	assert.Equal(t, "side_job", restored.GetAvailableQuests()[0].ID)
}

func TestRestoreDropsRemovedQuests(t *testing.T) {
	tpl := haulTemplate()
	e, _, _, _ := newTestEngine(t, []*Template{tpl}, nil, nil)
	e.Update(time.Second)
	require.True(t, e.StartQuest("haul_ore"))
	data, err := e.MarshalSnapshot()
	require.NoError(t, err)

	// content update removed the quest entirely
	empty, _, _, _ := newTestEngine(t, nil, nil, nil)
	require.True(t, empty.UnmarshalSnapshot(data), "restore stays lenient")
	assert.Empty(t, empty.GetActiveQuests())
}

func TestRestoreRefusesNewerVersion(t *testing.T) {
	e, _, _, _ := newTestEngine(t, []*Template{haulTemplate()}, nil, nil)
	assert.False(t, e.Restore(&Snapshot{Version: SnapshotVersion + 1}))
	assert.False(t, e.UnmarshalSnapshot([]byte("{not json")))
}
