package resource

import (
	"time"

	"github.com/kyrelia/astraldrift/game/event"
	"github.com/kyrelia/astraldrift/game/quest"
	"github.com/kyrelia/astraldrift/game/season"
)

// DefaultLoader returns a loader pre-filled with the built-in starter
// content, used when no content directory is configured. The starter set is
// small but exercises every feature: a chained story arc, a repeatable
// contract, a faction storyline with tiers, and one seasonal bundle.
func DefaultLoader() *ContentLoader {
	cl := &ContentLoader{
		Quests: []*quest.Template{
			{
				ID:          "first_flight",
				Title:       "First Flight",
				Description: "Leave Meridian Station and log your first jump.",
				Category:    quest.CategoryStory,
				Objectives: []quest.Objective{
					{ID: "visit_belt", Description: "Visit the asteroid belt", Type: quest.ObjectiveVisit, Target: "asteroid_belt", Quantity: 1},
				},
				Reward:    quest.Rewards{Credits: 200, Experience: 50},
				NextQuest: "proof_of_trade",
				StoryArc:  "getting_started",
				Priority:  10,
			},
			{
				ID:          "proof_of_trade",
				Title:       "Proof of Trade",
				Description: "Complete three trades on the station exchange.",
				Category:    quest.CategoryStory,
				Objectives: []quest.Objective{
					{ID: "make_trades", Description: "Complete 3 trades", Type: quest.ObjectiveTrade, Quantity: 3},
				},
				Requires:  quest.Requirements{CompletedQuests: []string{"first_flight"}},
				Reward:    quest.Rewards{Credits: 400, Experience: 80, Unlocks: []string{"exchange_access"}},
				StoryArc:  "getting_started",
				Priority:  9,
			},
			{
				ID:          "ore_contract",
				Title:       "Standing Ore Contract",
				Description: "The Miners Guild pays steady rates for refined ore.",
				Category:    quest.CategoryContract,
				Objectives: []quest.Objective{
					{ID: "deliver_ore", Description: "Deliver 20 refined ore", Type: quest.ObjectiveDeliver, Target: "refined_ore", Quantity: 20},
				},
				Reward:     quest.Rewards{Credits: 600, Experience: 40, Reputation: map[string]int{"miners_guild": 5}},
				Repeatable: true,
				Priority:   4,
			},
			{
				ID:          "guild_escort",
				Title:       "Guild Convoy Escort",
				Description: "Escort a guild convoy through the Kessler drift.",
				Category:    quest.CategoryFaction,
				Objectives: []quest.Objective{
					{ID: "clear_raiders", Description: "Drive off 5 raiders", Type: quest.ObjectiveDestroy, Target: "raider", Quantity: 5},
					{ID: "reach_depot", Description: "Reach the guild depot", Type: quest.ObjectiveVisit, Target: "guild_depot", Quantity: 1},
				},
				Requires:  quest.Requirements{MinLevel: 3, Reputation: map[string]int{"miners_guild": 10}},
				Reward:    quest.Rewards{Credits: 1500, Experience: 200, Reputation: map[string]int{"miners_guild": 15}},
				TimeLimit: 2 * time.Hour,
				StoryArc:  "guild_trust",
				Priority:  7,
			},
			{
				ID:          "founders_rally",
				Title:       "Founders Week Rally",
				Description: "Fly the commemorative rally route before the week ends.",
				Category:    quest.CategorySeasonal,
				Objectives: []quest.Objective{
					{ID: "rally_route", Description: "Visit all 3 rally beacons", Type: quest.ObjectiveVisit, Target: "rally_beacon", Quantity: 3},
				},
				Reward:   quest.Rewards{Credits: 800, Experience: 120, Items: []quest.ItemGrant{{ItemID: "rally_pennant", Qty: 1}}},
				Priority: 6,
			},
		},
		Arcs: []*quest.StoryArc{
			{
				ID:       "getting_started",
				Title:    "Getting Started",
				QuestIDs: []string{"first_flight", "proof_of_trade"},
			},
			{
				ID:         "guild_trust",
				Title:      "Earning Guild Trust",
				FactionID:  "miners_guild",
				QuestIDs:   []string{"guild_escort"},
				PrereqArcs: []string{"getting_started"},
			},
		},
		Storylines: []*quest.FactionStoryline{
			{
				FactionID: "miners_guild",
				Title:     "The Miners Guild",
				ArcIDs:    []string{"guild_trust"},
				Tiers: []quest.ReputationTier{
					{Name: "Associate", Threshold: 10, Unlocks: []string{"guild_fuel_discount"}},
					{Name: "Partner", Threshold: 40, Unlocks: []string{"guild_depot_access"}},
					{Name: "Trusted", Threshold: 80, Unlocks: []string{"guild_charter"}},
				},
			},
		},
		Seasonal: []season.Content{
			{
				ID:         "founders_week",
				Title:      "Founders Week",
				StartMonth: time.November,
				EndMonth:   time.January,
				QuestIDs:   []string{"founders_rally"},
			},
		},
	}
	cl.Events = defaultEventTables()
	if err := cl.validate(); err != nil {
		// starter content is fixed at compile time; a failure here is a
		// programming error, not a runtime condition
		panic(err)
	}
	return cl
}

func defaultEventTables() map[event.Category][]event.Subtype {
	cat := event.DefaultCatalog()
	tables := make(map[event.Category][]event.Subtype, len(event.Categories))
	for _, c := range event.Categories {
		tables[c] = cat.Subtypes(c)
	}
	return tables
}
