package event

import (
	"math/rand"
	"time"
)

// Subtype is one authorable event flavor within a category: the text the
// pilot sees, the choices offered, and the payload ranges the synthesizer
// rolls within.
type Subtype struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	Choices     []Choice `json:"choices"`
	MinThreat   int      `json:"min_threat,omitempty"`
	MaxThreat   int      `json:"max_threat,omitempty"`
	Sectors     []string `json:"sectors,omitempty"`
	MinReward   float64  `json:"min_reward_scale,omitempty"`
	MaxReward   float64  `json:"max_reward_scale,omitempty"`
}

// Catalog maps categories to their subtype tables. It is content, loaded
// once and never mutated at runtime.
type Catalog struct {
	subtypes map[Category][]Subtype
}

// NewCatalog builds a catalog from subtype tables.
func NewCatalog(subtypes map[Category][]Subtype) *Catalog {
	return &Catalog{subtypes: subtypes}
}

// Subtypes returns the table for one category.
func (c *Catalog) Subtypes(cat Category) []Subtype {
	return c.subtypes[cat]
}

// Synthesize assembles a fresh event instance: uniform subtype pick, rolled
// payload, deep-copied choice list. Returns nil when the category has no
// subtypes authored.
func (c *Catalog) Synthesize(cat Category, id string, now time.Time, rng *rand.Rand, state PlayerState) *Event {
	table := c.subtypes[cat]
	if len(table) == 0 {
		return nil
	}
	st := table[rng.Intn(len(table))]

	ev := &Event{
		ID:          id,
		Category:    cat,
		Subtype:     st.ID,
		Title:       st.Title,
		Description: st.Description,
		Priority:    st.Priority,
		Status:      StatusPending,
		TriggeredAt: now,
		Choices:     append([]Choice(nil), st.Choices...),
	}
	if st.MaxThreat > 0 {
		span := st.MaxThreat - st.MinThreat
		threat := st.MinThreat
		if span > 0 {
			threat += rng.Intn(span + 1)
		}
		// threat tracks pilot level so encounters stay relevant
		ev.Payload.ThreatLevel = threat + state.Level()/3
	}
	if len(st.Sectors) > 0 {
		ev.Payload.Sector = st.Sectors[rng.Intn(len(st.Sectors))]
	}
	if st.MaxReward > 0 {
		ev.Payload.RewardScale = st.MinReward + rng.Float64()*(st.MaxReward-st.MinReward)
	}
	return ev
}

// DefaultCatalog returns the starter content tables. Production deployments
// load richer tables from the content directory; this set keeps a fresh
// install playable.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[Category][]Subtype{
		CategorySpaceEncounter: {
			{
				ID:          "pirate_ambush",
				Title:       "Pirate Ambush",
				Description: "A pirate cutter drops out of cruise and locks weapons on your hull.",
				Priority:    8,
				MinThreat:   2, MaxThreat: 5,
				Sectors: []string{"kessler_drift", "outer_reach", "veil_nebula"},
				Choices: []Choice{
					{
						ID: "fight", Text: "Stand and fight",
						SuccessSkill: "combat", BaseChance: 0.3, ChancePerSkill: 0.1,
						Outcome:     Outcome{Credits: 800, Experience: 60, Text: "The cutter breaks apart; you salvage its cargo."},
						FailOutcome: Outcome{Credits: -400, Text: "You limp away with a shredded cargo bay."},
					},
					{
						ID: "flee", Text: "Burn hard and run",
						SuccessSkill: "piloting", BaseChance: 0.5, ChancePerSkill: 0.1,
						Outcome:     Outcome{Experience: 20, Text: "You slip into the drift before they can close."},
						FailOutcome: Outcome{Credits: -250, Text: "They clip your drive and shake you down."},
					},
					{
						ID: "pay", Text: "Pay the toll",
						Requires: ChoiceRequirements{MinCredits: 500},
						Outcome:  Outcome{Credits: -500, Text: "The pirates wave you through, this time."},
					},
				},
			},
			{
				ID:          "derelict_hull",
				Title:       "Derelict Hull",
				Description: "A cold freighter drifts off your bow, transponder dark.",
				Priority:    4,
				MinReward:   0.5, MaxReward: 2.0,
				Choices: []Choice{
					{
						ID: "board", Text: "Board and search",
						SuccessSkill: "engineering", BaseChance: 0.4, ChancePerSkill: 0.12,
						Outcome:     Outcome{Credits: 600, Experience: 40, Items: map[string]int{"salvage_parts": 3}, Text: "The hold still carries sealed crates."},
						FailOutcome: Outcome{Experience: 10, Text: "The hull is stripped bare. Someone beat you here."},
					},
					{ID: "ignore", Text: "Log it and move on", Outcome: Outcome{Experience: 5}},
				},
			},
		},
		CategoryStationEvent: {
			{
				ID:          "market_rush",
				Title:       "Market Rush",
				Description: "A freight backlog has traders bidding over whatever is on the dock.",
				Priority:    5,
				MinReward:   1.0, MaxReward: 1.8,
				Choices: []Choice{
					{
						ID: "sell", Text: "Sell into the rush",
						SuccessSkill: "trading", BaseChance: 0.6, ChancePerSkill: 0.08,
						Outcome:     Outcome{Credits: 700, Experience: 30, Text: "You offload at a healthy premium."},
						FailOutcome: Outcome{Credits: 100, Text: "Prices settle before your lot clears."},
					},
					{ID: "hold", Text: "Hold your stock", Outcome: Outcome{Experience: 5}},
				},
			},
			{
				ID:          "dockside_brawl",
				Title:       "Dockside Brawl",
				Description: "A crew dispute has spilled across the promenade. Security is slow to arrive.",
				Priority:    3,
				Choices: []Choice{
					{
						ID: "intervene", Text: "Break it up",
						SuccessSkill: "combat", BaseChance: 0.5, ChancePerSkill: 0.1,
						Outcome:     Outcome{Experience: 25, Reputation: map[string]int{"station_authority": 5}, Text: "Security thanks you for keeping the peace."},
						FailOutcome: Outcome{Credits: -150, Text: "You catch a wrench for your trouble."},
					},
					{ID: "walk_away", Text: "Not your problem", Outcome: Outcome{}},
				},
			},
		},
		CategorySystemCrisis: {
			{
				ID:          "solar_flare",
				Title:       "Solar Flare Warning",
				Description: "The system beacon forecasts a flare front crossing the main lanes.",
				Priority:    9,
				MinThreat:   3, MaxThreat: 6,
				Choices: []Choice{
					{
						ID: "shelter", Text: "Shelter behind the planet shadow",
						Outcome: Outcome{Experience: 15, Text: "You ride out the front in the shadow cone."},
					},
					{
						ID: "push_through", Text: "Push through the front",
						SuccessSkill: "engineering", BaseChance: 0.3, ChancePerSkill: 0.12,
						Outcome:     Outcome{Credits: 400, Experience: 50, Text: "Your shielding holds and you beat every other hauler to port."},
						FailOutcome: Outcome{Credits: -600, Text: "The flare cooks half your avionics."},
					},
				},
			},
		},
		CategoryEmergencyContract: {
			{
				ID:          "medical_run",
				Title:       "Emergency Medical Run",
				Description: "A colony clinic needs antivirals moved ahead of a quarantine lockdown.",
				Priority:    7,
				MinReward:   1.2, MaxReward: 2.5,
				Choices: []Choice{
					{
						ID: "accept", Text: "Take the contract",
						Requires: ChoiceRequirements{Skills: map[string]int{"piloting": 2}},
						Outcome:  Outcome{Credits: 1200, Experience: 80, Reputation: map[string]int{"frontier_colonies": 10}, Text: "The clinic gets its shipment with hours to spare."},
					},
					{ID: "decline", Text: "Decline", Outcome: Outcome{}},
				},
			},
		},
		CategoryDistressSignal: {
			{
				ID:          "stranded_miner",
				Title:       "Stranded Miner",
				Description: "A mining skiff broadcasts on the guard channel: drive dead, air thinning.",
				Priority:    6,
				Sectors:     []string{"asteroid_belt", "kessler_drift"},
				Choices: []Choice{
					{
						ID: "rescue", Text: "Dock and take them aboard",
						Outcome: Outcome{Experience: 40, Reputation: map[string]int{"miners_guild": 8}, Text: "The guild remembers who answers the guard channel."},
					},
					{
						ID: "salvage_fee", Text: "Quote a salvage fee first",
						Requires: ChoiceRequirements{Skills: map[string]int{"trading": 1}},
						Outcome:  Outcome{Credits: 300, Experience: 20, Reputation: map[string]int{"miners_guild": -4}, Text: "They pay, but the guard channel hears about it."},
					},
				},
			},
		},
	})
}
