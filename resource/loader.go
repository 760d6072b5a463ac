package resource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kyrelia/astraldrift/game/event"
	"github.com/kyrelia/astraldrift/game/quest"
	"github.com/kyrelia/astraldrift/game/season"
)

// ContentLoader reads and holds all game content files: quest templates,
// story arcs, faction storylines, event subtype tables and seasonal
// bundles. Content is loaded once at startup and shared read-only by every
// pilot session.
type ContentLoader struct {
	DataPath string

	Quests     []*quest.Template
	Arcs       []*quest.StoryArc
	Storylines []*quest.FactionStoryline
	Events     map[event.Category][]event.Subtype
	Seasonal   []season.Content

	questIDs map[string]struct{}
	arcIDs   map[string]struct{}
}

// NewLoader creates a ContentLoader for the given content directory.
func NewLoader(dataPath string) *ContentLoader {
	return &ContentLoader{DataPath: dataPath}
}

// Load reads every content file and validates cross-references. A missing
// data directory is an error; use DefaultLoader for the built-in starter
// content.
func (cl *ContentLoader) Load() error {
	loaders := []func() error{
		cl.loadQuests,
		cl.loadArcs,
		cl.loadStorylines,
		cl.loadEvents,
		cl.loadSeasonal,
	}
	for _, fn := range loaders {
		if err := fn(); err != nil {
			return err
		}
	}
	return cl.validate()
}

func (cl *ContentLoader) path(file string) string {
	return filepath.Join(cl.DataPath, file)
}

func loadJSONArray[T any](path string) ([]*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	var arr []*T
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return arr, nil
}

func loadJSONObject[T any](path string, out *T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resource: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return nil
}

func (cl *ContentLoader) loadQuests() error {
	var err error
	cl.Quests, err = loadJSONArray[quest.Template](cl.path("quests.json"))
	return err
}

func (cl *ContentLoader) loadArcs() error {
	var err error
	cl.Arcs, err = loadJSONArray[quest.StoryArc](cl.path("arcs.json"))
	return err
}

func (cl *ContentLoader) loadStorylines() error {
	var err error
	cl.Storylines, err = loadJSONArray[quest.FactionStoryline](cl.path("storylines.json"))
	return err
}

func (cl *ContentLoader) loadEvents() error {
	cl.Events = make(map[event.Category][]event.Subtype)
	return loadJSONObject(cl.path("events.json"), &cl.Events)
}

func (cl *ContentLoader) loadSeasonal() error {
	entries, err := loadJSONArray[season.Content](cl.path("seasonal.json"))
	if err != nil {
		return err
	}
	cl.Seasonal = cl.Seasonal[:0]
	for _, e := range entries {
		cl.Seasonal = append(cl.Seasonal, *e)
	}
	return nil
}

// validate checks id uniqueness and cross-references so broken content
// fails at startup instead of surfacing as dead quest chains mid-game.
func (cl *ContentLoader) validate() error {
	cl.questIDs = make(map[string]struct{}, len(cl.Quests))
	for _, t := range cl.Quests {
		if t.ID == "" {
			return fmt.Errorf("resource: quest with empty id (%q)", t.Title)
		}
		if _, dup := cl.questIDs[t.ID]; dup {
			return fmt.Errorf("resource: duplicate quest id %q", t.ID)
		}
		cl.questIDs[t.ID] = struct{}{}
		if len(t.Objectives) == 0 {
			return fmt.Errorf("resource: quest %q has no objectives", t.ID)
		}
		seen := make(map[string]struct{}, len(t.Objectives))
		for _, obj := range t.Objectives {
			if obj.ID == "" {
				return fmt.Errorf("resource: quest %q has an objective with empty id", t.ID)
			}
			if _, dup := seen[obj.ID]; dup {
				return fmt.Errorf("resource: quest %q repeats objective id %q", t.ID, obj.ID)
			}
			seen[obj.ID] = struct{}{}
		}
	}
	for _, t := range cl.Quests {
		if t.NextQuest != "" {
			if _, ok := cl.questIDs[t.NextQuest]; !ok {
				return fmt.Errorf("resource: quest %q chains to unknown quest %q", t.ID, t.NextQuest)
			}
		}
		for _, pre := range t.Requires.CompletedQuests {
			if _, ok := cl.questIDs[pre]; !ok {
				return fmt.Errorf("resource: quest %q requires unknown quest %q", t.ID, pre)
			}
		}
	}

	cl.arcIDs = make(map[string]struct{}, len(cl.Arcs))
	for _, a := range cl.Arcs {
		if a.ID == "" {
			return fmt.Errorf("resource: arc with empty id (%q)", a.Title)
		}
		if _, dup := cl.arcIDs[a.ID]; dup {
			return fmt.Errorf("resource: duplicate arc id %q", a.ID)
		}
		cl.arcIDs[a.ID] = struct{}{}
		for _, qid := range a.QuestIDs {
			if _, ok := cl.questIDs[qid]; !ok {
				return fmt.Errorf("resource: arc %q lists unknown quest %q", a.ID, qid)
			}
		}
	}
	for _, a := range cl.Arcs {
		for _, pre := range a.PrereqArcs {
			if _, ok := cl.arcIDs[pre]; !ok {
				return fmt.Errorf("resource: arc %q requires unknown arc %q", a.ID, pre)
			}
		}
	}

	for _, line := range cl.Storylines {
		if line.FactionID == "" {
			return fmt.Errorf("resource: storyline with empty faction id (%q)", line.Title)
		}
		for _, arcID := range line.ArcIDs {
			if _, ok := cl.arcIDs[arcID]; !ok {
				return fmt.Errorf("resource: storyline %q lists unknown arc %q", line.FactionID, arcID)
			}
		}
	}

	for cat, table := range cl.Events {
		for _, st := range table {
			if st.ID == "" {
				return fmt.Errorf("resource: %s subtype with empty id (%q)", cat, st.Title)
			}
			if len(st.Choices) == 0 {
				return fmt.Errorf("resource: event subtype %q has no choices", st.ID)
			}
			for _, ch := range st.Choices {
				if ch.ID == "" {
					return fmt.Errorf("resource: event subtype %q has a choice with empty id", st.ID)
				}
			}
		}
	}

	for _, c := range cl.Seasonal {
		if c.StartMonth < time.January || c.StartMonth > time.December ||
			c.EndMonth < time.January || c.EndMonth > time.December {
			return fmt.Errorf("resource: seasonal %q has month out of range", c.ID)
		}
		for _, qid := range c.QuestIDs {
			if _, ok := cl.questIDs[qid]; !ok {
				return fmt.Errorf("resource: seasonal %q lists unknown quest %q", c.ID, qid)
			}
		}
	}
	return nil
}

// EventCatalog builds the generator's catalog from the loaded tables.
func (cl *ContentLoader) EventCatalog() *event.Catalog {
	return event.NewCatalog(cl.Events)
}

// SeasonalSchedule builds the season schedule from the loaded bundles.
func (cl *ContentLoader) SeasonalSchedule() *season.Schedule {
	return season.NewSchedule(cl.Seasonal)
}

// QuestByID returns the loaded template for an id, or nil.
func (cl *ContentLoader) QuestByID(id string) *quest.Template {
	for _, t := range cl.Quests {
		if t.ID == id {
			return t
		}
	}
	return nil
}
