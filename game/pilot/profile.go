package pilot

import (
	"encoding/json"

	"github.com/kyrelia/astraldrift/model"
	"gorm.io/datatypes"
)

// Profile is the live, in-memory state of one pilot: the values every
// requirement check reads and every reward grant writes. It is owned by the
// pilot's session, which serializes access; Profile itself holds no lock.
type Profile struct {
	PilotID    int64
	AccountID  int64
	Name       string
	level      int
	experience int64
	credits    int64
	skills     map[string]int
	reputation map[string]int
	location   string
	docked     bool

	expPerLevel int64
	onLevelUp   func(newLevel int)
}

// FromModel builds a Profile from a persisted pilot row.
func FromModel(m *model.Pilot, expPerLevel int64) *Profile {
	p := &Profile{
		PilotID:     m.ID,
		AccountID:   m.AccountID,
		Name:        m.Name,
		level:       m.Level,
		experience:  m.Experience,
		credits:     m.Credits,
		skills:      map[string]int{},
		reputation:  map[string]int{},
		location:    m.Location,
		docked:      m.Docked,
		expPerLevel: expPerLevel,
	}
	if p.level < 1 {
		p.level = 1
	}
	if p.expPerLevel <= 0 {
		p.expPerLevel = 1000
	}
	if len(m.Skills) > 0 {
		_ = json.Unmarshal(m.Skills, &p.skills)
	}
	if len(m.Reputation) > 0 {
		_ = json.Unmarshal(m.Reputation, &p.reputation)
	}
	return p
}

// ToModel writes the profile back onto a pilot row for persistence.
func (p *Profile) ToModel(m *model.Pilot) {
	m.Level = p.level
	m.Experience = p.experience
	m.Credits = p.credits
	m.Location = p.location
	m.Docked = p.docked
	skills, _ := json.Marshal(p.skills)
	rep, _ := json.Marshal(p.reputation)
	m.Skills = datatypes.JSON(skills)
	m.Reputation = datatypes.JSON(rep)
}

// OnLevelUp installs a callback fired after each level gained.
func (p *Profile) OnLevelUp(fn func(newLevel int)) { p.onLevelUp = fn }

// ---- read accessors (the engine's PlayerState view) ----

func (p *Profile) Level() int   { return p.level }
func (p *Profile) Credits() int64 { return p.credits }
func (p *Profile) Docked() bool { return p.docked }
func (p *Profile) Location() string { return p.location }

func (p *Profile) Skill(name string) int { return p.skills[name] }

func (p *Profile) Reputation(faction string) int { return p.reputation[faction] }

// Skills returns a copy of the skill map.
func (p *Profile) Skills() map[string]int {
	out := make(map[string]int, len(p.skills))
	for k, v := range p.skills {
		out[k] = v
	}
	return out
}

// Reputations returns a copy of the reputation map.
func (p *Profile) Reputations() map[string]int {
	out := make(map[string]int, len(p.reputation))
	for k, v := range p.reputation {
		out[k] = v
	}
	return out
}

func (p *Profile) Experience() int64 { return p.experience }

// ---- mutators (the engine's reward sink view) ----

// AddCredits applies a credit delta. Balance never goes below zero.
func (p *Profile) AddCredits(delta int64) {
	p.credits += delta
	if p.credits < 0 {
		p.credits = 0
	}
}

// AddExperience grants experience and applies level-ups on a flat
// expPerLevel curve.
func (p *Profile) AddExperience(points int) {
	if points <= 0 {
		return
	}
	p.experience += int64(points)
	for p.experience >= int64(p.level)*p.expPerLevel {
		p.level++
		if p.onLevelUp != nil {
			p.onLevelUp(p.level)
		}
	}
}

// AddReputation applies a per-faction reputation delta.
func (p *Profile) AddReputation(faction string, delta int) {
	if faction == "" {
		return
	}
	p.reputation[faction] += delta
}

// TrainSkill raises a skill level by the given amount.
func (p *Profile) TrainSkill(name string, levels int) {
	if name == "" || levels == 0 {
		return
	}
	p.skills[name] += levels
	if p.skills[name] < 0 {
		p.skills[name] = 0
	}
}

// SetDocked flips the travel context the event generator weighs categories by.
func (p *Profile) SetDocked(docked bool) { p.docked = docked }

// SetLocation updates the pilot's current location tag.
func (p *Profile) SetLocation(loc string) { p.location = loc }
