// Package character holds the in-memory character sheet snapshot used
// by the action-resolution pipeline. The persistence layer owns the
// durable record; this is the view the coordinator reasons about.
package character

import (
	"strings"
)

// Sheet is a character snapshot loaded once per connection.
type Sheet struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Race       string                 `json:"race"`
	Class      string                 `json:"character_class"`
	Level      int                    `json:"level"`
	CurrentHP  int                    `json:"current_hit_points"`
	MaxHP      int                    `json:"max_hit_points"`
	ArmorClass int                    `json:"armor_class"`
	Abilities  Abilities              `json:"abilities"`
	Skills     map[string]Proficiency `json:"skills"`
	Background string                 `json:"background"`
}

// Abilities are the six ability scores.
type Abilities struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// Proficiency marks how a skill is trained.
type Proficiency int

const (
	NotProficient Proficiency = iota
	Proficient
	Expert
)

// skillAbility maps each skill to its governing ability.
var skillAbility = map[string]string{
	"acrobatics":      "dexterity",
	"animal_handling": "wisdom",
	"arcana":          "intelligence",
	"athletics":       "strength",
	"deception":       "charisma",
	"history":         "intelligence",
	"insight":         "wisdom",
	"intimidation":    "charisma",
	"investigation":   "intelligence",
	"medicine":        "wisdom",
	"nature":          "intelligence",
	"perception":      "wisdom",
	"performance":     "charisma",
	"persuasion":      "charisma",
	"religion":        "intelligence",
	"sleight_of_hand": "dexterity",
	"stealth":         "dexterity",
	"survival":        "wisdom",
}

// AbilityModifier converts an ability score to its modifier.
func AbilityModifier(score int) int {
	// The rules floor the division; Go truncates toward zero, so shift
	// the numerator positive before dividing.
	return (score+30)/2 - 20
}

// ProficiencyBonus derives the bonus from character level.
func ProficiencyBonus(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}

func (a Abilities) score(name string) (int, bool) {
	switch name {
	case "strength":
		return a.Strength, true
	case "dexterity":
		return a.Dexterity, true
	case "constitution":
		return a.Constitution, true
	case "intelligence":
		return a.Intelligence, true
	case "wisdom":
		return a.Wisdom, true
	case "charisma":
		return a.Charisma, true
	}
	return 0, false
}

// ModifierFor computes the total check modifier for an ability or
// skill name. Unknown names resolve to 0 so an odd oracle answer never
// breaks the pipeline.
func (s *Sheet) ModifierFor(abilityOrSkill string) int {
	if s == nil {
		return 0
	}
	name := strings.ToLower(strings.TrimSpace(abilityOrSkill))
	name = strings.ReplaceAll(name, " ", "_")

	if score, ok := s.Abilities.score(name); ok {
		return AbilityModifier(score)
	}

	ability, ok := skillAbility[name]
	if !ok {
		return 0
	}
	score, _ := s.Abilities.score(ability)
	modifier := AbilityModifier(score)

	switch s.Skills[name] {
	case Proficient:
		modifier += ProficiencyBonus(s.Level)
	case Expert:
		modifier += 2 * ProficiencyBonus(s.Level)
	}
	return modifier
}

// DisplayName is what other players see; falls back to empty for the
// caller to substitute the account name.
func (s *Sheet) DisplayName() string {
	if s == nil {
		return ""
	}
	return s.Name
}

// IsSkill reports whether the name is a known skill (as opposed to a
// bare ability).
func IsSkill(name string) bool {
	_, ok := skillAbility[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
