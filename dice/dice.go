// Package dice implements dice-notation rolls for the d20 rules the
// session engine runs on.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidNotation indicates a roll request that does not match the
// `[count]d<sides>[+|-modifier]` grammar or exceeds the safety limits.
var ErrInvalidNotation = errors.New("invalid dice notation")

// MaxDiceCount caps how many dice a single notation may roll.
const MaxDiceCount = 100

var notationPattern = regexp.MustCompile(`^(\d+)?d(\d+)([+-]\d+)?$`)

// Result captures a single resolved roll. It is immutable once built.
type Result struct {
	Notation        string         `json:"notation"`
	IndividualRolls []int          `json:"individual_rolls"`
	Modifiers       map[string]int `json:"modifiers"`
	Total           int            `json:"total"`
	IsCritical      bool           `json:"is_critical"`
	IsFumble        bool           `json:"is_fumble"`
	IsAdvantage     bool           `json:"is_advantage"`
	IsDisadvantage  bool           `json:"is_disadvantage"`
}

func (r Result) String() string {
	parts := make([]string, len(r.IndividualRolls))
	for i, roll := range r.IndividualRolls {
		parts[i] = strconv.Itoa(roll)
	}
	s := fmt.Sprintf("%s: [%s]", r.Notation, strings.Join(parts, " + "))
	for name, value := range r.Modifiers {
		if value >= 0 {
			s += fmt.Sprintf(" + %d (%s)", value, name)
		} else {
			s += fmt.Sprintf(" - %d (%s)", -value, name)
		}
	}
	return fmt.Sprintf("%s = %d", s, r.Total)
}

// Options tune a single roll. Advantage and disadvantage only apply to
// a single d20; setting both cancels out.
type Options struct {
	Advantage      bool
	Disadvantage   bool
	ExtraModifiers map[string]int
}

// Roller produces rolls from a private random source. It owns no
// shared state beyond the source, so one Roller per goroutine (or a
// fresh one per call site) needs no locking.
type Roller struct {
	randInt func(n int) int
}

// NewRoller returns a Roller backed by a time-seeded source.
func NewRoller() *Roller {
	return NewSeededRoller(time.Now().UnixNano())
}

// NewSeededRoller returns a deterministic Roller. Same seed, same
// notation, same results.
func NewSeededRoller(seed int64) *Roller {
	rng := rand.New(rand.NewSource(seed))
	return &Roller{randInt: rng.Intn}
}

// NewRollerWithRand returns a Roller drawing from randInt, which must
// return a uniform value in [0, n). Lets tests script exact dice.
func NewRollerWithRand(randInt func(n int) int) *Roller {
	return &Roller{randInt: randInt}
}

type notation struct {
	count    int
	sides    int
	modifier int
	original string
}

func parseNotation(raw string) (notation, error) {
	cleaned := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))

	m := notationPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return notation{}, fmt.Errorf("%w: %q", ErrInvalidNotation, raw)
	}

	count := 1
	if m[1] != "" {
		var err error
		count, err = strconv.Atoi(m[1])
		if err != nil {
			return notation{}, fmt.Errorf("%w: %q", ErrInvalidNotation, raw)
		}
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return notation{}, fmt.Errorf("%w: %q", ErrInvalidNotation, raw)
	}
	modifier := 0
	if m[3] != "" {
		modifier, err = strconv.Atoi(m[3])
		if err != nil {
			return notation{}, fmt.Errorf("%w: %q", ErrInvalidNotation, raw)
		}
	}

	if count <= 0 || sides <= 0 {
		return notation{}, fmt.Errorf("%w: count and sides must be positive", ErrInvalidNotation)
	}
	if count > MaxDiceCount {
		return notation{}, fmt.Errorf("%w: at most %d dice per roll", ErrInvalidNotation, MaxDiceCount)
	}

	return notation{count: count, sides: sides, modifier: modifier, original: cleaned}, nil
}

func (r *Roller) die(sides int) int {
	return r.randInt(sides) + 1
}

// Roll resolves a notation like "2d6+3" or "d20".
func (r *Roller) Roll(raw string, opts Options) (Result, error) {
	parsed, err := parseNotation(raw)
	if err != nil {
		return Result{}, err
	}

	advantage := opts.Advantage
	disadvantage := opts.Disadvantage
	if advantage && disadvantage {
		advantage, disadvantage = false, false
	}
	// Advantage mechanics exist for single d20 rolls only.
	if parsed.sides != 20 || parsed.count != 1 {
		advantage, disadvantage = false, false
	}

	rolls := make([]int, 0, parsed.count)
	for i := 0; i < parsed.count; i++ {
		switch {
		case advantage:
			a, b := r.die(parsed.sides), r.die(parsed.sides)
			rolls = append(rolls, max(a, b))
		case disadvantage:
			a, b := r.die(parsed.sides), r.die(parsed.sides)
			rolls = append(rolls, min(a, b))
		default:
			rolls = append(rolls, r.die(parsed.sides))
		}
	}

	modifiers := make(map[string]int)
	totalModifier := parsed.modifier
	if parsed.modifier != 0 {
		modifiers["base"] = parsed.modifier
	}
	for name, value := range opts.ExtraModifiers {
		modifiers[name] = value
		totalModifier += value
	}

	sum := 0
	for _, roll := range rolls {
		sum += roll
	}

	result := Result{
		Notation:        parsed.original,
		IndividualRolls: rolls,
		Modifiers:       modifiers,
		Total:           sum + totalModifier,
		IsAdvantage:     advantage,
		IsDisadvantage:  disadvantage,
	}
	if parsed.sides == 20 && parsed.count == 1 {
		result.IsCritical = rolls[0] == 20 || rolls[0] == 1
		result.IsFumble = rolls[0] == 1
	}
	return result, nil
}

// AbilityCheck rolls 1d20 with the usual check modifiers broken out by
// name so the client can display them.
func (r *Roller) AbilityCheck(abilityModifier, proficiencyBonus int, proficient, expert bool, opts Options) (Result, error) {
	modifiers := make(map[string]int)
	for name, value := range opts.ExtraModifiers {
		modifiers[name] = value
	}
	if abilityModifier != 0 {
		modifiers["ability"] = abilityModifier
	}
	if proficient || expert {
		bonus := proficiencyBonus
		if expert {
			bonus *= 2
		}
		modifiers["proficiency"] = bonus
	}
	opts.ExtraModifiers = modifiers
	return r.Roll("1d20", opts)
}

// Validate reports whether a notation parses.
func Validate(raw string) bool {
	_, err := parseNotation(raw)
	return err == nil
}
