// Package oracle consumes the external narrative service: it decides
// whether an action needs a check and turns mechanical outcomes into
// narration. The service is best-effort; every caller must be prepared
// for ErrUnavailable and fall back locally.
package oracle

import (
	"context"
	"errors"

	"github.com/wfunc/rpgserver/character"
)

// ErrUnavailable indicates the narrative service failed or timed out.
// It never reaches a player; callers degrade to fallback text.
var ErrUnavailable = errors.New("oracle unavailable")

// Assessment is the oracle's verdict on a player action.
type Assessment struct {
	RequiresCheck  bool   `json:"requires_check"`
	RollType       string `json:"roll_type"`
	AbilityOrSkill string `json:"ability_or_skill"`
	SuggestedDC    int    `json:"suggested_dc"`
	Advantage      bool   `json:"advantage"`
	Disadvantage   bool   `json:"disadvantage"`
	Explanation    string `json:"explanation,omitempty"`
}

// CheckOutcome is a resolved dice check handed over for narration.
type CheckOutcome struct {
	ActorName  string
	Action     string
	Skill      string
	BaseRoll   int
	Modifier   int
	FinalTotal int
	DC         int
	Success    bool
	// Margin colors the narration: "critical success", "decisive
	// success", "success", "failure", "serious failure", "critical
	// failure".
	Margin string
}

// Oracle is the narrative collaborator interface.
type Oracle interface {
	// AssessAction classifies a free-text action.
	AssessAction(ctx context.Context, action string, sheet *character.Sheet, scene string) (Assessment, error)
	// Narrate describes an action that needed no check.
	Narrate(ctx context.Context, actorName, action string, sheet *character.Sheet, scene string) (string, error)
	// NarrateOutcome describes a resolved check.
	NarrateOutcome(ctx context.Context, outcome CheckOutcome, sheet *character.Sheet, scene string) (string, error)
}
