package oracle

import (
	"fmt"
	"strings"
)

// keywordSkills maps action keywords to the skill a check would use.
// Order matters: the first group that matches wins.
var keywordSkills = []struct {
	skill    string
	rollType string
	keywords []string
}{
	{"athletics", "attack", []string{"attack", "strike", "hit", "swing", "stab", "shoot", "slash"}},
	{"stealth", "skill_check", []string{"sneak", "hide", "creep", "slip past", "quietly"}},
	{"persuasion", "skill_check", []string{"persuade", "convince", "negotiate", "plead"}},
	{"deception", "skill_check", []string{"lie", "deceive", "bluff", "trick"}},
	{"intimidation", "skill_check", []string{"intimidate", "threaten", "menace"}},
	{"athletics", "skill_check", []string{"climb", "jump", "swim", "grapple", "force open", "break down"}},
	{"perception", "skill_check", []string{"search", "look for", "listen", "spot", "examine"}},
	{"sleight_of_hand", "skill_check", []string{"pickpocket", "steal", "palm", "lockpick", "pick the lock"}},
	{"arcana", "skill_check", []string{"cast", "spell", "ritual", "enchant"}},
}

// FallbackAssess is the deterministic keyword heuristic used when the
// oracle is unreachable, so the pipeline never stalls.
func FallbackAssess(action string) Assessment {
	lowered := strings.ToLower(action)

	for _, group := range keywordSkills {
		for _, keyword := range group.keywords {
			if strings.Contains(lowered, keyword) {
				return Assessment{
					RequiresCheck:  true,
					RollType:       group.rollType,
					AbilityOrSkill: group.skill,
					SuggestedDC:    15,
				}
			}
		}
	}
	return Assessment{RequiresCheck: false}
}

// FallbackNarration is the minimal deterministic message for an action
// when no narration could be produced.
func FallbackNarration(actorName, action string) string {
	return fmt.Sprintf("The narrator is momentarily lost for words, but the game goes on.\n\n*%s attempts: %s*\n\nWhat do you do?", actorName, action)
}

// FallbackOutcomeNarration is the minimal deterministic message for a
// resolved check.
func FallbackOutcomeNarration(outcome CheckOutcome) string {
	roll := fmt.Sprintf("[%d%+d = %d]", outcome.BaseRoll, outcome.Modifier, outcome.FinalTotal)
	if outcome.Success {
		return fmt.Sprintf("%s **%s** succeeds at: %s.\n\nWhat do you do?", roll, outcome.ActorName, outcome.Action)
	}
	return fmt.Sprintf("%s **%s** fails at: %s.\n\nWhat do you do?", roll, outcome.ActorName, outcome.Action)
}

// GradeMargin classifies a resolved check for narration color. Natural
// 20s and 1s override the numeric margin.
func GradeMargin(baseRoll, finalTotal, dc int) (success bool, margin string) {
	switch baseRoll {
	case 20:
		return true, "critical success"
	case 1:
		return false, "critical failure"
	}

	success = finalTotal >= dc
	switch {
	case finalTotal >= dc+10:
		margin = "decisive success"
	case finalTotal >= dc+5:
		margin = "strong success"
	case success:
		margin = "success"
	case finalTotal <= dc-10:
		margin = "disastrous failure"
	case finalTotal <= dc-5:
		margin = "serious failure"
	default:
		margin = "failure"
	}
	return success, margin
}
