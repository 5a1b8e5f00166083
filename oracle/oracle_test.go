package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/wfunc/rpgserver/character"
	"github.com/wfunc/rpgserver/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func TestParseAssessment(t *testing.T) {
	response := `Here is my analysis:
{
  "requires_check": true,
  "roll_type": "skill_check",
  "ability_or_skill": "Stealth",
  "suggested_dc": 15,
  "advantage_or_disadvantage": "normal"
}
Good luck!`

	got, err := parseAssessment(response)
	if err != nil {
		t.Fatalf("parseAssessment failed: %v", err)
	}
	if !got.RequiresCheck {
		t.Error("Expected requires_check true")
	}
	if got.AbilityOrSkill != "stealth" {
		t.Errorf("Expected normalized skill %q, got %q", "stealth", got.AbilityOrSkill)
	}
	if got.SuggestedDC != 15 {
		t.Errorf("Expected DC 15, got %d", got.SuggestedDC)
	}
	if got.Advantage || got.Disadvantage {
		t.Error("Normal roll must set neither flag")
	}
}

func TestParseAssessment_StringDC(t *testing.T) {
	response := `{"requires_check": true, "ability_or_skill": "persuasion", "suggested_dc": "12", "advantage_or_disadvantage": "advantage"}`

	got, err := parseAssessment(response)
	if err != nil {
		t.Fatalf("parseAssessment failed: %v", err)
	}
	if got.SuggestedDC != 12 {
		t.Errorf("Expected DC 12 from string, got %d", got.SuggestedDC)
	}
	if !got.Advantage {
		t.Error("Expected advantage flag")
	}
}

func TestParseAssessment_NoJSON(t *testing.T) {
	if _, err := parseAssessment("I cannot answer that."); err == nil {
		t.Error("Expected error for a reply without JSON")
	}
}

func TestOllamaClient_AssessAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"{\"requires_check\":true,\"roll_type\":\"skill_check\",\"ability_or_skill\":\"stealth\",\"suggested_dc\":15,\"advantage_or_disadvantage\":\"normal\"}"}}`))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", time.Second)
	got, err := client.AssessAction(context.Background(), "sneak past the guard", nil, "a torchlit corridor")
	if err != nil {
		t.Fatalf("AssessAction failed: %v", err)
	}
	if !got.RequiresCheck || got.AbilityOrSkill != "stealth" || got.SuggestedDC != 15 {
		t.Errorf("Unexpected assessment: %+v", got)
	}
}

func TestOllamaClient_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", time.Second)
	_, err := client.AssessAction(context.Background(), "sneak", nil, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}

	sheet := &character.Sheet{Name: "Lyra"}
	if _, err := client.Narrate(context.Background(), "Lyra", "wave", sheet, ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable from Narrate, got %v", err)
	}
}

func TestOllamaClient_Narrate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"The guard yawns. What do you do?"}}`))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", time.Second)
	text, err := client.Narrate(context.Background(), "Lyra", "waves at the guard", nil, "the gate")
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if text != "The guard yawns. What do you do?" {
		t.Errorf("Unexpected narration: %q", text)
	}
}

func TestFallbackAssess(t *testing.T) {
	cases := []struct {
		action string
		check  bool
		skill  string
	}{
		{"I sneak past the guard", true, "stealth"},
		{"attack the goblin with my sword", true, "athletics"},
		{"try to persuade the merchant", true, "persuasion"},
		{"search the bookshelf", true, "perception"},
		{"I walk down the road", false, ""},
		{"say hello to the innkeeper", false, ""},
	}

	for _, tc := range cases {
		got := FallbackAssess(tc.action)
		if got.RequiresCheck != tc.check {
			t.Errorf("FallbackAssess(%q).RequiresCheck = %v, want %v", tc.action, got.RequiresCheck, tc.check)
			continue
		}
		if tc.check && got.AbilityOrSkill != tc.skill {
			t.Errorf("FallbackAssess(%q) skill = %q, want %q", tc.action, got.AbilityOrSkill, tc.skill)
		}
		if tc.check && got.SuggestedDC != 15 {
			t.Errorf("FallbackAssess(%q) DC = %d, want 15", tc.action, got.SuggestedDC)
		}
	}
}

func TestGradeMargin(t *testing.T) {
	cases := []struct {
		baseRoll, total, dc int
		success             bool
		margin              string
	}{
		{20, 25, 15, true, "critical success"},
		{1, 6, 15, false, "critical failure"},
		{12, 26, 15, true, "decisive success"},
		{12, 21, 15, true, "strong success"},
		{12, 17, 15, true, "success"},
		{12, 15, 15, true, "success"},
		{12, 14, 15, false, "failure"},
		{12, 10, 15, false, "serious failure"},
		{2, 5, 15, false, "disastrous failure"},
	}

	for _, tc := range cases {
		success, margin := GradeMargin(tc.baseRoll, tc.total, tc.dc)
		if success != tc.success || margin != tc.margin {
			t.Errorf("GradeMargin(%d,%d,%d) = (%v,%q), want (%v,%q)",
				tc.baseRoll, tc.total, tc.dc, success, margin, tc.success, tc.margin)
		}
	}
}
