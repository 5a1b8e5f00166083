package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wfunc/rpgserver/character"
	"github.com/wfunc/rpgserver/logger"
)

const (
	defaultTimeout = 30 * time.Second
	maxPredict     = 1000
)

// OllamaClient talks to an Ollama-compatible chat endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func (c *OllamaClient) chat(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": temperature,
			"num_predict": maxPredict,
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return strings.TrimSpace(parsed.Message.Content), nil
}

// HealthCheck probes the service.
func (c *OllamaClient) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

const assessSystemPrompt = `You are an experienced Dungeon Master for a d20 tabletop game. ` +
	`You classify player actions strictly by the rules and answer only in JSON.`

const narrateSystemPrompt = `You are an experienced Dungeon Master. Narrate vividly and briefly, ` +
	`react to player actions logically, and end with the question "What do you do?". ` +
	`Never reveal numeric difficulty values in your narration.`

// assessmentWire matches the JSON the model is asked to produce.
type assessmentWire struct {
	RequiresCheck  bool            `json:"requires_check"`
	RollType       string          `json:"roll_type"`
	AbilityOrSkill string          `json:"ability_or_skill"`
	SuggestedDC    json.RawMessage `json:"suggested_dc"`
	Advantage      string          `json:"advantage_or_disadvantage"`
}

func (c *OllamaClient) AssessAction(ctx context.Context, action string, sheet *character.Sheet, scene string) (Assessment, error) {
	prompt := buildAssessPrompt(action, sheet, scene)

	response, err := c.chat(ctx, assessSystemPrompt, prompt, 0.2)
	if err != nil {
		return Assessment{}, err
	}

	assessment, err := parseAssessment(response)
	if err != nil {
		logger.Log.Warnf("Oracle assessment did not parse, treating as unavailable: %v", err)
		return Assessment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return assessment, nil
}

func buildAssessPrompt(action string, sheet *character.Sheet, scene string) string {
	var b strings.Builder
	b.WriteString("Decide whether this player action requires a dice check.\n\n")
	if sheet != nil {
		fmt.Fprintf(&b, "CHARACTER: %s, a level %d %s %s\n", sheet.Name, sheet.Level, sheet.Race, sheet.Class)
		fmt.Fprintf(&b, "ABILITIES: STR %d DEX %d CON %d INT %d WIS %d CHA %d\n",
			sheet.Abilities.Strength, sheet.Abilities.Dexterity, sheet.Abilities.Constitution,
			sheet.Abilities.Intelligence, sheet.Abilities.Wisdom, sheet.Abilities.Charisma)
		proficient := make([]string, 0, len(sheet.Skills))
		for skill, level := range sheet.Skills {
			if level != character.NotProficient {
				proficient = append(proficient, skill)
			}
		}
		if len(proficient) > 0 {
			fmt.Fprintf(&b, "PROFICIENT SKILLS: %s\n", strings.Join(proficient, ", "))
		}
	}
	fmt.Fprintf(&b, "SCENE: %s\n", scene)
	fmt.Fprintf(&b, "ACTION: %s\n\n", action)
	b.WriteString(`Answer with JSON only:
{
  "requires_check": true or false,
  "roll_type": "attack" or "skill_check" or "saving_throw" or "",
  "ability_or_skill": "skill or ability name, lowercase with underscores",
  "suggested_dc": 5 to 25,
  "advantage_or_disadvantage": "advantage" or "disadvantage" or "normal"
}
Simple actions (talking, walking) need no check. Risky or contested actions do.`)
	return b.String()
}

// parseAssessment extracts the JSON object from the model's reply. The
// model sometimes wraps it in prose, so take the outermost braces.
func parseAssessment(response string) (Assessment, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return Assessment{}, fmt.Errorf("no JSON object in oracle response")
	}

	var wire assessmentWire
	if err := json.Unmarshal([]byte(response[start:end+1]), &wire); err != nil {
		return Assessment{}, err
	}

	// The model returns suggested_dc as either a number or a string.
	dc := 15
	if len(wire.SuggestedDC) > 0 {
		raw := strings.Trim(string(wire.SuggestedDC), `"`)
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			dc = parsed
		}
	}

	return Assessment{
		RequiresCheck:  wire.RequiresCheck,
		RollType:       wire.RollType,
		AbilityOrSkill: strings.ToLower(strings.TrimSpace(wire.AbilityOrSkill)),
		SuggestedDC:    dc,
		Advantage:      wire.Advantage == "advantage",
		Disadvantage:   wire.Advantage == "disadvantage",
	}, nil
}

func (c *OllamaClient) Narrate(ctx context.Context, actorName, action string, sheet *character.Sheet, scene string) (string, error) {
	var b strings.Builder
	if sheet != nil {
		fmt.Fprintf(&b, "ACTIVE CHARACTER: %s, level %d %s %s, HP %d/%d, AC %d\n\n",
			sheet.Name, sheet.Level, sheet.Race, sheet.Class, sheet.CurrentHP, sheet.MaxHP, sheet.ArmorClass)
	}
	fmt.Fprintf(&b, "CURRENT SCENE: %s\n\n", scene)
	fmt.Fprintf(&b, "PLAYER ACTION: %s %s\n\n", actorName, action)
	b.WriteString("Describe the result of this action. Be brief but vivid. Do not offer a menu of options. End with \"What do you do?\"")

	response, err := c.chat(ctx, narrateSystemPrompt, b.String(), 0.7)
	if err != nil {
		return "", err
	}
	if response == "" {
		return "", fmt.Errorf("%w: empty narration", ErrUnavailable)
	}
	return response, nil
}

func (c *OllamaClient) NarrateOutcome(ctx context.Context, outcome CheckOutcome, sheet *character.Sheet, scene string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s attempted: %s\n\n", outcome.ActorName, outcome.Action)
	fmt.Fprintf(&b, "CHECK RESULT:\n- Skill: %s\n- Roll: [%d%+d = %d]\n- Outcome: %s\n\n",
		outcome.Skill, outcome.BaseRoll, outcome.Modifier, outcome.FinalTotal, outcome.Margin)
	fmt.Fprintf(&b, "SCENE: %s\n\n", scene)
	b.WriteString(`Narrate how the attempt plays out, honoring the dice:
- a critical success should be impressive
- a critical failure should be interesting, not just punishing
- even failures must move the story forward
Do not restate numbers or mention difficulty values. End with "What do you do?"`)

	response, err := c.chat(ctx, narrateSystemPrompt, b.String(), 0.8)
	if err != nil {
		return "", err
	}
	if response == "" {
		return "", fmt.Errorf("%w: empty narration", ErrUnavailable)
	}
	return response, nil
}
