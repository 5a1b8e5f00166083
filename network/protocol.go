package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound message types consumed by the coordinator.
const (
	TypeChatMessage  = "chat_message"
	TypePlayerAction = "player_action"
	TypeDiceRoll     = "dice_roll"
	TypePing         = "ping"
)

// Outbound message types.
const (
	TypeConnected       = "connected"
	TypePlayerJoined    = "player_joined"
	TypePlayerLeft      = "player_left"
	TypeRollRequest     = "roll_request"
	TypeDiceCheckResult = "dice_check_result"
	TypeAIResponse      = "ai_response"
	TypeSystem          = "system"
	TypeError           = "error"
	TypePong            = "pong"
)

// ErrUnknownMessageType indicates an envelope whose type is not part of
// the protocol.
var ErrUnknownMessageType = errors.New("unknown message type")

// Envelope is the wire frame every message travels in.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// NewEnvelope wraps a payload and stamps it.
func NewEnvelope(msgType string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Inbound is the closed set of messages a client may send. Adding a
// message kind means adding a case here and in DecodeInbound, so the
// coordinator's type switch stays exhaustive.
type Inbound interface {
	inbound()
}

// ChatMessage is table talk, in or out of character.
type ChatMessage struct {
	Content string `json:"content"`
	IsOOC   bool   `json:"is_ooc"`
}

// PlayerAction is a free-text action to resolve.
type PlayerAction struct {
	Action string `json:"action"`
}

// DiceRoll is a physical roll, prompted or not.
type DiceRoll struct {
	Notation string `json:"notation"`
	Purpose  string `json:"purpose"`
}

// Ping is a keepalive.
type Ping struct{}

func (ChatMessage) inbound()  {}
func (PlayerAction) inbound() {}
func (DiceRoll) inbound()     {}
func (Ping) inbound()         {}

// DecodeInbound turns an envelope into its typed message.
func DecodeInbound(env *Envelope) (Inbound, error) {
	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode chat_message: %w", err)
		}
		return msg, nil
	case TypePlayerAction:
		var msg PlayerAction
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode player_action: %w", err)
		}
		return msg, nil
	case TypeDiceRoll:
		var msg DiceRoll
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode dice_roll: %w", err)
		}
		return msg, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// Outbound payloads. These are plain structs so every message kind has
// exactly one shape.

type ConnectedPayload struct {
	SessionID   string      `json:"session_id"`
	SessionName string      `json:"session_name"`
	Status      string      `json:"status"`
	Scene       string      `json:"current_scene"`
	Players     interface{} `json:"players"`
	Character   interface{} `json:"your_character,omitempty"`
	TurnInfo    interface{} `json:"turn_info"`
}

type PlayerJoinedPayload struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Message    string `json:"message"`
}

type PlayerLeftPayload struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Message    string `json:"message"`
}

type ChatMessagePayload struct {
	Content    string `json:"content"`
	IsOOC      bool   `json:"is_ooc"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
}

type PlayerActionPayload struct {
	Action     string `json:"action"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

type DiceRollPayload struct {
	Notation        string         `json:"notation"`
	Purpose         string         `json:"purpose,omitempty"`
	IndividualRolls []int          `json:"individual_rolls"`
	Modifiers       map[string]int `json:"modifiers"`
	Total           int            `json:"total"`
	IsCritical      bool           `json:"is_critical"`
	IsFumble        bool           `json:"is_fumble"`
	PlayerName      string         `json:"player_name"`
}

type RollRequestPayload struct {
	PlayerName      string `json:"player_name"`
	RollType        string `json:"roll_type"`
	Skill           string `json:"skill"`
	SuggestedDC     int    `json:"suggested_dc"`
	Modifier        int    `json:"modifier"`
	Advantage       bool   `json:"advantage"`
	Disadvantage    bool   `json:"disadvantage"`
	DiceInstruction string `json:"dice_instruction"`
	Message         string `json:"message"`
}

type DiceCheckResultPayload struct {
	PlayerName string `json:"player_name"`
	Skill      string `json:"skill"`
	BaseRoll   int    `json:"base_roll"`
	Modifier   int    `json:"modifier"`
	FinalTotal int    `json:"final_total"`
	DC         int    `json:"dc"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

type AIResponsePayload struct {
	Message      string `json:"message"`
	InResponseTo string `json:"in_response_to,omitempty"`
	PlayerName   string `json:"responding_to_player,omitempty"`
	IsFallback   bool   `json:"is_fallback,omitempty"`
}

type SystemPayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PongPayload struct{}
