// Package models holds the records the persistence layer stores. Live
// session state never lives here; these are write-behind copies for
// history and recovery.
package models

import (
	"time"
)

// SessionRecord is a stored session snapshot.
type SessionRecord struct {
	SessionID      string            `json:"session_id"`
	Name           string            `json:"name"`
	Status         string            `json:"status"`
	Scene          string            `json:"current_scene"`
	Players        []string          `json:"players"`
	Characters     map[string]string `json:"player_characters"`
	MaxPlayers     int               `json:"max_players"`
	CurrentTurn    int               `json:"current_turn"`
	RoundNumber    int               `json:"round_number"`
	TotalMessages  int               `json:"total_messages"`
	TotalDiceRolls int               `json:"total_dice_rolls"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// MessageRecord is one stored transcript entry: chat, action or
// narration.
type MessageRecord struct {
	SessionID  string    `json:"session_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Kind       string    `json:"kind"` // chat/action/narration/system
	Content    string    `json:"content"`
	IsOOC      bool      `json:"is_ooc"`
	CreatedAt  time.Time `json:"created_at"`
}

// DiceRollRecord is one stored roll, with the check context when the
// roll resolved one.
type DiceRollRecord struct {
	SessionID  string    `json:"session_id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Notation   string    `json:"notation"`
	Rolls      []int     `json:"rolls"`
	Total      int       `json:"total"`
	Purpose    string    `json:"purpose,omitempty"`
	Skill      string    `json:"skill,omitempty"`
	DC         int       `json:"dc,omitempty"`
	Success    *bool     `json:"success,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CharacterRecord is a stored character sheet, serialized whole.
type CharacterRecord struct {
	CharacterID string    `json:"character_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Sheet       []byte    `json:"sheet"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
