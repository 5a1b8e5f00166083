// Package game owns the authoritative in-memory state of a running
// session: lifecycle, roster, turn order and scene. All mutation goes
// through Session methods under the session's own lock; live state
// never round-trips through the persistence layer.
package game

import (
	"errors"
	"sync"
	"time"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

var (
	ErrFull              = errors.New("session is full")
	ErrAlreadyJoined     = errors.New("participant already in session")
	ErrNotInSession      = errors.New("participant not in session")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// TurnInfo is the turn cursor. It only moves through AdvanceTurn.
type TurnInfo struct {
	CurrentTurn        int      `json:"current_turn"`
	RoundNumber        int      `json:"round_number"`
	InitiativeOrder    []string `json:"initiative_order"`
	CurrentPlayerIndex int      `json:"current_player_index"`
	CurrentPlayerID    string   `json:"current_player_id"`
}

// Session is one running game.
type Session struct {
	ID         string
	Name       string
	MaxPlayers int
	CreatedAt  time.Time

	mutex          sync.RWMutex
	status         Status
	players        []string
	characters     map[string]string
	scene          string
	turn           TurnInfo
	totalMessages  int
	totalDiceRolls int
}

// Snapshot is an immutable copy of session state, safe to hand to
// goroutines that outlive the lock.
type Snapshot struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Status         Status            `json:"status"`
	Scene          string            `json:"current_scene"`
	Players        []string          `json:"players"`
	Characters     map[string]string `json:"player_characters"`
	CurrentPlayers int               `json:"current_players"`
	MaxPlayers     int               `json:"max_players"`
	Turn           TurnInfo          `json:"turn_info"`
	TotalMessages  int               `json:"total_messages"`
	TotalDiceRolls int               `json:"total_dice_rolls"`
}

// NewSession creates a session in the waiting state.
func NewSession(id, name string, maxPlayers int) *Session {
	if maxPlayers <= 0 {
		maxPlayers = 6
	}
	return &Session{
		ID:         id,
		Name:       name,
		MaxPlayers: maxPlayers,
		CreatedAt:  time.Now(),
		status:     StatusWaiting,
		characters: make(map[string]string),
		turn:       TurnInfo{RoundNumber: 1},
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.status
}

// Start moves waiting -> active. Requires a non-empty roster.
func (s *Session) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusWaiting || len(s.players) == 0 {
		return ErrInvalidTransition
	}
	s.status = StatusActive
	return nil
}

// Pause moves active -> paused.
func (s *Session) Pause() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusActive {
		return ErrInvalidTransition
	}
	s.status = StatusPaused
	return nil
}

// Resume moves paused -> active.
func (s *Session) Resume() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusPaused {
		return ErrInvalidTransition
	}
	s.status = StatusActive
	return nil
}

// End moves any non-terminal state to ended. Ended is terminal.
func (s *Session) End() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch s.status {
	case StatusWaiting, StatusActive, StatusPaused:
		s.status = StatusEnded
		return nil
	default:
		return ErrInvalidTransition
	}
}

// AddParticipant appends a participant to the roster, optionally with
// a character assignment. AlreadyJoined is reported before Full so a
// rejoin attempt at capacity gets the accurate error.
func (s *Session) AddParticipant(participantID, characterID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, id := range s.players {
		if id == participantID {
			return ErrAlreadyJoined
		}
	}
	if len(s.players) >= s.MaxPlayers {
		return ErrFull
	}

	s.players = append(s.players, participantID)
	if characterID != "" {
		s.characters[participantID] = characterID
	}
	return nil
}

// RemoveParticipant drops a participant, their character assignment
// and their initiative slot.
func (s *Session) RemoveParticipant(participantID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	idx := -1
	for i, id := range s.players {
		if id == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotInSession
	}

	s.players = append(s.players[:idx], s.players[idx+1:]...)
	delete(s.characters, participantID)
	s.removeFromInitiative(participantID)
	return nil
}

func (s *Session) removeFromInitiative(participantID string) {
	order := s.turn.InitiativeOrder
	for i, id := range order {
		if id != participantID {
			continue
		}
		s.turn.InitiativeOrder = append(order[:i], order[i+1:]...)
		if len(s.turn.InitiativeOrder) == 0 {
			s.turn.CurrentPlayerIndex = 0
			s.turn.CurrentPlayerID = ""
			return
		}
		if s.turn.CurrentPlayerIndex >= len(s.turn.InitiativeOrder) {
			s.turn.CurrentPlayerIndex = 0
		}
		s.turn.CurrentPlayerID = s.turn.InitiativeOrder[s.turn.CurrentPlayerIndex]
		return
	}
}

// SetInitiativeOrder replaces the initiative order and points the
// cursor at its first entry. Ids not on the roster are dropped.
func (s *Session) SetInitiativeOrder(order []string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	onRoster := make(map[string]bool, len(s.players))
	for _, id := range s.players {
		onRoster[id] = true
	}

	filtered := make([]string, 0, len(order))
	for _, id := range order {
		if onRoster[id] {
			filtered = append(filtered, id)
		}
	}

	s.turn.InitiativeOrder = filtered
	s.turn.CurrentPlayerIndex = 0
	if len(filtered) > 0 {
		s.turn.CurrentPlayerID = filtered[0]
	} else {
		s.turn.CurrentPlayerID = ""
	}
}

// AdvanceTurn moves the cursor to the next actor in initiative order,
// incrementing the round number on wrap. Without an initiative order
// only the raw turn counter moves.
func (s *Session) AdvanceTurn() TurnInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.turn.CurrentTurn++

	if len(s.turn.InitiativeOrder) > 0 {
		next := (s.turn.CurrentPlayerIndex + 1) % len(s.turn.InitiativeOrder)
		if next == 0 {
			s.turn.RoundNumber++
		}
		s.turn.CurrentPlayerIndex = next
		s.turn.CurrentPlayerID = s.turn.InitiativeOrder[next]
	}

	return s.cloneTurn()
}

func (s *Session) cloneTurn() TurnInfo {
	turn := s.turn
	turn.InitiativeOrder = append([]string(nil), s.turn.InitiativeOrder...)
	return turn
}

// SetScene updates the scene description.
func (s *Session) SetScene(scene string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.scene = scene
}

// CountMessage bumps the message counter.
func (s *Session) CountMessage() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.totalMessages++
}

// CountDiceRoll bumps the roll counter.
func (s *Session) CountDiceRoll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.totalDiceRolls++
}

// CharacterID returns the character assigned to a participant, if any.
func (s *Session) CharacterID(participantID string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	id, ok := s.characters[participantID]
	return id, ok
}

// HasParticipant reports roster membership.
func (s *Session) HasParticipant(participantID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, id := range s.players {
		if id == participantID {
			return true
		}
	}
	return false
}

// CurrentPlayers is always derived from the roster, never counted
// separately.
func (s *Session) CurrentPlayers() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.players)
}

// Snapshot copies the full session state.
func (s *Session) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	characters := make(map[string]string, len(s.characters))
	for k, v := range s.characters {
		characters[k] = v
	}

	return Snapshot{
		ID:             s.ID,
		Name:           s.Name,
		Status:         s.status,
		Scene:          s.scene,
		Players:        append([]string(nil), s.players...),
		Characters:     characters,
		CurrentPlayers: len(s.players),
		MaxPlayers:     s.MaxPlayers,
		Turn:           s.cloneTurn(),
		TotalMessages:  s.totalMessages,
		TotalDiceRolls: s.totalDiceRolls,
	}
}
