// Package pending keeps the short-lived correlation records that tie a
// requested dice roll back to the action that required it. Entries
// expire on their own; a player who never rolls simply leaves nothing
// behind.
package pending

import (
	"sync"
	"time"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/timer"
)

// DefaultTTL bounds how long a check waits for its roll.
const DefaultTTL = 300 * time.Second

// Check holds the parameters of an outstanding dice request, keyed by
// (session, actor display name).
type Check struct {
	SessionID      string `json:"session_id"`
	ActorName      string `json:"actor_name"`
	RollType       string `json:"roll_type"`
	AbilityOrSkill string `json:"ability_or_skill"`
	DC             int    `json:"dc"`
	Modifier       int    `json:"modifier"`
	Advantage      bool   `json:"advantage"`
	Disadvantage   bool   `json:"disadvantage"`
	OriginalAction string `json:"original_action"`
}

type key struct {
	sessionID string
	actor     string
}

type entry struct {
	check      Check
	generation int64
	expiresAt  time.Time
}

// Store is the expiring key/value map for pending checks. A Put
// unconditionally overwrites an earlier check for the same actor: the
// newest pending check always wins.
type Store struct {
	mutex      sync.Mutex
	entries    map[key]*entry
	timers     *timer.Manager
	generation int64
}

// NewStore creates a Store driven by the given timer manager.
func NewStore(timers *timer.Manager) *Store {
	return &Store{
		entries: make(map[key]*entry),
		timers:  timers,
	}
}

// Put stores a check, replacing any unresolved one for the same actor.
// The entry expires after ttl (DefaultTTL when ttl <= 0).
func (s *Store) Put(check Check, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := key{sessionID: check.SessionID, actor: check.ActorName}

	s.mutex.Lock()
	s.generation++
	generation := s.generation
	s.entries[k] = &entry{
		check:      check,
		generation: generation,
		expiresAt:  time.Now().Add(ttl),
	}
	s.mutex.Unlock()

	s.timers.After(ttl, func() {
		s.expire(k, generation)
	})
}

// Get returns the live check for (session, actor), if any.
func (s *Store) Get(sessionID, actor string) (Check, bool) {
	k := key{sessionID: sessionID, actor: actor}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[k]
	if !ok {
		return Check{}, false
	}
	// The timer fires on a coarse tick; treat an overdue entry as gone.
	if time.Now().After(e.expiresAt) {
		delete(s.entries, k)
		return Check{}, false
	}
	return e.check, true
}

// Clear removes the check for (session, actor). Clearing an absent key
// is a no-op.
func (s *Store) Clear(sessionID, actor string) {
	k := key{sessionID: sessionID, actor: actor}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, k)
}

// ClearSession drops every pending check for a session. Used when a
// session ends.
func (s *Store) ClearSession(sessionID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for k := range s.entries {
		if k.sessionID == sessionID {
			delete(s.entries, k)
		}
	}
}

// expire drops the entry only if it is still the generation the timer
// was armed for; a newer Put or a consume already superseded it.
func (s *Store) expire(k key, generation int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[k]
	if !ok || e.generation != generation {
		return
	}
	delete(s.entries, k)
	logger.Log.Debugf("Pending check expired for %s in session %s", k.actor, k.sessionID)
}

// Len reports how many checks are outstanding. Metrics only.
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}
