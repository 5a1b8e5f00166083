// Package registry tracks the live transport handle for every
// connected participant, per session. It owns connection liveness and
// nothing else: session data outlives any handle in here.
package registry

import (
	"sync"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/network"
)

// Registry maps (session id, participant id) to the participant's one
// live connection.
type Registry struct {
	mutex    sync.RWMutex
	sessions map[string]map[string]network.Connection
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]network.Connection),
	}
}

// Connect registers a handle. A participant holds at most one live
// connection per session; an earlier handle for the same key is closed
// and replaced.
func (r *Registry) Connect(sessionID, participantID string, conn network.Connection) {
	r.mutex.Lock()
	bucket, ok := r.sessions[sessionID]
	if !ok {
		bucket = make(map[string]network.Connection)
		r.sessions[sessionID] = bucket
	}
	old := bucket[participantID]
	bucket[participantID] = conn
	r.mutex.Unlock()

	if old != nil {
		logger.Log.Infof("Connection for %s in session %s superseded", participantID, sessionID)
		_ = old.Close()
	}
}

// Disconnect removes the mapping and closes the handle. Removing the
// last handle drops the session's bucket; the session itself is not
// touched.
func (r *Registry) Disconnect(sessionID, participantID string) {
	r.mutex.Lock()
	var conn network.Connection
	if bucket, ok := r.sessions[sessionID]; ok {
		conn = bucket[participantID]
		delete(bucket, participantID)
		if len(bucket) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	r.mutex.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// DisconnectIf removes the mapping only while it still points at the
// given handle. A reconnect that superseded the handle is left alone.
func (r *Registry) DisconnectIf(sessionID, participantID string, conn network.Connection) bool {
	r.mutex.Lock()
	bucket, ok := r.sessions[sessionID]
	if !ok || bucket[participantID] != conn {
		r.mutex.Unlock()
		return false
	}
	delete(bucket, participantID)
	if len(bucket) == 0 {
		delete(r.sessions, sessionID)
	}
	r.mutex.Unlock()

	_ = conn.Close()
	return true
}

type target struct {
	participantID string
	conn          network.Connection
}

// Broadcast fans an envelope out to every live handle in the session,
// optionally excluding one participant. A failed send marks that
// handle dead and disconnects it; the rest of the fan-out continues.
func (r *Registry) Broadcast(sessionID string, env *network.Envelope, excludeParticipant string) {
	r.mutex.RLock()
	bucket := r.sessions[sessionID]
	targets := make([]target, 0, len(bucket))
	for participantID, conn := range bucket {
		if excludeParticipant != "" && participantID == excludeParticipant {
			continue
		}
		targets = append(targets, target{participantID: participantID, conn: conn})
	}
	r.mutex.RUnlock()

	for _, t := range targets {
		if err := t.conn.Send(env); err != nil {
			logger.Log.Warnf("Broadcast to %s in session %s failed, dropping handle: %v", t.participantID, sessionID, err)
			r.DisconnectIf(sessionID, t.participantID, t.conn)
		}
	}
}

// Unicast sends to exactly one participant. An absent handle is a
// no-op, not an error.
func (r *Registry) Unicast(sessionID, participantID string, env *network.Envelope) {
	r.mutex.RLock()
	var conn network.Connection
	if bucket, ok := r.sessions[sessionID]; ok {
		conn = bucket[participantID]
	}
	r.mutex.RUnlock()

	if conn == nil {
		return
	}
	if err := conn.Send(env); err != nil {
		logger.Log.Warnf("Unicast to %s in session %s failed, dropping handle: %v", participantID, sessionID, err)
		r.DisconnectIf(sessionID, participantID, conn)
	}
}

// ListParticipants snapshots the currently connected participant ids.
func (r *Registry) ListParticipants(sessionID string) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	bucket := r.sessions[sessionID]
	ids := make([]string, 0, len(bucket))
	for participantID := range bucket {
		ids = append(ids, participantID)
	}
	return ids
}

// Count reports the total number of live connections.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	total := 0
	for _, bucket := range r.sessions {
		total += len(bucket)
	}
	return total
}
