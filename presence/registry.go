// Package presence tracks which users currently have live transport sessions
// and pushes messages to them.
package presence

import (
	"context"
	"sync"
	"time"

	"sharexp/monitoring"

	log "github.com/sirupsen/logrus"
)

// Message is the envelope pushed to live sessions.
type Message struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one live transport bound to a user. Send must respect ctx and
// report whether the message was accepted for delivery.
type Session interface {
	ID() string
	Send(ctx context.Context, msg Message) bool
}

type Stats struct {
	Sessions    int `json:"sessions"`
	OnlineUsers int `json:"onlineUsers"`
}

// Registry maps user channels to their sessions. It lives only in memory.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[string]Session
	owners   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]Session),
		owners:   make(map[string]string),
	}
}

func Channel(userID string) string {
	return "user_" + userID
}

// Join binds session to userID. Joining again is a no-op; a session joined
// to another user is moved.
func (r *Registry) Join(userID string, session Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := session.ID()
	if current, ok := r.owners[id]; ok {
		if current == userID {
			return
		}
		r.removeLocked(id, current)
	}
	sessions, ok := r.channels[userID]
	if !ok {
		sessions = make(map[string]Session)
		r.channels[userID] = sessions
	}
	sessions[id] = session
	r.owners[id] = userID
	r.updateGaugesLocked()

	log.WithFields(log.Fields{
		"user":     userID,
		"session":  id,
		"sessions": len(sessions),
	}).Debug("Session joined channel")
}

// Leave unbinds session from whatever user it belongs to. Repeated calls are
// harmless.
func (r *Registry) Leave(session Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := session.ID()
	userID, ok := r.owners[id]
	if !ok {
		return
	}
	r.removeLocked(id, userID)
	r.updateGaugesLocked()

	log.WithFields(log.Fields{
		"user":    userID,
		"session": id,
	}).Debug("Session left channel")
}

func (r *Registry) removeLocked(sessionID, userID string) {
	delete(r.owners, sessionID)
	if sessions, ok := r.channels[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.channels, userID)
		}
	}
}

func (r *Registry) updateGaugesLocked() {
	monitoring.PresenceSessions.Set(float64(len(r.owners)))
	monitoring.PresenceOnlineUsers.Set(float64(len(r.channels)))
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[userID]) > 0
}

func (r *Registry) Sessions(userID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.channels[userID]))
	for _, session := range r.channels[userID] {
		sessions = append(sessions, session)
	}
	return sessions
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Sessions: len(r.owners), OnlineUsers: len(r.channels)}
}

// Publish offers msg to every session of userID and reports whether at least
// one accepted it before ctx expired. Sessions are snapshotted first so a
// slow session never holds the registry lock.
func (r *Registry) Publish(ctx context.Context, userID string, msg Message) bool {
	sessions := r.Sessions(userID)
	if len(sessions) == 0 {
		return false
	}

	msg.Channel = Channel(userID)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	delivered := false
	for _, session := range sessions {
		if session.Send(ctx, msg) {
			delivered = true
		}
	}
	if !delivered {
		monitoring.LivePublishTimeouts.Inc()
		log.WithFields(log.Fields{
			"user":     userID,
			"sessions": len(sessions),
		}).Warn("No live session accepted the message")
	}
	return delivered
}
