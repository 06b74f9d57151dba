package liveness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"email-tracker/internal/logging"
	"email-tracker/internal/metrics"
	"email-tracker/internal/models"
)

// sendQueueSize is the number of events a session may have waiting before it is dropped
const sendQueueSize = 16

// ErrQueueFull reports a session that stopped draining its events
var ErrQueueFull = errors.New("outbound queue full")

// Conn is the live channel of a session
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is a registered client connection
type Session struct {
	ID               string
	LastHeartbeatAck time.Time
	conn             Conn
	queue            chan models.Event
}

// Tracker keeps the registry of connected sessions, sends them heartbeats and events,
// and evicts the ones that stop acknowledging heartbeats.
type Tracker struct {
	cfg models.LivenessConfig
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	upgrader websocket.Upgrader
}

// NewTracker creates a Tracker. allowedOrigins restricts websocket upgrades, none allows every origin.
func NewTracker(cfg models.LivenessConfig, allowedOrigins ...string) *Tracker {
	t := &Tracker{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	t.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return t
}

// Register adds a session for conn, starts its writer and returns a snapshot of it
func (t *Tracker) Register(conn Conn) *Session {
	s := &Session{
		ID:               uuid.NewString(),
		LastHeartbeatAck: t.now(),
		conn:             conn,
		queue:            make(chan models.Event, sendQueueSize),
	}

	t.mu.Lock()
	t.sessions[s.ID] = s
	metrics.ActiveSessions.Set(float64(len(t.sessions)))
	snapshot := *s
	t.mu.Unlock()

	go t.writePump(s)
	return &snapshot
}

// writePump delivers the queued events of s in order. A failed write drops the session.
func (t *Tracker) writePump(s *Session) {
	for msg := range s.queue {
		err := s.conn.WriteJSON(msg)
		metrics.RecordBroadcast(msg.Name, err)
		if err != nil {
			logging.Log.WithField("session_id", s.ID).Warnf("Error writing %s event, dropping session: %v", msg.Name, err)
			t.Remove(s.ID)
			return
		}
	}
}

// detach unregisters s and stops its writer. Callers hold t.mu.
func (t *Tracker) detach(s *Session) {
	delete(t.sessions, s.ID)
	close(s.queue)
	metrics.ActiveSessions.Set(float64(len(t.sessions)))
}

// Ack records a heartbeat acknowledgement. Unknown ids are ignored.
func (t *Tracker) Ack(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[id]; ok {
		s.LastHeartbeatAck = t.now()
	}
}

// Remove drops a session and closes its channel. It reports whether the session was registered.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if ok {
		t.detach(s)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.conn.Close(); err != nil {
		logging.Log.WithField("session_id", id).Debugf("Error closing session: %v", err)
	}
	return true
}

// Lookup returns a snapshot of a registered session
func (t *Tracker) Lookup(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Sessions returns a snapshot of every registered session
func (t *Tracker) Sessions() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, *s)
	}
	return sessions
}

// Len returns the number of registered sessions
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// EmitHeartbeat sends a heartbeat carrying the current unix time in milliseconds to every session
func (t *Tracker) EmitHeartbeat() error {
	return t.send(models.EventHeartbeat, models.Heartbeat{Timestamp: t.now().UnixMilli()})
}

// Broadcast queues an event for every session without waiting for the writes.
// Sessions whose queue is full are dropped and reported in the joined error.
func (t *Tracker) Broadcast(event string, payload any) error {
	return t.send(event, payload)
}

func (t *Tracker) send(event string, payload any) error {
	msg := models.Event{Name: event, Data: payload}

	t.mu.Lock()
	var dropped []*Session
	for _, s := range t.sessions {
		select {
		case s.queue <- msg:
		default:
			t.detach(s)
			dropped = append(dropped, s)
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, s := range dropped {
		metrics.RecordBroadcast(event, ErrQueueFull)
		locallog := logging.Log.WithField("session_id", s.ID)
		locallog.Warnf("Dropping session, %d events not delivered", sendQueueSize)
		if err := s.conn.Close(); err != nil {
			locallog.Debugf("Error closing dropped session: %v", err)
		}
		errs = append(errs, fmt.Errorf("session %s: %w", s.ID, ErrQueueFull))
	}
	return errors.Join(errs...)
}

// Sweep evicts every session whose last acknowledgement is older than the stale threshold
// and returns their ids. Each session is evicted at most once even under concurrent removal.
func (t *Tracker) Sweep() []string {
	now := t.now()

	t.mu.Lock()
	var stale []*Session
	for _, s := range t.sessions {
		if now.Sub(s.LastHeartbeatAck) > t.cfg.StaleThreshold {
			stale = append(stale, s)
			t.detach(s)
		}
	}
	t.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}

	evicted := make([]string, 0, len(stale))
	for _, s := range stale {
		locallog := logging.Log.WithField("session_id", s.ID)
		locallog.Infof("Evicting session, last heartbeat ack %s ago", now.Sub(s.LastHeartbeatAck).Round(time.Millisecond))
		if err := s.conn.Close(); err != nil {
			locallog.Debugf("Error closing evicted session: %v", err)
		}
		metrics.EvictedSessions.Inc()
		evicted = append(evicted, s.ID)
	}
	return evicted
}

// Run emits heartbeats and sweeps stale sessions on their own tickers until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) {
	heartbeat := time.NewTicker(t.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	sweep := time.NewTicker(t.cfg.SweepInterval)
	defer sweep.Stop()

	logging.Log.Infof("Liveness tracker started: heartbeat every %s, sweep every %s, stale after %s",
		t.cfg.HeartbeatInterval, t.cfg.SweepInterval, t.cfg.StaleThreshold)

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := t.EmitHeartbeat(); err != nil {
				logging.Log.Debugf("Heartbeat not delivered everywhere: %v", err)
			}
		case <-sweep.C:
			t.Sweep()
		}
	}
}

// CloseAll removes every session, used on shutdown
func (t *Tracker) CloseAll() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Remove(id)
	}
}
