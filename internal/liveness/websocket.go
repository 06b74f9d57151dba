package liveness

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"email-tracker/internal/logging"
	"email-tracker/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// wsConn serializes writes, gorilla connections support a single concurrent writer
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.ws.Close()
}

// ServeWS upgrades the request to a websocket session, registers it and reads client
// events until the connection closes or the session is evicted.
func (t *Tracker) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.Warnf("Websocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	session := t.Register(&wsConn{ws: ws})
	locallog := logging.Log.WithField("session_id", session.ID)
	locallog.Infof("Session connected from %s", r.RemoteAddr)

	defer func() {
		if t.Remove(session.ID) {
			locallog.Info("Session disconnected")
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				locallog.Debugf("Session read error: %v", err)
			}
			return
		}

		var event models.Event
		if err := json.Unmarshal(data, &event); err != nil {
			locallog.Debugf("Ignoring malformed client message: %v", err)
			continue
		}

		switch event.Name {
		case models.EventHeartbeatAck:
			t.Ack(session.ID)
		default:
			locallog.Debugf("Ignoring client event %q", event.Name)
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		// Same-origin requests are always accepted
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
