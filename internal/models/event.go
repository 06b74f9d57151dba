package models

// Event names exchanged with real-time clients
const (
	EventNewEmail     = "newEmail"
	EventHeartbeat    = "ping"
	EventHeartbeatAck = "pong"
)

// Event is the envelope written to and read from a session channel
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Heartbeat is the payload of a heartbeat event, timestamp in unix milliseconds
type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}
