package emailprocessor

import (
	imapclient "email-tracker/internal/imap"
	"email-tracker/internal/mailparse"
	"email-tracker/internal/models"
)

// State is a stage of a polling cycle
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticated
	StateBoxSelected
	StateSearching
	StateNoResults
	StateFetchingMessages
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateBoxSelected:
		return "box_selected"
	case StateSearching:
		return "searching"
	case StateNoResults:
		return "no_results"
	case StateFetchingMessages:
		return "fetching_messages"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// partialMessage accumulates the sections of one message until both have arrived
type partialMessage struct {
	uid        uint32
	header     []byte
	body       []byte
	haveHeader bool
	haveBody   bool
}

func (m *partialMessage) add(chunk imapclient.Chunk) {
	switch chunk.Part {
	case imapclient.HeaderPart:
		m.header = chunk.Data
		m.haveHeader = true
	case imapclient.BodyPart:
		m.body = chunk.Data
		m.haveBody = true
	}
}

func (m *partialMessage) complete() bool {
	return m.haveHeader && m.haveBody
}

// record parses the accumulated sections into an unsaved EmailRecord
func (m *partialMessage) record() models.EmailRecord {
	header := mailparse.ParseHeaderBlock(m.header)

	rec := models.EmailRecord{
		Body:    mailparse.ParseBodyBlock(m.body),
		Date:    header.Date,
		From:    header.From,
		To:      header.To,
		Subject: header.Subject,
	}
	rec.Normalize()
	return rec
}
