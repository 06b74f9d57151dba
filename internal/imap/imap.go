package imap

import (
	"context"
)

// Client is one stateful mailbox session, opened and closed within a polling cycle
type Client interface {
	Connect(ctx context.Context) error
	Login(user, password string) error
	SelectMailbox(name string) error
	SearchUnseen() ([]uint32, error)
	Fetch(ctx context.Context, uids []uint32, chunks chan<- Chunk) error
	Close() error
}

// Part tells which fetched section a Chunk carries
type Part int

const (
	HeaderPart Part = iota
	BodyPart
)

func (p Part) String() string {
	switch p {
	case HeaderPart:
		return "header"
	case BodyPart:
		return "body"
	default:
		return "unknown"
	}
}

// Chunk is one completed section of one fetched message
type Chunk struct {
	UID  uint32
	Part Part
	Data []byte
}

// HeaderFields are the header fields requested for every message
var HeaderFields = []string{"FROM", "TO", "SUBJECT", "DATE"}
