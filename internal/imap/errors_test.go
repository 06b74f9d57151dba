package imap

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback error
		want     error
		kind     string
	}{
		{
			name:     "Net timeout",
			err:      fmt.Errorf("dial: %w", timeoutErr{}),
			fallback: ErrNetwork,
			want:     ErrTimeout,
			kind:     "timeout",
		},
		{
			name:     "Context deadline",
			err:      context.DeadlineExceeded,
			fallback: ErrProtocol,
			want:     ErrTimeout,
			kind:     "timeout",
		},
		{
			name:     "Refused connection",
			err:      errors.New("connection refused"),
			fallback: ErrNetwork,
			want:     ErrNetwork,
			kind:     "network",
		},
		{
			name:     "Bad credentials",
			err:      errors.New("NO [AUTHENTICATIONFAILED] Invalid credentials"),
			fallback: ErrAuth,
			want:     ErrAuth,
			kind:     "auth",
		},
		{
			name:     "Select failure",
			err:      errors.New("NO Mailbox doesn't exist"),
			fallback: ErrProtocol,
			want:     ErrProtocol,
			kind:     "protocol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err, tt.fallback)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify() = %v, want kind %v", got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify() lost the cause %v", tt.err)
			}
			if Kind(got) != tt.kind {
				t.Errorf("Kind() = %s, want %s", Kind(got), tt.kind)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if err := classify("op", nil, ErrProtocol); err != nil {
		t.Errorf("classify(nil) = %v, want nil", err)
	}
	if Kind(nil) != "ok" {
		t.Errorf("Kind(nil) = %s, want ok", Kind(nil))
	}
}

func TestStandardClient_NotConnected(t *testing.T) {
	c := NewStandardClient(Options{Host: "imap.example.com", Port: 993})

	if err := c.Login("user", "pass"); !errors.Is(err, ErrProtocol) {
		t.Errorf("Login() error = %v, want protocol error", err)
	}
	if err := c.SelectMailbox("INBOX"); !errors.Is(err, ErrProtocol) {
		t.Errorf("SelectMailbox() error = %v, want protocol error", err)
	}
	if _, err := c.SearchUnseen(); !errors.Is(err, ErrProtocol) {
		t.Errorf("SearchUnseen() error = %v, want protocol error", err)
	}

	chunks := make(chan Chunk)
	if err := c.Fetch(context.Background(), []uint32{1}, chunks); !errors.Is(err, ErrProtocol) {
		t.Errorf("Fetch() error = %v, want protocol error", err)
	}
	if _, open := <-chunks; open {
		t.Error("Fetch() must close the chunk channel")
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v, want nil", err)
	}
}

func TestPartString(t *testing.T) {
	if HeaderPart.String() != "header" || BodyPart.String() != "body" {
		t.Errorf("unexpected part names %s %s", HeaderPart, BodyPart)
	}
}
