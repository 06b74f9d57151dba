package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"email-tracker/internal/logging"
)

// Options configures a StandardClient
type Options struct {
	Host        string
	Port        int
	AuthTimeout time.Duration
	ConnTimeout time.Duration
	TLSConfig   *tls.Config
}

type StandardClient struct {
	client *client.Client
	opts   Options
}

// NewStandardClient creates a new StandardClient. Implicit TLS is always used.
func NewStandardClient(opts Options) *StandardClient {
	return &StandardClient{
		opts: opts,
	}
}

func (c *StandardClient) addr() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// Connect establishes a secure connection to the IMAP server using TLS within the connection timeout.
func (c *StandardClient) Connect(ctx context.Context) error {
	tlsConfig := c.opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: c.opts.Host}
	}

	dialer := &net.Dialer{Timeout: c.opts.ConnTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	cl, err := client.DialWithDialerTLS(dialer, c.addr(), tlsConfig)
	if err != nil {
		return classify("connect", fmt.Errorf("dialing %s: %w", c.addr(), err), ErrNetwork)
	}
	cl.Timeout = c.opts.ConnTimeout
	c.client = cl
	return nil
}

// Login authenticates the user within the auth timeout, then restores the session timeout.
func (c *StandardClient) Login(user, password string) error {
	if c.client == nil {
		return newError(ErrProtocol, "login", fmt.Errorf("not connected"))
	}

	prevTimeout := c.client.Timeout
	c.client.Timeout = c.opts.AuthTimeout
	defer func() { c.client.Timeout = prevTimeout }()

	if err := c.client.Login(user, password); err != nil {
		return classify("login", fmt.Errorf("user %s: %w", user, err), ErrAuth)
	}
	return nil
}

// SelectMailbox selects the specified mailbox (e.g., "INBOX") read-write so fetched messages get flagged as seen.
func (c *StandardClient) SelectMailbox(name string) error {
	if c.client == nil {
		return newError(ErrProtocol, "select", fmt.Errorf("not connected"))
	}
	if _, err := c.client.Select(name, false); err != nil {
		return classify("select", fmt.Errorf("mailbox %s: %w", name, err), ErrProtocol)
	}
	return nil
}

// SearchUnseen retrieves the UIDs of all messages without the \Seen flag.
func (c *StandardClient) SearchUnseen() ([]uint32, error) {
	if c.client == nil {
		return nil, newError(ErrProtocol, "search", fmt.Errorf("not connected"))
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, classify("search", fmt.Errorf("error searching for unseen emails: %w", err), ErrProtocol)
	}

	return uids, nil
}

// Fetch streams the header fields and text of every message in uids as Chunks and closes chunks when done.
// The fetch does not peek, so the server marks each message as seen.
// Cancelling ctx terminates the connection to release a hung stream.
func (c *StandardClient) Fetch(ctx context.Context, uids []uint32, chunks chan<- Chunk) error {
	defer close(chunks)

	if c.client == nil {
		return newError(ErrProtocol, "fetch", fmt.Errorf("not connected"))
	}
	if len(uids) == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := fetchItems()

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = c.client.Terminate()
	})
	defer stop()

	for msg := range messages {
		for _, chunk := range messageChunks(msg) {
			chunks <- chunk
		}
	}

	if err := <-done; err != nil {
		if ctx.Err() != nil {
			return newError(ErrTimeout, "fetch", fmt.Errorf("fetch interrupted: %w", ctx.Err()))
		}
		return classify("fetch", fmt.Errorf("error fetching %d messages: %w", len(uids), err), ErrProtocol)
	}

	return nil
}

func fetchItems() []imap.FetchItem {
	headerSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier, Fields: HeaderFields},
	}
	textSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
	}
	return []imap.FetchItem{imap.FetchUid, headerSection.FetchItem(), textSection.FetchItem()}
}

// messageChunks returns one header chunk and one body chunk for msg.
// A section the server left out, sent as NIL or failed to stream yields an empty chunk,
// so the message is still completed once it has been flagged as seen.
func messageChunks(msg *imap.Message) []Chunk {
	chunks := []Chunk{{UID: msg.Uid, Part: HeaderPart}, {UID: msg.Uid, Part: BodyPart}}
	received := [2]bool{}

	for name, literal := range msg.Body {
		var i int
		switch name.Specifier {
		case imap.HeaderSpecifier:
			i = 0
		case imap.TextSpecifier:
			i = 1
		default:
			continue
		}
		received[i] = true

		if literal == nil {
			logging.Log.Warnf("Empty %s section for message UID %d", chunks[i].Part, msg.Uid)
			continue
		}
		data, err := io.ReadAll(literal)
		if err != nil {
			logging.Log.Warnf("Error reading %s section of message UID %d: %v", chunks[i].Part, msg.Uid, err)
			continue
		}
		chunks[i].Data = data
	}

	for i, ok := range received {
		if !ok {
			logging.Log.Warnf("Missing %s section for message UID %d", chunks[i].Part, msg.Uid)
		}
	}
	return chunks
}

// Close logs out from the IMAP server and closes the connection. If there is no active connection, it simply returns nil.
func (c *StandardClient) Close() error {
	if c.client == nil {
		return nil
	}
	cl := c.client
	c.client = nil

	if err := cl.Logout(); err != nil {
		_ = cl.Terminate()
		return err
	}
	return nil
}
