package mailparse

import (
	"bufio"
	"bytes"
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Header holds the fields extracted from a HEADER.FIELDS block
type Header struct {
	From    []string
	To      []string
	Subject string
	Date    string
}

var emailAddressRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// ParseHeaderBlock extracts sender, recipients, subject and date from a raw header block.
// Missing headers yield empty values; malformed input degrades to whatever could be read.
func ParseHeaderBlock(raw []byte) Header {
	header := Header{From: []string{}, To: []string{}}
	if len(raw) == 0 {
		return header
	}

	// The terminating blank line may be missing from a partial block
	buf := make([]byte, 0, len(raw)+4)
	buf = append(buf, raw...)
	buf = append(buf, "\r\n\r\n"...)

	values := readHeader(buf)

	header.From = extractAddresses(values("From"))
	header.To = extractAddresses(values("To"))

	subject := unfold(first(values("Subject")))
	if decoded, err := DecodeHeader(subject); err == nil {
		subject = decoded
	}
	header.Subject = subject
	header.Date = unfold(first(values("Date")))

	return header
}

// readHeader returns a field lookup over a header block. textproto stops at the first
// malformed line, so a block it rejects is read again line by line.
func readHeader(buf []byte) func(key string) []string {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(buf)))
	if err == nil {
		return h.Values
	}
	return readHeaderLines(buf)
}

// readHeaderLines keeps every "Key: value" line up to the first blank line, joining
// continuation lines to their field and skipping lines that are neither.
func readHeaderLines(buf []byte) func(key string) []string {
	fields := make(map[string][]string)
	var key string

	lines := strings.Split(strings.ReplaceAll(string(buf), "\r\n", "\n"), "\n")
	for _, line := range lines {
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if values := fields[key]; key != "" && len(values) > 0 {
				values[len(values)-1] += " " + strings.TrimSpace(line)
			}
			continue
		}

		i := strings.IndexByte(line, ':')
		if i <= 0 {
			key = ""
			continue
		}
		key = strings.ToLower(strings.TrimSpace(line[:i]))
		fields[key] = append(fields[key], strings.TrimSpace(line[i+1:]))
	}

	return func(k string) []string {
		return fields[strings.ToLower(k)]
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// extractAddresses keeps the bare addresses of every header occurrence, in order
func extractAddresses(values []string) []string {
	addresses := []string{}
	for _, value := range values {
		value = unfold(value)
		if value == "" {
			continue
		}

		if list, err := mail.ParseAddressList(value); err == nil && len(list) > 0 {
			for _, addr := range list {
				addresses = append(addresses, addr.Address)
			}
			continue
		}

		if found := extractEmailAddresses(value); len(found) > 0 {
			addresses = append(addresses, found...)
			continue
		}

		addresses = append(addresses, value)
	}
	return addresses
}

func unfold(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}

// ParseBodyBlock returns the inner HTML of the document body when the payload is markup
// with a body element, and the raw text otherwise. It never fails.
func ParseBodyBlock(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	text := string(raw)

	if !hasBodyElement(raw) {
		return text
	}

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return text
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		return text
	}

	var inner bytes.Buffer
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&inner, child); err != nil {
			return text
		}
	}
	return inner.String()
}

// hasBodyElement reports whether the payload explicitly opens a <body> element
func hasBodyElement(raw []byte) bool {
	z := html.NewTokenizer(bytes.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Body {
				return true
			}
		}
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, a); found != nil {
			return found
		}
	}
	return nil
}

// Simple regex to extract email addresses from a header value, which may contain names
func extractEmailAddresses(value string) []string {
	return emailAddressRe.FindAllString(value, -1)
}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoder := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := decoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}
