package mailparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "Plain ASCII",
			input:    "Hello World",
			expected: "Hello World",
			wantErr:  false,
		},
		{
			name:     "UTF-8 encoded",
			input:    "=?UTF-8?Q?Important_:_comment_mettre_=C3=A0_jour?=",
			expected: "Important : comment mettre à jour",
			wantErr:  false,
		},
		{
			name:     "ISO-8859-1 encoded",
			input:    "=?ISO-8859-1?Q?Caf=E9?=",
			expected: "Café",
			wantErr:  false,
		},
		{
			name:     "Windows-1252 encoded",
			input:    "=?windows-1252?Q?=80_price?=",
			expected: "€ price",
			wantErr:  false,
		},
		{
			name:     "Base64 encoded",
			input:    "=?UTF-8?B?SGVsbG8gV29ybGQ=?=",
			expected: "Hello World",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeHeader() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("DecodeHeader() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseHeaderBlock(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Header
	}{
		{
			name: "All fields",
			raw:  "From: a@x.com\r\nTo: b@y.com\r\nSubject: Hi\r\nDate: 2024-01-01\r\n\r\n",
			expected: Header{
				From:    []string{"a@x.com"},
				To:      []string{"b@y.com"},
				Subject: "Hi",
				Date:    "2024-01-01",
			},
		},
		{
			name: "Display names and multiple recipients",
			raw:  "From: \"Alice\" <alice@x.com>\r\nTo: Bob <bob@y.com>, carol@z.com\r\nSubject: Plans\r\nDate: Mon, 01 Jan 2024 10:00:00 +0000\r\n\r\n",
			expected: Header{
				From:    []string{"alice@x.com"},
				To:      []string{"bob@y.com", "carol@z.com"},
				Subject: "Plans",
				Date:    "Mon, 01 Jan 2024 10:00:00 +0000",
			},
		},
		{
			name: "Missing subject and date",
			raw:  "From: a@x.com\r\nTo: b@y.com\r\n\r\n",
			expected: Header{
				From:    []string{"a@x.com"},
				To:      []string{"b@y.com"},
				Subject: "",
				Date:    "",
			},
		},
		{
			name: "Missing from and to",
			raw:  "Subject: Hi\r\nDate: 2024-01-01\r\n\r\n",
			expected: Header{
				From:    []string{},
				To:      []string{},
				Subject: "Hi",
				Date:    "2024-01-01",
			},
		},
		{
			name: "No terminating blank line",
			raw:  "From: a@x.com\r\nSubject: Hi",
			expected: Header{
				From:    []string{"a@x.com"},
				To:      []string{},
				Subject: "Hi",
			},
		},
		{
			name: "Encoded subject",
			raw:  "Subject: =?UTF-8?B?SGVsbG8gV29ybGQ=?=\r\n\r\n",
			expected: Header{
				From:    []string{},
				To:      []string{},
				Subject: "Hello World",
			},
		},
		{
			name: "Folded recipients",
			raw:  "To: b@y.com,\r\n c@z.com\r\n\r\n",
			expected: Header{
				From: []string{},
				To:   []string{"b@y.com", "c@z.com"},
			},
		},
		{
			name: "Unparseable address list falls back to regex",
			raw:  "From: Doe, John <john@x.com>\r\n\r\n",
			expected: Header{
				From: []string{"john@x.com"},
				To:   []string{},
			},
		},
		{
			name: "Not an address at all",
			raw:  "To: undisclosed\r\n\r\n",
			expected: Header{
				From: []string{},
				To:   []string{"undisclosed"},
			},
		},
		{
			name: "Stray line between fields",
			raw:  "From: a@x.com\r\nthis line is broken\r\nTo: b@y.com\r\nSubject: Hi\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n\r\n",
			expected: Header{
				From:    []string{"a@x.com"},
				To:      []string{"b@y.com"},
				Subject: "Hi",
				Date:    "Mon, 1 Jan 2024 10:00:00 +0000",
			},
		},
		{
			name: "Stray line before folded recipients",
			raw:  "garbage\r\nTo: b@y.com,\r\n c@z.com\r\nSubject: =?UTF-8?Q?Caf=C3=A9?=\r\n\r\n",
			expected: Header{
				From:    []string{},
				To:      []string{"b@y.com", "c@z.com"},
				Subject: "Café",
			},
		},
		{
			name: "Empty block",
			raw:  "",
			expected: Header{
				From: []string{},
				To:   []string{},
			},
		},
		{
			name: "Garbage",
			raw:  "\x00\x01 this is not a header at all",
			expected: Header{
				From: []string{},
				To:   []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got := ParseHeaderBlock([]byte(tt.raw))
				assert.Equal(t, tt.expected, got)
			})
		})
	}
}

func TestParseBodyBlock(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "Document body",
			raw:      "<html><body>Hello</body></html>",
			expected: "Hello",
		},
		{
			name:     "Body with markup and head",
			raw:      "<html><head><title>x</title></head><body><p>Hi <b>there</b></p></body></html>",
			expected: "<p>Hi <b>there</b></p>",
		},
		{
			name:     "Body with attributes",
			raw:      "\r\n<HTML><BODY class=\"mail\">Upper</BODY></HTML>",
			expected: "Upper",
		},
		{
			name:     "Plain text",
			raw:      "Just a plain text message & more",
			expected: "Just a plain text message & more",
		},
		{
			name:     "Markup fragment without body",
			raw:      "<div>fragment</div>",
			expected: "<div>fragment</div>",
		},
		{
			name:     "Unclosed body",
			raw:      "<html><body><p>cut off",
			expected: "<p>cut off</p>",
		},
		{
			name:     "Empty",
			raw:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.expected, ParseBodyBlock([]byte(tt.raw)))
			})
		})
	}
}

func TestParseBodyBlock_Malformed(t *testing.T) {
	inputs := []string{
		"<<<>>>",
		"<body",
		"</body></html>",
		"<html><body><<script>",
		string([]byte{0xff, 0xfe, 0x00, '<', 'b'}),
	}

	for _, input := range inputs {
		assert.NotPanics(t, func() {
			_ = ParseBodyBlock([]byte(input))
		}, "input %q", input)
	}
}

func TestExtractEmailAddresses(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Simple email",
			input:    "info@account.example.com",
			expected: []string{"info@account.example.com"},
		},
		{
			name:     "Email with name",
			input:    "Support <info@account.example.com>",
			expected: []string{"info@account.example.com"},
		},
		{
			name:     "Email with quotes",
			input:    `"Support Team" <info@account.example.com>`,
			expected: []string{"info@account.example.com"},
		},
		{
			name:     "Several emails",
			input:    "a@x.com; b@y.org",
			expected: []string{"a@x.com", "b@y.org"},
		},
		{
			name:     "No email",
			input:    "Just some text",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractEmailAddresses(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}
