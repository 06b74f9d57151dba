package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Remove(tmpFile.Name())
	})

	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	_ = tmpFile.Close()

	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"IMAP_HOST", "IMAP_USER", "IMAP_PASS", "LISTEN_ADDR", "STORE_PATH"} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `email:
  host: "imap.test.com"
  port: 1993
  login: "test@example.com"
  password: "testpass"
  refreshTime: 45s
  authTimeout: 5s
  mailbox: "Archive"
server:
  addr: ":8080"
liveness:
  staleThreshold: 1m
store:
  path: "/tmp/emails.db"
logLevel: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Email.Host != "imap.test.com" {
		t.Errorf("Expected host 'imap.test.com', got '%s'", cfg.Email.Host)
	}

	if cfg.Email.Port != 1993 {
		t.Errorf("Expected port 1993, got %d", cfg.Email.Port)
	}

	if cfg.Email.RefreshTime != 45*time.Second {
		t.Errorf("Expected refreshTime 45s, got %v", cfg.Email.RefreshTime)
	}

	if cfg.Email.AuthTimeout != 5*time.Second {
		t.Errorf("Expected authTimeout 5s, got %v", cfg.Email.AuthTimeout)
	}

	if cfg.Email.MailBox != "Archive" {
		t.Errorf("Expected mailbox 'Archive', got '%s'", cfg.Email.MailBox)
	}

	if cfg.Liveness.StaleThreshold != time.Minute {
		t.Errorf("Expected staleThreshold 1m, got %v", cfg.Liveness.StaleThreshold)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected addr ':8080', got '%s'", cfg.Server.Addr)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected logLevel 'debug', got '%s'", cfg.LogLevel)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `email:
  host: "imap.test.com"
  login: "test@example.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Email.Port, DefaultPort},
		{"tls", *cfg.Email.TLS, true},
		{"authTimeout", cfg.Email.AuthTimeout, DefaultAuthTimeout},
		{"connTimeout", cfg.Email.ConnTimeout, DefaultConnTimeout},
		{"refreshTime", cfg.Email.RefreshTime, DefaultRefreshTime},
		{"cycleTimeout", cfg.Email.CycleTimeout, DefaultCycleTimeout},
		{"mailbox", cfg.Email.MailBox, DefaultMailBox},
		{"addr", cfg.Server.Addr, DefaultAddr},
		{"heartbeatInterval", cfg.Liveness.HeartbeatInterval, DefaultHeartbeatInterval},
		{"sweepInterval", cfg.Liveness.SweepInterval, DefaultSweepInterval},
		{"staleThreshold", cfg.Liveness.StaleThreshold, DefaultStaleThreshold},
		{"storePath", cfg.Store.Path, DefaultStorePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Unexpected allowed origins: %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAP_HOST", "imap.env.com")
	t.Setenv("IMAP_USER", "env@example.com")
	t.Setenv("IMAP_PASS", "envpass")

	path := writeConfig(t, `email:
  host: "imap.test.com"
  login: "test@example.com"
  password: "testpass"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Email.Host != "imap.env.com" {
		t.Errorf("Expected host from env, got '%s'", cfg.Email.Host)
	}
	if cfg.Email.Login != "env@example.com" {
		t.Errorf("Expected login from env, got '%s'", cfg.Email.Login)
	}
	if cfg.Email.Password != "envpass" {
		t.Errorf("Expected password from env, got '%s'", cfg.Email.Password)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "TLS disabled",
			content: `email:
  host: "imap.test.com"
  login: "test@example.com"
  tls: false
`,
		},
		{
			name: "Missing host",
			content: `email:
  login: "test@example.com"
`,
		},
		{
			name: "Missing login",
			content: `email:
  host: "imap.test.com"
`,
		},
		{
			name: "Stale threshold below heartbeat interval",
			content: `email:
  host: "imap.test.com"
  login: "test@example.com"
liveness:
  heartbeatInterval: 10s
  staleThreshold: 5s
`,
		},
		{
			name:    "Malformed YAML",
			content: "email: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Expected Load() to fail")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}
