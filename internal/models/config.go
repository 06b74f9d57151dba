package models

import "time"

// Config represents the application configuration
type Config struct {
	Email    EmailConfig    `yaml:"email"`
	Server   ServerConfig   `yaml:"server"`
	Liveness LivenessConfig `yaml:"liveness"`
	Store    StoreConfig    `yaml:"store"`
	LogLevel string         `yaml:"logLevel"`
}

// EmailConfig represents IMAP email configuration
type EmailConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Login        string        `yaml:"login"`
	Password     string        `yaml:"password"`
	TLS          *bool         `yaml:"tls"`
	AuthTimeout  time.Duration `yaml:"authTimeout"`
	ConnTimeout  time.Duration `yaml:"connTimeout"`
	RefreshTime  time.Duration `yaml:"refreshTime"`
	CycleTimeout time.Duration `yaml:"cycleTimeout"`
	MailBox      string        `yaml:"mailbox"`
}

// ServerConfig represents the HTTP and websocket listener
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LivenessConfig controls heartbeat emission and stale session eviction
type LivenessConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	StaleThreshold    time.Duration `yaml:"staleThreshold"`
}

// StoreConfig locates the SQLite database file
type StoreConfig struct {
	Path string `yaml:"path"`
}
