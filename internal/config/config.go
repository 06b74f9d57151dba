package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"email-tracker/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Defaults mirror the mailbox options of the original deployment
const (
	DefaultPort              = 993
	DefaultAuthTimeout       = 10 * time.Second
	DefaultConnTimeout       = 30 * time.Second
	DefaultRefreshTime       = 30 * time.Second
	DefaultCycleTimeout      = 2 * time.Minute
	DefaultMailBox           = "INBOX"
	DefaultAddr              = ":5000"
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultSweepInterval     = 5 * time.Second
	DefaultStaleThreshold    = 30 * time.Second
	DefaultStorePath         = "data/email-tracker.db"
)

var DefaultAllowedOrigins = []string{"http://localhost:3000"}

// Load reads the configuration from the specified YAML file and returns a Config struct.
// Values from a local .env file and the process environment override the file.
func Load(filepath string) (*models.Config, error) {
	configFile, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := yaml.Unmarshal(configFile, &config); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnv(&config)
	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyEnv overrides credentials and locations from the environment
func applyEnv(cfg *models.Config) {
	overrides := map[string]*string{
		"IMAP_HOST":   &cfg.Email.Host,
		"IMAP_USER":   &cfg.Email.Login,
		"IMAP_PASS":   &cfg.Email.Password,
		"LISTEN_ADDR": &cfg.Server.Addr,
		"STORE_PATH":  &cfg.Store.Path,
	}
	for key, field := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*field = v
		}
	}
}

func applyDefaults(cfg *models.Config) {
	e := &cfg.Email
	if e.Port == 0 {
		e.Port = DefaultPort
	}
	if e.TLS == nil {
		tls := true
		e.TLS = &tls
	}
	if e.AuthTimeout == 0 {
		e.AuthTimeout = DefaultAuthTimeout
	}
	if e.ConnTimeout == 0 {
		e.ConnTimeout = DefaultConnTimeout
	}
	if e.RefreshTime == 0 {
		e.RefreshTime = DefaultRefreshTime
	}
	if e.CycleTimeout == 0 {
		e.CycleTimeout = DefaultCycleTimeout
	}
	if e.MailBox == "" {
		e.MailBox = DefaultMailBox
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = DefaultAllowedOrigins
	}

	l := &cfg.Liveness
	if l.HeartbeatInterval == 0 {
		l.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if l.SweepInterval == 0 {
		l.SweepInterval = DefaultSweepInterval
	}
	if l.StaleThreshold == 0 {
		l.StaleThreshold = DefaultStaleThreshold
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
}

// Validate rejects configurations the poller cannot run with
func Validate(cfg *models.Config) error {
	e := cfg.Email
	switch {
	case e.Host == "":
		return errors.New("email.host is required")
	case e.Login == "":
		return errors.New("email.login is required")
	case e.TLS != nil && !*e.TLS:
		return errors.New("email.tls cannot be disabled: implicit TLS is mandatory")
	case e.Port <= 0 || e.Port > 65535:
		return fmt.Errorf("email.port %d out of range", e.Port)
	case e.AuthTimeout < 0 || e.ConnTimeout < 0 || e.RefreshTime < 0 || e.CycleTimeout < 0:
		return errors.New("email timeouts must be positive")
	}

	l := cfg.Liveness
	if l.HeartbeatInterval < 0 || l.SweepInterval < 0 || l.StaleThreshold < 0 {
		return errors.New("liveness intervals must be positive")
	}
	if l.StaleThreshold < l.HeartbeatInterval {
		return fmt.Errorf("liveness.staleThreshold %s is shorter than heartbeatInterval %s", l.StaleThreshold, l.HeartbeatInterval)
	}

	return nil
}
