package pg

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Target is the loggable part of a connection URL. It never holds the
// password.
type Target struct {
	Host     string
	Database string
	User     string
	SSLMode  string
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s/%s?sslmode=%s", t.User, t.Host, t.Database, t.SSLMode)
}

// ParseDSN extracts the Target of a postgres:// or postgresql:// URL.
func ParseDSN(dsn string) (Target, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Target{}, fmt.Errorf("parse database url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return Target{}, fmt.Errorf("database url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Target{}, errors.New("database url: host is required")
	}
	t := Target{
		Host:     u.Host,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  u.Query().Get("sslmode"),
	}
	if u.User != nil {
		t.User = u.User.Username()
	}
	if t.SSLMode == "" {
		t.SSLMode = "prefer"
	}
	return t, nil
}
