package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultPort = 1433

// ConnectionProfile is one saved SQL Server connection. DisplayName is the
// identity key in the connection history.
type ConnectionProfile struct {
	DisplayName            string        `yaml:"display_name"`
	Host                   string        `yaml:"host"`
	Port                   int           `yaml:"port,omitempty"`
	User                   string        `yaml:"user"`
	Secret                 string        `yaml:"secret"`
	TrustServerCertificate bool          `yaml:"trust_server_certificate"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout,omitempty"`
}

// Validate enforces that host and user are present before the profile is used.
func (p ConnectionProfile) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("server address is required")
	}
	if strings.TrimSpace(p.User) == "" {
		return fmt.Errorf("user name is required")
	}
	return nil
}

// GetConnectionString renders a go-mssqldb URL. A host of the form
// `server\instance` addresses a named instance.
func (p ConnectionProfile) GetConnectionString() string {
	host, instance := splitInstance(strings.TrimSpace(p.Host))
	if p.Port > 0 && instance == "" {
		host = fmt.Sprintf("%s:%d", host, p.Port)
	}

	query := url.Values{}
	query.Set("database", "master")
	query.Set("app name", "sqlbm")
	if p.TrustServerCertificate {
		query.Set("TrustServerCertificate", "true")
	}
	if p.ConnectTimeout > 0 {
		query.Set("connection timeout", strconv.Itoa(int(p.ConnectTimeout.Seconds())))
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(p.User, p.Secret),
		Host:     host,
		RawQuery: query.Encode(),
	}
	if instance != "" {
		u.Path = instance
	}
	return u.String()
}

// ServerLabel is the host as shown to the operator, with the default port elided.
func (p ConnectionProfile) ServerLabel() string {
	host := strings.TrimSpace(p.Host)
	if host == "" {
		host = "localhost"
	}
	if p.Port > 0 && p.Port != defaultPort {
		return fmt.Sprintf("%s:%d", host, p.Port)
	}
	return host
}

func splitInstance(host string) (string, string) {
	if idx := strings.IndexRune(host, '\\'); idx >= 0 {
		return host[:idx], host[idx+1:]
	}
	return host, ""
}
