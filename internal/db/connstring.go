package db

import (
	"fmt"
	"net"
	"net/url"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// ConnString builds a sqlserver:// DSN from a server configuration document.
//
// Encryption is disabled automatically when the host is a bare IPv4 literal,
// because the server certificate never matches an IP address. An explicit
// Encrypt setting in the document overrides the automatic rule.
func ConnString(cfg *entity.DBConfig) string {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host,
	}
	if cfg.Port > 0 {
		u.Host = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	} else if cfg.Instance != "" {
		u.Path = cfg.Instance
	}

	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("app name", "core-app-transfer")

	encrypt := "true"
	switch {
	case cfg.Encrypt != nil:
		if !*cfg.Encrypt {
			encrypt = "disable"
		}
	case isIPv4(cfg.Host):
		encrypt = "disable"
	}
	q.Set("encrypt", encrypt)
	if cfg.TrustCert {
		q.Set("trustservercertificate", "true")
	}
	q.Set("dial timeout", "20")

	u.RawQuery = q.Encode()
	return u.String()
}

func isIPv4(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil
}
