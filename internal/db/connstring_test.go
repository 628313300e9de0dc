package db

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

func parseDSN(t *testing.T, dsn string) *url.URL {
	t.Helper()
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	return u
}

// TestConnStringHostPort validates the basic DSN shape.
func TestConnStringHostPort(t *testing.T) {
	cfg := &entity.DBConfig{
		Server:   "primary",
		Host:     "sql.example.com",
		Port:     1433,
		User:     "app",
		Password: "secret",
		Database: "sales",
	}

	u := parseDSN(t, ConnString(cfg))
	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "sql.example.com:1433", u.Host)
	assert.Equal(t, "app", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "secret", pw)

	q := u.Query()
	assert.Equal(t, "sales", q.Get("database"))
	assert.Equal(t, "true", q.Get("encrypt"), "hostnames keep encryption on")
	assert.Equal(t, "20", q.Get("dial timeout"))
}

// TestConnStringNamedInstance validates instance addressing without a port.
func TestConnStringNamedInstance(t *testing.T) {
	cfg := &entity.DBConfig{
		Host:     "sql.example.com",
		Instance: "SQLEXPRESS",
		User:     "app",
		Password: "secret",
		Database: "sales",
	}

	u := parseDSN(t, ConnString(cfg))
	assert.Equal(t, "sql.example.com", u.Host)
	assert.Equal(t, "/SQLEXPRESS", u.Path)
}

// TestConnStringIPv4DisablesEncryption validates the automatic TLS rule for
// bare IP hosts.
func TestConnStringIPv4DisablesEncryption(t *testing.T) {
	cfg := &entity.DBConfig{
		Host: "10.0.0.5", Port: 1433, User: "app", Password: "p", Database: "d",
	}
	u := parseDSN(t, ConnString(cfg))
	assert.Equal(t, "disable", u.Query().Get("encrypt"))

	// An explicit override wins over the automatic rule.
	on := true
	cfg.Encrypt = &on
	u = parseDSN(t, ConnString(cfg))
	assert.Equal(t, "true", u.Query().Get("encrypt"))

	off := false
	named := &entity.DBConfig{
		Host: "sql.example.com", Port: 1433, User: "a", Password: "p", Database: "d",
		Encrypt: &off,
	}
	u = parseDSN(t, ConnString(named))
	assert.Equal(t, "disable", u.Query().Get("encrypt"))
}

// TestConnStringTrustCert validates the trust-certificate option.
func TestConnStringTrustCert(t *testing.T) {
	cfg := &entity.DBConfig{
		Host: "sql.example.com", Port: 1433, User: "a", Password: "p", Database: "d",
		TrustCert: true,
	}
	u := parseDSN(t, ConnString(cfg))
	assert.Equal(t, "true", u.Query().Get("trustservercertificate"))
}
