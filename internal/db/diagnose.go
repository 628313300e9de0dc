package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// StoreHealth is the slice of the task store the diagnostic needs.
type StoreHealth interface {
	Health(ctx context.Context) error
}

// DiagnosticStep is one probe in a diagnostic run.
type DiagnosticStep struct {
	Name       string        `json:"name"`
	OK         bool          `json:"ok"`
	Detail     string        `json:"detail,omitempty"`
	Error      string        `json:"error,omitempty"`
	Hint       string        `json:"hint,omitempty"`
	DurationMs int64         `json:"durationMs"`
}

// DiagnosticReport is the structured outcome of Diagnose.
type DiagnosticReport struct {
	Server    string           `json:"server"`
	Healthy   bool             `json:"healthy"`
	Steps     []DiagnosticStep `json:"steps"`
	CheckedAt time.Time        `json:"checkedAt"`
}

// remediationHint maps an error to a human-readable remediation keyed to its
// class.
func remediationHint(err error, cfg *entity.DBConfig) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "login failed"), strings.Contains(msg, "login error"):
		return "check user and password in the server configuration"
	case strings.Contains(msg, "refused"):
		return "server refused the connection; verify host, port and that SQL Server accepts TCP connections"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "deadline"):
		return "connection timed out; check network reachability and firewall rules"
	case strings.Contains(msg, "certificate"), strings.Contains(msg, "tls"):
		if cfg != nil && isIPv4(cfg.Host) {
			return "TLS against a bare IP address cannot validate the certificate name; disable encryption or use the hostname"
		}
		return "TLS negotiation failed; check the encrypt and trustCert options"
	}
	return ""
}

// Diagnose runs the full connectivity check sequence for a server and
// returns a structured report. Each step records its outcome and, on
// failure, a remediation hint for the error class.
func (m *Manager) Diagnose(ctx context.Context, server string, store StoreHealth, probeTable string) *DiagnosticReport {
	report := &DiagnosticReport{Server: server, CheckedAt: time.Now().UTC()}
	var cfg *entity.DBConfig

	step := func(name string, fn func() (string, error)) bool {
		started := time.Now()
		detail, err := fn()
		s := DiagnosticStep{
			Name:       name,
			OK:         err == nil,
			Detail:     detail,
			DurationMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			s.Error = err.Error()
			s.Hint = remediationHint(err, cfg)
		}
		report.Steps = append(report.Steps, s)
		return s.OK
	}

	// Pool lookup never aborts the sequence; a missing pool just means the
	// server has not been used yet.
	step("pool", func() (string, error) {
		m.mu.Lock()
		_, ok := m.pools[server]
		m.mu.Unlock()
		if !ok {
			return "no pool open yet", nil
		}
		return "pool present", nil
	})

	if !step("task store", func() (string, error) {
		if err := store.Health(ctx); err != nil {
			return "", err
		}
		return "reachable", nil
	}) {
		return report
	}

	if !step("configuration", func() (string, error) {
		var err error
		cfg, err = m.configs.GetByServer(ctx, server)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("host=%s database=%s", cfg.Host, cfg.Database), nil
	}) {
		return report
	}

	// Direct connect bypasses the pool so pool state cannot mask a broken
	// server.
	var direct *sql.DB
	if !step("direct connect", func() (string, error) {
		d, err := sql.Open("sqlserver", ConnString(cfg))
		if err != nil {
			return "", err
		}
		connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		defer cancel()
		if err := d.PingContext(connectCtx); err != nil {
			_ = d.Close()
			return "", err
		}
		direct = d
		return "connected", nil
	}) {
		return report
	}
	defer direct.Close()

	step("identity", func() (string, error) {
		queryCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		var name, version string
		err := direct.QueryRowContext(queryCtx,
			"SELECT @@SERVERNAME, CAST(SERVERPROPERTY('productversion') AS NVARCHAR(128))").
			Scan(&name, &version)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (version %s)", name, version), nil
	})

	if probeTable != "" {
		step("table probe", func() (string, error) {
			queryCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			started := time.Now()
			var count int64
			query := fmt.Sprintf("SELECT COUNT(*) FROM %s WITH (NOLOCK)", quoteIdent(probeTable))
			if err := direct.QueryRowContext(queryCtx, query).Scan(&count); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d rows in %s", count, time.Since(started).Round(time.Millisecond)), nil
		})
	}

	report.Healthy = true
	for _, s := range report.Steps {
		if !s.OK {
			report.Healthy = false
			break
		}
	}
	return report
}
