package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"relgraph/internal/sqlutil"
)

// SQLDialect resolves the configured dialect name.
func (d *DatabaseConfig) SQLDialect() (sqlutil.Dialect, error) {
	return sqlutil.ParseDialect(d.Dialect)
}

// DSN returns the data source name for the configured dialect. An explicit
// connection string is used as is, except that MySQL DSNs always get
// parseTime and UTC locations.
func (d *DatabaseConfig) DSN() (string, error) {
	dialect, err := d.SQLDialect()
	if err != nil {
		return "", err
	}
	switch dialect.Name {
	case sqlutil.MySQL.Name:
		return d.mysqlDSN()
	case sqlutil.Postgres.Name:
		if d.ConnectionString != "" {
			return d.ConnectionString, nil
		}
		return d.postgresDSN(), nil
	default:
		if d.ConnectionString != "" {
			return d.ConnectionString, nil
		}
		if d.Database == "" {
			return ":memory:", nil
		}
		return d.Database, nil
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.portOrDefault(3306)))
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.portOrDefault(5432))),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	return u.String()
}

func (d *DatabaseConfig) portOrDefault(fallback int) int {
	if d.Port > 0 {
		return d.Port
	}
	return fallback
}

// EffectiveDatabaseName returns the schema introspection runs against: the
// configured database, or the one named in the connection string.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	if name := strings.TrimSpace(d.Database); name != "" {
		return name, nil
	}
	if d.ConnectionString == "" {
		return "", fmt.Errorf("database name is not configured")
	}
	dialect, err := d.SQLDialect()
	if err != nil {
		return "", err
	}
	switch dialect.Name {
	case sqlutil.MySQL.Name:
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		if parsed.DBName == "" {
			return "", fmt.Errorf("database name is not configured and the dsn names none")
		}
		return parsed.DBName, nil
	case sqlutil.Postgres.Name:
		u, err := url.Parse(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("invalid postgres dsn: %w", err)
		}
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			return name, nil
		}
		return "", fmt.Errorf("database name is not configured and the dsn names none")
	default:
		return "main", nil
	}
}
