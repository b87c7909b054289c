package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/marketstream/internal/config"
)

// applicationName is reported to the server in pg_stat_activity.
const applicationName = "marketstream"

// BuildConnString builds a PostgreSQL URL from config. User and password
// are encoded as URL userinfo, so any characters survive parsing.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
