package dbmigrate

import (
	"fmt"

	"github.com/fdg312/fitdiary/internal/config"
)

// Target is the database chosen for migrations.
type Target struct {
	URL     string
	Source  string // env var the URL came from
	Warning string
}

// SelectDatabaseURL picks the DB URL for migrations: DIRECT > DATABASE_URL > POOLED (with warning).
// With requireDirect only DATABASE_URL_DIRECT is accepted (startup migrations).
func SelectDatabaseURL(cfg *config.Config, requireDirect bool) (Target, error) {
	switch {
	case cfg.DatabaseURLDirect != "":
		return Target{URL: cfg.DatabaseURLDirect, Source: "DATABASE_URL_DIRECT"}, nil
	case requireDirect:
		return Target{}, fmt.Errorf("DATABASE_URL_DIRECT is required for DDL/migrations")
	case cfg.DatabaseURLRaw != "":
		return Target{URL: cfg.DatabaseURLRaw, Source: "DATABASE_URL"}, nil
	case cfg.DatabaseURLPooled != "":
		return Target{
			URL:     cfg.DatabaseURLPooled,
			Source:  "DATABASE_URL_POOLED",
			Warning: "using pooled connection for DDL is not recommended; set DATABASE_URL_DIRECT",
		}, nil
	default:
		return Target{}, fmt.Errorf("no database URL configured (set DATABASE_URL_DIRECT or DATABASE_URL)")
	}
}
