package store

import (
	"github.com/reconnoiter/reconnoiter/internal/connector"
	"github.com/reconnoiter/reconnoiter/internal/connector/mysql"
	"github.com/reconnoiter/reconnoiter/internal/connector/postgres"
	"github.com/reconnoiter/reconnoiter/internal/connector/sqlite"
)

// DefaultRegistry returns a registry with every supported backend.
func DefaultRegistry() *connector.Registry {
	r := connector.NewRegistry()
	r.RegisterDriver("sqlite", sqlite.New)
	r.RegisterDriver("postgres", postgres.New)
	r.RegisterDriver("mysql", mysql.New)
	return r
}
