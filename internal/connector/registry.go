package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Factory is a function that creates a new Dialect instance.
type Factory func() Dialect

// Registry maps driver names to dialect factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterDriver registers a dialect factory for a driver name.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// Dialect returns a new dialect for driver.
func (r *Registry) Dialect(driver string) (Dialect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s (available: %v)", driver, r.availableDrivers())
	}
	return factory(), nil
}

// Open resolves the dialect for cfg.Driver and opens a connection pool.
func (r *Registry) Open(cfg ConnectionConfig) (Dialect, *sqlx.DB, error) {
	d, err := r.Dialect(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
	db, err := d.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return d, db, nil
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableDrivers()
}

func (r *Registry) availableDrivers() []string {
	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}
