package database

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/accesoit/flowops/internal/config"
)

// Database wraps the shared sql.DB handle used by the repos.
type Database struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens a connection to the registry's backing store and verifies it.
func New(cfg *config.DatabaseConfig) (*Database, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db}, nil
}

// GetDB exposes the underlying handle for the repos.
func (d *Database) GetDB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Database) Ping() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.db.Ping()
}
