package core

import (
	"fmt"
	"strings"

	"plancore/internal/infra/persistence/memory"
	"plancore/internal/infra/persistence/postgres"
	"plancore/internal/infra/persistence/sqlite"
	"plancore/pkg/domain"
)

// OpenPersistentStore selects a store backend by driver name. The path is
// the SQLite file for the sqlite driver and the DSN for postgres; it is
// ignored for memory.
func OpenPersistentStore(driver, path string, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory":
		return memory.NewStore(engine), nil
	case "sqlite":
		return sqlite.NewStore(path, engine)
	case "postgres":
		return postgres.NewStore(path, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
