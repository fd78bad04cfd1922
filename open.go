package searchcache

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open opens a GORM database handle for one of the supported dialects.
// Supported drivers are "sqlite" and "postgres". The handle can be shared
// with the embedding application; the search cache keeps its own tables.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("searchcache: opening sqlite database: %w", err)
		}
		return db, nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("searchcache: opening postgres database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", ErrConfig, driver)
	}
}
