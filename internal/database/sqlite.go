package database

import (
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var sqlitePragmas = []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}

	db, err := gorm.Open(sqlite.Open(withSQLitePragmas(dsn)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", DriverSQLite), zap.String("dsn", dsn))
	}
	return db, nil
}

func withSQLitePragmas(dsn string) string {
	missing := make([]string, 0, len(sqlitePragmas))
	for _, pragma := range sqlitePragmas {
		if !strings.Contains(dsn, pragma) {
			missing = append(missing, pragma)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join(missing, "&")
}
