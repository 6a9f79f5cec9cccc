// Package datastore opens the connection to the baseline metrics database.
package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the metrics MySQL database. The connection is read-only
// in practice: this service only issues range queries against the baseline
// tables.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}
	return db, nil
}
