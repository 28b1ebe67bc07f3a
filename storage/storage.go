// Package storage keeps chat history in a local sqlite database.
package storage

import (
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

const memoryDSN = ":memory:"

// NewSqliteDB opens the sqlite database at file
func NewSqliteDB(file string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return nil, err
	}
	// Every connection to an in-memory database gets its own empty database.
	if file == memoryDSN || strings.Contains(file, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
