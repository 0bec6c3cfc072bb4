// pkg/database/postgres.go
//
// Package database opens the Postgres connection backing the tag
// declaration store (spec §6). The teacher's own internal/config/config.go
// references a sibling "app_padrao/pkg/database" package for its DB config
// shape; this repo authors the equivalent connector fresh, in the same
// database/sql + lib/pq style the teacher's repositories assume.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"s7gateway/internal/config"
)

// Open connects to Postgres using cfg and verifies the connection with a
// Ping before returning.
func Open(cfg config.PostgresConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: falha ao abrir conexão: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database: falha ao conectar: %w", err)
	}

	return db, nil
}
