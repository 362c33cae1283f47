// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/chatlogd/chatlogd/pkg/clog"
)

// supportedVersion is the schema version this binary was built against,
// tracked in __chatlogd_migrations the same way the teacher tracks
// __rustlog_migrations-equivalent state via golang-migrate's own
// bookkeeping table.
const supportedVersion uint = 3

//go:embed migrations/*.sql
var migrationFiles embed.FS

func newMigrate(dsn string, db *Store) (*migrate.Migrate, error) {
	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: load embedded migrations: %w", err)
	}

	driver, err := clickhouse.WithInstance(db.DB.DB, &clickhouse.Config{MigrationsTable: "__chatlogd_migrations"})
	if err != nil {
		return nil, fmt.Errorf("store: create clickhouse migrate driver: %w", err)
	}

	return migrate.NewWithInstance("iofs", d, "clickhouse", driver)
}

// CheckVersion warns (without aborting) if the schema is behind what this
// binary expects. It never applies migrations itself — that's MigrateDB,
// invoked explicitly via the CLI's -migrate-db flag.
func (s *Store) CheckVersion() {
	m, err := newMigrate("", s)
	if err != nil {
		clog.Warnf("store: could not open migration driver: %v", err)
		return
	}
	defer m.Close()

	v, _, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			clog.Warn("store: database has no migration state yet")
			return
		}
		clog.Warnf("store: reading migration version: %v", err)
		return
	}

	s.checkVersion(v, supportedVersion)
}

// MigrateDB applies every pending migration to the ClickHouse instance
// identified by dsn.
func MigrateDB(dsn string, db *Store) error {
	m, err := newMigrate(dsn, db)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}
