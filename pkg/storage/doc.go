// Package storage opens the shared persistence backends used by the cart engine.
//
// # Overview
//
// The billing, catalog, sites and swaps packages each own their SQL. This package
// only hands them a connection: a pooled PostgreSQL *sql.DB, a Redis client for
// checkout drafts, and the embedded schema migrations.
//
// # Usage
//
//	db, err := storage.OpenPostgres(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := storage.Migrate(db); err != nil {
//		return err
//	}
//
// Repositories accept a DBTX so the same code runs against *sql.DB and *sql.Tx.
package storage
