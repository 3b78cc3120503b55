// Package db is the workspace-scoped persistence substrate (spec.md
// §4.1): a thin wrapper over *sql.DB plus the fetch-or-404 helper that
// every other package's workspace-scoped load goes through, so a
// lookup that cannot prove ownership of its workspace_id can never be
// told apart from a genuinely missing row.
package db

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/pazpaz/backend/internal/apperr"
)

// DB wraps the relational connection pool used by every persistence
// package in this module.
type DB struct {
	*sql.DB
}

// Open connects to the relational store and applies the pool sizing
// the teacher's config layer exposes for its own Postgres-adjacent
// usage (max open/idle connections).
func Open(dsn string, maxOpen, maxIdle int) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	return &DB{sqlDB}, nil
}

// Querier is satisfied by *sql.DB and *sql.Tx, letting callers pass
// either a plain connection or an in-flight transaction to a repository
// function without duplicating it.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// FetchOrNotFound runs scan (a closure that performs a single
// workspace-scoped QueryRowContext+Scan) and converts sql.ErrNoRows
// into the typed NotFound error used for every workspace-scoped load,
// so a query that matched zero rows because the row belongs to a
// different workspace is indistinguishable from one where the row
// never existed at all.
func FetchOrNotFound(resourceType string, scan func() error) error {
	err := scan()
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.KindNotFound, resourceType+" not found")
	}
	return err
}

// affectedOrNotFound converts a zero-row UPDATE/DELETE result into the
// same typed NotFound error FetchOrNotFound produces, so a workspace-scoped
// mutation that touched no row (wrong id or wrong workspace) is reported
// identically either way.
func affectedOrNotFound(res sql.Result, resourceType string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, resourceType+" not found")
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on any error or panic.
func WithTx(ctx context.Context, db *DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
