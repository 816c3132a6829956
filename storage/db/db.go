// Package db is the PostgreSQL storage backend.
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"sharexp/storage/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

type Backend struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

func (b *Backend) Close() {
	b.pool.Close()
}

// Migrate creates the schema. Every statement is idempotent.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schema, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info("Database schema is up to date")
	return nil
}

func (b *Backend) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return classify(pgx.BeginFunc(ctx, b.pool, fn))
}

// lockUsers takes row locks on the given users in id order and fails with
// ErrNotFound unless all of them exist.
func lockUsers(ctx context.Context, tx pgx.Tx, ids ...string) error {
	rows, err := tx.Query(ctx, `SELECT id FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	if len(found) == len(distinct(ids)) {
		return nil
	}
	present := make(map[string]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	for _, id := range ids {
		if !present[id] {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
	}
	return nil
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			result = append(result, id)
		}
	}
	return result
}

// classify maps driver errors onto the storage sentinels. Errors that
// already wrap a sentinel pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		models.ErrNotFound,
		models.ErrConflict,
		models.ErrInvalidArgument,
		models.ErrUnauthorized,
		models.ErrTransient,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%v: %w", err, models.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%v: %w", err, models.ErrTransient)
		case pgErr.Code == "23505":
			return fmt.Errorf("%v: %w", err, models.ErrConflict)
		case pgErr.Code == "23503":
			return fmt.Errorf("%v: %w", err, models.ErrNotFound)
		case pgErr.Code == "23514", pgErr.Code == "22P02":
			return fmt.Errorf("%v: %w", err, models.ErrInvalidArgument)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%v: %w", err, models.ErrTransient)
	}
	return err
}
