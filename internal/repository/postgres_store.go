package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgStores struct {
	db DBTX
}

func (s pgStores) WorkItems() WorkItemRepository { return NewWorkItemRepository(s.db) }
func (s pgStores) Events() TransitionEventRepository { return NewTransitionEventRepository(s.db) }
func (s pgStores) Notes() NoteRepository { return NewNoteRepository(s.db) }
func (s pgStores) Sequences() SequenceRepository { return NewSequenceRepository(s.db) }

// PostgresStore is the pgx backed UnitOfWork.
type PostgresStore struct {
	pgStores
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgStores: pgStores{db: pool}, pool: pool}
}

// Atomically runs fn inside a transaction. Once fn has returned successfully the
// commit is no longer tied to ctx, so a cancelled request cannot abort it halfway.
func (s *PostgresStore) Atomically(ctx context.Context, fn func(Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	detached := context.WithoutCancel(ctx)
	defer tx.Rollback(detached) //nolint:errcheck

	if err := fn(pgStores{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(detached); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
