package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Handle pins one pooled connection for a span of statements and owns the
// transaction begun on it, if any.
//
// A Handle is not safe for concurrent use. It belongs to exactly one session
// span and must be released on every exit path.
type Handle struct {
	conn *sql.Conn
	tx   *sql.Tx
}

// Acquire pins a connection from the pool.
func (s *Store) Acquire(ctx context.Context) (*Handle, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Handle{conn: conn}, nil
}

// InTx reports whether the handle currently owns a transaction.
func (h *Handle) InTx() bool {
	return h != nil && h.tx != nil
}

// Begin starts a transaction if none is active. The transaction takes the
// database write lock immediately and may block until it is available.
func (h *Handle) Begin(ctx context.Context) error {
	if h.conn == nil {
		return ErrHandleReleased
	}
	if h.tx != nil {
		return nil
	}
	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	h.tx = tx
	return nil
}

// Commit commits the active transaction, if any.
func (h *Handle) Commit() error {
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback rolls back the active transaction, if any.
func (h *Handle) Rollback() error {
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// Release rolls back any transaction still open and returns the connection
// to the pool. Safe to call more than once.
func (h *Handle) Release() error {
	if h == nil || h.conn == nil {
		return nil
	}
	rbErr := h.Rollback()
	closeErr := h.conn.Close()
	h.conn = nil
	return errors.Join(rbErr, closeErr)
}

func (h *Handle) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if h.conn == nil {
		return nil, ErrHandleReleased
	}
	if h.tx != nil {
		return h.tx.ExecContext(ctx, query, args...)
	}
	return h.conn.ExecContext(ctx, query, args...)
}

func (h *Handle) queryRowContext(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	if h.conn == nil {
		return nil, ErrHandleReleased
	}
	if h.tx != nil {
		return h.tx.QueryRowContext(ctx, query, args...), nil
	}
	return h.conn.QueryRowContext(ctx, query, args...), nil
}

// raw runs f against the driver connection underneath the handle. Any
// transaction on the handle stays active and visible to f.
func (h *Handle) raw(f func(driverConn any) error) error {
	if h.conn == nil {
		return ErrHandleReleased
	}
	return h.conn.Raw(f)
}

// inTx runs fn inside the handle's transaction, starting and finishing a
// local one when the caller does not already hold one.
func (h *Handle) inTx(ctx context.Context, fn func() error) error {
	if h.InTx() {
		return fn()
	}
	if err := h.Begin(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := h.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return h.Commit()
}
