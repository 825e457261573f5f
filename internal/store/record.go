package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"
)

// Record is one session row.
type Record struct {
	ID       string
	ExpireAt time.Time
	Data     []byte
}

// Fetch returns the live record for id, or nil when no unexpired row exists.
//
// When exclusive is true the read runs inside the handle's transaction,
// starting one if needed; the lock is held until the caller commits or
// rolls back.
func (s *Store) Fetch(ctx context.Context, h *Handle, id string, exclusive bool) (*Record, error) {
	if exclusive {
		if err := h.Begin(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", id, err)
		}
	}

	row, err := s.fetchRow(ctx, h, id, true)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	if row == nil {
		return nil, nil
	}

	data, err := s.readData(ctx, h, row.FetchedRow)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	return &Record{ID: id, ExpireAt: time.Unix(row.expire, 0), Data: data}, nil
}

// Exists reports whether any row exists for id, expired or not.
func (s *Store) Exists(ctx context.Context, h *Handle, id string) (bool, error) {
	row, err := h.queryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", s.table), id)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	var one int
	switch err := row.Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return true, nil
}

// Upsert writes data for id with a fresh expiry of now + timeout. An
// existing row for id, live or expired, is updated in place; otherwise a new
// row is inserted. Returns whether a row was inserted.
func (s *Store) Upsert(ctx context.Context, h *Handle, id string, data []byte) (inserted bool, err error) {
	expire := s.expireAt()
	write := func() error {
		inserted, err = s.upsert(ctx, h, id, expire, data)
		return err
	}

	if s.blobs.Streaming() {
		err = h.inTx(ctx, write)
	} else {
		err = write()
	}
	if err != nil {
		return false, fmt.Errorf("upsert %s: %w", id, err)
	}
	return inserted, nil
}

func (s *Store) upsert(ctx context.Context, h *Handle, id string, expire int64, data []byte) (bool, error) {
	expr, arg := s.blobs.Bind(data)

	res, err := h.execContext(ctx,
		fmt.Sprintf("UPDATE %s SET expire = ?, data = %s WHERE id = ?", s.table, expr),
		expire, arg, id)
	if err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if n > 0 {
		if !s.blobs.Streaming() {
			return false, nil
		}
		rowID, err := s.rowID(ctx, h, id)
		if err != nil {
			return false, err
		}
		return false, s.fill(ctx, h, rowID, data)
	}

	if err := s.insert(ctx, h, id, expire, data); err != nil {
		return false, err
	}
	return true, nil
}

// insert adds a new row and fills its blob.
func (s *Store) insert(ctx context.Context, h *Handle, id string, expire int64, data []byte) error {
	expr, arg := s.blobs.Bind(data)

	res, err := h.execContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, expire, data) VALUES (?, ?, %s)", s.table, expr),
		id, expire, arg)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if !s.blobs.Streaming() {
		return nil
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return s.fill(ctx, h, rowID, data)
}

// fill copies data into the blob sink of a streamed row and closes it.
func (s *Store) fill(ctx context.Context, h *Handle, rowID int64, data []byte) error {
	sink, err := s.blobs.OpenSink(ctx, h, s.table, rowID)
	if err != nil {
		return err
	}
	if _, err := sink.Write(data); err != nil {
		return errors.Join(fmt.Errorf("write blob: %w", err), sink.Close())
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	return nil
}

// Rekey moves the session stored under oldID to newID.
//
// The old row is read without the expiry filter. With deleteOld the id
// column is updated in place and the blob is left untouched; otherwise the
// row is copied, expire and data included, and the old row stays. When no
// row exists for oldID at all, an empty row with a fresh expiry is inserted
// for newID; if newID is already taken in that case, ErrRekeyConflict is
// returned.
//
// Runs inside the handle's transaction, or a local one.
func (s *Store) Rekey(ctx context.Context, h *Handle, oldID, newID string, deleteOld bool) error {
	err := h.inTx(ctx, func() error {
		row, err := s.fetchRow(ctx, h, oldID, false)
		if err != nil {
			return err
		}

		if row == nil {
			taken, err := s.Exists(ctx, h, newID)
			if err != nil {
				return err
			}
			if taken {
				return ErrRekeyConflict
			}
			return s.insert(ctx, h, newID, s.expireAt(), nil)
		}

		if deleteOld {
			_, err := h.execContext(ctx,
				fmt.Sprintf("UPDATE %s SET id = ? WHERE id = ?", s.table), newID, oldID)
			if err != nil {
				return fmt.Errorf("update id: %w", err)
			}
			return nil
		}

		data, err := s.readData(ctx, h, row.FetchedRow)
		if err != nil {
			return err
		}
		return s.insert(ctx, h, newID, row.expire, data)
	})
	if err != nil {
		return fmt.Errorf("rekey %s -> %s: %w", oldID, newID, err)
	}
	return nil
}

// Delete removes the row for id, live or expired. Deleting a missing id is
// not an error.
func (s *Store) Delete(ctx context.Context, h *Handle, id string) error {
	_, err := h.execContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Purge physically removes expired rows and returns how many were deleted.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE expire <= ?", s.table), s.clock.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge: rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged expired sessions", "count", n)
	}
	return n, nil
}

// Get is a convenience for a one-off non-locking fetch outside any span.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	h, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return s.Fetch(ctx, h, id, false)
}

// fetchedRow is a FetchedRow plus the columns the store itself needs.
type fetchedRow struct {
	FetchedRow
	expire int64
}

// fetchRow selects the row for id. With live set, expired rows are skipped.
// Returns nil when nothing matches.
func (s *Store) fetchRow(ctx context.Context, h *Handle, id string, live bool) (*fetchedRow, error) {
	query := fmt.Sprintf(
		"SELECT rowid, expire, length(data), %s FROM %s WHERE id = ?",
		s.blobs.SelectData(), s.table)
	args := []any{id}
	if live {
		query += " AND expire > ?"
		args = append(args, s.clock.Now().Unix())
	}

	row, err := h.queryRowContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var (
		out  = fetchedRow{FetchedRow: FetchedRow{Table: s.table}}
		size sql.NullInt64
	)
	err = row.Scan(&out.RowID, &out.expire, &size, &out.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out.Size = size.Int64
	return &out, nil
}

// readData drains the blob source for a fetched row.
func (s *Store) readData(ctx context.Context, h *Handle, row FetchedRow) ([]byte, error) {
	src, err := s.blobs.OpenSource(ctx, h, row)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Store) rowID(ctx context.Context, h *Handle, id string) (int64, error) {
	row, err := h.queryRowContext(ctx, fmt.Sprintf("SELECT rowid FROM %s WHERE id = ?", s.table), id)
	if err != nil {
		return 0, err
	}
	var rowID int64
	if err := row.Scan(&rowID); err != nil {
		return 0, fmt.Errorf("select rowid: %w", err)
	}
	return rowID, nil
}

func (s *Store) expireAt() int64 {
	return s.clock.Now().Add(s.timeout).Unix()
}
