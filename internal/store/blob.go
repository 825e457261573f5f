package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ncruces/go-sqlite3"
)

// rawConn is implemented by the driver connections of
// github.com/ncruces/go-sqlite3/driver.
type rawConn interface {
	Raw() *sqlite3.Conn
}

// FetchedRow locates the data column of a row returned by a SELECT.
//
// Inline backends fill Data directly. Streaming backends leave Data nil and
// the bytes are read through the blob handle addressed by Table and RowID.
type FetchedRow struct {
	Table string
	RowID int64
	Size  int64
	Data  []byte
}

// BlobAdapter normalizes how the data column is written and read.
//
// Streaming adapters write a zero-filled placeholder in the statement and
// then fill it through the sink; inline adapters bind the bytes as the
// statement argument and have no sink stage.
type BlobAdapter interface {
	// Name identifies the adapter in logs.
	Name() string

	// Streaming reports whether writes go through OpenSink. Streaming
	// writes must run inside a transaction.
	Streaming() bool

	// Bind returns the SQL expression for the data column and its argument.
	Bind(data []byte) (expr string, arg any)

	// SelectData returns the SELECT expression used for the data column.
	SelectData() string

	// OpenSink returns a writer bound to the data column of the given row.
	// Bytes are materialized into the column no later than Close, which
	// must be called before the transaction ends.
	OpenSink(ctx context.Context, h *Handle, table string, rowID int64) (io.WriteCloser, error)

	// OpenSource returns the full contents of a fetched row's data column.
	OpenSource(ctx context.Context, h *Handle, row FetchedRow) (io.ReadCloser, error)
}

var errInlineSink = errors.New("inline blobs are bound in the statement")

// InlineBlobs binds the payload as a statement parameter coerced to BLOB and
// reads it straight out of the result row. No transaction is needed for the
// blob itself.
type InlineBlobs struct{}

// Name implements BlobAdapter.
func (InlineBlobs) Name() string { return "inline" }

// Streaming implements BlobAdapter.
func (InlineBlobs) Streaming() bool { return false }

// Bind implements BlobAdapter.
func (InlineBlobs) Bind(data []byte) (string, any) {
	if data == nil {
		data = []byte{}
	}
	return "CAST(? AS BLOB)", data
}

// SelectData implements BlobAdapter.
func (InlineBlobs) SelectData() string { return "data" }

// OpenSink implements BlobAdapter. Inline blobs have no sink stage.
func (InlineBlobs) OpenSink(context.Context, *Handle, string, int64) (io.WriteCloser, error) {
	return nil, errInlineSink
}

// OpenSource implements BlobAdapter.
func (InlineBlobs) OpenSource(_ context.Context, _ *Handle, row FetchedRow) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(row.Data)), nil
}

// StreamingBlobs writes the payload through SQLite incremental blob I/O:
// the statement stores zeroblob(n), then the bytes are copied into the blob
// handle opened on the row. Reads copy the whole blob handle into memory.
//
// Requires the github.com/ncruces/go-sqlite3 driver.
type StreamingBlobs struct{}

// Name implements BlobAdapter.
func (StreamingBlobs) Name() string { return "streaming" }

// Streaming implements BlobAdapter.
func (StreamingBlobs) Streaming() bool { return true }

// Bind implements BlobAdapter.
func (StreamingBlobs) Bind(data []byte) (string, any) {
	return "zeroblob(?)", len(data)
}

// SelectData implements BlobAdapter. The bytes are read through the blob
// handle, not the result row.
func (StreamingBlobs) SelectData() string { return "NULL" }

// OpenSink implements BlobAdapter.
func (StreamingBlobs) OpenSink(ctx context.Context, h *Handle, table string, rowID int64) (io.WriteCloser, error) {
	if !h.InTx() {
		return nil, fmt.Errorf("open blob sink: streaming writes require a transaction")
	}
	return &blobSink{ctx: ctx, h: h, table: table, rowID: rowID}, nil
}

// OpenSource implements BlobAdapter.
func (StreamingBlobs) OpenSource(ctx context.Context, h *Handle, row FetchedRow) (io.ReadCloser, error) {
	if row.Size == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	var buf bytes.Buffer
	err := h.raw(func(driverConn any) error {
		conn, err := sqliteConn(driverConn)
		if err != nil {
			return err
		}
		blob, err := conn.OpenBlob("main", row.Table, "data", row.RowID, false)
		if err != nil {
			return fmt.Errorf("open blob: %w", err)
		}
		buf.Grow(int(blob.Size()))
		_, copyErr := io.Copy(&buf, blob)
		return errors.Join(copyErr, blob.Close())
	})
	if err != nil {
		return nil, fmt.Errorf("open blob source: %w", err)
	}
	return io.NopCloser(&buf), nil
}

// blobSink buffers the payload in memory and copies it into the blob handle
// on Close. The zeroblob placeholder already has the final length.
type blobSink struct {
	ctx    context.Context
	h      *Handle
	table  string
	rowID  int64
	buf    bytes.Buffer
	closed bool
}

func (s *blobSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errors.New("write to closed blob sink")
	}
	return s.buf.Write(p)
}

// Close flushes the buffer into the blob and releases it. It runs exactly
// once; later calls are no-ops.
func (s *blobSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.buf.Reset()

	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.buf.Len() == 0 {
		return nil
	}

	return s.h.raw(func(driverConn any) error {
		conn, err := sqliteConn(driverConn)
		if err != nil {
			return err
		}
		blob, err := conn.OpenBlob("main", s.table, "data", s.rowID, true)
		if err != nil {
			return fmt.Errorf("open blob: %w", err)
		}
		if size := blob.Size(); size != int64(s.buf.Len()) {
			return errors.Join(
				fmt.Errorf("blob holds %d bytes, sink has %d", size, s.buf.Len()),
				blob.Close())
		}
		_, writeErr := blob.Write(s.buf.Bytes())
		return errors.Join(writeErr, blob.Close())
	})
}

func sqliteConn(driverConn any) (*sqlite3.Conn, error) {
	c, ok := driverConn.(rawConn)
	if !ok {
		return nil, fmt.Errorf("streaming blobs need a github.com/ncruces/go-sqlite3 connection, got %T", driverConn)
	}
	return c.Raw(), nil
}
