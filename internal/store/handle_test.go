package store

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/testutil"
)

func TestHandle_ReleaseIdempotent(t *testing.T) {
	s, _ := createTestStore(t, false)
	h, err := s.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.Begin(context.Background()))
	assert.NoError(t, h.Release())
	assert.NoError(t, h.Release())
	assert.False(t, h.InTx())
}

func TestHandle_UseAfterRelease(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *testutil.FakeClock) {
		ctx := context.Background()
		h, err := s.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, h.Release())

		assert.ErrorIs(t, h.Begin(ctx), ErrHandleReleased)

		_, err = s.Fetch(ctx, h, "abc", false)
		assert.ErrorIs(t, err, ErrHandleReleased)

		_, err = s.Upsert(ctx, h, "abc", []byte("x"))
		assert.ErrorIs(t, err, ErrHandleReleased)

		assert.ErrorIs(t, s.Delete(ctx, h, "abc"), ErrHandleReleased)
	})
}

func TestHandle_CommitRollbackWithoutTx(t *testing.T) {
	s, _ := createTestStore(t, false)
	h := acquire(t, s)

	assert.NoError(t, h.Commit())
	assert.NoError(t, h.Rollback())
	assert.False(t, h.InTx())
}

func TestHandle_BeginTwice(t *testing.T) {
	s, _ := createTestStore(t, true)
	h := acquire(t, s)
	ctx := context.Background()

	require.NoError(t, h.Begin(ctx))
	require.NoError(t, h.Begin(ctx), "second Begin joins the open transaction")
	assert.True(t, h.InTx())
	require.NoError(t, h.Commit())
}

func TestHandle_ReleaseRollsBack(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *testutil.FakeClock) {
		ctx := context.Background()
		h, err := s.Acquire(ctx)
		require.NoError(t, err)

		require.NoError(t, h.Begin(ctx))
		_, err = s.Upsert(ctx, h, "abc", []byte("x"))
		require.NoError(t, err)
		require.NoError(t, h.Release())

		assert.Equal(t, 0, rowCount(t, s))
	})
}

func TestInlineBlobs(t *testing.T) {
	b := InlineBlobs{}

	expr, arg := b.Bind(nil)
	assert.Equal(t, "CAST(? AS BLOB)", expr)
	assert.Equal(t, []byte{}, arg)

	_, err := b.OpenSink(context.Background(), nil, "sessions", 1)
	assert.Error(t, err)

	src, err := b.OpenSource(context.Background(), nil, FetchedRow{Data: []byte("abc")})
	require.NoError(t, err)
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestStreamingBlobs_Bind(t *testing.T) {
	expr, arg := StreamingBlobs{}.Bind([]byte("hello"))
	assert.Equal(t, "zeroblob(?)", expr)
	assert.Equal(t, 5, arg)
}

func TestStreamingBlobs_SinkRequiresTransaction(t *testing.T) {
	s, _ := createTestStore(t, true)
	h := acquire(t, s)

	_, err := s.Blobs().OpenSink(context.Background(), h, s.Table(), 1)
	assert.Error(t, err)
}

func TestStreamingBlobs_SinkCloseTwice(t *testing.T) {
	s, _ := createTestStore(t, true)
	ctx := context.Background()
	h := acquire(t, s)
	require.NoError(t, h.Begin(ctx))

	res, err := h.execContext(ctx, "INSERT INTO sessions (id, expire, data) VALUES ('x', 0, zeroblob(3))")
	require.NoError(t, err)
	rowID, err := res.LastInsertId()
	require.NoError(t, err)

	sink, err := s.Blobs().OpenSink(ctx, h, s.Table(), rowID)
	require.NoError(t, err)
	_, err = sink.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	_, err = sink.Write([]byte("d"))
	assert.Error(t, err)

	row, err := s.fetchRow(ctx, h, "x", false)
	require.NoError(t, err)
	data, err := s.readData(ctx, h, row.FetchedRow)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	require.NoError(t, h.Commit())
}

func TestStreamingBlobs_DriverConnection(t *testing.T) {
	s, _ := createTestStore(t, true)
	h := acquire(t, s)

	err := h.raw(func(driverConn any) error {
		conn, err := sqliteConn(driverConn)
		if err != nil {
			return err
		}
		assert.NotNil(t, conn)
		return nil
	})
	require.NoError(t, err)

	_, err = sqliteConn(struct{}{})
	assert.Error(t, err)
}
