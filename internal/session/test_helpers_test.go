package session

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/payload"
	"github.com/roach88/sessionstore/internal/store"
	"github.com/roach88/sessionstore/internal/testutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testTimeout = 10 * time.Minute

var backends = []struct {
	name      string
	streaming bool
}{
	{"inline", false},
	{"streaming", true},
}

// M, L, S and I keep payload literals short.
type (
	M = payload.Map
	L = payload.List
	S = payload.String
	I = payload.Int
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestStore(t *testing.T, streaming bool) (*store.Store, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testEpoch)
	st, err := store.Open(store.Options{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		Streaming: streaming,
		Timeout:   testTimeout,
		Clock:     clock,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, clock
}

func forEachBackend(t *testing.T, fn func(t *testing.T, st *store.Store, clock *testutil.FakeClock)) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			st, clock := createTestStore(t, b.streaming)
			fn(t, st, clock)
		})
	}
}

// openLifecycle returns an opened Lifecycle that is closed at cleanup.
func openLifecycle(t *testing.T, st *store.Store, opts Options) *Lifecycle {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	l, err := New(st, opts)
	require.NoError(t, err)
	require.NoError(t, l.Open(context.Background()))
	t.Cleanup(func() { l.Close() })
	return l
}

func encode(t *testing.T, m M) []byte {
	t.Helper()
	data, err := payload.JSONCodec{}.Encode(m)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, data []byte) M {
	t.Helper()
	m, err := payload.JSONCodec{}.Decode(data)
	require.NoError(t, err)
	return m
}

// seed stores m for id directly, bypassing any merge.
func seed(t *testing.T, st *store.Store, id string, data []byte) {
	t.Helper()
	ctx := context.Background()
	h, err := st.Acquire(ctx)
	require.NoError(t, err)
	defer h.Release()
	_, err = st.Upsert(ctx, h, id, data)
	require.NoError(t, err)
}

// stored returns the live bytes for id, nil when absent.
func stored(t *testing.T, st *store.Store, id string) []byte {
	t.Helper()
	rec, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	if rec == nil {
		return nil
	}
	return rec.Data
}

// requireStored asserts the live payload for id decodes to want.
func requireStored(t *testing.T, st *store.Store, id string, want M) {
	t.Helper()
	data := stored(t, st, id)
	require.NotNil(t, data, "no live row for %s", id)
	got := decode(t, data)
	require.True(t, payload.Equal(want, got), "stored %s = %s, want %s", id, data, encode(t, want))
}
