package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/testutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testTimeout = 10 * time.Minute

// backends lists both blob paths so every storage test runs against each.
var backends = []struct {
	name      string
	streaming bool
}{
	{"inline", false},
	{"streaming", true},
}

// createTestStore opens a fresh store in a temp dir with a fake clock.
func createTestStore(t *testing.T, streaming bool) (*Store, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testEpoch)
	s, err := Open(Options{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		Streaming: streaming,
		Timeout:   testTimeout,
		Clock:     clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// forEachBackend runs fn as a subtest against both blob backends.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store, clock *testutil.FakeClock)) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, clock := createTestStore(t, b.streaming)
			fn(t, s, clock)
		})
	}
}

// acquire pins a handle that is released at test cleanup.
func acquire(t *testing.T, s *Store) *Handle {
	t.Helper()
	h, err := s.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { h.Release() })
	return h
}

// mustUpsert writes data for id through a short-lived handle.
func mustUpsert(t *testing.T, s *Store, id string, data []byte) {
	t.Helper()
	ctx := context.Background()
	h, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer h.Release()
	_, err = s.Upsert(ctx, h, id, data)
	require.NoError(t, err)
}

// rawExpire reads the stored expire column without any filter.
func rawExpire(t *testing.T, s *Store, id string) int64 {
	t.Helper()
	var expire int64
	err := s.db.QueryRow("SELECT expire FROM sessions WHERE id = ?", id).Scan(&expire)
	require.NoError(t, err)
	return expire
}

// rowCount counts all physical rows.
func rowCount(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n))
	return n
}
