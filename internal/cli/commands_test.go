package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/store"
	"github.com/roach88/sessionstore/internal/testutil"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{IDs: testutil.NewSequenceIDs("")}
	cmd := newRootCommand(opts)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// mustRun executes args against db and fails the test on error.
func mustRun(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, append(args, "--db", db)...)
	require.NoError(t, err, "sessionstore %s", strings.Join(args, " "))
	return out
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sessions.db")
}

func TestInit(t *testing.T) {
	db := tempDB(t)

	out := mustRun(t, db, "init")
	assert.Contains(t, out, "Initialized "+db)
	assert.Contains(t, out, "inline blobs")

	out = mustRun(t, db, "init", "--streaming", "--format", "json")
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "streaming", data["blobs"])
	assert.Equal(t, "sessions", data["table"])
}

func TestInit_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sessionstore.yaml")
	dbPath := filepath.Join(dir, "from-config.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"database:\n  path: "+dbPath+"\n  table: yii_session\nbackend:\n  streaming: true\n"), 0o600))

	out, err := runCLI(t, "init", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized "+dbPath)
	assert.Contains(t, out, "table yii_session")
	assert.Contains(t, out, "streaming blobs")

	out, err = runCLI(t, "init", "-c", cfgPath, "--streaming=false")
	require.NoError(t, err)
	assert.Contains(t, out, "inline blobs", "flag overrides config")
}

func TestInit_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("session:\n  timeout: 0s\n"), 0o600))

	_, err := runCLI(t, "init", "-c", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPutGet(t *testing.T) {
	for _, streaming := range []string{"--streaming=false", "--streaming=true"} {
		t.Run(streaming, func(t *testing.T) {
			db := tempDB(t)

			out := mustRun(t, db, "put", "abc", `{"user": {"name": "Ada", "id": 42}, "cart": ["apple", 2]}`, streaming)
			assert.Contains(t, out, "Wrote session abc (2 top-level fields)")

			out = mustRun(t, db, "get", "abc", streaming)
			assert.Equal(t, `{"cart":["apple",2],"user":{"id":42,"name":"Ada"}}`+"\n", out)
		})
	}
}

func TestGet_JSONGolden(t *testing.T) {
	db := tempDB(t)
	mustRun(t, db, "put", "abc", `{"flags": {"beta": true}, "ratio": 0.25, "visits": 3}`)

	out := mustRun(t, db, "get", "abc", "--format", "json")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "get_json", []byte(out))
}

func TestGet_Raw(t *testing.T) {
	db := tempDB(t)
	st, err := store.Open(store.Options{Path: db})
	require.NoError(t, err)
	st.Close()
	seedRow(t, db, "abc", []byte("opaque\x00bytes"))

	out := mustRun(t, db, "get", "abc", "--raw")
	assert.Equal(t, "opaque\x00bytes", out)

	_, err = runCLI(t, "get", "abc", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "undecodable payload without --raw")
}

func TestGet_Missing(t *testing.T) {
	db := tempDB(t)

	out, err := runCLI(t, "get", "nope", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E001]: session nope not found")
}

func TestPut_RejectsNonObject(t *testing.T) {
	_, err := runCLI(t, "put", "abc", `[1,2]`, "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPut_RemovesDroppedFields(t *testing.T) {
	db := tempDB(t)
	mustRun(t, db, "put", "abc", `{"a":1,"b":2}`)
	mustRun(t, db, "put", "abc", `{"a":1}`)

	assert.Equal(t, `{"a":1}`+"\n", mustRun(t, db, "get", "abc"))
}

func TestSetUnset(t *testing.T) {
	db := tempDB(t)

	mustRun(t, db, "set", "abc", "user.name", `"Ada"`)
	mustRun(t, db, "set", "abc", "cart", `[1]`)
	assert.Equal(t, `{"cart":[1],"user":{"name":"Ada"}}`+"\n", mustRun(t, db, "get", "abc"))

	mustRun(t, db, "unset", "abc", "user.name")
	assert.Equal(t, `{"cart":[1],"user":{}}`+"\n", mustRun(t, db, "get", "abc"))

	out, err := runCLI(t, "unset", "abc", "user.name", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "field user.name not set")
}

func TestSet_InvalidArguments(t *testing.T) {
	db := tempDB(t)

	_, err := runCLI(t, "set", "abc", "a..b", "1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = runCLI(t, "set", "abc", "a", "{not json", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRotate(t *testing.T) {
	db := tempDB(t)
	mustRun(t, db, "put", "old", `{"a":1}`)

	out := mustRun(t, db, "rotate", "old", "new", "--delete-old")
	assert.Contains(t, out, "Moved session old to new")
	assert.Equal(t, `{"a":1}`+"\n", mustRun(t, db, "get", "new"))

	_, err := runCLI(t, "get", "old", "--db", db)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRotate_GeneratesID(t *testing.T) {
	db := tempDB(t)
	mustRun(t, db, "put", "old", `{"a":1}`)

	out := mustRun(t, db, "rotate", "old", "--format", "json")
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "s0000000000000000000000000000001", data["new_id"])
	assert.Equal(t, false, data["delete_old"])

	assert.Equal(t, `{"a":1}`+"\n", mustRun(t, db, "get", "old"))
	assert.Equal(t, `{"a":1}`+"\n", mustRun(t, db, "get", "s0000000000000000000000000000001"))
}

func TestRotate_Conflict(t *testing.T) {
	db := tempDB(t)
	mustRun(t, db, "put", "taken", `{"a":1}`)

	_, err := runCLI(t, "rotate", "ghost", "taken", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, `{"a":1}`+"\n", mustRun(t, db, "get", "taken"))
}

func TestDestroy(t *testing.T) {
	db := tempDB(t)
	mustRun(t, db, "put", "abc", `{"a":1}`)

	assert.Contains(t, mustRun(t, db, "destroy", "abc"), "Destroyed session abc")

	_, err := runCLI(t, "get", "abc", "--db", db)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPurge(t *testing.T) {
	db := tempDB(t)
	mustRun(t, db, "put", "stale", `{"a":1}`)
	mustRun(t, db, "put", "fresh", `{"b":1}`)
	expireRow(t, db, "stale")

	assert.Contains(t, mustRun(t, db, "purge"), "Purged 1 expired sessions")
	assert.Contains(t, mustRun(t, db, "purge"), "Purged 0 expired sessions")
	assert.Equal(t, `{"b":1}`+"\n", mustRun(t, db, "get", "fresh"))
}

func TestNew(t *testing.T) {
	out, err := runCLI(t, "new")
	require.NoError(t, err)
	assert.Equal(t, "s0000000000000000000000000000001\n", out)
}

func TestNew_DefaultGenerator(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"new"})

	require.NoError(t, cmd.Execute())
	assert.Regexp(t, `^[0-9a-f]{32}\n$`, out.String())
}

func seedRow(t *testing.T, db, id string, data []byte) {
	t.Helper()
	st, err := store.Open(store.Options{Path: db})
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	h, err := st.Acquire(ctx)
	require.NoError(t, err)
	defer h.Release()
	_, err = st.Upsert(ctx, h, id, data)
	require.NoError(t, err)
}

func expireRow(t *testing.T, db, id string) {
	t.Helper()
	st, err := store.Open(store.Options{Path: db})
	require.NoError(t, err)
	defer st.Close()

	_, err = st.DB().Exec("UPDATE sessions SET expire = 0 WHERE id = ?", id)
	require.NoError(t, err)
}
