package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmyyl/xpert-framework/internal/store"
	"github.com/slmyyl/xpert-framework/internal/testutil"
)

// cliEnv is a seeded sqlite database plus an entities directory.
type cliEnv struct {
	dir      string
	db       string
	entities string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	env := &cliEnv{
		dir:      dir,
		db:       filepath.Join(dir, "xpert.db"),
		entities: filepath.Join(dir, "entities"),
	}

	require.NoError(t, os.Mkdir(env.entities, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.entities, "entities.cue"), []byte(testutil.EntitiesCUE), 0o644))

	st, err := store.Open(ctx, store.Options{DSN: env.db})
	require.NoError(t, err)
	require.NoError(t, testutil.Seed(ctx, st.DB()))
	require.NoError(t, st.Close())
	return env
}

// run executes the root command against the environment's database.
func (e *cliEnv) run(args ...string) (stdout string, stderr string, err error) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--db", e.db, "--entities", e.entities}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func decode(t *testing.T, s string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(s), &resp), s)
	return resp
}

func TestList(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("list", "-e", "Person", "--where", "age = 30", "--order", "name")
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "name=Ann")
	assert.Contains(t, got[0], "email=ann@example.com")
	assert.Contains(t, got[0], "address=1")
	assert.Contains(t, got[1], "name=Cid")
	assert.Contains(t, got[1], "email=NULL")
}

func TestList_Paging(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("list", "-e", "Person", "--order", "age desc, name", "--first", "1", "--max", "1")
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "name=Ann")
}

func TestList_Attributes(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("list", "-e", "Person", "--attrs", "name, address.city", "--order", "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann\tOslo", "Bob\tBergen", "Cid\tNULL"}, lines(out))

	out, _, err = env.run("--format", "json", "list", "-e", "Person", "--attrs", "name", "--where", "age > 35")
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{[]any{"Bob"}}, resp.Data)
}

func TestList_JSONRecords(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("--format", "json", "list", "-e", "Order", "--where", "total > 10", "--order", "total")
	require.NoError(t, err)
	resp := decode(t, out)
	rows, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	assert.Equal(t, "o-1", first["id"])
	assert.Equal(t, 10.5, first["total"])
	assert.Equal(t, float64(1), first["person"])
}

func TestCount(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("count", "-e", "Person")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, _, err = env.run("--format", "json", "count", "-e", "Person", "--where", "address.city = 'Oslo'")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":1}`, out)
}

func TestUnique(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("unique", "-e", "Person", "--where", "name = 'Bob'")
	require.NoError(t, err)
	assert.Contains(t, out, "name=Bob")

	out, _, err = env.run("unique", "-e", "Person", "--where", "name = 'Nobody'")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = env.run("unique", "-e", "Person", "--where", "age = 30")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E012]")
}

func TestFind(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("find", "-e", "Person", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "name=Ann")

	out, _, err = env.run("find", "-e", "Order", "o-3")
	require.NoError(t, err)
	assert.Contains(t, out, "total=5")

	out, _, err = env.run("find", "-e", "Person", "99")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E011]")

	_, _, err = env.run("find", "-e", "Person", "abc")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDeleteAndHistory(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("delete", "-e", "Person", "3")
	require.NoError(t, err)
	assert.Equal(t, "deleted Person 3\n", out)

	out, _, err = env.run("count", "-e", "Person")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, _, err = env.run("history", "-e", "Person", "3")
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "delete Person 3")

	out, _, err = env.run("--format", "json", "history", "-e", "Person")
	require.NoError(t, err)
	resp := decode(t, out)
	entries := resp.Data.([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "delete", entry["operation"])
	assert.Equal(t, "Cid", entry["before"].(map[string]any)["name"])

	// Ann still has orders
	out, _, err = env.run("delete", "-e", "Person", "1")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E013]")

	out, _, err = env.run("delete", "-e", "Person", "99")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "NOT_FOUND")
}

func TestCommandErrors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{"bad filter", []string{"list", "-e", "Person", "--where", "age 30"}, "E010", ExitCommandError},
		{"unknown property", []string{"list", "-e", "Person", "--where", "height = 3"}, "E010", ExitCommandError},
		{"unknown entity", []string{"count", "-e", "Ghost"}, "E005", ExitCommandError},
		{"bad driver", []string{"--driver", "mysql", "count", "-e", "Person"}, "E002", ExitCommandError},
		{"missing entities", []string{"--entities", filepath.Join(env.dir, "nope"), "count", "-e", "Person"}, "E003", ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := env.run(append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			resp := decode(t, out)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	cfgPath := filepath.Join(env.dir, "xpert.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("dsn: xpert.db\nentities: entities\naudit: false\n"), 0o600))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "count", "-e", "Address"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "2\n", out.String())

	historyOut, _, err := env.run("--config", cfgPath, "history", "-e", "Person")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, historyOut, "Error [E015]")
}
