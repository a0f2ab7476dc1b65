package commands_test

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinero/internal/commands"
	"dinero/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SQLiteDBPath:        filepath.Join(t.TempDir(), "ledger.db"),
		StoreTimeout:        5 * time.Second,
		SnapshotConcurrency: 2,
		LogLevel:            "error",
		LogFormat:           "text",
	}
}

func runDinero(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := commands.NewRootCommand(cfg, io.Discard)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitDB(t *testing.T) {
	cfg := testConfig(t)

	out, err := runDinero(t, cfg, "init-db")
	require.NoError(t, err)
	assert.Contains(t, out, "Database ready at "+cfg.SQLiteDBPath)

	out, err = runDinero(t, cfg, "sources")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1, "header only")
}

func TestInitDBSeedIsIdempotent(t *testing.T) {
	cfg := testConfig(t)

	out, err := runDinero(t, cfg, "init-db", "--seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 2 sources and 3 transactions")

	out, err = runDinero(t, cfg, "init-db", "--seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 0 sources and 0 transactions")

	out, err = runDinero(t, cfg, "sources")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "BALANCE")
	assert.Contains(t, lines[1], "Efectivo")
	assert.Contains(t, lines[1], "495.00")
	assert.Contains(t, lines[2], "Cuenta Bancaria")
	assert.Contains(t, lines[2], "3200.00")
}

func TestBalance(t *testing.T) {
	cfg := testConfig(t)
	_, err := runDinero(t, cfg, "init-db", "--seed")
	require.NoError(t, err)

	out, err := runDinero(t, cfg, "balance", "--source", "2")
	require.NoError(t, err)
	assert.Equal(t, "3200.00", strings.TrimSpace(out))

	_, err = runDinero(t, cfg, "balance", "--source", "99")
	assert.Error(t, err)

	_, err = runDinero(t, cfg, "balance", "--source", "1", "--as-of", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC 3339")

	_, err = runDinero(t, cfg, "balance")
	assert.Error(t, err, "--source is required")
}

func TestSnapshot(t *testing.T) {
	cfg := testConfig(t)
	_, err := runDinero(t, cfg, "init-db", "--seed")
	require.NoError(t, err)

	out, err := runDinero(t, cfg, "snapshot")
	require.NoError(t, err)
	assert.Contains(t, out, "Refreshed 2 snapshots")

	out, err = runDinero(t, cfg, "balance", "--source", "1")
	require.NoError(t, err)
	assert.Equal(t, "495.00", strings.TrimSpace(out))
}

func TestDBFlagOverridesConfig(t *testing.T) {
	cfg := testConfig(t)
	other := filepath.Join(t.TempDir(), "other.db")

	out, err := runDinero(t, cfg, "--db", other, "init-db")
	require.NoError(t, err)
	assert.Contains(t, out, other)
}
