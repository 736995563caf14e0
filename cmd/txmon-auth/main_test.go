package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/txmon-auth/internal/auth"
	"github.com/alexjbarnes/txmon-auth/internal/config"
	"github.com/alexjbarnes/txmon-auth/internal/hashing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return strings.TrimSpace(out.String()), err
}

func TestGenKey(t *testing.T) {
	out, err := execute(t, "", "gen-key", "--hex", "--bytes", "32")
	require.NoError(t, err)

	raw, err := hex.DecodeString(out)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	_, err = execute(t, "", "gen-key", "--bytes", "8")
	assert.Error(t, err)
}

func TestHashSecret(t *testing.T) {
	out, err := execute(t, "s3cret\n", "hash-secret", "--iterations", "10000")
	require.NoError(t, err)

	h, err := hashing.New(hashing.MinIterations)
	require.NoError(t, err)

	ok, err := h.Verify("s3cret", out)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = execute(t, "", "hash-secret")
	assert.Error(t, err)
}

func TestSeed_IsRepeatable(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
users:
  - username: admin
    password: change-me-please
    role: Admin
clients:
  - client_id: reporting
    secret: reporting-secret-value
    scopes: [read]
`), 0o600))

	h, err := hashing.New(hashing.MinIterations)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := auth.NewClientRegistry(h, nil, logger)
	cfg := &config.Config{OAuthClients: "c1:s1:read write", SeedFile: seedPath}

	require.NoError(t, seed(context.Background(), cfg, registry, auth.NewMemoryUsers(h), logger))
	assert.Equal(t, 2, registry.Count())

	// A second pass against the same registry keeps existing clients.
	require.NoError(t, seed(context.Background(), &config.Config{OAuthClients: "c1:other"}, registry, auth.NewMemoryUsers(h), logger))
	assert.Equal(t, 2, registry.Count())

	c1, err := registry.GetByClientID(context.Background(), "c1")
	require.NoError(t, err)
	ok, err := h.Verify("s1", c1.ClientSecret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogRestore(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logRestore(logger, "state.db", 3, 3)
	line := buf.String()
	assert.Equal(t, "INFO", gjson.Get(line, "level").String())
	assert.Equal(t, int64(3), gjson.Get(line, "stored").Int())

	buf.Reset()
	logRestore(logger, "state.db", 3, 2)
	line = buf.String()
	assert.Equal(t, "WARN", gjson.Get(line, "level").String())
	assert.Equal(t, int64(2), gjson.Get(line, "restored").Int())
}
