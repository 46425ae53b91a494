package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	t.Setenv("GOSHIELD_DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")

	o, rest, err := parseOptions([]string{"-dsn", "postgres://x", "-migrate", "list", "-e", "a@b"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, "postgres://x", o.dsn)
	require.Equal(t, "localhost:6379", o.redisAddr)
	require.True(t, o.migrate)
	require.Equal(t, []string{"list", "-e", "a@b"}, rest)

	_, _, err = parseOptions([]string{"list"}, io.Discard)
	require.ErrorContains(t, err, "connection string is required")
}

func TestParseOptionsFromEnv(t *testing.T) {
	t.Setenv("GOSHIELD_DATABASE_URL", "postgres://env")
	t.Setenv("REDIS_ADDR", "redis:6380")

	o, _, err := parseOptions([]string{"list"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, "postgres://env", o.dsn)
	require.Equal(t, "redis:6380", o.redisAddr)
}
