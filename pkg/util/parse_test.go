package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2025-01-03T14:30:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 3, 14, 30, 0, 0, time.UTC), got.UTC())

	got, ok = ParseTime("2025-07-04")
	require.True(t, ok)
	assert.Equal(t, time.July, got.Month())

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok = ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestDefaults(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("", def))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 3, ParseIntDefault("3", 7))
	assert.Equal(t, 250*time.Millisecond, ParseDurationDefault("250", time.Second))
	assert.Equal(t, 2*time.Second, ParseDurationDefault("2s", time.Second))
	assert.Equal(t, time.Second, ParseDurationDefault("-5s", time.Second))
}
