package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedBurstAndRefill(t *testing.T) {
	k := New(1, 2)
	now := time.Now()
	assert.True(t, k.AllowAt("a", now))
	assert.True(t, k.AllowAt("a", now))
	assert.False(t, k.AllowAt("a", now))
	assert.True(t, k.AllowAt("b", now))
	assert.True(t, k.AllowAt("a", now.Add(1100*time.Millisecond)))
	assert.Equal(t, 2, k.Len())
}

func TestEveryIsACooldown(t *testing.T) {
	k := Every(5 * time.Minute)
	now := time.Now()
	assert.True(t, k.AllowAt("cycle:critical:dispatch failed", now))
	assert.False(t, k.AllowAt("cycle:critical:dispatch failed", now.Add(time.Minute)))
	assert.True(t, k.AllowAt("cycle:critical:dispatch failed", now.Add(5*time.Minute+time.Second)))
}
