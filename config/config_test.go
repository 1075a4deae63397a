package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_ENDPOINT", "")
	t.Setenv("FLUSH_DELAY", "")
	t.Setenv("DEVICE_PATH", "/tmp/duo.db")

	c := Load()

	assert.Equal(t, "localhost:6379", c.RedisEndpoint)
	assert.Equal(t, 120*time.Millisecond, c.FlushDelay)
	assert.Equal(t, 15*time.Minute, c.CodeTTL)
	assert.False(t, c.EnforceDailyDoodle)
	assert.NoError(t, c.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("FLUSH_DELAY", "250")
	t.Setenv("NUDGE_INTERVAL", "1m")
	t.Setenv("ENFORCE_DAILY_DOODLE", "1")
	t.Setenv("ARCHIVE_FLUSH_MILLIS", "not a number")
	t.Setenv("ARCHIVE_TABLE", "DuoArchive")

	c := Load()

	assert.True(t, c.DevMode)
	assert.Equal(t, 250*time.Millisecond, c.FlushDelay)
	assert.Equal(t, time.Minute, c.NudgeInterval)
	assert.True(t, c.EnforceDailyDoodle)
	assert.Equal(t, 5000, c.ArchiveFlushMillis)
	assert.Equal(t, "DuoArchive", c.ArchiveTable)
}

func TestValidate(t *testing.T) {
	c := &Config{RedisEndpoint: "", DevicePath: "", FlushDelay: 0}
	err := c.Validate()
	assert.ErrorContains(t, err, "REDIS_ENDPOINT")
	assert.ErrorContains(t, err, "DEVICE_PATH")
	assert.ErrorContains(t, err, "FLUSH_DELAY")

	c = &Config{RedisEndpoint: "r", DevicePath: "d", FlushDelay: time.Millisecond, CodeExpiryQueue: "q"}
	assert.ErrorContains(t, c.Validate(), "CODE_TTL")
}
