package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Run("fills unset pool settings", func(t *testing.T) {
		cfg := Config{URL: "postgres://localhost/canonform_engine"}.withDefaults()

		assert.Equal(t, int32(10), cfg.MaxConnections)
		assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
		assert.Equal(t, 30*time.Minute, cfg.MaxConnIdleTime)
	})

	t.Run("keeps explicit settings", func(t *testing.T) {
		cfg := Config{
			MaxConnections:  3,
			MaxConnLifetime: 10 * time.Minute,
			MaxConnIdleTime: time.Minute,
		}.withDefaults()

		assert.Equal(t, int32(3), cfg.MaxConnections)
		assert.Equal(t, 10*time.Minute, cfg.MaxConnLifetime)
		assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
	})
}
