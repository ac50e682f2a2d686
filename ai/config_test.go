package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("options override defaults", func(t *testing.T) {
		cfg := NewConfig(
			WithHost("http://embed.internal:9100/v1"),
			WithModel("text-embedding-3-small"),
			WithAPIToken("secret"),
		)
		assert.Equal(t, "http://embed.internal:9100/v1", cfg.EmbeddingHost)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIToken)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds v1 suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"strips trailing slash first", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"leaves v1 alone", "http://localhost:11434/v1", "http://localhost:11434/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(WithHost(tt.host))
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("missing host", func(t *testing.T) {
		cfg := NewConfig(WithHost(""))
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing model", func(t *testing.T) {
		cfg := NewConfig(WithModel(""))
		assert.Error(t, cfg.Validate())
	})
}

func TestTransient(t *testing.T) {
	t.Run("wraps ordinary errors", func(t *testing.T) {
		base := errors.New("connection refused")
		err := Transient(base)
		assert.True(t, IsTransient(err))
		assert.ErrorIs(t, err, base)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Transient(nil))
	})

	t.Run("context cancellation is not transient", func(t *testing.T) {
		err := Transient(context.Canceled)
		assert.False(t, IsTransient(err))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unwrapped errors are not transient", func(t *testing.T) {
		assert.False(t, IsTransient(errors.New("permanent")))
	})
}
