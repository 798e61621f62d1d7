package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
)

func TestConfiguration_EngineConfig(t *testing.T) {
	cb := func(*engine.Event) error { return nil }

	t.Run("defaults", func(t *testing.T) {
		var cfg Configuration
		nc := cfg.engineConfig(cb)

		assert.Equal(t, placeholderURL, nc.URL)
		assert.NotNil(t, nc.Callback)
		assert.Zero(t, nc.BufferSize)
		assert.Zero(t, nc.BufferSizeTx)
		assert.Zero(t, nc.Timeout)
		assert.Nil(t, nc.ClientCertPEM)
		assert.Nil(t, nc.ClientKeyPEM)
		assert.Equal(t, DefaultMaxRedirects, nc.MaxRedirects)
	})

	t.Run("explicit values", func(t *testing.T) {
		cfg := Configuration{
			BufferSize:        8192,
			BufferSizeTx:      4096,
			Timeout:           1500*time.Millisecond + 700*time.Microsecond,
			MaxRedirects:      4,
			ClientCertificate: "CERT",
			PrivateKey:        "KEY",
			UseGlobalCAStore:  true,
		}
		nc := cfg.engineConfig(cb)

		assert.Equal(t, 8192, nc.BufferSize)
		assert.Equal(t, 4096, nc.BufferSizeTx)
		assert.Equal(t, 1500*time.Millisecond, nc.Timeout)
		assert.Equal(t, 4, nc.MaxRedirects)
		assert.Equal(t, []byte("CERT"), nc.ClientCertPEM)
		assert.Equal(t, []byte("KEY"), nc.ClientKeyPEM)
		assert.True(t, nc.UseGlobalCAStore)
	})

	t.Run("certificate without key", func(t *testing.T) {
		cfg := Configuration{ClientCertificate: "CERT"}
		nc := cfg.engineConfig(cb)
		assert.Nil(t, nc.ClientCertPEM)
		assert.Nil(t, nc.ClientKeyPEM)
	})
}

func TestFollowRedirectsPolicy(t *testing.T) {
	var zero FollowRedirectsPolicy
	assert.Equal(t, FollowGetHead, zero)

	tests := []struct {
		policy FollowRedirectsPolicy
		method engine.Method
		want   bool
	}{
		{FollowGetHead, engine.MethodGet, true},
		{FollowGetHead, engine.MethodHead, true},
		{FollowGetHead, engine.MethodPost, false},
		{FollowGetHead, engine.MethodDelete, false},
		{FollowAll, engine.MethodPut, true},
		{FollowNone, engine.MethodGet, false},
		{FollowNone, engine.MethodHead, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.policy.follows(tt.method), "%s/%s", tt.policy, tt.method)
	}
}

func TestFollowRedirectsPolicy_Text(t *testing.T) {
	for _, p := range []FollowRedirectsPolicy{FollowGetHead, FollowNone, FollowAll} {
		text, err := p.MarshalText()
		require.NoError(t, err)

		var got FollowRedirectsPolicy
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, p, got)
	}

	var p FollowRedirectsPolicy
	require.NoError(t, p.UnmarshalText([]byte("ALL")))
	assert.Equal(t, FollowAll, p)

	err := p.UnmarshalText([]byte("sometimes"))
	assert.True(t, errors.IsType(err, errors.ErrorInvalidArgument))
}

func TestLoadConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpc.yaml")
	content := `buffer_size: 16384
timeout: 3s
follow_redirects: none
max_redirects: 2
use_global_ca_store: true
transport: net
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfiguration(path)
	require.NoError(t, err)

	assert.Equal(t, 16384, cfg.BufferSize)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, FollowNone, cfg.FollowRedirectsPolicy)
	assert.Equal(t, 2, cfg.MaxRedirects)
	assert.True(t, cfg.UseGlobalCAStore)
	assert.Equal(t, "net", cfg.Transport)
	assert.Nil(t, cfg.Logger)
}

func TestLoadConfiguration_Errors(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrorInvalidArgument))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("follow_redirects: maybe\n"), 0o600))
	_, err = LoadConfiguration(path)
	assert.Error(t, err)
}
