package logging

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"basket_swap/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestZapLogger_OTelBridge(t *testing.T) {
	tel, err := telemetry.SetupWithWriter("test-logger", io.Discard)
	require.NoError(t, err)
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := NewZapLogger("DEBUG")
	require.NoError(t, err)

	logger.Info("Test OTel bridging", "key", "value")

	// Wait a bit for OTel batching
	time.Sleep(200 * time.Millisecond)

	logger.Debug("Debug message", "status", "testing")
	_ = logger.Sync()
}

func TestZapLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerWithWriter("INFO", &buf)
	require.NoError(t, err)

	logger.WithField("component", "orchestrator").Info("Leg finished", "leg", 2, "status", "success")
	logger.Debug("hidden")
	_ = logger.Sync()

	out := buf.String()
	assert.Contains(t, out, "Leg finished")
	assert.Contains(t, out, `"component": "orchestrator"`)
	assert.Contains(t, out, `"leg": 2`)
	assert.NotContains(t, out, "hidden")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"debug", zap.DebugLevel.String(), false},
		{"", zap.InfoLevel.String(), false},
		{"WARNING", zap.WarnLevel.String(), false},
		{"ERROR", zap.ErrorLevel.String(), false},
		{"verbose", zap.InfoLevel.String(), true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, lvl.String())
		})
	}
}

func TestZapLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerWithWriter("INFO", &buf)
	require.NoError(t, err)

	logger.WithFields(map[string]interface{}{"api_key": "k-123"}).Info("Wallet loaded",
		"address", "0xa11ce",
		"privateKey", "raw-ed25519-seed",
		"raw", "suiprivkey1qqqsecret",
	)
	_ = logger.Sync()

	out := buf.String()
	assert.Contains(t, out, "0xa11ce")
	assert.NotContains(t, out, "k-123")
	assert.NotContains(t, out, "raw-ed25519-seed")
	assert.NotContains(t, out, "suiprivkey1qqqsecret")
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte(Redacted)))
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, isSecretKey("PRIVATE_KEY"))
	assert.True(t, isSecretKey("bot_token"))
	assert.True(t, isSecretKey("X-Api-Key"))
	assert.True(t, isSecretKey("redis_password"))
	assert.False(t, isSecretKey("token"))
	assert.False(t, isSecretKey("token_out"))
	assert.False(t, isSecretKey("digest"))
	assert.False(t, isSecretKey("coin_type"))
}
