package hub

import (
	"io"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_StopImmediatelyAfterStart(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := NewServer("127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop())

		require.NoError(t, s.Start())
		require.NoError(t, s.Stop())
		assert.Empty(t, s.Addr())
	}
}

func TestServer_LifecycleErrors(t *testing.T) {
	// Setup
	s := NewServer("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}), zerolog.Nop())

	// Execute / Assert
	assert.ErrorContains(t, s.Stop(), "not running")
	require.NoError(t, s.Start())
	assert.ErrorContains(t, s.Start(), "already running")

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, s.Stop())
	assert.ErrorContains(t, s.Stop(), "not running")
}
