package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	appconfig "github.com/crisos/crisos-core/internal/config"
	"github.com/crisos/crisos-core/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	return port
}

func TestNewRegistryHasRuntimeCollectors(t *testing.T) {
	reg := newRegistry()
	n, err := testutil.GatherAndCount(reg, "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	cfg := &appconfig.Config{
		Port:                 port,
		UseMemoryStore:       true,
		ConversationStateTTL: time.Hour,
		TurnLockTTL:          time.Second,
		AdminTokenTTL:        time.Hour,
		LoginRateLimit:       1,
		LoginRateBurst:       5,
		AlertEmailProvider:   "none",
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logging.New("error")) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + port + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
