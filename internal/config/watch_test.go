package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("insights:\n  cache:\n    ttlSeconds: 60\n"), 0o600))

	loader := NewLoader("SPROUT", path)
	changes := make(chan Config, 4)
	watcher, err := loader.Watch(context.Background(), func(cfg Config) {
		changes <- cfg
	}, func(err error) {
		t.Logf("watch error: %v", err)
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte("insights:\n  cache:\n    ttlSeconds: 90\n"), 0o600))

	select {
	case cfg := <-changes:
		require.Equal(t, 90, cfg.Insights.Cache.TTLSeconds)
	case <-time.After(5 * time.Second):
		t.Fatal("expected reload after config write")
	}
}

func TestWatchRequiresCallbackAndFile(t *testing.T) {
	loader := NewLoader("SPROUT")
	_, err := loader.Watch(context.Background(), nil, nil)
	require.Error(t, err)

	_, err = loader.Watch(context.Background(), func(Config) {}, nil)
	require.Error(t, err)
}

func TestWatchStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {}\n"), 0o600))

	watcher, err := NewLoader("SPROUT", path).Watch(context.Background(), func(Config) {}, nil)
	require.NoError(t, err)
	watcher.Stop()
	watcher.Stop()
}
