package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, path string, onReload func(*Config)) *Watcher {
	t.Helper()
	w, err := NewWatcher(
		NewLoader().WithConfigPath(path),
		onReload,
		WithPollInterval(20*time.Millisecond),
		WithDebounce(time.Millisecond),
	)
	require.NoError(t, err)
	return w
}

func TestNewWatcherRequiresConfigPath(t *testing.T) {
	_, err := NewWatcher(NewLoader(), nil)
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: openai\n  model: gpt-4o\n")

	var model atomic.Value
	w := newTestWatcher(t, path, func(cfg *Config) {
		model.Store(cfg.LLM.Model)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsRunning())

	// A rewrite with a bumped mtime triggers a reload.
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: openai\n  model: gpt-4.1\n"), 0o644))
	bump := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, bump, bump))

	require.Eventually(t, func() bool {
		v, _ := model.Load().(string)
		return v == "gpt-4.1"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: openai\n  model: gpt-4o\n")

	var reloads atomic.Int64
	w := newTestWatcher(t, path, func(*Config) {
		reloads.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// An invalid rewrite must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: \"\"\n  model: gpt-4o\n"), 0o644))
	bump := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, bump, bump))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, reloads.Load())
}

func TestWatcherPicksUpLateFileCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saiki.yaml")

	var reloads atomic.Int64
	w := newTestWatcher(t, path, func(*Config) {
		reloads.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: openai\n  model: gpt-4o\n"), 0o644))

	require.Eventually(t, func() bool {
		return reloads.Load() > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherDoubleStartRejected(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: openai\n  model: gpt-4o\n")
	w := newTestWatcher(t, path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.Error(t, w.Start(ctx))
}

func TestWatcherStopIdempotent(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: openai\n  model: gpt-4o\n")
	w := newTestWatcher(t, path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	w.Stop()
	w.Stop()
	assert.False(t, w.IsRunning())
}
