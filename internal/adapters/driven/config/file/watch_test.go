package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloads struct {
	mu      sync.Mutex
	configs []*Config
}

func (r *reloads) add(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
}

func (r *reloads) last() (*Config, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.configs) == 0 {
		return nil, 0
	}
	return r.configs[len(r.configs)-1], len(r.configs)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[sources.websites]]
name = "one"
url = "https://one.example.com/"
`), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := &reloads{}
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, got.add) }()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`
[[sources.websites]]
name = "one"
url = "https://one.example.com/"

[[sources.websites]]
name = "two"
url = "https://two.example.com/"
`), 0600))

	require.Eventually(t, func() bool {
		cfg, _ := got.last()
		return cfg != nil && len(cfg.Sources) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// An invalid edit is ignored.
	_, before := got.last()
	require.NoError(t, os.WriteFile(path, []byte("[fetching]\ntimeout = 1\n"), 0600))
	time.Sleep(3 * reloadDelay)
	cfg, after := got.last()
	assert.Equal(t, before, after)
	assert.Len(t, cfg.Sources, 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := &reloads{}
	go func() { _ = Watch(ctx, path, got.add) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0600))
	time.Sleep(3 * reloadDelay)

	_, n := got.last()
	assert.Zero(t, n)
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "config.toml"), func(*Config) {})
	assert.Error(t, err)
}
