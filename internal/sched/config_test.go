package sched

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticksched/internal/logx"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("skip_frames_budget_ms: 4\nframe_ms: 10\nlog_level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 4*time.Millisecond, cfg.SkipFramesBudget())
	assert.Equal(t, 10*time.Millisecond, cfg.Frame())
	assert.Equal(t, 20*time.Millisecond, cfg.FixedStep())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 64, cfg.PoolPrealloc)
}

func TestParseClampsNonsense(t *testing.T) {
	cfg, err := Parse([]byte("skip_frames_budget_ms: -3\nframe_ms: 0\nfixed_step_ms: -1\npool_prealloc: -9\nlog_level: \"\"\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.SkipFramesBudgetMS)
	assert.Equal(t, 16, cfg.FrameMS)
	assert.Equal(t, 20, cfg.FixedStepMS)
	assert.Zero(t, cfg.PoolPrealloc)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("frame_ms: [unterminated"))
	assert.Error(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("pool_prealloc: 8\nstatus_csv: out.csv\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.PoolPrealloc)
	assert.Equal(t, "out.csv", cfg.StatusCSV)
}

func TestWatchConfigAppliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("frame_ms: 16\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var frameMS atomic.Int64
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, logx.Nop(), func(cfg Config) {
			frameMS.Store(int64(cfg.FrameMS))
		})
	}()

	// the watcher starts asynchronously; rewrite slower than the debounce
	// window until it notices
	deadline := time.Now().Add(5 * time.Second)
	for frameMS.Load() != 33 {
		require.True(t, time.Now().Before(deadline), "config change never applied")
		require.NoError(t, os.WriteFile(path, []byte("frame_ms: 33\n"), 0o644))
		time.Sleep(3 * configDebounce)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
