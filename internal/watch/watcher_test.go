package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan string, want int, timeout time.Duration) []string {
	t.Helper()
	var got []string
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case p, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, p)
		case <-deadline:
			return got
		}
	}
	return got
}

func TestInitialScanEmitsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "plate.dxf")
	require.NoError(t, os.WriteFile(existing, []byte("0\nSECTION\n0\nEOF\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Start(ctx, Config{Roots: []string{dir}, InitialScan: true}, nil)
	require.NoError(t, err)

	got := collect(t, events, 1, 3*time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, existing, got[0])
}

func TestWatcherSeesNewFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Start(ctx, Config{Roots: []string{dir}, Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	// give the watcher a moment to register before writing
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(dir, "bracket.lbrn2")
	require.NoError(t, os.WriteFile(target, []byte("<LightBurnProject/>"), 0o644))

	got := collect(t, events, 1, 5*time.Second)
	require.NotEmpty(t, got)
	assert.Equal(t, target, got[0])
}

func TestDebounceCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Start(ctx, Config{Roots: []string{dir}, Debounce: time.Millisecond}, nil)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	const n = 200
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, fmt.Sprintf("part-%03d.dxf", i))
		require.NoError(t, os.WriteFile(name, []byte("0\nEOF\n"), 0o644))
	}

	seen := map[string]struct{}{}
	deadline := time.After(10 * time.Second)
	for len(seen) < n {
		select {
		case p, ok := <-events:
			if !ok {
				t.Fatalf("channel closed after %d of %d files", len(seen), n)
			}
			seen[p] = struct{}{}
		case <-deadline:
			t.Fatalf("saw %d of %d files before deadline", len(seen), n)
		}
	}
}

func TestShutdownDuringDebounceWindow(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	events, _, err := Start(ctx, Config{Roots: []string{dir}, Debounce: time.Hour}, nil)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "plate.dxf"), []byte("0\nEOF\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "expected channel close, not a flush after cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestStartRequiresRoots(t *testing.T) {
	_, _, err := Start(context.Background(), Config{}, nil)
	assert.Error(t, err)
}
