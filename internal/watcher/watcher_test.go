package watcher

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

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestFilters(t *testing.T) {
	assert.True(t, NoGitFilter("src/html/index.html"))
	assert.False(t, NoGitFilter("src/.git/HEAD"))
	assert.False(t, NoGitFilter(".git/index"))

	assert.True(t, NoEditorTempFilter("styles.scss"))
	for _, name := range []string{".#styles.scss", "styles.scss~", ".styles.scss.swp", "4913"} {
		assert.False(t, NoEditorTempFilter(filepath.Join("src", name)), name)
	}
}

func TestDedupe(t *testing.T) {
	events := dedupe([]ChangeEvent{
		{Type: EventTypeCreated, Path: "b"},
		{Type: EventTypeCreated, Path: "a"},
		{Type: EventTypeModified, Path: "b"},
	})
	assert.Equal(t, []ChangeEvent{
		{Type: EventTypeCreated, Path: "a"},
		{Type: EventTypeModified, Path: "b"},
	}, events)
}

func TestAddPathRejectsSystemDirs(t *testing.T) {
	fw, err := NewFileWatcher(0, nil)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddPath("/etc"))
	assert.Error(t, fw.AddPath("/non/existent/path"))
}

func TestAddRecursiveSkipsFiltered(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "html", "common"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	fw, err := NewFileWatcher(0, nil)
	require.NoError(t, err)
	defer fw.Stop()
	fw.AddFilter(NoGitFilter)

	require.NoError(t, fw.AddRecursive(root))
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "html"),
		filepath.Join(root, "html", "common"),
	}, fw.WatchList())
}

type collector struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (c *collector) handle(events []ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return nil
}

func (c *collector) has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestWatcherReportsChanges(t *testing.T) {
	root := t.TempDir()

	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	c := &collector{}
	fw.AddHandler(c.handle)
	fw.AddFilter(NoEditorTempFilter)
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	file := filepath.Join(root, "styles.scss")
	require.NoError(t, os.WriteFile(file, []byte("a{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "styles.scss~"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return c.has(file) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.has(filepath.Join(root, "styles.scss~")))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()

	fw, err := NewFileWatcher(0, nil)
	require.NoError(t, err)
	defer fw.Stop()

	c := &collector{}
	fw.AddHandler(c.handle)
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	dir := filepath.Join(root, "icons")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.Eventually(t, func() bool {
		for _, w := range fw.WatchList() {
			if w == dir {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	file := filepath.Join(dir, "cart.svg")
	require.NoError(t, os.WriteFile(file, []byte("<svg/>"), 0o644))
	assert.Eventually(t, func() bool { return c.has(file) }, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	assert.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}
