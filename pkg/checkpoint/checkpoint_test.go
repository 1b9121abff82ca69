package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xqcrawler/pkg/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(filepath.Join(t.TempDir(), "checkpoints"), logger.NewNopLogger())
	require.NoError(t, err)
	return mgr
}

func TestSaveAndLoad(t *testing.T) {
	mgr := newTestManager(t)
	task := TaskKey("search", "贵州茅台")

	loaded, err := mgr.Load(task)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	cp := &Checkpoint{Task: task, RunID: "run-1"}
	require.NoError(t, mgr.Advance(cp, 2, 40))
	assert.True(t, mgr.Exists(task))

	loaded, err = mgr.Load(task)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.LastPage)
	assert.Equal(t, 40, loaded.Collected)
	assert.Equal(t, 3, loaded.NextPage())
	assert.Equal(t, "run-1", loaded.RunID)
}

func TestSaveKeepsCreatedAt(t *testing.T) {
	mgr := newTestManager(t)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return first }

	cp := &Checkpoint{Task: TaskKey("creator", "42")}
	require.NoError(t, mgr.Save(cp))

	mgr.now = func() time.Time { return first.Add(time.Minute) }
	require.NoError(t, mgr.Advance(cp, 1, 20))

	loaded, err := mgr.Load(cp.Task)
	require.NoError(t, err)
	assert.True(t, loaded.CreatedAt.Equal(first))
	assert.True(t, loaded.UpdatedAt.Equal(first.Add(time.Minute)))
}

func TestDelete(t *testing.T) {
	mgr := newTestManager(t)
	task := TaskKey("search", "etf")

	require.NoError(t, mgr.Save(&Checkpoint{Task: task, LastPage: 1}))
	require.NoError(t, mgr.Delete(task))
	assert.False(t, mgr.Exists(task))

	// deleting twice is fine
	require.NoError(t, mgr.Delete(task))
}

func TestPathIsSafeAndDistinct(t *testing.T) {
	mgr := newTestManager(t)

	a := mgr.Path(TaskKey("search", "a/b"))
	b := mgr.Path(TaskKey("search", "a_b"))

	assert.NotEqual(t, a, b)
	assert.Equal(t, mgr.dir, filepath.Dir(a))
	assert.True(t, strings.HasSuffix(a, ".checkpoint.json"))
	assert.NotContains(t, filepath.Base(a), "/")

	long := mgr.Path(TaskKey("search", strings.Repeat("x", 300)))
	assert.Less(t, len(filepath.Base(long)), 100)
}

func TestLoadCorrupt(t *testing.T) {
	mgr := newTestManager(t)
	task := TaskKey("search", "bad")
	require.NoError(t, os.WriteFile(mgr.Path(task), []byte("{not json"), 0644))

	_, err := mgr.Load(task)
	assert.Error(t, err)
}

func TestNoTempFileLeftBehind(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Save(&Checkpoint{Task: "search:x"}))

	entries, err := os.ReadDir(mgr.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasSuffix(entries[0].Name(), ".tmp"))
}
