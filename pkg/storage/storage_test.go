package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xqcrawler/pkg/config"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/models"
)

// fixedClock always reports the same instant.
func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	current := base
	m := NewMemory(func() time.Time { return current })

	require.NoError(t, m.StorePost(ctx, &models.Post{ID: "100", Content: "first", LikeCount: 1}))
	first, _ := m.Post("100")

	current = base.Add(time.Minute)
	require.NoError(t, m.StorePost(ctx, &models.Post{ID: "100", Content: "second", LikeCount: 9}))

	posts, _, _ := m.Counts()
	assert.Equal(t, 1, posts)

	got, ok := m.Post("100")
	require.True(t, ok)
	assert.Equal(t, "second", got.Content)
	assert.Equal(t, int64(9), got.LikeCount)
	assert.Equal(t, first.AddTS, got.AddTS)
	assert.Greater(t, got.LastModifyTS, first.LastModifyTS)
}

func TestMemoryLastModifyAdvancesOnFrozenClock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(fixedClock(time.Unix(1700000000, 0)))

	c := &models.Creator{UserID: "7", ScreenName: "a"}
	require.NoError(t, m.StoreCreator(ctx, c))
	firstTS := c.LastModifyTS

	require.NoError(t, m.StoreCreator(ctx, &models.Creator{UserID: "7", ScreenName: "b"}))
	got, _ := m.Creator("7")
	assert.Equal(t, "b", got.ScreenName)
	assert.Greater(t, got.LastModifyTS, firstTS)
	assert.Equal(t, firstTS, got.AddTS)
}

func TestMemoryCommentsGroupedByPost(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	for _, c := range []models.Comment{{ID: "1", PostID: "a"}, {ID: "2", PostID: "a"}, {ID: "3", PostID: "b"}} {
		c := c
		require.NoError(t, m.StoreComment(ctx, &c))
	}

	assert.Len(t, m.Comments("a"), 2)
	assert.Len(t, m.Comments("b"), 1)
}

func TestScrubRemovesNulBytes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.StorePost(ctx, &models.Post{ID: "1", Content: "a\x00b", ScreenName: "\x00x"}))

	got, _ := m.Post("1")
	assert.Equal(t, "ab", got.Content)
	assert.Equal(t, "x", got.ScreenName)
}

func TestJSONLAppends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir, FormatJSONL, fixedClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	require.NoError(t, fs.StorePost(ctx, &models.Post{ID: "1", Content: "v1"}))
	require.NoError(t, fs.StorePost(ctx, &models.Post{ID: "1", Content: "v2"}))

	path := filepath.Join(dir, "xueqiu", "json", "contents_2024-06-01.jsonl")
	assert.Equal(t, path, fs.Path(KindPost))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []models.Post
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var p models.Post
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &p))
		lines = append(lines, p)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "v2", lines[1].Content)
	assert.NotZero(t, lines[0].AddTS)
}

func TestCSVWritesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir, FormatCSV, fixedClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	require.NoError(t, fs.StoreComment(ctx, &models.Comment{ID: "1", PostID: "9", Content: "逗号, 和 \"引号\""}))
	require.NoError(t, fs.StoreComment(ctx, &models.Comment{ID: "2", PostID: "9"}))

	f, err := os.Open(filepath.Join(dir, "xueqiu", "csv", "comments_2024-06-01.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.CommentCSVHeader, rows[0])
	assert.Equal(t, "逗号, 和 \"引号\"", rows[1][6])
	assert.Equal(t, "9", rows[2][2])
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	gw, err := New(ctx, &config.StorageConfig{Backend: config.BackendMemory}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, gw)

	gw, err = New(ctx, &config.StorageConfig{Backend: config.BackendCSV, OutputDir: t.TempDir()}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, gw)

	_, err = New(ctx, &config.StorageConfig{Backend: "mongo"}, logger.NewNopLogger())
	assert.Error(t, err)
}
