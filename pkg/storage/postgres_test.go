package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"xqcrawler/pkg/models"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() || os.Getenv("XQCRAWLER_SKIP_DOCKER") != "" {
		t.Skip("skipping postgres container test")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "xq",
			"POSTGRES_PASSWORD": "xq",
			"POSTGRES_DB":       "xueqiu",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return "postgres://xq:xq@" + host + ":" + port.Port() + "/xueqiu?sslmode=disable"
}

func TestPostgresUpsert(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	var store *Postgres
	require.Eventually(t, func() bool {
		var err error
		store, err = NewPostgres(ctx, dsn, 4)
		return err == nil
	}, 30*time.Second, time.Second)
	defer store.Close()

	current := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	t.Run("post stored twice is one row", func(t *testing.T) {
		require.NoError(t, store.StorePost(ctx, &models.Post{ID: "301", Content: "first", LikeCount: 1}))
		current = current.Add(time.Minute)
		require.NoError(t, store.StorePost(ctx, &models.Post{ID: "301", Content: "second", LikeCount: 5}))

		var count int64
		require.NoError(t, store.db.Model(&models.Post{}).Where("status_id = ?", "301").Count(&count).Error)
		assert.Equal(t, int64(1), count)

		var got models.Post
		require.NoError(t, store.db.First(&got, "status_id = ?", "301").Error)
		assert.Equal(t, "second", got.Content)
		assert.Equal(t, int64(5), got.LikeCount)
		assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC).UnixMilli(), got.AddTS)
		assert.Equal(t, current.UnixMilli(), got.LastModifyTS)
	})

	t.Run("comment and creator upsert", func(t *testing.T) {
		require.NoError(t, store.StoreComment(ctx, &models.Comment{ID: "c1", PostID: "301", Content: "a"}))
		require.NoError(t, store.StoreComment(ctx, &models.Comment{ID: "c1", PostID: "301", Content: "b"}))
		require.NoError(t, store.StoreCreator(ctx, &models.Creator{UserID: "u1", ScreenName: "x"}))
		require.NoError(t, store.StoreCreator(ctx, &models.Creator{UserID: "u1", ScreenName: "y"}))

		var comments, creators int64
		store.db.Model(&models.Comment{}).Count(&comments)
		store.db.Model(&models.Creator{}).Count(&creators)
		assert.Equal(t, int64(1), comments)
		assert.Equal(t, int64(1), creators)

		var c models.Creator
		require.NoError(t, store.db.First(&c, "user_id = ?", "u1").Error)
		assert.Equal(t, "y", c.ScreenName)
	})

	t.Run("nul bytes are stripped", func(t *testing.T) {
		require.NoError(t, store.StorePost(ctx, &models.Post{ID: "302", Content: "a\x00b"}))
		var got models.Post
		require.NoError(t, store.db.First(&got, "status_id = ?", "302").Error)
		assert.Equal(t, "ab", got.Content)
	})
}
