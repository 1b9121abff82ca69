package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"xqcrawler/pkg/models"
)

// Columns rewritten on conflict. add_ts is never among them.
var (
	postUpdateColumns = []string{
		"id_kind", "type", "title", "content", "content_text", "target_text", "topic_desc",
		"source", "status_url", "like_count", "reply_count", "retweet_count", "reward_count",
		"created_at", "created_at_text", "user_id", "screen_name", "profile_image",
		"verified_description", "source_keyword", "last_modify_ts",
	}
	commentUpdateColumns = []string{
		"id_kind", "post_id", "user_id", "nickname", "avatar", "content", "like_count",
		"parent_comment_id", "reply_to_user", "created_at", "last_modify_ts",
	}
	creatorUpdateColumns = []string{
		"screen_name", "description", "city", "province", "profile_image", "followers_count",
		"friends_count", "statuses_count", "verified_type", "verified_description", "last_modify_ts",
	}
)

// Postgres is the strict upserting gateway. gorm runs over a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	sql  *sql.DB
	db   *gorm.DB
	now  Clock
}

// NewPostgres connects, pings and migrates the three tables.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&models.Post{}, &models.Comment{}, &models.Creator{}); err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Postgres{pool: pool, sql: sqlDB, db: db, now: timeNow}, nil
}

// upsert inserts value or, on a key conflict, rewrites its mutable columns.
// Each write is its own transaction.
func (s *Postgres) upsert(ctx context.Context, value any, key string, columns []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: key}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(value).Error
	})
}

func (s *Postgres) stamp(ts *models.Timestamps) {
	now := millis(s.now())
	ts.AddTS = now
	ts.LastModifyTS = now
}

// StorePost upserts a post keyed by status id.
func (s *Postgres) StorePost(ctx context.Context, p *models.Post) error {
	scrubPost(p)
	s.stamp(&p.Timestamps)
	if err := s.upsert(ctx, p, "status_id", postUpdateColumns); err != nil {
		return fmt.Errorf("store post %s: %w", p.ID, err)
	}
	return nil
}

// StoreComment upserts a comment keyed by comment id.
func (s *Postgres) StoreComment(ctx context.Context, c *models.Comment) error {
	scrubComment(c)
	s.stamp(&c.Timestamps)
	if err := s.upsert(ctx, c, "comment_id", commentUpdateColumns); err != nil {
		return fmt.Errorf("store comment %s: %w", c.ID, err)
	}
	return nil
}

// StoreCreator upserts a creator keyed by user id.
func (s *Postgres) StoreCreator(ctx context.Context, c *models.Creator) error {
	scrubCreator(c)
	s.stamp(&c.Timestamps)
	if err := s.upsert(ctx, c, "user_id", creatorUpdateColumns); err != nil {
		return fmt.Errorf("store creator %s: %w", c.UserID, err)
	}
	return nil
}

// Close releases the gorm handle and the pool.
func (s *Postgres) Close() error {
	err := s.sql.Close()
	s.pool.Close()
	return err
}
