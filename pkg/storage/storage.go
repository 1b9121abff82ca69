package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xqcrawler/pkg/config"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/models"
)

// Kind names an entity kind. File backends use it in file names.
type Kind string

const (
	KindPost    Kind = "contents"
	KindComment Kind = "comments"
	KindCreator Kind = "creators"
)

// Gateway is the persistence contract shared by all backends.
type Gateway interface {
	StorePost(ctx context.Context, p *models.Post) error
	StoreComment(ctx context.Context, c *models.Comment) error
	StoreCreator(ctx context.Context, c *models.Creator) error
	Close() error
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg *config.StorageConfig, log logger.Logger) (Gateway, error) {
	var (
		gw  Gateway
		err error
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		gw, err = NewPostgres(ctx, cfg.DSN, cfg.MaxConns)
	case config.BackendMemory:
		gw = NewMemory(nil)
	case config.BackendJSONL:
		gw, err = NewFileStore(cfg.OutputDir, FormatJSONL, nil)
	case config.BackendCSV:
		gw, err = NewFileStore(cfg.OutputDir, FormatCSV, nil)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.LogComponentStart(log, "storage", map[string]interface{}{
		"backend": cfg.Backend,
	})
	return gw, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

var timeNow Clock = time.Now

// scrub removes NUL bytes, which postgres text columns reject.
func scrub(fields ...*string) {
	for _, f := range fields {
		if strings.IndexByte(*f, 0) >= 0 {
			*f = strings.ReplaceAll(*f, "\x00", "")
		}
	}
}

func scrubPost(p *models.Post) {
	scrub(&p.ID, &p.Type, &p.Title, &p.Content, &p.ContentText, &p.TargetText, &p.TopicDesc,
		&p.Source, &p.StatusURL, &p.CreatedAtText, &p.UserID, &p.ScreenName, &p.ProfileImage,
		&p.VerifiedDescription, &p.SourceKeyword)
}

func scrubComment(c *models.Comment) {
	scrub(&c.ID, &c.PostID, &c.UserID, &c.Nickname, &c.Avatar, &c.Content,
		&c.ParentCommentID, &c.ReplyToUser)
}

func scrubCreator(c *models.Creator) {
	scrub(&c.UserID, &c.ScreenName, &c.Description, &c.City, &c.Province,
		&c.ProfileImage, &c.VerifiedDescription)
}
