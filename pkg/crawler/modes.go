package crawler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"xqcrawler/internal/fetcher"
	"xqcrawler/pkg/config"
	xerrs "xqcrawler/pkg/errors"
	"xqcrawler/pkg/extract"
	"xqcrawler/pkg/models"
	"xqcrawler/pkg/retry"
	"xqcrawler/pkg/storage"
)

// detail fetches every configured status concurrently. Failures are
// recorded per id; comments follow for the statuses that were stored.
func (c *Crawler) detail(ctx context.Context) error {
	ids := targets(c.cfg.Crawler.StatusIDs)
	if len(ids) == 0 {
		return xerrs.NewConfig("detail mode needs at least one status id")
	}

	var (
		mu     sync.Mutex
		stored []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			raw, err := withReauth(gctx, c, func(ctx context.Context) (map[string]any, error) {
				return c.api.StatusDetail(ctx, id)
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.WithError(err).WithField("status_id", id).Warn("Status fetch failed")
				c.rec.Fail(storage.KindPost, id, err)
				return nil
			}

			p := extract.Post(extract.FirstObject(raw, extract.StatusPaths))
			if p.ID == "" {
				p.ID = id
				if p.StatusURL == "" {
					p.StatusURL = extract.StatusURL(p.UserID, id)
				}
			}
			if c.storePost(gctx, &p) {
				mu.Lock()
				stored = append(stored, p.ID)
				mu.Unlock()
			}
			return retry.Wait(gctx, c.cfg.Crawler.PageDelay)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.fetchComments(ctx, stored)
	return ctx.Err()
}

// creator stores each creator's profile and walks their timeline. A
// profile failure does not stop the timeline.
func (c *Crawler) creator(ctx context.Context) error {
	ids := targets(c.cfg.Crawler.CreatorIDs)
	if len(ids) == 0 {
		return xerrs.NewConfig("creator mode needs at least one creator id")
	}

	for _, uid := range ids {
		c.creatorProfile(ctx, uid)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		task := Task{Mode: config.ModeCreator, Target: uid}
		fetch := func(ctx context.Context, page, size int) ([]map[string]any, bool, error) {
			raw, err := withReauth(ctx, c, func(ctx context.Context) (map[string]any, error) {
				return c.api.CreatorTimeline(ctx, uid, page, size)
			})
			if err != nil {
				return nil, false, err
			}
			return extract.FirstList(raw, extract.TimelineListPaths), true, nil
		}

		posts, err := c.paginate(ctx, task, fetch, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).WithField("creator_id", uid).Error("Creator timeline failed")
			c.rec.Fail(storage.KindPost, uid, err)
		}
		c.fetchComments(ctx, posts)
	}
	return ctx.Err()
}

func (c *Crawler) creatorProfile(ctx context.Context, uid string) {
	raw, err := withReauth(ctx, c, func(ctx context.Context) (map[string]any, error) {
		return c.api.CreatorProfile(ctx, uid)
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.WithError(err).WithField("creator_id", uid).Warn("Creator profile fetch failed")
			c.rec.Fail(storage.KindCreator, uid, err)
		}
		return
	}

	cr := extract.Creator(extract.FirstObject(raw, extract.CreatorPaths))
	if cr.UserID == "" {
		cr.UserID = uid
	}
	if err := c.store.StoreCreator(ctx, &cr); err != nil {
		c.logger.WithError(err).WithField("creator_id", uid).Warn("Failed to store creator")
		c.rec.Fail(storage.KindCreator, uid, err)
		return
	}
	c.rec.Stored(storage.KindCreator)
}

// fetchComments runs the comment batch for postIDs on the worker pool.
func (c *Crawler) fetchComments(ctx context.Context, postIDs []string) {
	cc := c.cfg.Crawler
	if !cc.CommentsEnabled || len(postIDs) == 0 {
		return
	}

	source := fetcher.CommentSourceFunc(func(ctx context.Context, postID string, page, size int) (map[string]any, error) {
		return withReauth(ctx, c, func(ctx context.Context) (map[string]any, error) {
			return c.api.StatusComments(ctx, postID, page, size)
		})
	})
	opts := fetcher.Options{
		Workers:    cc.Concurrency,
		PageSize:   cc.CommentPageSize,
		MaxPerPost: cc.MaxCommentsPerPost,
		PageDelay:  cc.PageDelay,
	}

	results := fetcher.RunBatch(ctx, opts, source, recordingSink{c}, c.logger, postIDs)
	for _, res := range results {
		if res.Err != nil && ctx.Err() == nil {
			c.rec.Fail(storage.KindComment, res.Job.PostID, res.Err)
		}
	}
}

// recordingSink stores comments and counts them in the run report.
type recordingSink struct{ c *Crawler }

func (s recordingSink) StoreComment(ctx context.Context, cm *models.Comment) error {
	if err := s.c.store.StoreComment(ctx, cm); err != nil {
		return err
	}
	s.c.rec.Stored(storage.KindComment)
	return nil
}
