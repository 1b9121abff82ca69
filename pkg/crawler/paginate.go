package crawler

import (
	"context"

	"xqcrawler/pkg/checkpoint"
	"xqcrawler/pkg/config"
	"xqcrawler/pkg/extract"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/models"
	"xqcrawler/pkg/retry"
)

// pageFunc fetches one page of raw statuses. full is false when a short
// page does not signal the end, as with rendered search results.
type pageFunc func(ctx context.Context, page, size int) (items []map[string]any, full bool, err error)

// paginate walks a task's pages in order. Each page is stored, then
// afterPage runs on the native ids it yielded, then the checkpoint moves.
// It returns every native id collected.
func (c *Crawler) paginate(ctx context.Context, task Task, fetch pageFunc, afterPage func(ctx context.Context, ids []string)) ([]string, error) {
	cc := c.cfg.Crawler
	cur, cp := c.startCursor(task)
	log := c.logger.WithFields(map[string]interface{}{
		"mode":   task.Mode,
		"target": task.Target,
	})

	var all []string
	for cur.More(cc.MaxPages, cc.MaxItems) {
		items, full, err := fetch(ctx, cur.Page, cur.PageSize)
		if err != nil {
			return all, err
		}
		if len(items) == 0 {
			log.WithField("page", cur.Page).Info("Empty page, stopping")
			break
		}

		ids := c.storePage(ctx, task, items, &cur)
		all = append(all, ids...)
		logger.LogCrawlProgress(log, task.Target, cur.Collected, cc.MaxItems)

		if err := retry.Wait(ctx, cc.PageDelay); err != nil {
			return all, err
		}
		if afterPage != nil {
			afterPage(ctx, ids)
		}
		if ctx.Err() != nil {
			return all, ctx.Err()
		}

		c.advance(cp, cur)
		short := full && len(items) < cur.PageSize
		cur.Page++
		if short {
			log.WithField("items", len(items)).Debug("Short page, stopping")
			break
		}
	}

	c.finishTask(task)
	return all, nil
}

// storePage maps and stores a page of statuses, truncated to the room left
// under max_items. It returns the native ids that were stored.
func (c *Crawler) storePage(ctx context.Context, task Task, items []map[string]any, cur *Cursor) []string {
	var ids []string
	for _, item := range items {
		if room := cur.Room(c.cfg.Crawler.MaxItems); room == 0 {
			break
		}
		p := extract.Post(item)
		if !keepID(&p) {
			continue
		}
		if task.Mode == config.ModeSearch {
			p.SourceKeyword = task.Target
		}
		if !c.storePost(ctx, &p) {
			continue
		}
		cur.Collected++
		if p.IDKind == models.IDKindNative {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// startCursor begins at start_page, or after the saved page when resuming.
func (c *Crawler) startCursor(task Task) (Cursor, *checkpoint.Checkpoint) {
	cc := c.cfg.Crawler
	cur := Cursor{Page: cc.StartPage, PageSize: cc.PageSize}
	if cur.Page < 1 {
		cur.Page = 1
	}
	if c.checkpoints == nil {
		return cur, nil
	}

	cp := &checkpoint.Checkpoint{Task: task.Key(), RunID: c.rec.RunID()}
	if !cc.Resume {
		return cur, cp
	}

	saved, err := c.checkpoints.Load(task.Key())
	if err != nil {
		c.logger.WithError(err).WithField("task", task.Key()).Warn("Ignoring unreadable checkpoint")
		return cur, cp
	}
	if saved == nil {
		return cur, cp
	}

	cur.Page = saved.NextPage()
	cur.Collected = saved.Collected
	c.logger.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
		"task":      task.Key(),
		"page":      cur.Page,
		"collected": cur.Collected,
	})
	return cur, saved
}

func (c *Crawler) advance(cp *checkpoint.Checkpoint, cur Cursor) {
	if c.checkpoints == nil || cp == nil {
		return
	}
	if err := c.checkpoints.Advance(cp, cur.Page, cur.Collected); err != nil {
		c.logger.WithError(err).Warn("Failed to save checkpoint")
	}
}

func (c *Crawler) finishTask(task Task) {
	if c.checkpoints == nil {
		return
	}
	if err := c.checkpoints.Delete(task.Key()); err != nil {
		c.logger.WithError(err).Warn("Failed to delete checkpoint")
	}
}
