package crawler

import (
	"context"
	"errors"

	"xqcrawler/pkg/config"
	xerrs "xqcrawler/pkg/errors"
	"xqcrawler/pkg/extract"
	"xqcrawler/pkg/storage"
)

// search crawls every configured keyword. A failing keyword is recorded
// and the next one still runs.
func (c *Crawler) search(ctx context.Context) error {
	keywords := targets(c.cfg.Crawler.Keywords)
	if len(keywords) == 0 {
		return xerrs.NewConfig("search mode needs at least one keyword")
	}

	for _, kw := range keywords {
		if err := c.searchKeyword(ctx, kw); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).WithField("keyword", kw).Error("Keyword crawl failed")
			c.rec.Fail(storage.KindPost, kw, err)
		}
	}
	return nil
}

func (c *Crawler) searchKeyword(ctx context.Context, kw string) error {
	task := Task{Mode: config.ModeSearch, Target: kw}
	strategy := c.cfg.Crawler.SearchStrategy
	useDOM := strategy == config.StrategyDOM

	fetch := func(ctx context.Context, page, size int) ([]map[string]any, bool, error) {
		if !useDOM {
			raw, err := withReauth(ctx, c, func(ctx context.Context) (map[string]any, error) {
				return c.api.SearchStatus(ctx, kw, page, size)
			})
			if err == nil {
				return extract.FirstList(raw, extract.SearchListPaths), true, nil
			}
			if strategy != config.StrategyAuto || !errors.Is(err, xerrs.ErrChallenge) {
				return nil, false, err
			}
			c.logger.WithError(err).WithField("keyword", kw).Warn("Search API blocked, switching to rendered search")
			useDOM = true
		}

		items, err := c.domSearchPage(ctx, kw, page, size)
		return items, false, err
	}

	_, err := c.paginate(ctx, task, fetch, c.fetchComments)
	return err
}
