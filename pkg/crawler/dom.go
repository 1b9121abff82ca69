package crawler

import (
	"context"

	xerrs "xqcrawler/pkg/errors"
	"xqcrawler/pkg/extract"
	"xqcrawler/pkg/xueqiu"
)

// Rendered search page selectors.
const (
	frameSelector      = "div.search_type_title"
	discussTabSelector = "//*[contains(@class,'search_type_title')]//*[contains(text(),'讨论')]"
	resultSelector     = "article.timeline_item"
	scrollScript       = "window.scrollTo(0, document.body.scrollHeight / 2)"
)

// verifySelectors mark the interstitial shown while the site checks the
// browser.
var verifySelectors = []string{
	"//*[contains(text(),'访问验证')]",
	"div.visit-verify",
	".visit-verify__container",
}

// domSearchPage renders one search results page in the browser and scrapes
// it. A missing frame or result list yields an empty page; a verification
// page that never clears is a timeout.
func (c *Crawler) domSearchPage(ctx context.Context, kw string, page, count int) ([]map[string]any, error) {
	ch := c.cfg.Challenge
	log := c.logger.WithFields(map[string]interface{}{
		"keyword":  kw,
		"page":     page,
		"strategy": "dom",
	})

	if err := c.page.Navigate(ctx, xueqiu.SearchPageURL(c.api.BaseURL(), kw, page)); err != nil {
		return nil, xerrs.NewDataFetch(0, "open search page: %v", err)
	}
	if err := c.awaitVerification(ctx); err != nil {
		return nil, err
	}

	if err := c.page.WaitVisible(ctx, frameSelector, ch.FrameTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("Search frame did not render, treating page as empty")
		return nil, nil
	}

	if ok, _ := c.page.Exists(ctx, discussTabSelector); ok {
		if err := c.page.Click(ctx, discussTabSelector); err != nil {
			log.WithError(err).Debug("Discussion tab click failed")
		}
	}
	if err := c.page.Evaluate(ctx, scrollScript); err != nil {
		log.WithError(err).Debug("Scroll failed")
	}
	// Scrolling can trigger a second verification before results load.
	if err := c.awaitVerification(ctx); err != nil {
		return nil, err
	}

	if err := c.page.WaitVisible(ctx, resultSelector, ch.ResultsTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("No search results rendered, treating page as empty")
		return nil, nil
	}

	html, err := c.page.HTML(ctx)
	if err != nil {
		return nil, xerrs.NewDataFetch(0, "read search page: %v", err)
	}
	items, err := extract.ParseSearchHTML(html)
	if err != nil {
		return nil, xerrs.NewDataFetch(0, "parse search page: %v", err)
	}
	if count > 0 && len(items) > count {
		items = items[:count]
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, extract.DOMPost(item, kw))
	}
	log.WithField("items", len(out)).Debug("Rendered search page scraped")
	return out, nil
}

// awaitVerification blocks while a verification interstitial is shown.
func (c *Crawler) awaitVerification(ctx context.Context) error {
	timeout := c.cfg.Challenge.VerifyTimeout
	for _, sel := range verifySelectors {
		ok, err := c.page.Exists(ctx, sel)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if !ok {
			continue
		}

		c.logger.WithField("timeout", timeout.String()).Warn("Verification page shown, waiting for it to clear")
		if err := c.page.WaitGone(ctx, sel, timeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return xerrs.NewTimeout("search page verification", timeout, err)
		}
	}
	return nil
}
