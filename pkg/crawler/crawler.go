package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"xqcrawler/pkg/auth"
	"xqcrawler/pkg/browser"
	"xqcrawler/pkg/checkpoint"
	"xqcrawler/pkg/config"
	xerrs "xqcrawler/pkg/errors"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/models"
	"xqcrawler/pkg/report"
	"xqcrawler/pkg/storage"
)

// Deps are the collaborators a Crawler composes. Sessions and Checkpoints
// are optional.
type Deps struct {
	Page        browser.Page
	API         API
	Login       Authenticator
	Store       storage.Gateway
	Sessions    *auth.Manager
	Checkpoints *checkpoint.Manager
	Logger      logger.Logger
}

// Crawler runs one crawl in the configured mode.
type Crawler struct {
	cfg         *config.Config
	page        browser.Page
	api         API
	login       Authenticator
	store       storage.Gateway
	sessions    *auth.Manager
	checkpoints *checkpoint.Manager
	logger      logger.Logger

	rec *report.Recorder

	reauthMu   sync.Mutex
	reauthDone bool
	reauthErr  error
}

// New validates the collaborators and returns a Crawler.
func New(cfg *config.Config, deps Deps) (*Crawler, error) {
	if cfg == nil {
		return nil, xerrs.NewConfig("crawler needs a configuration")
	}
	if deps.API == nil || deps.Store == nil {
		return nil, xerrs.NewConfig("crawler needs an API client and a storage gateway")
	}
	if deps.Page == nil && cfg.Crawler.Type == config.ModeSearch && cfg.Crawler.SearchStrategy != config.StrategyAPI {
		return nil, xerrs.NewConfig("search strategy %q needs a browser page", cfg.Crawler.SearchStrategy)
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Crawler{
		cfg:         cfg,
		page:        deps.Page,
		api:         deps.API,
		login:       deps.Login,
		store:       deps.Store,
		sessions:    deps.Sessions,
		checkpoints: deps.Checkpoints,
		logger:      log.WithField("component", "crawler"),
	}, nil
}

// Run establishes a session and crawls. Per-item failures land in the
// report; the error is non-nil only when the run itself failed. A
// cancelled run returns its report with status cancelled and a nil error.
func (c *Crawler) Run(ctx context.Context) (report.Report, error) {
	mode := c.cfg.Crawler.Type
	c.rec = report.NewRecorder(mode)
	c.logger = c.logger.WithField("run_id", c.rec.RunID())
	c.logger.InfoWithFields("Crawl started", map[string]interface{}{
		"mode": mode,
	})

	err := c.ensureSession(ctx)
	if err == nil {
		switch mode {
		case config.ModeSearch:
			err = c.search(ctx)
		case config.ModeDetail:
			err = c.detail(ctx)
		case config.ModeCreator:
			err = c.creator(ctx)
		default:
			err = xerrs.NewConfig("unknown crawler type %q", mode)
		}
	}

	status := report.StatusCompleted
	switch {
	case ctx.Err() != nil:
		status = report.StatusCancelled
		err = nil
	case err != nil:
		status = report.StatusFailed
	}
	rep := c.rec.Finish(status, err)
	c.saveReport(rep)

	c.logger.InfoWithFields("Crawl finished", map[string]interface{}{
		"status":   rep.Status,
		"posts":    rep.Counts.Posts,
		"comments": rep.Counts.Comments,
		"creators": rep.Counts.Creators,
		"failures": len(rep.Failures),
	})
	return rep, err
}

func (c *Crawler) saveReport(rep report.Report) {
	dir := c.cfg.Crawler.ReportDirectory
	if dir == "" {
		return
	}
	path, err := report.Save(dir, rep)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to save run report")
		return
	}
	c.logger.WithField("path", path).Info("Run report saved")
}

// withReauth runs op and, when the session is rejected, logs in again
// once per run and retries op once.
func withReauth[T any](ctx context.Context, c *Crawler, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := op(ctx)
	if err == nil || !errors.Is(err, xerrs.ErrAuthRequired) {
		return v, err
	}
	if rerr := c.reauth(ctx); rerr != nil {
		return v, fmt.Errorf("%w (re-login failed: %v)", err, rerr)
	}
	return op(ctx)
}

func (c *Crawler) reauth(ctx context.Context) error {
	c.reauthMu.Lock()
	defer c.reauthMu.Unlock()

	if c.reauthDone {
		return c.reauthErr
	}
	c.reauthDone = true

	if c.login == nil {
		c.reauthErr = xerrs.NewAuthRequired("session expired and no login flow is configured")
		return c.reauthErr
	}

	c.logger.Warn("Session rejected, logging in again")
	err := c.login.Begin(ctx)
	if err == nil {
		err = c.api.RefreshCookies(ctx)
	}
	if err == nil {
		c.saveSession()
	}
	c.reauthErr = err
	return err
}

// keepID reports whether a post can be stored. Posts without any id are
// dropped.
func keepID(p *models.Post) bool {
	return strings.TrimSpace(p.ID) != ""
}

func (c *Crawler) storePost(ctx context.Context, p *models.Post) bool {
	if err := c.store.StorePost(ctx, p); err != nil {
		c.logger.WithError(err).WithField("post_id", p.ID).Warn("Failed to store post")
		c.rec.Fail(storage.KindPost, p.ID, err)
		return false
	}
	c.rec.Stored(storage.KindPost)
	return true
}

// targets trims values and drops empties.
func targets(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
