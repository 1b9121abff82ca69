package crawler

import (
	"context"
	"errors"

	"xqcrawler/pkg/auth"
	"xqcrawler/pkg/browser"
	"xqcrawler/pkg/config"
	xerrs "xqcrawler/pkg/errors"
)

// ensureSession makes sure the client carries a logged-in session. It tries
// the page's current cookies, then a stored session, then the login flow.
func (c *Crawler) ensureSession(ctx context.Context) error {
	if err := c.api.RefreshCookies(ctx); err != nil {
		c.logger.WithError(err).Debug("Could not read page cookies")
	}
	if c.api.Pong(ctx) {
		c.logger.Info("Existing session is valid, skipping login")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if c.restoreSession(ctx) {
		return nil
	}

	if c.login == nil {
		return xerrs.NewAuthRequired("not logged in and no login flow is configured")
	}
	if err := c.login.Begin(ctx); err != nil {
		return err
	}
	if err := c.api.RefreshCookies(ctx); err != nil {
		return err
	}

	if !c.api.Pong(ctx) {
		if c.cfg.Login.Type == config.LoginCookie {
			return xerrs.NewAuthRequired("injected cookies do not belong to a logged-in user")
		}
		c.logger.Warn("Login finished but the profile check did not confirm it")
	}

	c.saveSession()
	return nil
}

// restoreSession injects the stored session for the configured account and
// reports whether the server accepts it.
func (c *Crawler) restoreSession(ctx context.Context) bool {
	if c.sessions == nil || c.page == nil {
		return false
	}
	name := c.cfg.Login.Account
	account, err := c.sessions.Retrieve(name)
	if err != nil {
		if !errors.Is(err, auth.ErrCredentialsNotFound) {
			c.logger.WithError(err).Warn("Failed to read stored session")
		}
		return false
	}

	cookies := browser.ParseCookieString(account.Cookies)
	if len(cookies) == 0 {
		return false
	}
	if err := c.page.AddCookies(ctx, browser.Scope(cookies, c.cfg.Platform.CookieDomain)); err != nil {
		c.logger.WithError(err).Warn("Failed to inject stored session")
		return false
	}
	if err := c.api.RefreshCookies(ctx); err != nil {
		return false
	}

	if !c.api.Pong(ctx) {
		c.logger.WithField("account", name).Info("Stored session is no longer valid")
		return false
	}
	c.logger.WithField("account", name).Info("Restored stored session")
	return true
}

func (c *Crawler) saveSession() {
	if c.sessions == nil || !c.cfg.Login.SaveSession {
		return
	}
	header := c.api.CookieHeader()
	if header == "" {
		return
	}

	account := &auth.Account{
		Name:      c.cfg.Login.Account,
		Cookies:   header,
		UserAgent: c.cfg.Platform.UserAgent,
	}
	if err := c.sessions.Store(account); err != nil {
		c.logger.WithError(err).Warn("Failed to save session")
		return
	}
	c.logger.WithField("account", account.Name).Debug("Session saved")
}
