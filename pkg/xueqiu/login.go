package xueqiu

import (
	"context"
	"errors"
	"sync"
	"time"

	"xqcrawler/pkg/browser"
	"xqcrawler/pkg/config"
	xerrs "xqcrawler/pkg/errors"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/retry"
)

// State is a step of the login state machine.
type State string

const (
	StateNotStarted         State = "not_started"
	StateDialogOpen         State = "dialog_open"
	StateQRPending          State = "qr_pending"
	StatePhoneCodeSubmitted State = "phone_code_submitted"
	StateCookieInjected     State = "cookie_injected"
	StatePollingSession     State = "polling_session"
	StateAuthenticated      State = "authenticated"
	StateFailed             State = "failed"
)

// Cookie names that carry the session.
const (
	AuthTokenCookie = "xq_a_token"
	UserTokenCookie = "u"
)

// CodeSource delivers SMS login codes by phone number.
type CodeSource interface {
	Code(phone string) (string, bool)
}

// QRDisplay presents the login QR code to the operator.
type QRDisplay interface {
	ShowQR(ctx context.Context, png []byte) error
}

// Page selectors. XPath is used where matching needs text or class
// substrings.
const (
	dialogSelector      = "//div[contains(@class,'login') and (contains(@class,'dialog') or contains(@class,'modal') or contains(@class,'container'))]"
	loginLinkSelector   = "//a[contains(@class,'login') or contains(text(),'登录')]"
	qrTabSelector       = "//*[contains(text(),'二维码登录')]"
	phoneSwitchSelector = "//div[contains(@class,'phone-login') or contains(@class,'switch-phone')]"
	phoneInputSelector  = "input[type='tel'], input[name='tel'], input[placeholder*='手机号']"
	sendCodeSelector    = "//div[contains(@class,'login')]//button[contains(@class,'send') or contains(text(),'验证码')]"
	smsInputSelector    = "//div[contains(@class,'login')]//input[@type='text' or @maxlength='6']"
	consentSelector     = "//div[contains(@class,'login')]//input[@type='checkbox']/.."
	submitSelector      = "//div[contains(@class,'login')]//button[contains(@class,'login') or contains(text(),'登录')]"
)

var loggedInSelectors = []string{
	"//button[contains(text(),'发帖')]",
	"//a[contains(text(),'发帖')]",
	"//div[contains(@class,'user') and contains(@class,'avatar')]",
	"//a[contains(@href,'/u/') and (contains(@class,'user') or contains(@class,'menu') or contains(@class,'profile'))]",
}

var qrImageSelectors = []string{
	"(" + dialogSelector + "//img[contains(@src,'qrcode') or contains(@class,'qrcode')])[1]",
	"//img[contains(@class,'qrcode-img') or contains(@src,'login_qrcode')]",
	"//div[contains(@class,'login')]//img[contains(@src,'qrcode')]",
}

var (
	errNotLoggedIn = errors.New("session not established yet")
	errNoCode      = errors.New("no SMS code received yet")
)

// LoginOptions parameterises the login flows.
type LoginOptions struct {
	Type         string
	Phone        string
	Cookies      string
	HomeURL      string
	CookieDomain string

	PollAttempts int
	PollInterval time.Duration
	CodeWait     time.Duration
	SettleDelay  time.Duration

	DialogAttempts   int
	DialogTimeout    time.Duration
	DialogRetryDelay time.Duration

	Codes CodeSource
	QR    QRDisplay
}

// LoginOptionsFromConfig maps the login and platform sections.
func LoginOptionsFromConfig(cfg *config.Config) LoginOptions {
	return LoginOptions{
		Type:             cfg.Login.Type,
		Phone:            cfg.Login.Phone,
		Cookies:          cfg.Login.Cookies,
		HomeURL:          cfg.Platform.BaseURL + "/",
		CookieDomain:     cfg.Platform.CookieDomain,
		PollAttempts:     cfg.Login.PollAttempts,
		PollInterval:     cfg.Login.PollInterval,
		CodeWait:         cfg.Login.CodeWait,
		SettleDelay:      cfg.Login.SettleDelay,
		DialogAttempts:   3,
		DialogTimeout:    5 * time.Second,
		DialogRetryDelay: time.Second,
	}
}

// Login drives one of the qrcode, phone or cookie flows on a browser page.
type Login struct {
	page   browser.Page
	opts   LoginOptions
	logger logger.Logger

	mu    sync.Mutex
	state State
}

// NewLogin creates a login controller in StateNotStarted.
func NewLogin(page browser.Page, opts LoginOptions, log logger.Logger) *Login {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.HomeURL == "" {
		opts.HomeURL = BaseURL + "/"
	}
	if opts.CookieDomain == "" {
		opts.CookieDomain = CookieDomain
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 120
	}
	if opts.DialogAttempts <= 0 {
		opts.DialogAttempts = 3
	}
	return &Login{
		page:   page,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "login", "login_type": opts.Type}),
		state:  StateNotStarted,
	}
}

// State returns the current state.
func (l *Login) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Login) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()

	l.logger.InfoWithFields("login state changed", map[string]interface{}{
		"from": string(prev),
		"to":   string(s),
	})
}

// Begin runs the configured flow. Errors are typed: config for missing
// inputs, timeout when polling runs out, data_fetch when the page does not
// cooperate.
func (l *Login) Begin(ctx context.Context) error {
	var err error
	switch l.opts.Type {
	case config.LoginQRCode:
		err = l.loginByQRCode(ctx)
	case config.LoginPhone:
		err = l.loginByPhone(ctx)
	case config.LoginCookie:
		err = l.loginByCookies(ctx)
	default:
		err = xerrs.NewConfig("unsupported login type %q", l.opts.Type)
	}
	if err != nil {
		l.setState(StateFailed)
		l.logger.WithError(err).Error("login failed")
		return err
	}
	return nil
}

// CheckLoginState reports whether the jar holds a fresh session: both the
// auth and user tokens are set and the auth token differs from baseline.
func (l *Login) CheckLoginState(ctx context.Context, baseline string) (bool, error) {
	cookies, err := l.page.Cookies(ctx)
	if err != nil {
		return false, err
	}
	m := browser.CookieMap(cookies)
	token, user := m[AuthTokenCookie], m[UserTokenCookie]
	return token != "" && user != "" && token != baseline, nil
}

func (l *Login) authToken(ctx context.Context) string {
	cookies, err := l.page.Cookies(ctx)
	if err != nil {
		return ""
	}
	return browser.CookieMap(cookies)[AuthTokenCookie]
}

func (l *Login) loginByQRCode(ctx context.Context) error {
	done, err := l.openHome(ctx)
	if err != nil || done {
		return err
	}
	if err := l.openDialog(ctx); err != nil {
		return err
	}
	l.clickOptional(ctx, qrTabSelector, "qr tab")

	var png []byte
	for _, sel := range qrImageSelectors {
		shot, err := l.page.Screenshot(ctx, sel)
		if err == nil && len(shot) > 0 {
			png = shot
			break
		}
	}

	baseline := l.authToken(ctx)
	l.setState(StateQRPending)

	switch {
	case png == nil:
		l.logger.Warn("QR code image not captured, scan the code in the browser window")
	case l.opts.QR == nil:
		l.logger.Warn("no QR display configured, scan the code in the browser window")
	default:
		if err := l.opts.QR.ShowQR(ctx, png); err != nil {
			l.logger.WithError(err).Warn("could not display QR code")
		}
	}

	return l.pollSession(ctx, baseline)
}

func (l *Login) loginByPhone(ctx context.Context) error {
	if l.opts.Phone == "" {
		return xerrs.NewConfig("phone number is required for phone login")
	}
	if l.opts.Codes == nil {
		return xerrs.NewConfig("phone login needs an SMS code source")
	}

	done, err := l.openHome(ctx)
	if err != nil || done {
		return err
	}
	if err := l.openDialog(ctx); err != nil {
		return err
	}
	l.clickOptional(ctx, phoneSwitchSelector, "phone login switch")

	if err := l.page.Fill(ctx, phoneInputSelector, l.opts.Phone); err != nil {
		return xerrs.NewDataFetch(0, "phone input not found: %v", err)
	}
	if err := l.page.Click(ctx, sendCodeSelector); err != nil {
		return xerrs.NewDataFetch(0, "send code button not found: %v", err)
	}

	baseline := l.authToken(ctx)
	l.logger.Info("SMS code requested, waiting for delivery")

	code, err := l.waitForCode(ctx)
	if err != nil {
		return err
	}

	if err := l.page.Fill(ctx, smsInputSelector, code); err != nil {
		return xerrs.NewDataFetch(0, "SMS code input not found: %v", err)
	}
	if ok, _ := l.page.Exists(ctx, consentSelector); ok {
		if err := l.page.Click(ctx, consentSelector); err != nil {
			l.logger.WithError(err).Debug("consent checkbox click failed")
		}
	}
	if err := l.page.Click(ctx, submitSelector); err != nil {
		return xerrs.NewDataFetch(0, "login button not found: %v", err)
	}
	l.setState(StatePhoneCodeSubmitted)

	return l.pollSession(ctx, baseline)
}

func (l *Login) loginByCookies(ctx context.Context) error {
	cookies := browser.ParseCookieString(l.opts.Cookies)
	if len(cookies) == 0 {
		return xerrs.NewConfig("cookie login needs a \"k=v; k2=v2\" cookie string")
	}
	if err := l.page.AddCookies(ctx, browser.Scope(cookies, l.opts.CookieDomain)); err != nil {
		return xerrs.NewDataFetch(0, "inject cookies: %v", err)
	}
	l.setState(StateCookieInjected)

	if err := l.settle(ctx); err != nil {
		return err
	}
	l.setState(StateAuthenticated)
	return nil
}

// openHome navigates to the home page and reports whether the page already
// shows a logged-in user.
func (l *Login) openHome(ctx context.Context) (bool, error) {
	if err := l.page.Navigate(ctx, l.opts.HomeURL); err != nil {
		return false, xerrs.NewDataFetch(0, "open home page: %v", err)
	}
	for _, sel := range loggedInSelectors {
		if ok, err := l.page.Exists(ctx, sel); err == nil && ok {
			l.logger.Info("page already logged in, skipping login")
			l.setState(StateAuthenticated)
			return true, nil
		}
	}
	return false, ctx.Err()
}

func (l *Login) openDialog(ctx context.Context) error {
	for attempt := 1; attempt <= l.opts.DialogAttempts; attempt++ {
		if ok, err := l.page.Exists(ctx, dialogSelector); err == nil && ok {
			l.setState(StateDialogOpen)
			return nil
		}

		err := l.page.WaitVisible(ctx, loginLinkSelector, l.opts.DialogTimeout)
		if err == nil {
			err = l.page.Click(ctx, loginLinkSelector)
		}
		if err == nil {
			err = l.page.WaitVisible(ctx, dialogSelector, l.opts.DialogTimeout)
		}
		if err == nil {
			l.setState(StateDialogOpen)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.logger.InfoWithFields("login dialog did not open", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if err := retry.Wait(ctx, l.opts.DialogRetryDelay); err != nil {
			return err
		}
	}
	return xerrs.NewDataFetch(0, "login dialog did not open after %d attempts", l.opts.DialogAttempts)
}

// clickOptional clicks sel if it shows up; absence is not an error.
func (l *Login) clickOptional(ctx context.Context, sel, what string) {
	if err := l.page.WaitVisible(ctx, sel, l.opts.DialogTimeout); err != nil {
		l.logger.WithField("element", what).Debug("optional element not found")
		return
	}
	if err := l.page.Click(ctx, sel); err != nil {
		l.logger.WithField("element", what).WithError(err).Debug("optional click failed")
	}
}

func (l *Login) waitForCode(ctx context.Context) (string, error) {
	interval := l.opts.PollInterval
	attempts := 1
	if interval > 0 && l.opts.CodeWait > interval {
		attempts = int(l.opts.CodeWait / interval)
	}

	code, err := retry.DoWithResult(ctx, func(ctx context.Context) (string, error) {
		code, ok := l.opts.Codes.Code(l.opts.Phone)
		if !ok || code == "" {
			return "", errNoCode
		}
		return code, nil
	}, &retry.Config{
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: interval},
		RetryIf:     retry.Always,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", xerrs.NewTimeout("waiting for SMS code", l.opts.CodeWait, err)
	}
	return code, nil
}

func (l *Login) pollSession(ctx context.Context, baseline string) error {
	l.setState(StatePollingSession)

	err := retry.Do(ctx, func(ctx context.Context) error {
		ok, err := l.CheckLoginState(ctx, baseline)
		if err != nil {
			return err
		}
		if !ok {
			return errNotLoggedIn
		}
		return nil
	}, &retry.Config{
		MaxAttempts: l.opts.PollAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: l.opts.PollInterval},
		RetryIf:     retry.Always,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return xerrs.NewTimeout("login session poll", time.Duration(l.opts.PollAttempts)*l.opts.PollInterval, err)
	}

	if err := l.settle(ctx); err != nil {
		return err
	}
	l.setState(StateAuthenticated)
	return nil
}

func (l *Login) settle(ctx context.Context) error {
	if l.opts.SettleDelay <= 0 {
		return ctx.Err()
	}
	l.logger.WithField("delay", l.opts.SettleDelay.String()).Debug("waiting for session to settle")
	return retry.Wait(ctx, l.opts.SettleDelay)
}
