package iris

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"iris-scraper/config"
	"iris-scraper/normalize"
	"iris-scraper/utils"
)

// ErrAuthFailed marks a login that was attempted and rejected, as opposed to
// transport-level trouble reaching the form.
var ErrAuthFailed = errors.New("authentication failed")

const redirectPollInterval = 750 * time.Millisecond

// Credentials is the identity material for the catalog login form.
type Credentials struct {
	Email    string
	Password string
}

// Authenticator drives the login form and verifies the session can reach
// the catalog afterwards.
type Authenticator struct {
	cfg    *config.Config
	logger *utils.Logger
}

func NewAuthenticator(cfg *config.Config, logger *utils.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, logger: logger}
}

// Login authenticates the page's browser session. A nil return means the
// catalog is reachable; ErrAuthFailed wraps every rejection the site itself
// produced, so callers can tell bad credentials from a broken network.
func (a *Authenticator) Login(ctx context.Context, acc Accessor, creds Credentials) error {
	if creds.Email == "" || creds.Password == "" {
		return fmt.Errorf("%w: credentials not configured", ErrAuthFailed)
	}

	if err := acc.Navigate(ctx, a.cfg.LoginURL); err != nil {
		return fmt.Errorf("auth: navigate to login: %w", err)
	}

	loginPath := pathOf(a.cfg.LoginURL)
	if loc, err := acc.Location(ctx); err == nil && !strings.Contains(loc, loginPath) {
		a.logger.Info("[auth] Session already authenticated, skipping login")
		return nil
	}

	budget := time.Duration(a.cfg.VisibilityTimeoutMs) * time.Millisecond
	emailSel, _, ok := resolveSelector(ctx, acc, loginEmailSelectors, 1)
	if !ok {
		return fmt.Errorf("auth: login form not found on %s", a.cfg.LoginURL)
	}
	if err := acc.WaitVisible(ctx, emailSel, budget); err != nil {
		return fmt.Errorf("auth: login form not visible: %w", err)
	}
	if err := acc.Fill(ctx, emailSel, creds.Email); err != nil {
		return fmt.Errorf("auth: fill email: %w", err)
	}
	passwordSel, _, ok := resolveSelector(ctx, acc, loginPasswordSelectors, 1)
	if !ok {
		return fmt.Errorf("auth: password field not found")
	}
	if err := acc.Fill(ctx, passwordSel, creds.Password); err != nil {
		return fmt.Errorf("auth: fill password: %w", err)
	}
	submitSel, _, ok := resolveSelector(ctx, acc, loginSubmitSelectors, 1)
	if !ok {
		return fmt.Errorf("auth: submit button not found")
	}
	if err := acc.Click(ctx, submitSel); err != nil {
		return fmt.Errorf("auth: submit login: %w", err)
	}

	attempts := a.cfg.NavTimeoutMs / int(redirectPollInterval/time.Millisecond)
	if attempts < 1 {
		attempts = 1
	}
	moved, err := utils.PollUntil(ctx, redirectPollInterval, attempts, func(ctx context.Context) (bool, error) {
		loc, err := acc.Location(ctx)
		if err != nil {
			return false, err
		}
		return !strings.Contains(loc, loginPath), nil
	})
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if !moved {
		if banner := a.loginError(ctx, acc); banner != "" {
			return fmt.Errorf("%w: %s", ErrAuthFailed, banner)
		}
		return fmt.Errorf("%w: still on login page after submit", ErrAuthFailed)
	}

	return a.verifyCatalogAccess(ctx, acc, loginPath)
}

// verifyCatalogAccess confirms the session is not bounced back to the login
// page when it asks for the catalog.
func (a *Authenticator) verifyCatalogAccess(ctx context.Context, acc Accessor, loginPath string) error {
	if err := acc.Navigate(ctx, a.cfg.CatalogURL); err != nil {
		return fmt.Errorf("auth: navigate to catalog: %w", err)
	}
	loc, err := acc.Location(ctx)
	if err != nil {
		return fmt.Errorf("auth: read location: %w", err)
	}
	if strings.Contains(loc, loginPath) {
		return fmt.Errorf("%w: catalog redirected back to login", ErrAuthFailed)
	}
	a.logger.Info("[auth] Authenticated, catalog reachable at %s", loc)
	return nil
}

// loginError reads the site's post-submit error banner when one rendered.
func (a *Authenticator) loginError(ctx context.Context, acc Accessor) string {
	sel, _, ok := resolveSelector(ctx, acc, loginErrorSelectors, 1)
	if !ok {
		return ""
	}
	txt, err := acc.Text(ctx, sel)
	if err != nil {
		return ""
	}
	return normalize.Text(txt)
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return u.Path
}
