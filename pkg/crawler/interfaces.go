package crawler

import "context"

// API is the subset of the platform client the crawler drives.
type API interface {
	SearchStatus(ctx context.Context, keyword string, page, count int) (map[string]any, error)
	StatusDetail(ctx context.Context, statusID string) (map[string]any, error)
	StatusComments(ctx context.Context, statusID string, page, size int) (map[string]any, error)
	CreatorProfile(ctx context.Context, userID string) (map[string]any, error)
	CreatorTimeline(ctx context.Context, userID string, page, count int) (map[string]any, error)
	Pong(ctx context.Context) bool
	RefreshCookies(ctx context.Context) error
	CookieHeader() string
	BaseURL() string
}

// Authenticator establishes a logged-in session on the shared page.
type Authenticator interface {
	Begin(ctx context.Context) error
}
