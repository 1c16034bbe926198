package googlex

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client builds per-user Google API clients from stored tokens.
type Client struct {
	oauth  *oauth2.Config
	tokens TokenStore
	logger *slog.Logger
}

func NewClient(cfg *oauth2.Config, tokens TokenStore, logger *slog.Logger) *Client {
	return &Client{oauth: cfg, tokens: tokens, logger: logger}
}

// TokenSource returns a refreshing source for userID that persists new tokens.
func (c *Client) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	if c == nil || c.oauth == nil {
		return nil, ErrNotConnected
	}
	stored, err := c.tokens.LoadToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{
		base:   c.oauth.TokenSource(WithTracedHTTP(context.Background()), stored),
		userID: userID,
		store:  c.tokens,
		logger: c.logger,
		last:   stored.AccessToken,
	}, nil
}

func (c *Client) httpOption(ctx context.Context, userID string) (option.ClientOption, error) {
	ts, err := c.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	return option.WithHTTPClient(oauth2.NewClient(WithTracedHTTP(ctx), ts)), nil
}

// Calendar returns a calendar client for userID bound to calendarID ("primary" when empty).
func (c *Client) Calendar(ctx context.Context, userID, calendarID string) (*Calendar, error) {
	opt, err := c.httpOption(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx, opt)
	if err != nil {
		return nil, err
	}
	return NewCalendar(svc, calendarID, c.logger), nil
}

func (c *Client) Gmail(ctx context.Context, userID string) (*Gmail, error) {
	opt, err := c.httpOption(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, opt)
	if err != nil {
		return nil, err
	}
	return &Gmail{svc: svc}, nil
}
