// Package googlex adapts Google OAuth2, Calendar v3 and Gmail v1 to the lesson
// booking domain.
package googlex

import (
	"context"
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrNotConnected means the user never granted calendar access.
var ErrNotConnected = errors.New("google account not connected")

var Scopes = []string{
	calendar.CalendarScope,
	gmail.GmailSendScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
}

// OAuthConfigFromEnv reads GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and
// GOOGLE_REDIRECT_URL. It returns nil when the client id is unset.
func OAuthConfigFromEnv() *oauth2.Config {
	clientID := config.String("GOOGLE_CLIENT_ID", "")
	if clientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
		RedirectURL:  config.String("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// ConsentURL asks for offline access and forces the consent screen so Google always
// returns a refresh token.
func ConsentURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// WithTracedHTTP makes oauth2 token exchanges and refreshes go through an
// instrumented transport that also forwards the request id.
func WithTracedHTTP(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: otelhttp.NewTransport(httpx.RequestIDTransport{}),
	})
}

type UserInfo struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// FetchUserInfo reads the profile behind tok from the userinfo endpoint.
func FetchUserInfo(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (UserInfo, error) {
	ctx = WithTracedHTTP(ctx)
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return UserInfo{}, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{
		ID:        info.Id,
		Email:     info.Email,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
	}, nil
}
