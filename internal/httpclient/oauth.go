package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"crosspost/internal/social"
)

// ErrAuthRefreshFailed is returned when the refresh grant is rejected or the
// new token pair cannot be persisted. It is never retried.
var ErrAuthRefreshFailed = errors.New("oauth token refresh failed")

// TokenStore persists the token pair of a network.
type TokenStore interface {
	AccessToken(ctx context.Context, network social.Network) (string, error)
	RefreshToken(ctx context.Context, network social.Network) (string, error)
	StoreTokens(ctx context.Context, network social.Network, access, refresh string) error
}

type credentials struct {
	access  string
	refresh string
}

// AuthedClient sends requests with a bearer token and, on 401, refreshes the
// token pair once and resends the request.
type AuthedClient struct {
	network social.Network
	oauth   *oauth2.Config
	store   TokenStore
	client  *Client
	logger  zerolog.Logger

	// OnRefresh, when set, is called after every refresh attempt.
	OnRefresh func(network social.Network, err error)

	mu    sync.Mutex
	creds credentials
}

// NewAuthedClient loads the current tokens for network from store.
func NewAuthedClient(ctx context.Context, network social.Network, oauthCfg *oauth2.Config, store TokenStore, client *Client, logger zerolog.Logger) (*AuthedClient, error) {
	if client == nil {
		client = New(0)
	}
	access, err := store.AccessToken(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("couldn't load access token: %w", err)
	}
	refresh, err := store.RefreshToken(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("couldn't load refresh token: %w", err)
	}
	return &AuthedClient{
		network: network,
		oauth:   oauthCfg,
		store:   store,
		client:  client,
		logger:  logger.With().Str("network", network.String()).Logger(),
		creds:   credentials{access: access, refresh: refresh},
	}, nil
}

// Do sends req. Responses other than 401 are returned unchanged. A 401
// triggers one token refresh and one resend of a fresh clone of req; the
// second response is returned whatever its status.
func (a *AuthedClient) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, errors.New("request body is not replayable")
	}

	token := a.accessToken()
	resp, err := a.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drainAndClose(resp)

	a.logger.Debug().Msg("access token rejected, refreshing")
	fresh, err := a.refresh(req.Context(), token)
	if a.OnRefresh != nil {
		a.OnRefresh(a.network, err)
	}
	if err != nil {
		return nil, err
	}
	return a.send(req, fresh)
}

func (a *AuthedClient) accessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.creds.access
}

func (a *AuthedClient) send(req *http.Request, token string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+token)
	return a.client.Do(clone)
}

// refresh exchanges the refresh token unless another request already
// replaced the rejected access token.
func (a *AuthedClient) refresh(ctx context.Context, rejected string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.creds.access != rejected {
		return a.creds.access, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client.HTTPClient())
	tok, err := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: a.creds.refresh}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrAuthRefreshFailed, a.network, err)
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = a.creds.refresh
	}
	// The slot is replaced before persisting: the old pair is spent either way.
	a.creds = credentials{access: tok.AccessToken, refresh: refresh}

	if err := a.store.StoreTokens(ctx, a.network, a.creds.access, a.creds.refresh); err != nil {
		return "", fmt.Errorf("%w: %s: persist tokens: %w", ErrAuthRefreshFailed, a.network, err)
	}
	a.logger.Info().Msg("access token refreshed")
	return a.creds.access, nil
}
