package publish

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"crosspost/internal/feed"
	"crosspost/internal/httpclient"
	"crosspost/internal/social"
	"crosspost/internal/text"
)

const DefaultMastodonBudget = 500

type MastodonConfig struct {
	BaseURI     string
	AccessToken string
	// Visibility is passed through when set (public, unlisted, private).
	Visibility string
	Budget     int
}

// Mastodon posts statuses with a static application access token.
type Mastodon struct {
	cfg       MastodonConfig
	client    *httpclient.Client
	shortener Shortener
	logger    zerolog.Logger
}

func NewMastodon(cfg MastodonConfig, client *httpclient.Client, sh Shortener, logger zerolog.Logger) *Mastodon {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultMastodonBudget
	}
	cfg.BaseURI = strings.TrimRight(cfg.BaseURI, "/")
	if client == nil {
		client = httpclient.New(0)
	}
	return &Mastodon{
		cfg:       cfg,
		client:    client,
		shortener: sh,
		logger:    logger.With().Str("network", social.Mastodon.String()).Logger(),
	}
}

func (m *Mastodon) Network() social.Network {
	return social.Mastodon
}

type statusRequest struct {
	Status      string `json:"status"`
	SpoilerText string `json:"spoiler_text,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

type statusResponse struct {
	ID string `json:"id"`
}

// Publish posts a single status. Any failure is terminal.
func (m *Mastodon) Publish(ctx context.Context, item feed.Item, d feed.Directive) (social.SyndicatedPost, error) {
	citation, err := m.shortener.Put(ctx, item.Link)
	if err != nil {
		return social.SyndicatedPost{}, fmt.Errorf("mastodon: %w", err)
	}

	body := statusRequest{
		Status:      text.Render(item.Description, m.cfg.Budget, citation, d.Tags),
		SpoilerText: d.ContentWarning,
		Visibility:  m.cfg.Visibility,
	}
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, m.cfg.BaseURI+"/api/v1/statuses", body)
	if err != nil {
		return social.SyndicatedPost{}, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	// Mastodon drops repeated submissions with the same key.
	req.Header.Set("Idempotency-Key", item.GUID)

	resp, err := m.client.Do(req)
	if err != nil {
		return social.SyndicatedPost{}, fmt.Errorf("mastodon: post status: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		return social.SyndicatedPost{}, fmt.Errorf("%w: mastodon: %w", ErrPlatformRejected, err)
	}
	var out statusResponse
	if err := httpclient.DecodeJSON(resp, &out); err != nil {
		return social.SyndicatedPost{}, fmt.Errorf("%w: mastodon: %w", ErrPlatformRejected, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return social.SyndicatedPost{}, fmt.Errorf("%w: mastodon: response without status id", ErrPlatformRejected)
	}

	m.logger.Debug().Str("guid", item.GUID).Str("remote_id", out.ID).Msg("status posted")
	return social.SyndicatedPost{
		Network:      social.Mastodon,
		RemoteID:     out.ID,
		OriginalGUID: item.GUID,
		OriginalURI:  item.Link,
	}, nil
}
