package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"crosspost/internal/feed"
	"crosspost/internal/httpclient"
	"crosspost/internal/social"
	"crosspost/internal/text"
)

const (
	DefaultTwitterAPIBaseURI = "https://api.twitter.com"
	DefaultTwitterTokenURL   = "https://api.twitter.com/2/oauth2/token"
	DefaultTwitterMaxBudget  = 280
	DefaultTwitterMinBudget  = 200
	DefaultTwitterBudgetStep = 5
)

type TwitterConfig struct {
	APIBaseURI string
	// The length budget starts at MaxBudget and drops by BudgetStep after
	// each "too long" rejection, down to MinBudget inclusive.
	MaxBudget  int
	MinBudget  int
	BudgetStep int
}

// Doer sends authenticated requests. *httpclient.AuthedClient implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Twitter posts tweets, shrinking the text whenever the API reports it as
// too long.
type Twitter struct {
	cfg       TwitterConfig
	client    Doer
	shortener Shortener
	logger    zerolog.Logger

	// OnLengthRetry, when set, is called before each retry with the next budget.
	OnLengthRetry func(budget int)
}

func NewTwitter(cfg TwitterConfig, client Doer, sh Shortener, logger zerolog.Logger) *Twitter {
	if cfg.APIBaseURI == "" {
		cfg.APIBaseURI = DefaultTwitterAPIBaseURI
	}
	cfg.APIBaseURI = strings.TrimRight(cfg.APIBaseURI, "/")
	if cfg.MaxBudget <= 0 {
		cfg.MaxBudget = DefaultTwitterMaxBudget
	}
	if cfg.MinBudget <= 0 {
		cfg.MinBudget = DefaultTwitterMinBudget
	}
	if cfg.MinBudget > cfg.MaxBudget {
		cfg.MinBudget = cfg.MaxBudget
	}
	if cfg.BudgetStep <= 0 {
		cfg.BudgetStep = DefaultTwitterBudgetStep
	}
	return &Twitter{
		cfg:       cfg,
		client:    client,
		shortener: sh,
		logger:    logger.With().Str("network", social.Twitter.String()).Logger(),
	}
}

func (t *Twitter) Network() social.Network {
	return social.Twitter
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Publish posts the item, retrying with smaller budgets on length rejections.
func (t *Twitter) Publish(ctx context.Context, item feed.Item, d feed.Directive) (social.SyndicatedPost, error) {
	citation, err := t.shortener.Put(ctx, item.Link)
	if err != nil {
		return social.SyndicatedPost{}, fmt.Errorf("twitter: %w", err)
	}

	for budget := t.cfg.MaxBudget; budget >= t.cfg.MinBudget; budget -= t.cfg.BudgetStep {
		status := text.Render(item.Description, budget, citation, d.Tags)
		id, err := t.tweet(ctx, status)
		if err == nil {
			t.logger.Debug().Str("guid", item.GUID).Str("remote_id", id).Int("budget", budget).Msg("tweet posted")
			return social.SyndicatedPost{
				Network:      social.Twitter,
				RemoteID:     id,
				OriginalGUID: item.GUID,
				OriginalURI:  item.Link,
			}, nil
		}
		if !errors.Is(err, ErrContentTooLong) {
			return social.SyndicatedPost{}, err
		}
		next := budget - t.cfg.BudgetStep
		t.logger.Debug().Str("guid", item.GUID).Int("budget", budget).Int("next_budget", next).Msg("tweet too long")
		if t.OnLengthRetry != nil && next >= t.cfg.MinBudget {
			t.OnLengthRetry(next)
		}
	}
	return social.SyndicatedPost{}, fmt.Errorf("%w: twitter: text still too long at budget %d", ErrPlatformRejected, t.cfg.MinBudget)
}

func (t *Twitter) tweet(ctx context.Context, status string) (string, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, t.cfg.APIBaseURI+"/2/tweets", tweetRequest{Text: status})
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter: post tweet: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && strings.Contains(strings.ToLower(se.Body), "too long") {
			return "", fmt.Errorf("%w: %w", ErrContentTooLong, err)
		}
		return "", fmt.Errorf("%w: twitter: %w", ErrPlatformRejected, err)
	}
	var out tweetResponse
	if err := httpclient.DecodeJSON(resp, &out); err != nil {
		return "", fmt.Errorf("%w: twitter: %w", ErrPlatformRejected, err)
	}
	if strings.TrimSpace(out.Data.ID) == "" {
		return "", fmt.Errorf("%w: twitter: response without tweet id", ErrPlatformRejected)
	}
	return out.Data.ID, nil
}
