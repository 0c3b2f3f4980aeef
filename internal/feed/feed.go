package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"crosspost/internal/social"
)

// ErrDirectiveMissing is returned for items that carry no usable
// syndication directive.
var ErrDirectiveMissing = errors.New("syndication directive missing")

// Directive selects where and how an item is syndicated.
type Directive struct {
	TargetNetworks []social.Network
	Tags           []string
	// ContentWarning is empty when the item has none.
	ContentWarning string
}

// Targets reports whether network is among the directive's targets.
func (d Directive) Targets(network social.Network) bool {
	return slices.Contains(d.TargetNetworks, network)
}

// Item is a feed entry as consumed by the syndicator.
type Item struct {
	GUID        string
	Link        string
	Title       string
	Description string

	Directive *Directive
	// DirectiveErr is set when a directive was present but invalid.
	DirectiveErr error
}

// RequireDirective returns the item's directive or an error wrapping
// ErrDirectiveMissing.
func (it Item) RequireDirective() (Directive, error) {
	if it.Directive != nil {
		return *it.Directive, nil
	}
	if it.DirectiveErr != nil {
		return Directive{}, fmt.Errorf("%w: item %s: %w", ErrDirectiveMissing, it.GUID, it.DirectiveErr)
	}
	return Directive{}, fmt.Errorf("%w: item %s", ErrDirectiveMissing, it.GUID)
}

// Channel is a parsed feed.
type Channel struct {
	Title string
	Link  string
	Items []Item
}

// Source loads feeds.
type Source interface {
	Channel(ctx context.Context, url string) (*Channel, error)
}

// Client fetches and parses RSS/Atom feeds over HTTP.
type Client struct {
	parser  *gofeed.Parser
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient constructs a feed client. perSecond limits how often feeds are
// requested; values <= 0 disable pacing.
func NewClient(timeout time.Duration, perSecond float64, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	p.UserAgent = "crosspost/feed-client"
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{parser: p, limiter: rate.NewLimiter(limit, 1), logger: logger}
}

// Channel fetches and parses the feed at url.
func (c *Client) Channel(ctx context.Context, url string) (*Channel, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	f, err := c.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed %s: %w", url, err)
	}
	ch := FromFeed(f)
	c.logger.Debug().Str("feed", url).Int("items", len(ch.Items)).Msg("feed parsed")
	return ch, nil
}

// FromFeed converts a parsed gofeed feed.
func FromFeed(f *gofeed.Feed) *Channel {
	ch := &Channel{Title: f.Title, Link: f.Link}
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		item := Item{
			GUID:        firstNonEmpty(it.GUID, it.Link),
			Link:        it.Link,
			Title:       it.Title,
			Description: firstNonEmpty(it.Description, it.Content),
		}
		item.Directive, item.DirectiveErr = ParseDirective(it.Extensions)
		ch.Items = append(ch.Items, item)
	}
	return ch
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
