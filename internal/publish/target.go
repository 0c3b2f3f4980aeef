package publish

import (
	"context"
	"errors"

	"crosspost/internal/feed"
	"crosspost/internal/shortener"
	"crosspost/internal/social"
)

var (
	// ErrPlatformRejected marks a terminal non-auth failure reported by a
	// network, including malformed responses.
	ErrPlatformRejected = errors.New("platform rejected post")
	// ErrContentTooLong is reported by a network when the status exceeds its
	// length limit. Only the Twitter budget loop acts on it.
	ErrContentTooLong = errors.New("content too long")
)

// Target publishes feed items to one social network.
type Target interface {
	Network() social.Network
	Publish(ctx context.Context, item feed.Item, d feed.Directive) (social.SyndicatedPost, error)
}

// Shortener turns a post link into a citation.
type Shortener interface {
	Put(ctx context.Context, longURI string) (shortener.Citation, error)
}
