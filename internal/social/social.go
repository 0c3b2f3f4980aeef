package social

import (
	"fmt"
	"strings"
	"time"
)

// Network identifies a syndication target. The string form is the key used
// by both the ledger and the token store.
type Network string

const (
	Twitter  Network = "twitter"
	Mastodon Network = "mastodon"
)

// Networks returns every known network.
func Networks() []Network {
	return []Network{Twitter, Mastodon}
}

func (n Network) String() string {
	return string(n)
}

// ParseNetwork maps a stored or configured key back to a Network.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Twitter):
		return Twitter, nil
	case string(Mastodon):
		return Mastodon, nil
	default:
		return "", fmt.Errorf("unknown social network %q", s)
	}
}

// SyndicatedPost records that an original post has been published to a
// network. (OriginalGUID, Network) is unique.
type SyndicatedPost struct {
	Network      Network
	RemoteID     string
	OriginalGUID string
	OriginalURI  string
	CreatedAt    time.Time
}
