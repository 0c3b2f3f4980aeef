package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrConfigExists is returned by WriteStarter when the target exists and
// force is not set.
var ErrConfigExists = errors.New("config file already exists")

// WriteStarter writes a commented starter config to path. An existing file is
// backed up and replaced only when force is set.
func WriteStarter(path string, ac AppConfig, force bool) (string, error) {
	if strings.TrimSpace(path) == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = p
	}
	path = expandPath(path)

	if _, err := os.Stat(path); err == nil {
		if !force {
			return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
		if err := BackupFile(path); err != nil {
			return path, fmt.Errorf("failed to back up existing config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %w", err)
	}
	return path, os.WriteFile(path, []byte(Render(ac)), 0o600)
}

// Render produces the YAML for ac. It is written by hand so that each
// section carries a comment.
func Render(ac AppConfig) string {
	var sb strings.Builder
	sb.WriteString("# crosspost configuration\n\n")

	sb.WriteString("# Feeds whose items carry iwt:extension directives\n")
	sb.WriteString("rss:\n")
	if len(ac.RSS.URLs) == 0 {
		sb.WriteString("  urls: []\n")
	} else {
		sb.WriteString("  urls:\n")
		for _, u := range ac.RSS.URLs {
			fmt.Fprintf(&sb, "    - %s\n", strings.TrimSpace(u))
		}
	}
	fmt.Fprintf(&sb, "  timeout: %d\n", ac.RSS.TimeoutSec)
	fmt.Fprintf(&sb, "  requests_per_second: %g\n\n", ac.RSS.RequestsPerSecond)

	sb.WriteString("# Ledger of syndicated posts and OAuth tokens\n")
	sb.WriteString("db:\n")
	fmt.Fprintf(&sb, "  path: %q\n\n", ac.DB.Path)

	sb.WriteString("# Seed tokens with 'crosspost token set --network twitter'\n")
	sb.WriteString("twitter:\n")
	fmt.Fprintf(&sb, "  client_id: %q\n", ac.Twitter.ClientID)
	fmt.Fprintf(&sb, "  token_url: %s\n", ac.Twitter.TokenURL)
	fmt.Fprintf(&sb, "  api_base_uri: %s\n", ac.Twitter.APIBaseURI)
	fmt.Fprintf(&sb, "  max_budget: %d\n", ac.Twitter.MaxBudget)
	fmt.Fprintf(&sb, "  min_budget: %d\n", ac.Twitter.MinBudget)
	fmt.Fprintf(&sb, "  budget_step: %d\n\n", ac.Twitter.BudgetStep)

	sb.WriteString("mastodon:\n")
	fmt.Fprintf(&sb, "  base_uri: %q\n", ac.Mastodon.BaseURI)
	fmt.Fprintf(&sb, "  access_token: %q\n", ac.Mastodon.AccessToken)
	fmt.Fprintf(&sb, "  visibility: %s\n\n", ac.Mastodon.Visibility)

	sb.WriteString("url_shortener:\n")
	fmt.Fprintf(&sb, "  protocol: %s\n", ac.URLShortener.Protocol)
	fmt.Fprintf(&sb, "  domain: %q\n", ac.URLShortener.Domain)
	fmt.Fprintf(&sb, "  put_base_uri: %q\n\n", ac.URLShortener.PutBaseURI)

	sb.WriteString("syndication:\n")
	fmt.Fprintf(&sb, "  feed_concurrency: %d\n", ac.Syndication.FeedConcurrency)
	fmt.Fprintf(&sb, "  pair_concurrency: %d\n", ac.Syndication.PairConcurrency)
	return sb.String()
}

// BackupFile creates a backup of the specified file with a timestamp
func BackupFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ts := time.Now().Format("20060102-150405")
	bak := path + ".bak-" + ts
	return os.WriteFile(bak, b, 0o600)
}
