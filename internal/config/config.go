package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RSSConfig lists the feeds to syndicate.
type RSSConfig struct {
	URLs              []string `yaml:"urls"`
	TimeoutSec        int      `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

func (c RSSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type TwitterConfig struct {
	ClientID   string `yaml:"client_id"`
	TokenURL   string `yaml:"token_url"`
	APIBaseURI string `yaml:"api_base_uri"`
	MaxBudget  int    `yaml:"max_budget"`
	MinBudget  int    `yaml:"min_budget"`
	BudgetStep int    `yaml:"budget_step"`
}

// Enabled reports whether enough is configured to publish to Twitter. Tokens
// live in the database, not in the config file.
func (c TwitterConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

type MastodonConfig struct {
	BaseURI     string `yaml:"base_uri"`
	AccessToken string `yaml:"access_token"`
	Visibility  string `yaml:"visibility"`
}

func (c MastodonConfig) Enabled() bool {
	return strings.TrimSpace(c.BaseURI) != "" && strings.TrimSpace(c.AccessToken) != ""
}

type ShortenerConfig struct {
	Protocol   string `yaml:"protocol"`
	Domain     string `yaml:"domain"`
	PutBaseURI string `yaml:"put_base_uri"`
}

type SyndicationConfig struct {
	FeedConcurrency int `yaml:"feed_concurrency"`
	PairConcurrency int `yaml:"pair_concurrency"`
}

// AppConfig is the whole of config.yaml.
type AppConfig struct {
	RSS          RSSConfig         `yaml:"rss"`
	DB           DBConfig          `yaml:"db"`
	Twitter      TwitterConfig     `yaml:"twitter"`
	Mastodon     MastodonConfig    `yaml:"mastodon"`
	URLShortener ShortenerConfig   `yaml:"url_shortener"`
	Syndication  SyndicationConfig `yaml:"syndication"`
}

// Default returns the configuration used for every field the file omits.
func Default() AppConfig {
	return AppConfig{
		RSS: RSSConfig{
			TimeoutSec:        30,
			RequestsPerSecond: 2,
		},
		DB: DBConfig{Path: FallbackDBPath()},
		Twitter: TwitterConfig{
			TokenURL:   "https://api.twitter.com/2/oauth2/token",
			APIBaseURI: "https://api.twitter.com",
			MaxBudget:  280,
			MinBudget:  200,
			BudgetStep: 5,
		},
		Mastodon:     MastodonConfig{Visibility: "public"},
		URLShortener: ShortenerConfig{Protocol: "https"},
		Syndication: SyndicationConfig{
			FeedConcurrency: 10,
			PairConcurrency: 10,
		},
	}
}

// FallbackDBPath is the database location when db.path is not set.
func FallbackDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "crosspost.db"
	}
	return filepath.Join(home, ".local", "share", "crosspost", "crosspost.db")
}

// DefaultConfigPath returns ~/.config/crosspost/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "crosspost", "config.yaml"), nil
}

type ConfigLoad func() (AppConfig, error)

// Loader returns a ConfigLoad reading path; see Load.
func Loader(path string) ConfigLoad {
	return func() (AppConfig, error) { return Load(path) }
}

// Load reads the config at path, or at DefaultConfigPath when path is empty,
// on top of Default.
func Load(path string) (AppConfig, error) {
	if strings.TrimSpace(path) == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return AppConfig{}, fmt.Errorf("couldn't locate config: %w", err)
		}
		path = p
	}
	b, err := os.ReadFile(expandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("config not found at %s (run 'crosspost config init'): %w", path, err)
		}
		return AppConfig{}, err
	}
	return Parse(b)
}

// Parse decodes YAML config, filling omitted fields from Default.
func Parse(b []byte) (AppConfig, error) {
	ac := Default()
	if err := yaml.Unmarshal(b, &ac); err != nil {
		return AppConfig{}, fmt.Errorf("couldn't parse config: %w", err)
	}
	ac.normalize()
	return ac, nil
}

func (ac *AppConfig) normalize() {
	def := Default()

	urls := ac.RSS.URLs[:0]
	for _, u := range ac.RSS.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	ac.RSS.URLs = urls
	if ac.RSS.TimeoutSec <= 0 {
		ac.RSS.TimeoutSec = def.RSS.TimeoutSec
	}
	if ac.RSS.RequestsPerSecond <= 0 {
		ac.RSS.RequestsPerSecond = def.RSS.RequestsPerSecond
	}

	if strings.TrimSpace(ac.DB.Path) == "" {
		ac.DB.Path = def.DB.Path
	}
	ac.DB.Path = expandPath(ac.DB.Path)

	if ac.Twitter.TokenURL == "" {
		ac.Twitter.TokenURL = def.Twitter.TokenURL
	}
	if ac.Twitter.APIBaseURI == "" {
		ac.Twitter.APIBaseURI = def.Twitter.APIBaseURI
	}
	if ac.Twitter.MaxBudget <= 0 {
		ac.Twitter.MaxBudget = def.Twitter.MaxBudget
	}
	if ac.Twitter.MinBudget <= 0 {
		ac.Twitter.MinBudget = def.Twitter.MinBudget
	}
	if ac.Twitter.BudgetStep <= 0 {
		ac.Twitter.BudgetStep = def.Twitter.BudgetStep
	}

	ac.Mastodon.BaseURI = strings.TrimRight(ac.Mastodon.BaseURI, "/")
	if ac.URLShortener.Protocol == "" {
		ac.URLShortener.Protocol = def.URLShortener.Protocol
	}

	if ac.Syndication.FeedConcurrency <= 0 {
		ac.Syndication.FeedConcurrency = def.Syndication.FeedConcurrency
	}
	if ac.Syndication.PairConcurrency <= 0 {
		ac.Syndication.PairConcurrency = def.Syndication.PairConcurrency
	}
}

// Validate reports every missing required setting at once.
func (ac AppConfig) Validate() error {
	var errs []error
	if len(ac.RSS.URLs) == 0 {
		errs = append(errs, errors.New("rss.urls is empty"))
	}
	if ac.DB.Path == "" {
		errs = append(errs, errors.New("db.path is empty"))
	}
	if ac.URLShortener.Domain == "" {
		errs = append(errs, errors.New("url_shortener.domain is empty"))
	}
	if ac.URLShortener.PutBaseURI == "" {
		errs = append(errs, errors.New("url_shortener.put_base_uri is empty"))
	}
	if ac.Twitter.MinBudget > ac.Twitter.MaxBudget {
		errs = append(errs, fmt.Errorf("twitter.min_budget %d exceeds max_budget %d", ac.Twitter.MinBudget, ac.Twitter.MaxBudget))
	}
	return errors.Join(errs...)
}

// expandPath expands leading ~ and environment variables in a filesystem path.
func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}
