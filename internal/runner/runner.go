package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"crosspost/internal/config"
	"crosspost/internal/crosspostdb"
	"crosspost/internal/feed"
	"crosspost/internal/httpclient"
	"crosspost/internal/logging"
	"crosspost/internal/metrics"
	"crosspost/internal/publish"
	"crosspost/internal/shortener"
	"crosspost/internal/social"
	"crosspost/internal/syndicate"
)

// Options allow overriding config values from CLI flags.
type Options struct {
	DryRun      bool
	LogLevel    string
	Debug       bool
	LogFile     string
	MetricsFile string

	// Console receives logs when LogFile is empty (default stderr).
	Console io.Writer
}

// Syndicate executes a single syndication pass. Scheduling is delegated to
// cron/launchd/systemd.
func Syndicate(ctx context.Context, opts Options, load config.ConfigLoad) (err error) {
	cfg, err := load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{Level: opts.LogLevel, Debug: opts.Debug, File: opts.LogFile, Console: opts.Console})
	if err != nil {
		return err
	}
	defer closeLog()

	m := metrics.New()
	started := time.Now()
	defer func() {
		m.ObserveRun(started, err)
		if werr := m.WriteFile(opts.MetricsFile); werr != nil {
			logger.Warn().Err(werr).Str("path", opts.MetricsFile).Msg("couldn't write metrics")
		}
	}()

	db, err := crosspostdb.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := crosspostdb.InitSchema(db); err != nil {
		return err
	}

	targets := Targets(ctx, cfg, crosspostdb.NewTokenDB(db), logger, m)
	if len(targets) == 0 {
		logger.Warn().Msg("no targets enabled, nothing will be published")
	}

	orch := &syndicate.Orchestrator{
		Feeds:           feed.NewClient(cfg.RSS.Timeout(), cfg.RSS.RequestsPerSecond, logger),
		Targets:         targets,
		Ledger:          crosspostdb.NewLedger(db),
		DryRun:          opts.DryRun,
		FeedConcurrency: cfg.Syndication.FeedConcurrency,
		PairConcurrency: cfg.Syndication.PairConcurrency,
		Observer:        syndicate.LogObserver{Logger: logger, Metrics: m},
	}

	logger.Info().
		Int("feeds", len(cfg.RSS.URLs)).
		Int("targets", len(targets)).
		Bool("dry_run", opts.DryRun).
		Msg("syndication started")
	if err = orch.Run(ctx, cfg.RSS.URLs); err != nil {
		logger.Error().Err(err).Dur("took", time.Since(started)).Msg("syndication finished with errors")
		return err
	}
	logger.Info().Dur("took", time.Since(started)).Msg("syndication completed")
	return nil
}

// Targets builds every target the config enables. A target whose
// credentials are missing is skipped with a warning.
func Targets(ctx context.Context, cfg config.AppConfig, tokens httpclient.TokenStore, logger zerolog.Logger, m *metrics.Metrics) []publish.Target {
	client := httpclient.New(cfg.RSS.Timeout())
	sh := shortener.New(cfg.URLShortener.Protocol, cfg.URLShortener.Domain, cfg.URLShortener.PutBaseURI, client)

	var targets []publish.Target
	if tw, err := twitterTarget(ctx, cfg.Twitter, tokens, client, sh, logger, m); err != nil {
		logger.Warn().Err(err).Str("network", social.Twitter.String()).Msg("target disabled")
	} else {
		targets = append(targets, tw)
	}

	if cfg.Mastodon.Enabled() {
		targets = append(targets, publish.NewMastodon(publish.MastodonConfig{
			BaseURI:     cfg.Mastodon.BaseURI,
			AccessToken: cfg.Mastodon.AccessToken,
			Visibility:  cfg.Mastodon.Visibility,
		}, client, sh, logger))
	} else {
		logger.Warn().Str("network", social.Mastodon.String()).Msg("target disabled: mastodon.base_uri or mastodon.access_token not set")
	}
	return targets
}

func twitterTarget(ctx context.Context, cfg config.TwitterConfig, tokens httpclient.TokenStore, client *httpclient.Client, sh publish.Shortener, logger zerolog.Logger, m *metrics.Metrics) (*publish.Twitter, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("twitter.client_id not set")
	}
	oauthCfg := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	authed, err := httpclient.NewAuthedClient(ctx, social.Twitter, oauthCfg, tokens, client, logger)
	if err != nil {
		return nil, fmt.Errorf("%w (seed with 'crosspost token set --network twitter')", err)
	}
	authed.OnRefresh = m.ObserveRefresh

	tw := publish.NewTwitter(publish.TwitterConfig{
		APIBaseURI: cfg.APIBaseURI,
		MaxBudget:  cfg.MaxBudget,
		MinBudget:  cfg.MinBudget,
		BudgetStep: cfg.BudgetStep,
	}, authed, sh, logger)
	tw.OnLengthRetry = m.ObserveLengthRetry
	return tw, nil
}

// SetTokens seeds the credential store for network. Only Twitter reads its
// tokens from the store; Mastodon uses mastodon.access_token.
func SetTokens(ctx context.Context, load config.ConfigLoad, network, access, refresh string) error {
	n, err := social.ParseNetwork(network)
	if err != nil {
		return err
	}
	if n != social.Twitter {
		return fmt.Errorf("%s does not use stored tokens, set its access token in the config", n)
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	db, err := crosspostdb.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := crosspostdb.InitSchema(db); err != nil {
		return err
	}
	return crosspostdb.NewTokenDB(db).StoreTokens(ctx, n, access, refresh)
}
