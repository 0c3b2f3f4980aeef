package syndicate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"crosspost/internal/feed"
	"crosspost/internal/publish"
	"crosspost/internal/social"
)

// DefaultConcurrency bounds both fan-out points when not configured.
const DefaultConcurrency = 10

// Ledger is the dedup store consulted before every publish.
type Ledger interface {
	Find(ctx context.Context, guid string, network social.Network) (*social.SyndicatedPost, error)
	Store(ctx context.Context, p social.SyndicatedPost) error
}

// Orchestrator fans feed items out to targets. Each (feed, target, item)
// triple is evaluated independently; failures are collected and never stop
// sibling work.
type Orchestrator struct {
	Feeds   feed.Source
	Targets []publish.Target
	Ledger  Ledger
	// DryRun evaluates everything up to the publish step and stops there.
	DryRun bool

	FeedConcurrency int
	PairConcurrency int

	Observer Observer
}

type errorList struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorList) add(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *errorList) join() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(l.errs...)
}

// Run syndicates every feed in urls. It returns an error iff at least one
// triple or feed failed, after every dispatched triple has finished.
// Cancelling ctx stops dispatching new work; work already dispatched runs to
// completion so that a publish is never separated from its ledger write.
func (o *Orchestrator) Run(ctx context.Context, urls []string) error {
	errs := &errorList{}

	var once sync.Once
	interrupt := func(err error) {
		once.Do(func() { errs.add(fmt.Errorf("syndication interrupted: %w", err)) })
	}

	var g errgroup.Group
	g.SetLimit(limit(o.FeedConcurrency))
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			interrupt(err)
			break
		}
		g.Go(func() error {
			// g.Go may have waited for a slot past cancellation.
			if err := ctx.Err(); err != nil {
				interrupt(err)
				return nil
			}
			o.syndicateFeed(ctx, url, errs)
			return nil
		})
	}
	_ = g.Wait()

	return errs.join()
}

func (o *Orchestrator) syndicateFeed(ctx context.Context, url string, errs *errorList) {
	ch, err := o.Feeds.Channel(ctx, url)
	if err != nil {
		err = fmt.Errorf("feed %s: %w", url, err)
		o.emit(Event{Feed: url, State: StateFeedFailed, Err: err})
		errs.add(err)
		return
	}
	o.emit(Event{Feed: url, State: StateFeedLoaded, Items: len(ch.Items)})

	var once sync.Once
	interrupt := func(err error) {
		once.Do(func() { errs.add(fmt.Errorf("feed %s: syndication interrupted: %w", url, err)) })
	}

	var g errgroup.Group
	g.SetLimit(limit(o.PairConcurrency))
dispatch:
	for _, target := range o.Targets {
		for _, item := range ch.Items {
			if err := ctx.Err(); err != nil {
				interrupt(err)
				break dispatch
			}
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					interrupt(err)
					return nil
				}
				if err := o.syndicateItem(context.WithoutCancel(ctx), url, target, item); err != nil {
					errs.add(err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (o *Orchestrator) syndicateItem(ctx context.Context, url string, target publish.Target, item feed.Item) error {
	network := target.Network()
	ev := Event{Feed: url, GUID: item.GUID, Network: network}
	fail := func(err error) error {
		err = fmt.Errorf("%s to %s: %w", item.GUID, network, err)
		ev.State, ev.Err = StateFailed, err
		o.emit(ev)
		return err
	}

	ev.State = StateLedgerLookup
	o.emit(ev)
	existing, err := o.Ledger.Find(ctx, item.GUID, network)
	if err != nil {
		return fail(fmt.Errorf("ledger lookup: %w", err))
	}
	if existing != nil {
		ev.State, ev.RemoteID = StateAlreadyPublished, existing.RemoteID
		o.emit(ev)
		return nil
	}

	d, err := item.RequireDirective()
	if err != nil {
		return fail(err)
	}
	if !d.Targets(network) {
		ev.State = StateNotTargeted
		o.emit(ev)
		return nil
	}

	if o.DryRun {
		ev.State = StateSkipped
		o.emit(ev)
		return nil
	}

	rec, err := target.Publish(ctx, item, d)
	if err != nil {
		return fail(err)
	}
	rec.Network, rec.OriginalGUID = network, item.GUID
	if err := o.Ledger.Store(ctx, rec); err != nil {
		return fail(fmt.Errorf("published as %s but ledger store failed: %w", rec.RemoteID, err))
	}

	ev.State, ev.RemoteID = StatePublished, rec.RemoteID
	o.emit(ev)
	return nil
}

func (o *Orchestrator) emit(ev Event) {
	if o.Observer != nil {
		o.Observer.Observe(ev)
	}
}

func limit(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	return n
}
