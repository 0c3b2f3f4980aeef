package syndicate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crosspost/internal/crosspostdb"
	"crosspost/internal/feed"
	"crosspost/internal/publish"
	"crosspost/internal/social"
)

type fakeSource struct {
	channels map[string]*feed.Channel
	errs     map[string]error
	loads    atomic.Int32
}

func (f *fakeSource) Channel(_ context.Context, url string) (*feed.Channel, error) {
	f.loads.Add(1)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	ch, ok := f.channels[url]
	if !ok {
		return nil, fmt.Errorf("no such feed %s", url)
	}
	return ch, nil
}

type fakeTarget struct {
	network social.Network
	err     error
	delay   time.Duration
	// onPublish runs at the start of every Publish call.
	onPublish func(guid string)

	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeTarget) Network() social.Network { return f.network }

func (f *fakeTarget) Publish(_ context.Context, item feed.Item, _ feed.Directive) (social.SyndicatedPost, error) {
	if f.onPublish != nil {
		f.onPublish(item.GUID)
	}
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, item.GUID)
	f.mu.Unlock()
	if f.err != nil {
		return social.SyndicatedPost{}, f.err
	}
	return social.SyndicatedPost{
		Network:      f.network,
		RemoteID:     string(f.network) + "-" + item.GUID,
		OriginalGUID: item.GUID,
		OriginalURI:  item.Link,
	}, nil
}

func (f *fakeTarget) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memLedger struct {
	mu       sync.Mutex
	records  map[string]social.SyndicatedPost
	findErr  error
	storeErr error
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]social.SyndicatedPost{}}
}

func key(guid string, n social.Network) string { return guid + "|" + n.String() }

func (l *memLedger) Find(_ context.Context, guid string, n social.Network) (*social.SyndicatedPost, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	if rec, ok := l.records[key(guid, n)]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (l *memLedger) Store(_ context.Context, p social.SyndicatedPost) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.storeErr != nil {
		return l.storeErr
	}
	k := key(p.OriginalGUID, p.Network)
	if _, ok := l.records[k]; ok {
		return crosspostdb.ErrDuplicate
	}
	l.records[k] = p
	return nil
}

func (l *memLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func item(guid string, targets ...social.Network) feed.Item {
	return feed.Item{
		GUID:        guid,
		Link:        "https://blog.example.com/" + guid,
		Description: "<p>" + guid + "</p>",
		Directive:   &feed.Directive{TargetNetworks: targets},
	}
}

func channel(items ...feed.Item) *feed.Channel {
	return &feed.Channel{Title: "blog", Items: items}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) states(guid string, n social.Network) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, ev := range l.events {
		if ev.GUID == guid && ev.Network == n {
			out = append(out, ev.State)
		}
	}
	return out
}

func newOrchestrator(src feed.Source, ledger Ledger, targets ...publish.Target) *Orchestrator {
	return &Orchestrator{Feeds: src, Ledger: ledger, Targets: targets}
}

func TestRun_TwoFeedsScenario(t *testing.T) {
	src := &fakeSource{channels: map[string]*feed.Channel{
		"feed-1": channel(item("item-1", social.Mastodon)),
		"feed-2": channel(item("item-2", social.Twitter, social.Mastodon)),
	}}
	tw := &fakeTarget{network: social.Twitter}
	ma := &fakeTarget{network: social.Mastodon}
	ledger := newMemLedger()

	err := newOrchestrator(src, ledger, tw, ma).Run(t.Context(), []string{"feed-1", "feed-2"})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"item-1", "item-2"}, ma.published())
	require.Equal(t, []string{"item-2"}, tw.published())
	require.Equal(t, 3, ledger.len())
}

func TestRun_Idempotent(t *testing.T) {
	src := &fakeSource{channels: map[string]*feed.Channel{
		"feed": channel(item("a", social.Twitter, social.Mastodon), item("b", social.Twitter)),
	}}
	tw := &fakeTarget{network: social.Twitter}
	ma := &fakeTarget{network: social.Mastodon}
	ledger := newMemLedger()
	o := newOrchestrator(src, ledger, tw, ma)

	require.NoError(t, o.Run(t.Context(), []string{"feed"}))
	require.NoError(t, o.Run(t.Context(), []string{"feed"}))

	require.Len(t, tw.published(), 2)
	require.Len(t, ma.published(), 1)
	require.Equal(t, 3, ledger.len())
}

func TestRun_AlreadyInLedgerIsNotRepublished(t *testing.T) {
	src := &fakeSource{channels: map[string]*feed.Channel{
		"feed": channel(item("a", social.Twitter, social.Mastodon)),
	}}
	ledger := newMemLedger()
	require.NoError(t, ledger.Store(t.Context(), social.SyndicatedPost{Network: social.Twitter, RemoteID: "old", OriginalGUID: "a"}))
	tw := &fakeTarget{network: social.Twitter}
	ma := &fakeTarget{network: social.Mastodon}
	events := &eventLog{}
	o := newOrchestrator(src, ledger, tw, ma)
	o.Observer = events

	require.NoError(t, o.Run(t.Context(), []string{"feed"}))
	require.Empty(t, tw.published())
	require.Equal(t, []string{"a"}, ma.published())
	require.Equal(t, []State{StateLedgerLookup, StateAlreadyPublished}, events.states("a", social.Twitter))
	require.Equal(t, []State{StateLedgerLookup, StatePublished}, events.states("a", social.Mastodon))
}

func TestRun_DirectiveRouting(t *testing.T) {
	src := &fakeSource{channels: map[string]*feed.Channel{
		"feed": channel(item("none"), item("tw", social.Twitter), item("ma", social.Mastodon)),
	}}
	tw := &fakeTarget{network: social.Twitter}
	ma := &fakeTarget{network: social.Mastodon}
	events := &eventLog{}
	o := newOrchestrator(src, newMemLedger(), tw, ma)
	o.Observer = events

	require.NoError(t, o.Run(t.Context(), []string{"feed"}))
	require.Equal(t, []string{"tw"}, tw.published())
	require.Equal(t, []string{"ma"}, ma.published())
	require.Equal(t, []State{StateLedgerLookup, StateNotTargeted}, events.states("none", social.Twitter))
	require.Equal(t, []State{StateLedgerLookup, StateNotTargeted}, events.states("none", social.Mastodon))
}

func TestRun_DryRun(t *testing.T) {
	src := &fakeSource{channels: map[string]*feed.Channel{
		"feed": channel(item("a", social.Twitter, social.Mastodon), item("b", social.Twitter)),
	}}
	tw := &fakeTarget{network: social.Twitter}
	ma := &fakeTarget{network: social.Mastodon}
	ledger := newMemLedger()
	events := &eventLog{}
	o := newOrchestrator(src, ledger, tw, ma)
	o.DryRun = true
	o.Observer = events

	require.NoError(t, o.Run(t.Context(), []string{"feed"}))
	require.Empty(t, tw.published())
	require.Empty(t, ma.published())
	require.Zero(t, ledger.len())
	require.Equal(t, []State{StateLedgerLookup, StateSkipped}, events.states("a", social.Twitter))
}

func TestRun_MissingDirectiveFailsOnlyThatItem(t *testing.T) {
	bare := feed.Item{GUID: "bare", Link: "https://blog.example.com/bare"}
	src := &fakeSource{channels: map[string]*feed.Channel{
		"feed": channel(bare, item("ok", social.Twitter)),
	}}
	tw := &fakeTarget{network: social.Twitter}
	ledger := newMemLedger()

	err := newOrchestrator(src, ledger, tw).Run(t.Context(), []string{"feed"})
	require.ErrorIs(t, err, feed.ErrDirectiveMissing)
	require.Equal(t, []string{"ok"}, tw.published())
	require.Equal(t, 1, ledger.len())
}

func TestRun_FeedFailureIsIsolated(t *testing.T) {
	loadErr := errors.New("connection refused")
	src := &fakeSource{
		channels: map[string]*feed.Channel{"feed-b": channel(item("b1", social.Mastodon), item("b2", social.Mastodon))},
		errs:     map[string]error{"feed-a": loadErr},
	}
	ma := &fakeTarget{network: social.Mastodon}
	ledger := newMemLedger()
	events := &eventLog{}
	o := newOrchestrator(src, ledger, ma)
	o.Observer = events

	err := o.Run(t.Context(), []string{"feed-a", "feed-b"})
	require.ErrorIs(t, err, loadErr)
	require.ElementsMatch(t, []string{"b1", "b2"}, ma.published())
	require.Equal(t, 2, ledger.len())

	var feedFailed int
	for _, ev := range events.events {
		if ev.State == StateFeedFailed && ev.Feed == "feed-a" {
			feedFailed++
		}
	}
	require.Equal(t, 1, feedFailed)
}

func TestRun_PublishFailureIsCollected(t *testing.T) {
	src := &fakeSource{channels: map[string]*feed.Channel{
		"feed": channel(item("a", social.Twitter, social.Mastodon)),
	}}
	tw := &fakeTarget{network: social.Twitter, err: fmt.Errorf("%w: HTTP 503", publish.ErrPlatformRejected)}
	ma := &fakeTarget{network: social.Mastodon}
	ledger := newMemLedger()

	err := newOrchestrator(src, ledger, tw, ma).Run(t.Context(), []string{"feed"})
	require.ErrorIs(t, err, publish.ErrPlatformRejected)
	require.Equal(t, []string{"a"}, ma.published())
	require.Equal(t, 1, ledger.len())

	rec, ferr := ledger.Find(t.Context(), "a", social.Twitter)
	require.NoError(t, ferr)
	require.Nil(t, rec)
}

func TestRun_StorageFaults(t *testing.T) {
	fault := &crosspostdb.StorageError{Op: "find", Err: errors.New("disk I/O error")}

	t.Run("lookup", func(t *testing.T) {
		src := &fakeSource{channels: map[string]*feed.Channel{"feed": channel(item("a", social.Twitter))}}
		tw := &fakeTarget{network: social.Twitter}
		ledger := newMemLedger()
		ledger.findErr = fault

		err := newOrchestrator(src, ledger, tw).Run(t.Context(), []string{"feed"})
		var se *crosspostdb.StorageError
		require.ErrorAs(t, err, &se)
		require.Empty(t, tw.published())
	})

	t.Run("store after publish", func(t *testing.T) {
		src := &fakeSource{channels: map[string]*feed.Channel{"feed": channel(item("a", social.Twitter))}}
		tw := &fakeTarget{network: social.Twitter}
		ledger := newMemLedger()
		ledger.storeErr = fault

		err := newOrchestrator(src, ledger, tw).Run(t.Context(), []string{"feed"})
		var se *crosspostdb.StorageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, []string{"a"}, tw.published())
	})
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var items []feed.Item
	for i := 0; i < 12; i++ {
		items = append(items, item(fmt.Sprintf("i%d", i), social.Mastodon))
	}
	src := &fakeSource{channels: map[string]*feed.Channel{"feed": channel(items...)}}
	ma := &fakeTarget{network: social.Mastodon, delay: 20 * time.Millisecond}
	o := newOrchestrator(src, newMemLedger(), ma)
	o.PairConcurrency = 3

	require.NoError(t, o.Run(t.Context(), []string{"feed"}))
	require.Len(t, ma.published(), 12)
	require.LessOrEqual(t, ma.maxSeen.Load(), int32(3))
}

func TestRun_CancelledBeforeDispatch(t *testing.T) {
	src := &fakeSource{channels: map[string]*feed.Channel{"feed": channel(item("a", social.Twitter))}}
	tw := &fakeTarget{network: social.Twitter}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := newOrchestrator(src, newMemLedger(), tw).Run(ctx, []string{"feed"})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, src.loads.Load())
	require.Empty(t, tw.published())
}

func TestRun_CancelledWhilePublishing(t *testing.T) {
	var items []feed.Item
	for i := 0; i < 5; i++ {
		items = append(items, item(fmt.Sprintf("i%d", i), social.Mastodon))
	}
	src := &fakeSource{channels: map[string]*feed.Channel{"feed": channel(items...)}}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	ma := &fakeTarget{network: social.Mastodon, onPublish: func(string) { cancel() }}
	ledger := newMemLedger()
	o := newOrchestrator(src, ledger, ma)
	o.PairConcurrency = 1

	err := o.Run(ctx, []string{"feed"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"i0"}, ma.published())
	// the in-flight publish still reaches the ledger
	require.Equal(t, 1, ledger.len())
}
