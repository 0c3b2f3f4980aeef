package syndicate

import (
	"github.com/rs/zerolog"

	"crosspost/internal/metrics"
	"crosspost/internal/social"
)

// State is a step of the per (feed, target, item) state machine.
type State string

const (
	StateFeedLoaded       State = "feed_loaded"
	StateFeedFailed       State = "feed_failed"
	StateLedgerLookup     State = "ledger_lookup"
	StateAlreadyPublished State = "already_published"
	StateNotTargeted      State = "not_targeted"
	StateSkipped          State = "skipped_dry_run"
	StatePublished        State = "published"
	StateFailed           State = "failed"
)

// Terminal reports whether s ends an item's evaluation for one network.
func (s State) Terminal() bool {
	switch s {
	case StateAlreadyPublished, StateNotTargeted, StateSkipped, StatePublished, StateFailed:
		return true
	}
	return false
}

// Event describes one state transition.
type Event struct {
	Feed     string
	GUID     string
	Network  social.Network
	State    State
	RemoteID string
	Items    int
	Err      error
}

// Observer receives events. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// LogObserver logs every event and feeds the run metrics.
type LogObserver struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func (o LogObserver) Observe(ev Event) {
	var e *zerolog.Event
	switch ev.State {
	case StateFailed, StateFeedFailed:
		e = o.Logger.Error().Err(ev.Err)
	case StatePublished, StateSkipped:
		e = o.Logger.Info()
	default:
		e = o.Logger.Debug()
	}
	e = e.Str("state", string(ev.State)).Str("feed", ev.Feed)
	if ev.GUID != "" {
		e = e.Str("guid", ev.GUID).Str("network", ev.Network.String())
	}
	if ev.RemoteID != "" {
		e = e.Str("remote_id", ev.RemoteID)
	}
	if ev.State == StateFeedLoaded {
		e = e.Int("items", ev.Items)
	}
	e.Msg("syndication")

	switch {
	case ev.State == StateFeedLoaded:
		o.Metrics.ObserveFeed(nil)
	case ev.State == StateFeedFailed:
		o.Metrics.ObserveFeed(ev.Err)
	case ev.State.Terminal():
		o.Metrics.ObserveItem(ev.Network, string(ev.State))
	}
}
