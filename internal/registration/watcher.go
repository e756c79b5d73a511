// Package registration covers the public pre-event flows: the live
// registration window, team sign-up, payment proof and self-service edits.
package registration

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/clock"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

// CheckInterval is how often the window state is re-requested.
const CheckInterval = 5 * time.Second

// Watcher tracks the registrationStatus broadcast. It asks on start, every
// CheckInterval, and once more when a scheduled opening time arrives.
type Watcher struct {
	bus   channel.Bus
	clock clock.Clock
	log   *zap.Logger
	sub   *channel.Subscription

	mu       sync.Mutex
	status   types.RegistrationStatus
	known    bool
	openAt   time.Time
	openTmr  clock.Timer
	onChange func(types.RegistrationStatus)
}

type WatcherOption func(*Watcher)

// WithOnStatus is called after every accepted status, outside the lock.
func WithOnStatus(f func(types.RegistrationStatus)) WatcherOption {
	return func(w *Watcher) { w.onChange = f }
}

func NewWatcher(bus channel.Bus, clk clock.Clock, log *zap.Logger, opts ...WatcherOption) *Watcher {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{bus: bus, clock: clk, log: log.Named("registration")}
	for _, o := range opts {
		o(w)
	}
	w.sub = bus.Subscribe(pkgtypes.TopicRegistrationStatus, w.onStatus)
	return w
}

// Run polls until ctx ends, then unsubscribes.
func (w *Watcher) Run(ctx context.Context) error {
	t := w.clock.NewTicker(CheckInterval)
	defer func() {
		t.Stop()
		w.sub.Unsubscribe()
		w.mu.Lock()
		if w.openTmr != nil {
			w.openTmr.Stop()
		}
		w.mu.Unlock()
	}()

	w.check()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			w.check()
		}
	}
}

func (w *Watcher) check() {
	if err := w.bus.Emit(pkgtypes.TopicCheck, nil); err != nil {
		w.log.Debug("status check not sent", zap.Error(err))
	}
}

func (w *Watcher) onStatus(data json.RawMessage) {
	var s types.RegistrationStatus
	if err := json.Unmarshal(data, &s); err != nil {
		w.log.Debug("bad registrationStatus", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.status = s
	w.known = true
	w.armOpenCheckLocked(s)
	cb := w.onChange
	w.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// armOpenCheckLocked schedules one extra check for the announced opening
// time, replacing any earlier one.
func (w *Watcher) armOpenCheckLocked(s types.RegistrationStatus) {
	if !s.Closed || s.OpenTime == nil || !s.OpenTime.After(w.clock.Now()) {
		if w.openTmr != nil {
			w.openTmr.Stop()
			w.openTmr = nil
		}
		w.openAt = time.Time{}
		return
	}
	if w.openTmr != nil && w.openAt.Equal(*s.OpenTime) {
		return
	}
	if w.openTmr != nil {
		w.openTmr.Stop()
	}
	w.openAt = *s.OpenTime
	w.openTmr = w.clock.AfterFunc(s.OpenTime.Sub(w.clock.Now()), func() {
		w.log.Info("registration opening time reached, re-checking")
		w.check()
	})
}

// Status returns the latest broadcast and whether one arrived yet.
func (w *Watcher) Status() (types.RegistrationStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.known
}

// Full reports a known, open window whose seats are all taken.
func (w *Watcher) Full() bool {
	s, ok := w.Status()
	return ok && !s.Closed && s.Limit > 0 && s.Count >= s.Limit
}

// Accepting reports whether sign-ups may be attempted.
func (w *Watcher) Accepting() bool {
	s, ok := w.Status()
	return ok && !s.Closed && !w.Full()
}

// Countdown is the time left until a scheduled opening, or zero.
func (w *Watcher) Countdown() time.Duration {
	s, ok := w.Status()
	if !ok || !s.Closed || s.OpenTime == nil {
		return 0
	}
	if d := s.OpenTime.Sub(w.clock.Now()); d > 0 {
		return d
	}
	return 0
}
