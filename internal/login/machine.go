// Package login runs the two-phase team login: an HTTP credential check
// followed by a session-lock request on the channel.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/credstore"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

const (
	MsgInvalidAccessCode = "Invalid access code. Please check and try again."
	MsgNoToken           = "No token found. Please log in."
	MsgLockRejected      = "Login rejected by the session server."
	MsgChannelDown       = "Could not reach the session server. Please try again."
)

var ErrNoToken = errors.New("no token")
var ErrInvalidCredential = errors.New("invalid credential")
var ErrSuperseded = errors.New("login attempt superseded")
var ErrRejected = errors.New("session rejected")

type State string

const (
	Idle                   State = "Idle"
	CredentialCheckPending State = "CredentialCheckPending"
	SessionLockPending     State = "SessionLockPending"
	Authenticated          State = "Authenticated"
	Rejected               State = "Rejected"
)

// Terminal reports whether an attempt has finished.
func (s State) Terminal() bool { return s == Authenticated || s == Rejected }

// Status is what observers see. Seq grows by one on every transition, so a
// consumer receiving notifications from several goroutines can drop stale ones.
type Status struct {
	State  State       `json:"state"`
	Team   *types.Team `json:"team,omitempty"`
	Reason string      `json:"reason,omitempty"`
	Seq    uint64      `json:"seq"`
}

// TeamFetcher validates a token over HTTP.
type TeamFetcher interface {
	Team(ctx context.Context, token string) (*types.Team, error)
}

type Machine struct {
	bus      channel.Bus
	api      TeamFetcher
	store    credstore.Store
	log      *zap.Logger
	onChange func(Status)

	mu         sync.Mutex
	status     Status
	attempt    uint64
	cancelLock func()
	changed    chan struct{}
}

type Option func(*Machine)

// WithOnChange registers a callback for every transition. It runs outside the
// machine's lock, possibly on a channel dispatch goroutine.
func WithOnChange(f func(Status)) Option {
	return func(m *Machine) { m.onChange = f }
}

func New(bus channel.Bus, api TeamFetcher, store credstore.Store, log *zap.Logger, opts ...Option) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Machine{
		bus:     bus,
		api:     api,
		store:   store,
		log:     log.Named("login"),
		status:  Status{State: Idle},
		changed: make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyStatus(m.status)
}

func copyStatus(s Status) Status {
	if s.Team != nil {
		t := *s.Team
		s.Team = &t
	}
	return s
}

// transitionLocked must be called with m.mu held. It returns the status to
// hand to notify once the lock is released.
func (m *Machine) transitionLocked(st State, team *types.Team, reason string) Status {
	m.status = Status{State: st, Team: team, Reason: reason, Seq: m.status.Seq + 1}
	close(m.changed)
	m.changed = make(chan struct{})
	m.log.Info("login state", zap.String("state", string(st)), zap.Uint64("seq", m.status.Seq), zap.String("reason", reason))
	return copyStatus(m.status)
}

func (m *Machine) notify(s Status) {
	if m.onChange != nil {
		m.onChange(s)
	}
}

// Verify runs the full handshake. A stored token wins over entered; entered is
// persisted only once the session lock is granted. Calling Verify again
// (periodic re-validation, or a retry) cancels the previous attempt's reply
// handlers, so one push never drives two transitions.
//
// Verify returns once the lock request is on the wire; use Wait for the
// outcome.
func (m *Machine) Verify(ctx context.Context, entered string) error {
	stored, ok, err := m.store.Get(ctx)
	if err != nil {
		m.log.Warn("credential store read failed", zap.Error(err))
	}
	token, manual := stored, false
	if !ok || stored == "" {
		token, manual = entered, true
	}

	m.mu.Lock()
	m.attempt++
	attempt := m.attempt
	if m.cancelLock != nil {
		m.cancelLock()
		m.cancelLock = nil
	}
	prevTeam := m.status.Team
	if token == "" {
		s := m.transitionLocked(Rejected, nil, MsgNoToken)
		m.mu.Unlock()
		m.notify(s)
		return ErrNoToken
	}
	s := m.transitionLocked(CredentialCheckPending, prevTeam, "")
	m.mu.Unlock()
	m.notify(s)

	team, err := m.api.Team(ctx, token)
	if err != nil {
		m.log.Warn("credential check failed", zap.Error(err))
		if !m.finish(context.WithoutCancel(ctx), attempt, m.store.Clear, Rejected, nil, MsgInvalidAccessCode) {
			return ErrSuperseded
		}
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	persist := context.WithoutCancel(ctx)
	onGranted := func(json.RawMessage) {
		var save func(context.Context) error
		if manual {
			save = func(ctx context.Context) error { return m.store.Set(ctx, token) }
		}
		m.finish(persist, attempt, save, Authenticated, team, "")
	}
	onRejected := func(data json.RawMessage) {
		reason := MsgLockRejected
		var p types.MessagePayload
		if json.Unmarshal(data, &p) == nil && p.Message != "" {
			reason = p.Message
		}
		m.finish(persist, attempt, m.store.Clear, Rejected, nil, reason)
	}

	// Both reply handlers and the pending state are in place before the
	// request goes out; a server answering instantly must find them.
	m.mu.Lock()
	if m.attempt != attempt {
		m.mu.Unlock()
		return ErrSuperseded
	}
	cancel := channel.Race(m.bus, pkgtypes.TopicLoginSuccess, pkgtypes.TopicLoginError, onGranted, onRejected)
	m.cancelLock = cancel
	s = m.transitionLocked(SessionLockPending, team, "")
	m.mu.Unlock()
	m.notify(s)

	if err := m.bus.Emit(pkgtypes.TopicTeamLogin, team.ID); err != nil {
		cancel()
		m.finish(ctx, attempt, nil, Rejected, nil, MsgChannelDown)
		return fmt.Errorf("login: request session lock: %w", err)
	}
	return nil
}

// finish applies a terminal transition if attempt is still current. The
// store update runs under the same check, so a superseded attempt never
// touches the credential a newer one saved.
func (m *Machine) finish(ctx context.Context, attempt uint64, update func(context.Context) error, st State, team *types.Team, reason string) bool {
	m.mu.Lock()
	if m.attempt != attempt {
		m.mu.Unlock()
		m.log.Debug("dropping stale login outcome", zap.String("state", string(st)))
		return false
	}
	if update != nil {
		if err := update(ctx); err != nil {
			m.log.Warn("credential store update failed", zap.String("state", string(st)), zap.Error(err))
		}
	}
	m.cancelLock = nil
	s := m.transitionLocked(st, team, reason)
	m.mu.Unlock()
	m.notify(s)
	return true
}

// Wait blocks until the current attempt reaches Authenticated or Rejected,
// or the machine is Idle. There is no built-in deadline; bound ctx instead.
func (m *Machine) Wait(ctx context.Context) (Status, error) {
	for {
		m.mu.Lock()
		s := copyStatus(m.status)
		ch := m.changed
		m.mu.Unlock()

		if s.State.Terminal() || s.State == Idle {
			if s.State == Rejected {
				return s, fmt.Errorf("%w: %s", ErrRejected, s.Reason)
			}
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// Logout tears the session down: pending replies are dropped, the server is
// told (only if a team was ever bound) and the stored token is cleared.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.attempt++
	if m.cancelLock != nil {
		m.cancelLock()
		m.cancelLock = nil
	}
	hadTeam := m.status.Team != nil
	s := m.transitionLocked(Idle, nil, "")
	m.mu.Unlock()

	var err error
	if hadTeam {
		err = multierr.Append(err, m.bus.Emit(pkgtypes.TopicTeamLogout, struct{}{}))
	}
	err = multierr.Append(err, m.store.Clear(ctx))
	m.notify(s)
	return err
}

// Token returns the stored token, if any.
func (m *Machine) Token(ctx context.Context) (string, bool, error) {
	return m.store.Get(ctx)
}
