// Package dashboard is the team dashboard's event loop. One goroutine owns
// all state; channel pushes, HTTP results and clock ticks arrive as messages
// and each is handled to completion before the next.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/clock"
	"github.com/DoyleJ11/hacksail-client/internal/credstore"
	"github.com/DoyleJ11/hacksail-client/internal/login"
	"github.com/DoyleJ11/hacksail-client/internal/status"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

const (
	TickInterval     = time.Second
	LogoutGrace      = 3 * time.Second
	GameCloseDelay   = 1500 * time.Millisecond
	inboxSize        = 64
	defaultOutboxCap = 8
)

var ErrNotAuthenticated = errors.New("not logged in")
var ErrClosed = errors.New("dashboard closed")

// API is the slice of the backend the dashboard calls.
type API interface {
	login.TeamFetcher
	SubmitGameScore(ctx context.Context, teamID string, g types.Game, score int) error
	CreateIssue(ctx context.Context, teamID, text string) error
}

type Config struct {
	Bus    channel.Bus
	API    API
	Store  credstore.Store
	Clock  clock.Clock
	Logger *zap.Logger
	// Revalidate re-runs the login handshake this often while logged in.
	// Zero disables it.
	Revalidate time.Duration
}

type gameUI struct {
	open       bool
	submitting bool
	message    string
	gen        uint64
}

type Dashboard struct {
	inbox   chan Msg
	bus     channel.Bus
	api     API
	machine *login.Machine
	clock   clock.Clock
	log     *zap.Logger
	reval   time.Duration

	subs    []*channel.Subscription
	clients map[string]chan Snapshot
	version int

	login         login.Status
	state         status.State
	logoutMessage string
	graceGen      uint64
	graceTimer    clock.Timer
	reminder      string
	banner        *Banner
	domain        DomainView
	games         map[types.Game]gameUI
	issue         IssueView
	refreshing    bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// pushTopics are folded by the reconciler.
var pushTopics = []string{
	pkgtypes.TopicTeam,
	pkgtypes.TopicDomainData,
	pkgtypes.TopicDomainStat,
	pkgtypes.TopicGameStatus,
	pkgtypes.TopicPuzzleStatus,
	pkgtypes.TopicStopTheBarStatus,
	pkgtypes.TopicReviewStatus,
	pkgtypes.TopicReminder,
	pkgtypes.TopicPPT,
	pkgtypes.TopicForceLogout,
}

func New(parent context.Context, cfg Config) *Dashboard {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Store == nil {
		cfg.Store = credstore.NewMemory()
	}

	d := &Dashboard{
		inbox:   make(chan Msg, inboxSize),
		bus:     cfg.Bus,
		api:     cfg.API,
		clock:   cfg.Clock,
		log:     cfg.Logger.Named("dashboard"),
		reval:   cfg.Revalidate,
		clients: make(map[string]chan Snapshot),
		login:   login.Status{State: login.Idle},
		state:   status.NewState(nil),
		games:   make(map[types.Game]gameUI, len(types.Games)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	d.machine = login.New(cfg.Bus, cfg.API, cfg.Store, cfg.Logger, login.WithOnChange(func(s login.Status) {
		d.post(loginChanged{status: s})
	}))

	for _, topic := range append(append([]string(nil), pushTopics...), pkgtypes.TopicDomainSelected, pkgtypes.TopicConnect) {
		topic := topic
		d.subs = append(d.subs, cfg.Bus.Subscribe(topic, func(data json.RawMessage) {
			d.post(pushed{push: status.Push{Topic: topic, Data: data}})
		}))
	}

	go d.loop()
	return d
}

// Inbox exposes the actor's mailbox to the local HTTP layer and tests.
func (d *Dashboard) Inbox() chan<- Msg { return d.inbox }

// Done is closed once the loop has exited and every handler is unregistered.
func (d *Dashboard) Done() <-chan struct{} { return d.done }

// Machine exposes the login machine, mostly for status checks.
func (d *Dashboard) Machine() *login.Machine { return d.machine }

// post delivers an internal message unless the loop already stopped.
func (d *Dashboard) post(m Msg) {
	select {
	case d.inbox <- m:
	case <-d.ctx.Done():
	}
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func (d *Dashboard) loop() {
	ticker := d.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	var revalC <-chan time.Time
	if d.reval > 0 {
		rt := d.clock.NewTicker(d.reval)
		defer rt.Stop()
		revalC = rt.C()
	}

	for {
		select {
		case <-d.ctx.Done():
			d.shutdown()
			return

		case <-ticker.C():
			d.onTick(d.clock.Now())

		case <-revalC:
			if d.active() {
				d.log.Debug("re-validating session")
				go d.verify("", nil)
			}

		case m := <-d.inbox:
			switch msg := m.(type) {
			case Join:
				d.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- d.snapshot()

			case Leave:
				delete(d.clients, msg.ClientID)

			case GetState:
				msg.Reply <- View{Version: d.version, NumClients: len(d.clients), State: d.snapshot()}

			case Shutdown:
				d.shutdown()
				return

			case Login:
				if d.active() {
					reply(msg.Reply, nil)
					break
				}
				go d.verify(msg.Token, msg.Reply)

			case Logout:
				d.teardown(msg.Reply)

			case loginChanged:
				d.onLoginChanged(msg.status)

			case pushed:
				d.onPush(msg.push)

			case graceElapsed:
				if msg.gen == d.graceGen && d.graceTimer != nil {
					d.graceTimer = nil
					d.log.Info("grace period over, logging out")
					d.teardown(nil)
				}

			default:
				d.handleAction(m)
			}
		}
	}
}

// verify runs the handshake off the loop; its transitions come back as
// loginChanged messages.
func (d *Dashboard) verify(token string, r chan error) {
	err := d.machine.Verify(d.ctx, token)
	if err == nil {
		_, err = d.machine.Wait(d.ctx)
	}
	reply(r, err)
}

// teardown is the manual logout path, also used after a forced logout and a
// failed refresh.
func (d *Dashboard) teardown(r chan error) {
	go func() {
		err := d.machine.Logout(d.ctx)
		if err != nil {
			d.log.Warn("logout", zap.Error(err))
		}
		reply(r, err)
	}()
}

func (d *Dashboard) onLoginChanged(s login.Status) {
	if s.Seq <= d.login.Seq {
		return
	}
	d.login = s

	switch s.State {
	case login.Authenticated:
		if s.Team != nil && d.state.TeamID() == s.Team.ID {
			// Re-validation of the same team: the record is simply replaced.
			d.state.Team = s.Team
		} else {
			d.resetUI()
			d.state = status.NewState(s.Team)
			d.bootstrap()
		}
	case login.Rejected, login.Idle:
		d.resetUI()
		d.state = status.NewState(nil)
	}
	d.broadcast()
}

func (d *Dashboard) resetUI() {
	if d.graceTimer != nil {
		d.graceTimer.Stop()
		d.graceTimer = nil
	}
	d.graceGen++
	d.logoutMessage = ""
	d.reminder = ""
	d.banner = nil
	d.domain = DomainView{}
	d.issue = IssueView{}
	d.refreshing = false
	for _, g := range types.Games {
		ui := d.games[g]
		d.games[g] = gameUI{gen: ui.gen + 1}
	}
}

// bootstrap asks the server for every status topic.
func (d *Dashboard) bootstrap() {
	emits := []struct {
		topic   string
		payload any
	}{
		{pkgtypes.TopicDomainStat, nil},
		{pkgtypes.TopicGetDomains, ""},
		{pkgtypes.TopicGetGameStatus, nil},
		{pkgtypes.TopicGetReviewStatus, nil},
	}
	for _, e := range emits {
		if err := d.bus.Emit(e.topic, e.payload); err != nil {
			d.log.Warn("bootstrap emit failed", zap.String("topic", e.topic), zap.Error(err))
		}
	}
}

// active is true from the first Authenticated until Rejected or Idle; a
// re-validation in flight does not interrupt it.
func (d *Dashboard) active() bool { return d.state.Team != nil }

func (d *Dashboard) onTick(now time.Time) {
	if !d.active() {
		return
	}
	events, next := status.Tick(d.state, now)
	d.state = next
	for _, e := range events {
		d.log.Debug("flag opened locally", zap.String("flag", string(e.Flag)))
	}
	if len(events) > 0 || d.counting() {
		d.broadcast()
	}
}

// counting reports whether some countdown is visible.
func (d *Dashboard) counting() bool {
	for _, n := range status.TimedFlags {
		if _, ok := d.state.Flag(n).Scheduled(); ok {
			return true
		}
	}
	return false
}

func (d *Dashboard) onPush(p status.Push) {
	log := d.log.With(zap.String("topic", p.Topic))

	if p.Topic == pkgtypes.TopicConnect {
		if d.active() {
			log.Info("channel reconnected, re-requesting status")
			d.bootstrap()
		}
		return
	}
	if !d.active() {
		log.Debug("push before login dropped")
		return
	}
	if p.Topic == pkgtypes.TopicDomainSelected {
		d.onDomainSelected(p.Data)
		return
	}

	events, next, err := status.Apply(d.state, p, d.clock.Now())
	if err != nil {
		log.Debug("push ignored", zap.Error(err))
		return
	}
	d.state = next

	for _, e := range events {
		switch e.Type {
		case status.EvtOffersReceived:
			d.domain.Loading = false
		case status.EvtReminder:
			d.reminder = e.Message
		case status.EvtReviewOpened:
			d.banner = &Banner{Round: e.Round, Message: reviewBanner(e.Round)}
		case status.EvtForceLogout:
			d.onForceLogout(e.Message)
		}
	}
	d.broadcast()
}

func reviewBanner(round int) string {
	if round == 2 {
		return "Review 2 is now open. Judges will reach your team soon."
	}
	return "Review 1 is now open. Judges will reach your team soon."
}

// onForceLogout shows the server's message now and tears down only after
// LogoutGrace.
func (d *Dashboard) onForceLogout(message string) {
	d.logoutMessage = message
	if d.graceTimer != nil {
		return
	}
	gen := d.graceGen
	d.log.Info("forced logout", zap.String("message", message), zap.Duration("grace", LogoutGrace))
	d.graceTimer = d.clock.AfterFunc(LogoutGrace, func() {
		d.post(graceElapsed{gen: gen})
	})
}

func (d *Dashboard) broadcast() {
	d.version++
	snap := d.snapshot()
	for id, ch := range d.clients {
		select {
		case ch <- snap:
		default:
			// Slow reader; drop it.
			close(ch)
			delete(d.clients, id)
		}
	}
}

func (d *Dashboard) shutdown() {
	for _, s := range d.subs {
		s.Unsubscribe()
	}
	d.subs = nil
	if d.graceTimer != nil {
		d.graceTimer.Stop()
	}
	for id, ch := range d.clients {
		close(ch)
		delete(d.clients, id)
	}
	d.cancel()
	close(d.done)
}

// NewOutbox returns a buffered channel suitable for Join.
func NewOutbox() chan Snapshot { return make(chan Snapshot, defaultOutboxCap) }

// Ask sends the command built around a fresh reply channel and waits for
// its answer.
func (d *Dashboard) Ask(ctx context.Context, build func(reply chan error) Msg) error {
	r := make(chan error, 1)
	if err := d.Send(ctx, build(r)); err != nil {
		return err
	}
	select {
	case err := <-r:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	}
}

// Send posts a command without waiting for it to be handled.
func (d *Dashboard) Send(ctx context.Context, m Msg) error {
	select {
	case d.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	}
}

func (d *Dashboard) State(ctx context.Context) (View, error) {
	r := make(chan View, 1)
	if err := d.Send(ctx, GetState{Reply: r}); err != nil {
		return View{}, err
	}
	select {
	case v := <-r:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-d.done:
		return View{}, ErrClosed
	}
}
