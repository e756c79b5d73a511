package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/api/apitest"
	"github.com/DoyleJ11/hacksail-client/internal/channel/channeltest"
	"github.com/DoyleJ11/hacksail-client/internal/clock"
	"github.com/DoyleJ11/hacksail-client/internal/credstore"
	"github.com/DoyleJ11/hacksail-client/internal/login"
	"github.com/DoyleJ11/hacksail-client/internal/status"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

const (
	token      = "tok-kraken"
	teamRoute  = "POST /team/{token}"
	gameRoute  = "POST /team/{id}/game-score"
	issueRoute = "POST /issue/{id}"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	srv   *channeltest.LockServer
	bus   *channeltest.Bus
	be    *apitest.Backend
	clk   *clock.Fake
	store *credstore.Memory
	d     *Dashboard
	ctx   context.Context
}

func newHarness(t *testing.T, team types.Team) *harness {
	t.Helper()
	be := apitest.New(t)
	be.AddTeam(token, team)

	srv := channeltest.NewLockServer()
	h := &harness{
		t:     t,
		srv:   srv,
		bus:   srv.Device(),
		be:    be,
		clk:   clock.NewFake(epoch),
		store: credstore.NewMemory(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	h.d = New(ctx, Config{
		Bus:    h.bus,
		API:    api.New(be.URL()),
		Store:  h.store,
		Clock:  h.clk,
		Logger: zap.NewNop(),
	})
	t.Cleanup(func() {
		cancel()
		<-h.d.Done()
	})
	// The loop creates its ticker on start.
	require.Eventually(t, func() bool { return h.clk.Pending() >= 1 }, time.Second, time.Millisecond)
	return h
}

func kraken() types.Team {
	return types.Team{ID: "t1", TeamName: "Kraken", Name: "Lead"}
}

func (h *harness) view() Snapshot {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := h.d.State(ctx)
	require.NoError(h.t, err)
	return v.State
}

func (h *harness) eventually(cond func(Snapshot) bool, msg string) Snapshot {
	h.t.Helper()
	var last Snapshot
	require.Eventually(h.t, func() bool {
		last = h.view()
		return cond(last)
	}, 2*time.Second, 2*time.Millisecond, msg)
	return last
}

func (h *harness) ask(build func(chan error) Msg) error {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.d.Ask(ctx, build)
}

func (h *harness) send(m Msg) {
	h.t.Helper()
	require.NoError(h.t, h.d.Send(context.Background(), m))
}

func (h *harness) login() {
	h.t.Helper()
	require.NoError(h.t, h.ask(func(r chan error) Msg { return Login{Token: token, Reply: r} }))
	h.eventually(func(s Snapshot) bool { return s.Team != nil && s.Login.State == login.Authenticated }, "never authenticated")
}

func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestDashboard_LoginBootstrapsAndBroadcasts(t *testing.T) {
	h := newHarness(t, kraken())
	out := NewOutbox()
	h.send(Join{ClientID: "ui", Outbox: out})
	first := recvSnapshot(t, out, time.Second)
	assert.Equal(t, login.Idle, first.Login.State)
	assert.Nil(t, first.Team)

	h.login()

	for _, topic := range []string{
		pkgtypes.TopicDomainStat,
		pkgtypes.TopicGetDomains,
		pkgtypes.TopicGetGameStatus,
		pkgtypes.TopicGetReviewStatus,
	} {
		assert.Len(t, h.bus.Emitted(topic), 1, topic)
	}

	// Snapshots only move forward.
	var last Snapshot
	for last.Login.State != login.Authenticated {
		snap := recvSnapshot(t, out, time.Second)
		assert.Greater(t, snap.Version, last.Version)
		last = snap
	}
	require.NotNil(t, last.Team)
	assert.Equal(t, "Kraken", last.Team.TeamName)
	tok, ok, _ := h.store.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, token, tok)
}

func TestDashboard_PushesBeforeLoginAreDropped(t *testing.T) {
	h := newHarness(t, kraken())
	h.bus.Push(pkgtypes.TopicReminder, types.ReminderPayload{Message: "early", Time: epoch})
	s := h.view()
	assert.Empty(t, s.Reminder)
	assert.Empty(t, s.Feed)
}

func TestDashboard_ReconnectReRequestsStatus(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()

	h.bus.Dispatch(pkgtypes.TopicConnect, nil)
	h.view()
	assert.Len(t, h.bus.Emitted(pkgtypes.TopicGetReviewStatus), 2)
	assert.Len(t, h.bus.Emitted(pkgtypes.TopicTeamLogin), 1, "reconnect must not re-login")
}

func TestDashboard_DomainSelectionScenario(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.bus.Push(pkgtypes.TopicDomainStat, true)

	require.NoError(t, h.ask(func(r chan error) Msg { return OpenDomainSet{Set: "Set 1", Reply: r} }))
	s := h.view()
	assert.True(t, s.Domain.Open)
	assert.True(t, s.Domain.Loading)

	h.bus.Push(pkgtypes.TopicDomainData, []types.DomainOffer{
		{ID: "A", Name: "Alpha", Set: "Set 1", Slots: 0},
		{ID: "B", Name: "Beta", Set: "Set 1", Slots: 3},
	})
	s = h.view()
	assert.False(t, s.Domain.Loading)
	require.Len(t, s.Domain.Offers, 2)

	// Zero slots: refused.
	err := h.ask(func(r chan error) Msg { return ChooseDomain{ID: "A", Reply: r} })
	require.ErrorIs(t, err, ErrNoSlots)

	// Confirmation is explicit; nothing is sent before it.
	require.NoError(t, h.ask(func(r chan error) Msg { return ChooseDomain{ID: "B", Reply: r} }))
	require.ErrorIs(t, h.ask(func(r chan error) Msg { return ConfirmDomain{Reply: r} }), ErrNotConfirming)
	assert.Empty(t, h.bus.Emitted(pkgtypes.TopicDomainSelected))

	require.NoError(t, h.ask(func(r chan error) Msg { return RequestConfirm{Reply: r} }))
	require.NoError(t, h.ask(func(r chan error) Msg { return ConfirmDomain{Reply: r} }))
	// A double click while in flight does not send again.
	require.ErrorIs(t, h.ask(func(r chan error) Msg { return ConfirmDomain{Reply: r} }), ErrBusy)

	sent := h.bus.Emitted(pkgtypes.TopicDomainSelected)
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"teamId":"t1","domain":"B"}`, string(sent[0].Payload))

	// Error reply: modal stays open with the server's text.
	h.bus.Push(pkgtypes.TopicDomainSelected, map[string]string{"error": "Slot just filled"})
	s = h.view()
	assert.True(t, s.Domain.Open)
	assert.False(t, s.Domain.Submitting)
	assert.Equal(t, "Slot just filled", s.Domain.Error)
	assert.Equal(t, 1, h.be.Calls(teamRoute), "only the login lookup so far")

	// Retry and succeed: modal closes and the record is fetched once.
	require.NoError(t, h.ask(func(r chan error) Msg { return RequestConfirm{Reply: r} }))
	require.NoError(t, h.ask(func(r chan error) Msg { return ConfirmDomain{Reply: r} }))
	h.bus.Push(pkgtypes.TopicDomainSelected, map[string]any{"success": true, "domain": map[string]string{"name": "Beta"}})
	s = h.view()
	assert.False(t, s.Domain.Open)
	assert.Equal(t, "Successfully selected problem statement: Beta!", s.Domain.Notice)

	require.Eventually(t, func() bool { return h.be.Calls(teamRoute) == 2 }, 2*time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	h.view()
	assert.Equal(t, 2, h.be.Calls(teamRoute))
	assert.Len(t, h.bus.Emitted(pkgtypes.TopicDomainSelected), 2)
}

func TestDashboard_DomainClosedOrAlreadyChosen(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	err := h.ask(func(r chan error) Msg { return OpenDomainSet{Set: "Set 1", Reply: r} })
	assert.ErrorIs(t, err, ErrDomainClosed)

	chosen := kraken()
	chosen.Domain = "Beta"
	h2 := newHarness(t, chosen)
	h2.login()
	h2.bus.Push(pkgtypes.TopicDomainStat, true)
	err = h2.ask(func(r chan error) Msg { return OpenDomainSet{Set: "Set 1", Reply: r} })
	assert.ErrorIs(t, err, ErrDomainChosen)
}

func TestDashboard_PlayedGameNeverHitsNetwork(t *testing.T) {
	team := kraken()
	team.MemoryGamePlayed = true
	team.MemoryGameScore = 80
	h := newHarness(t, team)
	h.login()
	h.bus.Push(pkgtypes.TopicGameStatus, nil)

	err := h.ask(func(r chan error) Msg { return SubmitScore{Game: types.GameMemory, Score: 99, Reply: r} })
	require.ErrorIs(t, err, ErrAlreadyPlayed)
	err = h.ask(func(r chan error) Msg { return OpenGame{Game: types.GameMemory, Reply: r} })
	require.ErrorIs(t, err, ErrAlreadyPlayed)
	assert.Zero(t, h.be.Calls(gameRoute))

	g := h.view().Games[types.GameMemory]
	assert.True(t, g.Played)
	assert.Equal(t, 80, g.Score)
}

func TestDashboard_ScoreSubmitGuardsDuplicatesAndClosesLater(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.bus.Push(pkgtypes.TopicGameStatus, nil)

	require.NoError(t, h.ask(func(r chan error) Msg { return OpenGame{Game: types.GameMemory, Reply: r} }))

	release := h.be.Hold(gameRoute)
	require.NoError(t, h.ask(func(r chan error) Msg { return SubmitScore{Game: types.GameMemory, Score: 42, Reply: r} }))
	err := h.ask(func(r chan error) Msg { return SubmitScore{Game: types.GameMemory, Score: 42, Reply: r} })
	require.ErrorIs(t, err, ErrBusy)
	assert.True(t, h.view().Games[types.GameMemory].Submitting)
	release()

	s := h.eventually(func(s Snapshot) bool {
		return s.Games[types.GameMemory].Message != ""
	}, "score result never arrived")
	assert.Equal(t, "Challenge Complete! Your score of 42 has been submitted.", s.Games[types.GameMemory].Message)
	assert.Equal(t, 1, h.be.Calls(gameRoute))

	// The refreshed record now says played.
	h.eventually(func(s Snapshot) bool { return s.Games[types.GameMemory].Played }, "record never refreshed")

	h.clk.Advance(GameCloseDelay - time.Millisecond)
	assert.True(t, h.view().Games[types.GameMemory].Open)
	h.clk.Advance(time.Millisecond)
	h.eventually(func(s Snapshot) bool {
		g := s.Games[types.GameMemory]
		return !g.Open && !g.Submitting
	}, "game modal never closed")
}

func TestDashboard_ScoreForbiddenClosesModal(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.bus.Push(pkgtypes.TopicPuzzleStatus, nil)
	require.NoError(t, h.ask(func(r chan error) Msg { return OpenGame{Game: types.GameNumberPuzzle, Reply: r} }))

	h.be.Fail("POST /team/{id}/number-puzzle-score", http.StatusForbidden, "Game already played")
	require.NoError(t, h.ask(func(r chan error) Msg { return SubmitScore{Game: types.GameNumberPuzzle, Score: 7, Reply: r} }))
	s := h.eventually(func(s Snapshot) bool { return s.Games[types.GameNumberPuzzle].Message != "" }, "no result")
	g := s.Games[types.GameNumberPuzzle]
	assert.Equal(t, "Game already played", g.Message)
	assert.False(t, g.Open)
	assert.False(t, g.Submitting)
}

func TestDashboard_ScoreServerErrorKeepsModalOpen(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.bus.Push(pkgtypes.TopicStopTheBarStatus, nil)
	require.NoError(t, h.ask(func(r chan error) Msg { return OpenGame{Game: types.GameStopTheBar, Reply: r} }))

	h.be.Fail("POST /team/{id}/stop-the-bar-score", http.StatusBadGateway, "")
	require.NoError(t, h.ask(func(r chan error) Msg { return SubmitScore{Game: types.GameStopTheBar, Score: 3, Reply: r} }))
	s := h.eventually(func(s Snapshot) bool { return s.Games[types.GameStopTheBar].Message != "" }, "no result")
	g := s.Games[types.GameStopTheBar]
	assert.Equal(t, "Error submitting score.", g.Message)
	assert.True(t, g.Open)
	assert.False(t, g.Submitting, "retry must be possible")
}

func TestDashboard_LockedGameCannotOpen(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.bus.Push(pkgtypes.TopicGameStatus, epoch.Add(time.Hour).Format(time.RFC3339))
	err := h.ask(func(r chan error) Msg { return OpenGame{Game: types.GameMemory, Reply: r} })
	assert.ErrorIs(t, err, ErrGameLocked)
}

func TestDashboard_ForcedLogoutWaitsForGrace(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	pending := h.clk.Pending()

	h.srv.Evict("t1", "M")
	s := h.eventually(func(s Snapshot) bool { return s.LogoutMessage == "M" }, "message not shown")
	assert.NotNil(t, s.Team)
	require.Equal(t, pending+1, h.clk.Pending(), "grace timer not armed")

	h.clk.Advance(LogoutGrace - time.Millisecond)
	h.view()
	_, ok, _ := h.store.Get(context.Background())
	assert.True(t, ok, "credential cleared before the grace period ended")
	assert.Equal(t, "M", h.view().LogoutMessage)

	h.clk.Advance(time.Millisecond)
	s = h.eventually(func(s Snapshot) bool { return s.Login.State == login.Idle }, "never logged out")
	assert.Nil(t, s.Team)
	assert.Empty(t, s.LogoutMessage)
	_, ok, _ = h.store.Get(context.Background())
	assert.False(t, ok)
}

func TestDashboard_TickOpensScheduledFlag(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.bus.Push(pkgtypes.TopicGameStatus, epoch.Add(1500*time.Millisecond).Format(time.RFC3339Nano))

	s := h.view()
	require.Equal(t, status.KindScheduled, s.Flags[status.FlagGame].State)
	assert.NotEmpty(t, s.Flags[status.FlagGame].Countdown)

	h.clk.Advance(2 * time.Second)
	h.eventually(func(s Snapshot) bool {
		return s.Flags[status.FlagGame].State == status.KindOpen
	}, "flag never flipped locally")
	assert.Len(t, h.bus.Emitted(pkgtypes.TopicGetGameStatus), 1, "local flip must not hit the server")
}

func TestDashboard_ReviewBannerAndReminders(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()

	h.bus.Push(pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true})
	assert.Nil(t, h.view().Banner)

	h.bus.Push(pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true, SecondReviewOpen: true})
	s := h.view()
	require.NotNil(t, s.Banner)
	assert.Equal(t, 2, s.Banner.Round)
	h.send(DismissBanner{})
	assert.Nil(t, h.view().Banner)

	h.bus.Push(pkgtypes.TopicReminder, types.ReminderPayload{Message: "Lunch at 1", Time: epoch})
	s = h.view()
	assert.Equal(t, "Lunch at 1", s.Reminder)
	require.Len(t, s.Feed, 1)
	h.send(DismissReminder{})
	s = h.view()
	assert.Empty(t, s.Reminder)
	assert.Len(t, s.Feed, 1, "dismissing keeps the feed entry")
}

func TestDashboard_ForeignTeamPushIgnored(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.bus.Push(pkgtypes.TopicTeam, types.Team{ID: "t2", TeamName: "Intruder"})
	assert.Equal(t, "Kraken", h.view().Team.TeamName)

	h.bus.Push(pkgtypes.TopicTeam, types.Team{ID: "t1", TeamName: "Kraken Reborn"})
	assert.Equal(t, "Kraken Reborn", h.view().Team.TeamName)
}

func TestDashboard_IssueSubmission(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	h.send(OpenIssue{})

	err := h.ask(func(r chan error) Msg { return SubmitIssue{Text: "   ", Reply: r} })
	require.ErrorIs(t, err, ErrEmptyIssue)

	h.be.Fail(issueRoute, http.StatusInternalServerError, "db down")
	require.NoError(t, h.ask(func(r chan error) Msg { return SubmitIssue{Text: "projector", Reply: r} }))
	s := h.eventually(func(s Snapshot) bool { return s.Issue.Error != "" }, "no failure surfaced")
	assert.Equal(t, MsgIssueFailed, s.Issue.Error)
	assert.True(t, s.Issue.Open)

	h.be.Fail(issueRoute, 0, "")
	require.NoError(t, h.ask(func(r chan error) Msg { return SubmitIssue{Text: "  projector  ", Reply: r} }))
	s = h.eventually(func(s Snapshot) bool { return len(s.Feed) == 1 }, "issue never appeared after refresh")
	assert.False(t, s.Issue.Open)
	assert.Equal(t, "projector", s.Feed[0].Text)
}

func TestDashboard_RefreshFailureLogsOut(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()

	h.be.Fail(teamRoute, http.StatusInternalServerError, "boom")
	require.NoError(t, h.ask(func(r chan error) Msg { return Refresh{Reply: r} }))
	h.eventually(func(s Snapshot) bool { return s.Login.State == login.Idle }, "still logged in")
	_, ok, _ := h.store.Get(context.Background())
	assert.False(t, ok)
	assert.Len(t, h.bus.Emitted(pkgtypes.TopicTeamLogout), 1)
}

func TestDashboard_ManualLogout(t *testing.T) {
	h := newHarness(t, kraken())
	h.login()
	require.NoError(t, h.ask(func(r chan error) Msg { return Logout{Reply: r} }))
	s := h.eventually(func(s Snapshot) bool { return s.Login.State == login.Idle }, "still logged in")
	assert.Nil(t, s.Team)
	assert.Nil(t, h.srv.Holder("t1"))
}

func TestDashboard_ShutdownUnsubscribesEverything(t *testing.T) {
	h := newHarness(t, kraken())
	out := NewOutbox()
	h.send(Join{ClientID: "ui", Outbox: out})
	recvSnapshot(t, out, time.Second)

	h.send(Shutdown{})
	select {
	case <-h.d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard did not stop")
	}
	topics := append([]string{pkgtypes.TopicDomainSelected, pkgtypes.TopicConnect}, pushTopics...)
	for _, topic := range topics {
		assert.Zero(t, h.bus.Count(topic), topic)
	}
	_, open := <-out
	assert.False(t, open)
}

func TestFlagViewJSON(t *testing.T) {
	at := epoch.Add(time.Minute)
	b, err := json.Marshal(FlagView{State: status.KindScheduled, At: &at, Countdown: "1 minute from now"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"scheduled","at":"2025-03-14T09:01:00Z","countdown":"1 minute from now"}`, string(b))
}
