package judge

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/api/apitest"
	"github.com/DoyleJ11/hacksail-client/internal/channel/channeltest"
	"github.com/DoyleJ11/hacksail-client/internal/clock"
	"github.com/DoyleJ11/hacksail-client/internal/passkey"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

func setup(t *testing.T) (*Console, *channeltest.Bus, *apitest.Backend) {
	t.Helper()
	be := apitest.New(t)
	be.SetReviewTeams("judge1", []types.Team{
		{ID: "z", TeamName: "zeta"},
		{ID: "a", TeamName: "Alpha"},
		{ID: "b", TeamName: "beta"},
	})
	bus := channeltest.NewBus()
	c := New(bus, api.New(be.URL()), zaptest.NewLogger(t))
	t.Cleanup(c.Close)
	return c, bus, be
}

const sessionTTL = time.Hour

// judgeSession opens a passkey session for judge1.
func judgeSession(t *testing.T, clk clock.Clock) (*passkey.Gate, string) {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte("gavel"), bcrypt.MinCost)
	require.NoError(t, err)
	g, err := passkey.New(passkey.RoleJudge, map[string]string{"judge1": string(h)}, sessionTTL, clk)
	require.NoError(t, err)
	sess, err := g.Identify("gavel")
	require.NoError(t, err)
	return g, sess.ID
}

func signIn(t *testing.T, c *Console) {
	t.Helper()
	gate, id := judgeSession(t, nil)
	require.NoError(t, c.SignIn(context.Background(), gate, id))
}

func TestConsole_AsksForReviewStatus(t *testing.T) {
	c, bus, _ := setup(t)
	assert.Len(t, bus.Emitted(pkgtypes.TopicGetReviewStatus), 1)
	assert.False(t, c.ReviewOpen(1))
	select {
	case <-c.Known():
		t.Fatal("status known before any push")
	default:
	}

	bus.Push(pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true})
	<-c.Known()
	assert.True(t, c.ReviewOpen(1))
	assert.False(t, c.ReviewOpen(2))
	assert.False(t, c.ReviewOpen(3))

	c.Close()
	assert.Zero(t, bus.Count(pkgtypes.TopicReviewStatus))
}

func TestConsole_SortAndFilter(t *testing.T) {
	c, _, _ := setup(t)
	signIn(t, c)

	all := c.Teams("")
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Alpha", "beta", "zeta"}, []string{all[0].Team.TeamName, all[1].Team.TeamName, all[2].Team.TeamName})
	assert.Equal(t, 3, all[2].Number)

	byName := c.Teams("ET")
	require.Len(t, byName, 2)
	assert.Equal(t, 2, byName[0].Number)

	byNumber := c.Teams("3")
	require.Len(t, byNumber, 1)
	assert.Equal(t, "zeta", byNumber[0].Team.TeamName)

	assert.Empty(t, c.Teams("nothing"))
}

func TestRubric_Clamp(t *testing.T) {
	r, err := NewRubric(1)
	require.NoError(t, err)
	assert.Equal(t, 50, r.Max())

	v, err := r.Set("Core", 25)
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	v, err = r.Set("UIUX", -3)
	require.NoError(t, err)
	assert.Zero(t, v)
	_, err = r.Set("preformance", 5)
	assert.ErrorIs(t, err, ErrUnknownCriterion)
	assert.Equal(t, 20, r.Total())

	r2, err := NewRubric(2)
	require.NoError(t, err)
	assert.Equal(t, 50, r2.Max())
	assert.Equal(t, []string{"functionality", "preformance", "UseCase", "Demo", "extension"}, r2.Keys())

	_, err = NewRubric(3)
	assert.ErrorIs(t, err, ErrUnknownRound)
}

func TestConsole_SubmitRoutesByRound(t *testing.T) {
	c, bus, be := setup(t)
	ctx := context.Background()
	signIn(t, c)

	r1, _ := NewRubric(1)
	_, _ = r1.Set("Core", 18)
	_, _ = r1.Set("Progress", 7)

	// Closed round is refused before any request.
	require.ErrorIs(t, c.Submit(ctx, "a", r1), ErrReviewClosed)
	assert.Zero(t, be.Calls("POST /team/score1/{id}"))

	bus.Push(pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true, SecondReviewOpen: true})
	require.ErrorIs(t, c.Submit(ctx, "nope", r1), ErrUnknownTeam)
	require.NoError(t, c.Submit(ctx, "a", r1))
	assert.Equal(t, 1, be.Calls("POST /team/score1/{id}"))

	got, ok := be.Review("a")
	require.True(t, ok)
	assert.Equal(t, 25, got.Score)
	assert.Equal(t, 18, got.FirstReview["Core"].Marks)
	assert.Equal(t, "Core Functionality", got.FirstReview["Core"].Criteria)
	assert.Nil(t, got.SecondReview)

	r2, _ := NewRubric(2)
	_, _ = r2.Set("Demo", 9)
	require.NoError(t, c.Submit(ctx, "b", r2))
	assert.Equal(t, 1, be.Calls("POST /team/score/{id}"))
	got, _ = be.Review("b")
	assert.Equal(t, 9, got.SecondReview["Demo"].Marks)

	entries := c.Teams("Alpha")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Team.FirstReview)
	assert.Equal(t, 25, entries[0].Team.FirstReviewScore)
}

func TestConsole_SubmitRequiresJudge(t *testing.T) {
	c, _, _ := setup(t)
	r, _ := NewRubric(1)
	assert.ErrorIs(t, c.Submit(context.Background(), "a", r), ErrNoJudge)
}

func TestConsole_SubmitFailureSurfacesServerText(t *testing.T) {
	c, bus, be := setup(t)
	ctx := context.Background()
	signIn(t, c)
	bus.Push(pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true})

	be.Fail("POST /team/score1/{id}", http.StatusInternalServerError, "ledger offline")
	r, _ := NewRubric(1)
	err := c.Submit(ctx, "a", r)
	require.Error(t, err)
	assert.Equal(t, "ledger offline", api.Message(err, ""))

	// The guard is released after a failure.
	be.Fail("POST /team/score1/{id}", 0, "")
	assert.NoError(t, c.Submit(ctx, "a", r))
}

func TestConsole_SignInFailure(t *testing.T) {
	c, _, be := setup(t)
	be.Fail("GET /review/teams/{judge}", http.StatusBadGateway, "")
	gate, id := judgeSession(t, nil)
	assert.Error(t, c.SignIn(context.Background(), gate, id))
	assert.Empty(t, c.Judge())
}

func TestConsole_ExpiredSessionSignsOut(t *testing.T) {
	c, bus, be := setup(t)
	clk := clock.NewFake(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	gate, id := judgeSession(t, clk)
	require.NoError(t, c.SignIn(context.Background(), gate, id))
	assert.Equal(t, "judge1", c.Judge())
	bus.Push(pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true})

	r, _ := NewRubric(1)
	clk.Advance(sessionTTL - time.Second)
	require.NoError(t, c.Submit(context.Background(), "a", r))

	clk.Advance(time.Second)
	assert.ErrorIs(t, c.Submit(context.Background(), "b", r), passkey.ErrExpired)
	assert.Empty(t, c.Judge())
	assert.Empty(t, c.Teams(""))
	assert.Equal(t, 1, be.Calls("POST /team/score1/{id}"))
}

func TestConsole_SignOutClosesSession(t *testing.T) {
	c, _, _ := setup(t)
	gate, id := judgeSession(t, nil)
	require.NoError(t, c.SignIn(context.Background(), gate, id))
	c.SignOut()
	_, err := gate.Check(id)
	assert.ErrorIs(t, err, passkey.ErrNoSession)
	assert.ErrorIs(t, c.SignIn(context.Background(), gate, id), passkey.ErrNoSession)
}
