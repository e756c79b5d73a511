package status

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

var now = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func push(t *testing.T, topic string, v any) Push {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return Push{Topic: topic, Data: b}
}

func hasEvent(events []Event, typ EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestParseFlags(t *testing.T) {
	future := now.Add(10 * time.Minute).Format(time.RFC3339)
	past := now.Add(-10 * time.Minute).Format(time.RFC3339)

	cases := []struct {
		name   string
		raw    string
		domain FlagKind
		game   FlagKind
	}{
		{"null", `null`, KindClosed, KindOpen},
		{"false", `false`, KindClosed, KindOpen},
		{"true", `true`, KindOpen, KindOpen},
		{"future time", `"` + future + `"`, KindScheduled, KindScheduled},
		{"past time", `"` + past + `"`, KindOpen, KindOpen},
		{"garbage string", `"soon"`, KindOpen, KindOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.domain, ParseDomain(json.RawMessage(tc.raw), now).Kind())
			assert.Equal(t, tc.game, ParseGame(json.RawMessage(tc.raw), now).Kind())
		})
	}
}

func TestFlag_JSONRoundTripKeepsSchedule(t *testing.T) {
	f := ScheduledAt(now.Add(time.Hour))
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"scheduled","at":"2025-03-14T11:00:00Z"}`, string(b))

	var back Flag
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, f.Equal(back))
}

func TestTick_FlipsPastScheduleWithoutPush(t *testing.T) {
	s := NewState(&types.Team{ID: "t1"})
	_, s, err := Apply(s, push(t, pkgtypes.TopicGameStatus, now.Add(500*time.Millisecond).Format(time.RFC3339Nano)), now)
	require.NoError(t, err)
	require.Equal(t, KindScheduled, s.Flag(FlagGame).Kind())

	// Not yet due.
	events, s := Tick(s, now.Add(400*time.Millisecond))
	assert.Empty(t, events)
	assert.Equal(t, KindScheduled, s.Flag(FlagGame).Kind())

	// One tick interval later it is open.
	events, s = Tick(s, now.Add(time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, FlagGame, events[0].Flag)
	assert.True(t, s.Flag(FlagGame).IsOpen())
}

func TestTick_DoesNotTouchOtherFlagsOrInput(t *testing.T) {
	s := NewState(nil)
	_, s, _ = Apply(s, push(t, pkgtypes.TopicDomainStat, now.Add(time.Second).Format(time.RFC3339)), now)
	_, s, _ = Apply(s, push(t, pkgtypes.TopicPuzzleStatus, now.Add(time.Hour).Format(time.RFC3339)), now)

	_, next := Tick(s, now.Add(2*time.Second))
	assert.True(t, next.Flag(FlagDomain).IsOpen())
	assert.Equal(t, KindScheduled, next.Flag(FlagPuzzle).Kind())
	assert.Equal(t, KindScheduled, s.Flag(FlagDomain).Kind(), "input state must not be mutated")
}

func TestServerPushOverridesOptimisticFlip(t *testing.T) {
	s := NewState(nil)
	_, s, _ = Apply(s, push(t, pkgtypes.TopicDomainStat, now.Add(time.Second).Format(time.RFC3339)), now)
	_, s = Tick(s, now.Add(time.Second))
	require.True(t, s.Flag(FlagDomain).IsOpen())

	events, s, err := Apply(s, push(t, pkgtypes.TopicDomainStat, nil), now.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, hasEvent(events, EvtFlagChanged))
	assert.Equal(t, KindClosed, s.Flag(FlagDomain).Kind())
}

func TestReviewBanner_FirstPushOnlySyncs(t *testing.T) {
	s := NewState(&types.Team{ID: "t1"})

	events, s, err := Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true}), now)
	require.NoError(t, err)
	assert.False(t, hasEvent(events, EvtReviewOpened), "initial sync must not alert")
	assert.True(t, s.Review.FirstOpen)

	// Redelivery of the same value: nothing.
	events, s, _ = Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true}), now)
	assert.Empty(t, events)

	// true -> false -> true alerts exactly once.
	events, s, _ = Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{}), now)
	assert.False(t, hasEvent(events, EvtReviewOpened))
	events, s, _ = Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true}), now)
	assert.Equal(t, 1, countEvents(events, EvtReviewOpened))
	assert.Equal(t, 1, events[len(events)-1].Round)

	// Duplicate of the open state does not re-alert.
	events, s, _ = Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true}), now)
	assert.Zero(t, countEvents(events, EvtReviewOpened))

	// Second round opening alerts for round 2 only.
	events, _, _ = Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{FirstReviewOpen: true, SecondReviewOpen: true}), now)
	require.Equal(t, 1, countEvents(events, EvtReviewOpened))
	for _, e := range events {
		if e.Type == EvtReviewOpened {
			assert.Equal(t, 2, e.Round)
		}
	}
}

func TestReviewBanner_FirstPushClosedThenOpens(t *testing.T) {
	s := NewState(nil)
	_, s, _ = Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{}), now)
	events, _, _ := Apply(s, push(t, pkgtypes.TopicReviewStatus, types.ReviewStatus{SecondReviewOpen: true}), now)
	assert.Equal(t, 1, countEvents(events, EvtReviewOpened))
}

func TestTeamPush_ReplacesOnlyMatchingRecord(t *testing.T) {
	s := NewState(&types.Team{ID: "t1", TeamName: "Kraken", MemoryGamePlayed: false, Domain: "AI"})

	_, after, err := Apply(s, push(t, pkgtypes.TopicTeam, types.Team{ID: "t2", TeamName: "Other"}), now)
	assert.ErrorIs(t, err, ErrForeignTeam)
	assert.Equal(t, s.Team, after.Team)
	assert.Equal(t, "Kraken", after.Team.TeamName)

	// A matching push replaces wholesale: fields absent in the push are gone.
	events, after, err := Apply(s, push(t, pkgtypes.TopicTeam, types.Team{ID: "t1", TeamName: "Kraken II", MemoryGamePlayed: true}), now)
	require.NoError(t, err)
	assert.True(t, hasEvent(events, EvtTeamReplaced))
	assert.Equal(t, "Kraken II", after.Team.TeamName)
	assert.True(t, after.Team.MemoryGamePlayed)
	assert.Empty(t, after.Team.Domain)
	assert.Equal(t, "Kraken", s.Team.TeamName, "input state must not be mutated")
}

func TestTeamPush_BeforeLoginIgnored(t *testing.T) {
	_, s, err := Apply(NewState(nil), push(t, pkgtypes.TopicTeam, types.Team{ID: "t1"}), now)
	assert.ErrorIs(t, err, ErrNoTeam)
	assert.Nil(t, s.Team)
}

func TestReminders_AppendAndFeedNewestFirst(t *testing.T) {
	team := &types.Team{ID: "t1", Issues: []types.Issue{
		{Text: "wifi down", Status: "open", Timestamp: now.Add(-time.Hour)},
		{Text: "need chairs", Status: "resolved", Timestamp: now.Add(-time.Minute)},
	}}
	s := NewState(team)

	events, s, err := Apply(s, push(t, pkgtypes.TopicReminder, types.ReminderPayload{Message: "Lunch", Time: now.Add(-30 * time.Minute)}), now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Lunch", events[0].Message)
	_, s, _ = Apply(s, push(t, pkgtypes.TopicReminder, types.ReminderPayload{Message: "Submit PPT", Time: now}), now)
	assert.Len(t, s.Reminders, 2)

	feed := s.Feed()
	require.Len(t, feed, 4)
	assert.Equal(t, "Submit PPT", feed[0].Message)
	assert.Equal(t, "need chairs", feed[1].Text)
	assert.Equal(t, "Lunch", feed[2].Message)
	assert.Equal(t, "wifi down", feed[3].Text)
}

func TestDomainOffers(t *testing.T) {
	s := NewState(&types.Team{ID: "t1", Domain: "beta"})
	offers := []types.DomainOffer{
		{ID: "A", Name: "Alpha", Set: "Set 1", Slots: 0},
		{ID: "B", Name: "Beta", Set: "Set 1", Slots: 3},
		{ID: "C", Name: "Gamma", Set: "Set 2", Slots: 1},
	}
	_, s, err := Apply(s, push(t, pkgtypes.TopicDomainData, offers), now)
	require.NoError(t, err)

	assert.Equal(t, []string{"Set 1", "Set 2"}, Sets(s.Offers))
	assert.Len(t, OffersInSet(s.Offers, "Set 1"), 2)
	assert.Empty(t, OffersInSet(s.Offers, "Set 9"))

	sel, ok := s.SelectedOffer()
	require.True(t, ok)
	assert.Equal(t, "B", sel.ID)
}

func TestForceLogoutLeavesStateAlone(t *testing.T) {
	s := NewState(&types.Team{ID: "t1"})
	events, after, err := Apply(s, push(t, pkgtypes.TopicForceLogout, types.MessagePayload{Message: "M"}), now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EvtForceLogout, events[0].Type)
	assert.Equal(t, "M", events[0].Message)
	assert.Equal(t, "t1", after.TeamID())
}

func TestMalformedPushRejected(t *testing.T) {
	s := NewState(&types.Team{ID: "t1"})
	_, after, err := Apply(s, Push{Topic: pkgtypes.TopicReminder, Data: json.RawMessage(`[1,2`)}, now)
	assert.ErrorIs(t, err, ErrBadPayload)
	assert.Empty(t, after.Reminders)

	_, _, err = Apply(s, Push{Topic: "nope"}, now)
	assert.ErrorIs(t, err, ErrUnsupportedTopic)
}
