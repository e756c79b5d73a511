package status

import (
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

var ErrForeignTeam = errors.New("team record belongs to another team")
var ErrNoTeam = errors.New("no authenticated team")
var ErrBadPayload = errors.New("malformed payload")
var ErrUnsupportedTopic = errors.New("unsupported topic")

// FlagName identifies one timed gate on the dashboard.
type FlagName string

const (
	FlagDomain FlagName = "domain"
	FlagGame   FlagName = "game"
	FlagPuzzle FlagName = "puzzle"
	FlagBar    FlagName = "barGame"
)

var TimedFlags = []FlagName{FlagDomain, FlagGame, FlagPuzzle, FlagBar}

// GameFlag maps a mini-game to the gate controlling it.
func GameFlag(g types.Game) FlagName {
	switch g {
	case types.GameMemory:
		return FlagGame
	case types.GameNumberPuzzle:
		return FlagPuzzle
	case types.GameStopTheBar:
		return FlagBar
	}
	return ""
}

type Review struct {
	FirstOpen  bool `json:"firstOpen"`
	SecondOpen bool `json:"secondOpen"`
	// seen is false until the first reviewStatusUpdate arrives.
	seen bool
}

// State is everything the dashboard shows that the server pushes. Values are
// treated as immutable: Apply and Tick return fresh copies.
type State struct {
	Team      *types.Team
	Flags     map[FlagName]Flag
	Review    Review
	Reminders []types.ReminderPayload
	Offers    []types.DomainOffer
	PPT       json.RawMessage
}

// Push is one server event.
type Push struct {
	Topic string
	Data  json.RawMessage
}

type EventType string

const (
	EvtTeamReplaced   EventType = "TeamReplaced"
	EvtFlagChanged    EventType = "FlagChanged"
	EvtReviewOpened   EventType = "ReviewOpened"
	EvtReviewChanged  EventType = "ReviewChanged"
	EvtReminder       EventType = "Reminder"
	EvtOffersReceived EventType = "OffersReceived"
	EvtPPTReceived    EventType = "PPTReceived"
	EvtForceLogout    EventType = "ForceLogout"
)

type Event struct {
	Type    EventType
	Flag    FlagName
	Round   int
	Message string
}

func NewState(team *types.Team) State {
	s := State{Flags: make(map[FlagName]Flag, len(TimedFlags))}
	for _, n := range TimedFlags {
		s.Flags[n] = Closed()
	}
	if team != nil {
		cp := *team
		s.Team = &cp
	}
	return s
}

// TeamID of the authenticated team, empty before login.
func (s State) TeamID() string {
	if s.Team == nil {
		return ""
	}
	return s.Team.ID
}

// Flag never reports a missing entry as anything but Closed.
func (s State) Flag(n FlagName) Flag {
	return s.Flags[n]
}

func cloneFlags(in map[FlagName]Flag) map[FlagName]Flag {
	out := make(map[FlagName]Flag, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Apply folds one push into s. Every handler computes the whole new value of
// what it owns before returning; errors leave s untouched.
func Apply(s State, p Push, now time.Time) ([]Event, State, error) {
	next := s

	switch p.Topic {
	case pkgtypes.TopicTeam:
		var t types.Team
		if err := json.Unmarshal(p.Data, &t); err != nil || t.ID == "" {
			return nil, s, ErrBadPayload
		}
		if s.Team == nil {
			return nil, s, ErrNoTeam
		}
		if t.ID != s.Team.ID {
			return nil, s, ErrForeignTeam
		}
		next.Team = &t
		return []Event{{Type: EvtTeamReplaced}}, next, nil

	case pkgtypes.TopicDomainStat:
		return setFlag(s, FlagDomain, ParseDomain(p.Data, now))

	case pkgtypes.TopicGameStatus:
		return setFlag(s, FlagGame, ParseGame(p.Data, now))

	case pkgtypes.TopicPuzzleStatus:
		return setFlag(s, FlagPuzzle, ParseGame(p.Data, now))

	case pkgtypes.TopicStopTheBarStatus:
		return setFlag(s, FlagBar, ParseGame(p.Data, now))

	case pkgtypes.TopicReviewStatus:
		var rs *types.ReviewStatus
		if err := json.Unmarshal(p.Data, &rs); err != nil {
			return nil, s, ErrBadPayload
		}
		if rs == nil {
			return nil, s, nil
		}
		prev := s.Review
		next.Review = Review{FirstOpen: rs.FirstReviewOpen, SecondOpen: rs.SecondReviewOpen, seen: true}

		var events []Event
		if prev != next.Review {
			events = append(events, Event{Type: EvtReviewChanged})
		}
		// The first value after mount only syncs; alerts need an observed flip.
		if prev.seen {
			if !prev.FirstOpen && next.Review.FirstOpen {
				events = append(events, Event{Type: EvtReviewOpened, Round: 1})
			}
			if !prev.SecondOpen && next.Review.SecondOpen {
				events = append(events, Event{Type: EvtReviewOpened, Round: 2})
			}
		}
		return events, next, nil

	case pkgtypes.TopicReminder:
		var r types.ReminderPayload
		if err := json.Unmarshal(p.Data, &r); err != nil {
			return nil, s, ErrBadPayload
		}
		if r.Time.IsZero() {
			r.Time = now
		}
		next.Reminders = append(slices.Clip(s.Reminders), r)
		return []Event{{Type: EvtReminder, Message: r.Message}}, next, nil

	case pkgtypes.TopicDomainData:
		var offers []types.DomainOffer
		if err := json.Unmarshal(p.Data, &offers); err != nil {
			return nil, s, ErrBadPayload
		}
		if offers == nil {
			offers = []types.DomainOffer{}
		}
		next.Offers = offers
		return []Event{{Type: EvtOffersReceived}}, next, nil

	case pkgtypes.TopicPPT:
		next.PPT = append(json.RawMessage(nil), p.Data...)
		return []Event{{Type: EvtPPTReceived}}, next, nil

	case pkgtypes.TopicForceLogout:
		var m types.MessagePayload
		if err := json.Unmarshal(p.Data, &m); err != nil {
			return nil, s, ErrBadPayload
		}
		return []Event{{Type: EvtForceLogout, Message: m.Message}}, s, nil

	default:
		return nil, s, ErrUnsupportedTopic
	}
}

func setFlag(s State, n FlagName, f Flag) ([]Event, State, error) {
	if s.Flag(n).Equal(f) {
		return nil, s, nil
	}
	next := s
	next.Flags = cloneFlags(s.Flags)
	next.Flags[n] = f
	return []Event{{Type: EvtFlagChanged, Flag: n}}, next, nil
}

// Tick flips every due schedule to Open. It only changes local state; the
// server stays authoritative and its next push overwrites whatever we guessed.
func Tick(s State, now time.Time) ([]Event, State) {
	var events []Event
	next := s
	for _, n := range TimedFlags {
		cur := s.Flag(n)
		if ticked := cur.Tick(now); !ticked.Equal(cur) {
			if len(events) == 0 {
				next.Flags = cloneFlags(s.Flags)
			}
			next.Flags[n] = ticked
			events = append(events, Event{Type: EvtFlagChanged, Flag: n})
		}
	}
	return events, next
}

// OffersInSet filters the offer list by set name.
func OffersInSet(offers []types.DomainOffer, set string) []types.DomainOffer {
	out := []types.DomainOffer{}
	for _, o := range offers {
		if o.Set == set {
			out = append(out, o)
		}
	}
	return out
}

// Sets lists the distinct offer sets in first-seen order.
func Sets(offers []types.DomainOffer) []string {
	var out []string
	for _, o := range offers {
		if o.Set != "" && !slices.Contains(out, o.Set) {
			out = append(out, o.Set)
		}
	}
	return out
}

// SelectedOffer resolves the team's chosen domain name against the offers.
func (s State) SelectedOffer() (types.DomainOffer, bool) {
	if s.Team == nil || s.Team.Domain == "" {
		return types.DomainOffer{}, false
	}
	for _, o := range s.Offers {
		if strings.EqualFold(o.Name, s.Team.Domain) {
			return o, true
		}
	}
	return types.DomainOffer{}, false
}

type FeedKind string

const (
	FeedReminder FeedKind = "reminder"
	FeedIssue    FeedKind = "issue"
)

// FeedEntry is one line of the activity log.
type FeedEntry struct {
	Kind    FeedKind  `json:"type"`
	Message string    `json:"message,omitempty"`
	Text    string    `json:"text,omitempty"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"time"`
}

// Feed merges session reminders with the record's issues, newest first.
func (s State) Feed() []FeedEntry {
	out := make([]FeedEntry, 0, len(s.Reminders))
	for _, r := range s.Reminders {
		out = append(out, FeedEntry{Kind: FeedReminder, Message: r.Message, At: r.Time})
	}
	if s.Team != nil {
		for _, is := range s.Team.Issues {
			out = append(out, FeedEntry{Kind: FeedIssue, Text: is.Text, Status: is.Status, At: is.Timestamp})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}
