package dashboard

import (
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/DoyleJ11/hacksail-client/internal/login"
	"github.com/DoyleJ11/hacksail-client/internal/status"
	"github.com/DoyleJ11/hacksail-client/internal/types"
)

// Snapshot is the whole dashboard as a local UI renders it.
type Snapshot struct {
	Version int       `json:"version"`
	Now     time.Time `json:"now"`

	Login         LoginView `json:"login"`
	LogoutMessage string    `json:"logoutMessage,omitempty"`

	Team     *types.Team                  `json:"team,omitempty"`
	Flags    map[status.FlagName]FlagView `json:"flags"`
	Review   status.Review                `json:"review"`
	Banner   *Banner                      `json:"banner,omitempty"`
	Reminder string                       `json:"reminder,omitempty"`
	Feed     []FeedLine                   `json:"feed"`
	Sets     []string                     `json:"sets"`
	Selected *types.DomainOffer           `json:"selected,omitempty"`
	Domain   DomainView                   `json:"domain"`
	Games    map[types.Game]GameView      `json:"games"`
	Issue    IssueView                    `json:"issue"`
	PPT      json.RawMessage              `json:"ppt,omitempty"`
}

type LoginView struct {
	State  login.State `json:"state"`
	Reason string      `json:"reason,omitempty"`
}

type FlagView struct {
	State     status.FlagKind `json:"state"`
	At        *time.Time      `json:"at,omitempty"`
	Countdown string          `json:"countdown,omitempty"`
}

type Banner struct {
	Round   int    `json:"round"`
	Message string `json:"message"`
}

type FeedLine struct {
	status.FeedEntry
	Ago string `json:"ago"`
}

type DomainView struct {
	Open       bool                `json:"open"`
	Set        string              `json:"set,omitempty"`
	Loading    bool                `json:"loading"`
	Offers     []types.DomainOffer `json:"offers"`
	Choice     string              `json:"choice,omitempty"`
	Confirming bool                `json:"confirming"`
	Submitting bool                `json:"submitting"`
	Error      string              `json:"error,omitempty"`
	Notice     string              `json:"notice,omitempty"`
}

type GameView struct {
	Gate       status.Flag `json:"gate"`
	Played     bool        `json:"played"`
	Score      int         `json:"score"`
	Open       bool        `json:"open"`
	Submitting bool        `json:"submitting"`
	Message    string      `json:"message,omitempty"`
}

type IssueView struct {
	Open       bool   `json:"open"`
	Submitting bool   `json:"submitting"`
	Error      string `json:"error,omitempty"`
}

// View is the test and /state window into the actor.
type View struct {
	Version    int      `json:"version"`
	NumClients int      `json:"numClients"`
	State      Snapshot `json:"state"`
}

func gameScore(t *types.Team, g types.Game) int {
	if t == nil {
		return 0
	}
	switch g {
	case types.GameMemory:
		return t.MemoryGameScore
	case types.GameNumberPuzzle:
		return t.NumberPuzzleScore
	case types.GameStopTheBar:
		return t.StopTheBarScore
	}
	return 0
}

func (d *Dashboard) snapshot() Snapshot {
	now := d.clock.Now()
	s := Snapshot{
		Version:       d.version,
		Now:           now,
		Login:         LoginView{State: d.login.State, Reason: d.login.Reason},
		LogoutMessage: d.logoutMessage,
		Flags:         make(map[status.FlagName]FlagView, len(status.TimedFlags)),
		Review:        d.state.Review,
		Banner:        d.banner,
		Reminder:      d.reminder,
		Sets:          status.Sets(d.state.Offers),
		Games:         make(map[types.Game]GameView, len(types.Games)),
		Issue:         d.issue,
		PPT:           d.state.PPT,
	}
	if d.state.Team != nil {
		t := *d.state.Team
		s.Team = &t
	}
	for _, n := range status.TimedFlags {
		f := d.state.Flag(n)
		v := FlagView{State: f.Kind()}
		if at, ok := f.Scheduled(); ok {
			v.At = &at
			v.Countdown = humanize.RelTime(now, at, "ago", "from now")
		}
		s.Flags[n] = v
	}
	for _, e := range d.state.Feed() {
		s.Feed = append(s.Feed, FeedLine{FeedEntry: e, Ago: humanize.RelTime(e.At, now, "ago", "from now")})
	}
	if sel, ok := d.state.SelectedOffer(); ok {
		s.Selected = &sel
	}

	s.Domain = d.domain
	s.Domain.Offers = status.OffersInSet(d.state.Offers, d.domain.Set)

	for _, g := range types.Games {
		ui := d.games[g]
		s.Games[g] = GameView{
			Gate:       d.state.Flag(status.GameFlag(g)),
			Played:     d.state.Team != nil && d.state.Team.Played(g),
			Score:      gameScore(d.state.Team, g),
			Open:       ui.open,
			Submitting: ui.submitting,
			Message:    ui.message,
		}
	}
	return s
}
