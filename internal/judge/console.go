// Package judge is the reviewer console: the judge's team list, the live
// review-round gates and rubric submission.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/passkey"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

var ErrNoJudge = errors.New("no judge signed in")
var ErrReviewClosed = errors.New("this review round is not open")
var ErrUnknownTeam = errors.New("team is not on this judge's list")
var ErrBusy = errors.New("a submission is already in flight")

const MsgLoadFailed = "Failed to load records. Connection unstable."

type API interface {
	ReviewTeams(ctx context.Context, judge string) ([]types.Team, error)
	SubmitReview(ctx context.Context, round int, teamID string, sub types.ReviewSubmission) error
}

// Sessions vouches for the judge at the console. *passkey.Gate is one.
type Sessions interface {
	Check(id string) (passkey.Session, error)
	Close(id string)
}

// Entry is a team with its 1-based position in the sorted list. The number
// is what judges call out, so filtering keeps it.
type Entry struct {
	Number int        `json:"teamNumber"`
	Team   types.Team `json:"team"`
}

type Console struct {
	bus channel.Bus
	api API
	log *zap.Logger
	sub *channel.Subscription

	known     chan struct{}
	knownOnce sync.Once

	mu         sync.Mutex
	sessions   Sessions
	session    string
	judge      string
	teams      []types.Team
	status     types.ReviewStatus
	submitting bool
}

// New subscribes to review-round updates and asks for the current state.
func New(bus channel.Bus, api API, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Console{bus: bus, api: api, log: log.Named("judge"), known: make(chan struct{})}
	c.sub = bus.Subscribe(pkgtypes.TopicReviewStatus, c.onReviewStatus)
	if err := bus.Emit(pkgtypes.TopicGetReviewStatus, nil); err != nil {
		c.log.Warn("review status request failed", zap.Error(err))
	}
	return c
}

func (c *Console) onReviewStatus(data json.RawMessage) {
	var s types.ReviewStatus
	if err := json.Unmarshal(data, &s); err != nil {
		c.log.Debug("bad reviewStatusUpdate", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.knownOnce.Do(func() { close(c.known) })
	c.log.Info("review status", zap.Bool("first", s.FirstReviewOpen), zap.Bool("second", s.SecondReviewOpen))
}

func (c *Console) Close() { c.sub.Unsubscribe() }

// Known is closed once the first review status has arrived.
func (c *Console) Known() <-chan struct{} { return c.known }

// ReviewOpen reports whether submissions for round are accepted.
func (c *Console) ReviewOpen(round int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reviewOpenLocked(round)
}

// SignIn loads the teams of the judge behind a live passkey session,
// ordered by team name the way a person reading the list expects.
func (c *Console) SignIn(ctx context.Context, sessions Sessions, sessionID string) error {
	sess, err := sessions.Check(sessionID)
	if err != nil {
		return err
	}
	if sess.Role != passkey.RoleJudge {
		return passkey.ErrWrongRole
	}
	judge := sess.Name
	teams, err := c.api.ReviewTeams(ctx, judge)
	if err != nil {
		c.log.Warn("loading review teams", zap.String("judge", judge), zap.Error(err))
		return err
	}
	sortByName(teams)

	c.mu.Lock()
	c.sessions = sessions
	c.session = sessionID
	c.judge = judge
	c.teams = teams
	c.submitting = false
	c.mu.Unlock()
	c.log.Info("judge signed in", zap.String("judge", judge), zap.Int("teams", len(teams)))
	return nil
}

func (c *Console) SignOut() {
	c.mu.Lock()
	c.signOutLocked()
	c.mu.Unlock()
}

func (c *Console) signOutLocked() {
	if c.sessions != nil {
		c.sessions.Close(c.session)
	}
	c.sessions = nil
	c.session = ""
	c.judge = ""
	c.teams = nil
}

func (c *Console) Judge() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.judge
}

func sortByName(teams []types.Team) {
	col := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(teams, func(i, j int) bool {
		return col.CompareString(teams[i].TeamName, teams[j].TeamName) < 0
	})
}

// Teams returns the numbered list, narrowed by query when it is non-empty.
func (c *Console) Teams(query string) []Entry {
	c.mu.Lock()
	entries := make([]Entry, len(c.teams))
	for i, t := range c.teams {
		entries[i] = Entry{Number: i + 1, Team: t}
	}
	c.mu.Unlock()
	return Filter(entries, query)
}

// Filter keeps entries whose name contains query, ignoring case, or whose
// number equals it.
func Filter(entries []Entry, query string) []Entry {
	query = strings.TrimSpace(query)
	if query == "" {
		return entries
	}
	q := strings.ToLower(query)
	var out []Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Team.TeamName), q) || strconv.Itoa(e.Number) == query {
			out = append(out, e)
		}
	}
	return out
}

// Submit posts r for teamID and marks the team reviewed locally.
func (c *Console) Submit(ctx context.Context, teamID string, r *Rubric) error {
	c.mu.Lock()
	if c.judge != "" {
		if _, err := c.sessions.Check(c.session); err != nil {
			c.log.Info("judge session ended", zap.String("judge", c.judge), zap.Error(err))
			c.signOutLocked()
			c.mu.Unlock()
			return err
		}
	}
	switch {
	case c.judge == "":
		c.mu.Unlock()
		return ErrNoJudge
	case c.submitting:
		c.mu.Unlock()
		return ErrBusy
	case !c.reviewOpenLocked(r.Round()):
		c.mu.Unlock()
		return ErrReviewClosed
	case c.indexLocked(teamID) < 0:
		c.mu.Unlock()
		return ErrUnknownTeam
	}
	c.submitting = true
	c.mu.Unlock()

	sub := r.Submission()
	err := c.api.SubmitReview(ctx, r.Round(), teamID, sub)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		c.log.Warn("review submission failed", zap.String("team_id", teamID), zap.Int("round", r.Round()), zap.Error(err))
		return err
	}
	if i := c.indexLocked(teamID); i >= 0 {
		if r.Round() == 1 {
			c.teams[i].FirstReview = true
			c.teams[i].FirstReviewScore = sub.Score
		} else {
			c.teams[i].SecondReview = true
			c.teams[i].SecondReviewScore = sub.Score
		}
	}
	c.log.Info("review submitted", zap.String("team_id", teamID), zap.Int("round", r.Round()), zap.Int("score", sub.Score))
	return nil
}

func (c *Console) reviewOpenLocked(round int) bool {
	switch round {
	case 1:
		return c.status.FirstReviewOpen
	case 2:
		return c.status.SecondReviewOpen
	}
	return false
}

func (c *Console) indexLocked(teamID string) int {
	for i, t := range c.teams {
		if t.ID == teamID {
			return i
		}
	}
	return -1
}
