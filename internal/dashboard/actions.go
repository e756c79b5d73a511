package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/status"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

var ErrDomainClosed = errors.New("problem statement selection is not open")
var ErrDomainChosen = errors.New("a problem statement is already selected")
var ErrUnknownOffer = errors.New("no such problem statement in this set")
var ErrNoSlots = errors.New("no slots left for this problem statement")
var ErrNoChoice = errors.New("choose a problem statement first")
var ErrNotConfirming = errors.New("selection has not been confirmed")
var ErrBusy = errors.New("a submission is already in flight")
var ErrGameLocked = errors.New("game is not open yet")
var ErrAlreadyPlayed = errors.New("game already played")
var ErrUnknownGame = errors.New("unknown game")
var ErrEmptyIssue = errors.New("describe the problem first")

const (
	MsgIssueFailed   = "Failed to submit request. Please try again later."
	msgScoreFailed   = "There was an error submitting your score."
	msgBarFailed     = "Error submitting score."
	msgDomainFailed  = "Failed to select problem statement."
	msgDomainSuccess = "Successfully selected problem statement: %s!"
)

func scoreSuccess(g types.Game, score int) string {
	if g == types.GameNumberPuzzle {
		return fmt.Sprintf("Puzzle Complete! Your score of %d has been submitted.", score)
	}
	return fmt.Sprintf("Challenge Complete! Your score of %d has been submitted.", score)
}

func scoreFallback(g types.Game) string {
	if g == types.GameStopTheBar {
		return msgBarFailed
	}
	return msgScoreFailed
}

func knownGame(g types.Game) bool {
	for _, x := range types.Games {
		if x == g {
			return true
		}
	}
	return false
}

func (d *Dashboard) handleAction(m Msg) {
	switch msg := m.(type) {
	case Refresh:
		reply(msg.Reply, d.refresh())

	case refreshResult:
		d.refreshing = false
		if !d.active() {
			return
		}
		if msg.err != nil {
			d.log.Warn("refresh failed, logging out", zap.Error(msg.err))
			d.teardown(nil)
			return
		}
		if msg.team == nil || msg.team.ID != d.state.TeamID() {
			d.log.Debug("refresh returned another team, ignored")
			return
		}
		d.state.Team = msg.team

	case DismissReminder:
		d.reminder = ""

	case DismissBanner:
		d.banner = nil

	case OpenDomainSet:
		reply(msg.Reply, d.openDomainSet(msg.Set))

	case ChooseDomain:
		reply(msg.Reply, d.chooseDomain(msg.ID))

	case RequestConfirm:
		err := d.requireDomainModal()
		if err == nil && d.domain.Choice == "" {
			err = ErrNoChoice
		}
		if err == nil {
			d.domain.Confirming = true
		}
		reply(msg.Reply, err)

	case CancelConfirm:
		if !d.domain.Submitting {
			d.domain.Confirming = false
		}

	case CloseDomain:
		if !d.domain.Submitting {
			d.domain = DomainView{}
		}

	case ConfirmDomain:
		reply(msg.Reply, d.confirmDomain())

	case OpenGame:
		reply(msg.Reply, d.openGame(msg.Game))

	case CloseGame:
		if ui := d.games[msg.Game]; !ui.submitting {
			ui.open = false
			ui.message = ""
			d.games[msg.Game] = ui
		}

	case SubmitScore:
		reply(msg.Reply, d.submitScore(msg.Game, msg.Score))

	case scoreResult:
		d.onScoreResult(msg)

	case gameSettled:
		if ui := d.games[msg.game]; ui.gen == msg.gen {
			ui.open = false
			ui.submitting = false
			d.games[msg.game] = ui
		}

	case OpenIssue:
		if d.active() {
			d.issue = IssueView{Open: true}
		}

	case CloseIssue:
		if !d.issue.Submitting {
			d.issue = IssueView{}
		}

	case SubmitIssue:
		reply(msg.Reply, d.submitIssue(msg.Text))

	case issueResult:
		if !d.issue.Submitting {
			return
		}
		d.issue.Submitting = false
		if msg.err != nil {
			d.log.Warn("issue submission failed", zap.Error(msg.err))
			d.issue.Error = MsgIssueFailed
			break
		}
		d.issue = IssueView{}
		_ = d.refresh()

	default:
		d.log.Warn("unknown message", zap.String("type", fmt.Sprintf("%T", m)))
		return
	}
	d.broadcast()
}

// refresh re-fetches the record with the stored token. A missing token or a
// failed fetch ends the session.
func (d *Dashboard) refresh() error {
	if !d.active() {
		return ErrNotAuthenticated
	}
	if d.refreshing {
		return nil
	}
	token, ok, err := d.machine.Token(d.ctx)
	if err != nil || !ok {
		d.log.Warn("no stored token, logging out", zap.Error(err))
		d.teardown(nil)
		return ErrNotAuthenticated
	}
	d.refreshing = true
	go func() {
		team, err := d.api.Team(d.ctx, token)
		d.post(refreshResult{team: team, err: err})
	}()
	return nil
}

func (d *Dashboard) openDomainSet(set string) error {
	if !d.active() {
		return ErrNotAuthenticated
	}
	if d.state.Team.Domain != "" {
		return ErrDomainChosen
	}
	if !d.state.Flag(status.FlagDomain).IsOpen() {
		return ErrDomainClosed
	}
	d.domain = DomainView{Open: true, Set: set, Loading: true}
	if err := d.bus.Emit(pkgtypes.TopicGetDomains, ""); err != nil {
		d.domain.Loading = false
		d.log.Warn("offer request failed", zap.Error(err))
	}
	return nil
}

func (d *Dashboard) requireDomainModal() error {
	if !d.active() {
		return ErrNotAuthenticated
	}
	if !d.domain.Open {
		return ErrDomainClosed
	}
	if d.domain.Submitting {
		return ErrBusy
	}
	return nil
}

func (d *Dashboard) chooseDomain(id string) error {
	if err := d.requireDomainModal(); err != nil {
		return err
	}
	for _, o := range status.OffersInSet(d.state.Offers, d.domain.Set) {
		if o.ID != id {
			continue
		}
		if o.Slots <= 0 {
			return ErrNoSlots
		}
		d.domain.Choice = id
		d.domain.Confirming = false
		d.domain.Error = ""
		return nil
	}
	return ErrUnknownOffer
}

// confirmDomain emits the one selection request; the reply arrives as a
// domainSelected push.
func (d *Dashboard) confirmDomain() error {
	if err := d.requireDomainModal(); err != nil {
		return err
	}
	if !d.domain.Confirming || d.domain.Choice == "" {
		return ErrNotConfirming
	}
	req := types.DomainSelectRequest{TeamID: d.state.TeamID(), Domain: d.domain.Choice}
	if err := d.bus.Emit(pkgtypes.TopicDomainSelected, req); err != nil {
		d.domain.Error = msgDomainFailed
		return err
	}
	d.domain.Submitting = true
	d.domain.Error = ""
	d.log.Info("problem statement requested", zap.String("team_id", req.TeamID), zap.String("domain", req.Domain))
	return nil
}

func (d *Dashboard) onDomainSelected(data json.RawMessage) {
	var r types.DomainSelectedReply
	if err := json.Unmarshal(data, &r); err != nil {
		d.log.Debug("bad domainSelected reply", zap.Error(err))
		return
	}
	if !d.domain.Submitting {
		d.log.Debug("unsolicited domainSelected reply ignored")
		return
	}
	d.domain.Submitting = false
	d.domain.Confirming = false

	switch {
	case r.Error != "":
		d.domain.Error = r.Error
	case r.Success:
		name := d.domain.Choice
		if r.Domain != nil && r.Domain.Name != "" {
			name = r.Domain.Name
		}
		d.domain = DomainView{Notice: fmt.Sprintf(msgDomainSuccess, name)}
		_ = d.refresh()
	default:
		d.domain.Error = msgDomainFailed
	}
	d.broadcast()
}

func (d *Dashboard) openGame(g types.Game) error {
	if !knownGame(g) {
		return ErrUnknownGame
	}
	if !d.active() {
		return ErrNotAuthenticated
	}
	if d.state.Team.Played(g) {
		return ErrAlreadyPlayed
	}
	if !d.state.Flag(status.GameFlag(g)).IsOpen() {
		return ErrGameLocked
	}
	ui := d.games[g]
	ui.open = true
	ui.message = ""
	d.games[g] = ui
	return nil
}

// submitScore refuses before any network call when the record already shows
// the game as played; the backend does not dedupe.
func (d *Dashboard) submitScore(g types.Game, score int) error {
	if !knownGame(g) {
		return ErrUnknownGame
	}
	if !d.active() {
		return ErrNotAuthenticated
	}
	if d.state.Team.Played(g) {
		return ErrAlreadyPlayed
	}
	ui := d.games[g]
	if ui.submitting {
		return ErrBusy
	}
	ui.submitting = true
	ui.message = ""
	d.games[g] = ui

	teamID := d.state.TeamID()
	go func() {
		err := d.api.SubmitGameScore(d.ctx, teamID, g, score)
		d.post(scoreResult{game: g, score: score, err: err})
	}()
	return nil
}

func (d *Dashboard) onScoreResult(r scoreResult) {
	ui := d.games[r.game]
	if !ui.submitting {
		return
	}
	if r.err != nil {
		d.log.Warn("score submission failed", zap.String("game", string(r.game)), zap.Error(r.err))
		ui.submitting = false
		ui.message = api.Message(r.err, scoreFallback(r.game))
		if api.IsForbidden(r.err) {
			ui.open = false
		}
		d.games[r.game] = ui
		return
	}

	ui.message = scoreSuccess(r.game, r.score)
	ui.gen++
	d.games[r.game] = ui
	_ = d.refresh()

	gen := ui.gen
	d.clock.AfterFunc(GameCloseDelay, func() {
		d.post(gameSettled{game: r.game, gen: gen})
	})
}

func (d *Dashboard) submitIssue(text string) error {
	if !d.active() {
		return ErrNotAuthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyIssue
	}
	if d.issue.Submitting {
		return ErrBusy
	}
	d.issue.Open = true
	d.issue.Submitting = true
	d.issue.Error = ""

	teamID := d.state.TeamID()
	go func() {
		d.post(issueResult{err: d.api.CreateIssue(d.ctx, teamID, text)})
	}()
	return nil
}
