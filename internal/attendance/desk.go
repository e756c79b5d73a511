package attendance

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/passkey"
	"github.com/DoyleJ11/hacksail-client/internal/types"
)

var ErrNoSector = errors.New("no sector signed in")
var ErrUnknownTeam = errors.New("team is not in this sector")
var ErrBusy = errors.New("a submission is already in flight")

const MsgSubmitFailed = "Error submitting attendance. Please try again."

type API interface {
	StudentsBySector(ctx context.Context, sector string) ([]types.Team, error)
	SubmitAttendance(ctx context.Context, sub types.AttendanceSubmission) error
}

// Sessions vouches for the operator behind the desk. *passkey.Gate is one.
type Sessions interface {
	Check(id string) (passkey.Session, error)
	Close(id string)
}

// Desk is one operator's view of their sector.
type Desk struct {
	api API
	log *zap.Logger

	mu         sync.Mutex
	sessions   Sessions
	session    string
	sector     string
	teams      []types.Team
	submitting bool
}

func NewDesk(api API, log *zap.Logger) *Desk {
	if log == nil {
		log = zap.NewNop()
	}
	return &Desk{api: api, log: log.Named("attendance")}
}

// SignIn binds the desk to the sector named by a live passkey session.
func (d *Desk) SignIn(ctx context.Context, sessions Sessions, sessionID string) error {
	sess, err := sessions.Check(sessionID)
	if err != nil {
		return err
	}
	if sess.Role != passkey.RoleSector {
		return passkey.ErrWrongRole
	}
	teams, err := d.api.StudentsBySector(ctx, sess.Name)
	if err != nil {
		d.log.Warn("loading sector teams", zap.String("sector", sess.Name), zap.Error(err))
		return err
	}
	d.mu.Lock()
	d.sessions = sessions
	d.session = sessionID
	d.sector = sess.Name
	d.teams = teams
	d.submitting = false
	d.mu.Unlock()
	d.log.Info("sector signed in", zap.String("sector", sess.Name), zap.Int("teams", len(teams)))
	return nil
}

func (d *Desk) SignOut() {
	d.mu.Lock()
	d.signOutLocked()
	d.mu.Unlock()
}

func (d *Desk) signOutLocked() {
	if d.sessions != nil {
		d.sessions.Close(d.session)
	}
	d.sessions = nil
	d.session = ""
	d.sector = ""
	d.teams = nil
}

// liveLocked fails when nobody is signed in or the session has lapsed. A
// lapsed session signs the desk out.
func (d *Desk) liveLocked() error {
	if d.sector == "" {
		return ErrNoSector
	}
	if _, err := d.sessions.Check(d.session); err != nil {
		d.log.Info("sector session ended", zap.String("sector", d.sector), zap.Error(err))
		d.signOutLocked()
		return err
	}
	return nil
}

func (d *Desk) Sector() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sector
}

func (d *Desk) Teams() []types.Team {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.Team(nil), d.teams...)
}

// Open returns the sheet for teamID in round.
func (d *Desk) Open(teamID string, round int) (*Sheet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.liveLocked(); err != nil {
		return nil, err
	}
	for _, t := range d.teams {
		if t.ID == teamID {
			return NewSheet(t, round)
		}
	}
	return nil, ErrUnknownTeam
}

// Submit posts the sheet. On success the sheet is locked again. Only one
// submission runs at a time; a second fails with ErrBusy.
func (d *Desk) Submit(ctx context.Context, s *Sheet) error {
	sub, err := s.Submission()
	if err != nil {
		return err
	}
	d.mu.Lock()
	if err := d.liveLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.submitting {
		d.mu.Unlock()
		return ErrBusy
	}
	d.submitting = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.submitting = false
		d.mu.Unlock()
	}()

	if err := d.api.SubmitAttendance(ctx, sub); err != nil {
		d.log.Warn("attendance submission failed", zap.String("team_id", sub.TeamID), zap.Int("round", sub.Round), zap.Error(err))
		return err
	}
	s.markSubmitted()
	d.log.Info("attendance submitted", zap.String("team_id", sub.TeamID), zap.Int("round", sub.Round))
	return nil
}
