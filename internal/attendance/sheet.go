// Package attendance is the sector operator's roll call: per-round sheets
// for each team, QR verification of members and submission.
package attendance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/hacksail-client/internal/types"
)

const (
	FirstRound = 1
	LastRound  = 7
)

const (
	Present = "Present"
	Absent  = "Absent"
)

var ErrBadRound = fmt.Errorf("round must be between %d and %d", FirstRound, LastRound)
var ErrBadStatus = errors.New("status must be Present or Absent")
var ErrUnknownMember = errors.New("not a member of this team")
var ErrIncomplete = errors.New("mark attendance for every member before submitting")
var ErrLocked = errors.New("attendance already submitted; switch to edit first")
var ErrBadQR = errors.New("invalid QR code format")

// ScanError is a QR code that decoded fine but names the wrong person.
type ScanError struct {
	Message string
}

func (e *ScanError) Error() string { return e.Message }

// Pass is the payload printed on a member's QR pass.
type Pass struct {
	TeamID             string `json:"teamId"`
	RegistrationNumber string `json:"registrationNumber"`
}

// Sheet is one team's attendance for one round.
type Sheet struct {
	team      types.Team
	round     int
	members   []types.Member
	marks     map[string]string
	submitted bool
	editing   bool
}

// NewSheet pre-fills the sheet from the record. The round counts as
// submitted when the lead already has an entry for it.
func NewSheet(team types.Team, round int) (*Sheet, error) {
	if round < FirstRound || round > LastRound {
		return nil, ErrBadRound
	}
	s := &Sheet{
		team:    team,
		round:   round,
		members: team.AllMembers(),
		marks:   make(map[string]string),
	}
	for i, m := range s.members {
		if status, ok := statusFor(m, round); ok {
			s.marks[m.RegistrationNumber] = status
			if i == 0 {
				s.submitted = true
			}
		}
	}
	return s, nil
}

func statusFor(m types.Member, round int) (string, bool) {
	for _, a := range m.Attendance {
		if a.Round == round {
			return a.Status, true
		}
	}
	return "", false
}

func (s *Sheet) Team() types.Team         { return s.team }
func (s *Sheet) Round() int               { return s.round }
func (s *Sheet) Members() []types.Member  { return s.members }
func (s *Sheet) Submitted() bool          { return s.submitted }
func (s *Sheet) Editing() bool            { return s.editing }
func (s *Sheet) Status(reg string) string { return s.marks[reg] }

// Edit reopens a submitted sheet for an override.
func (s *Sheet) Edit() { s.editing = true }

func (s *Sheet) locked() bool { return s.submitted && !s.editing }

func (s *Sheet) member(reg string) (types.Member, bool) {
	for _, m := range s.members {
		if m.RegistrationNumber == reg {
			return m, true
		}
	}
	return types.Member{}, false
}

func (s *Sheet) Mark(reg, status string) error {
	if s.locked() {
		return ErrLocked
	}
	if status != Present && status != Absent {
		return ErrBadStatus
	}
	if _, ok := s.member(reg); !ok {
		return ErrUnknownMember
	}
	s.marks[reg] = status
	return nil
}

// Scan checks a decoded QR payload against the member being verified and
// marks them present when it matches.
func (s *Sheet) Scan(expected string, payload []byte) error {
	if s.locked() {
		return ErrLocked
	}
	want, ok := s.member(expected)
	if !ok {
		return ErrUnknownMember
	}
	var p Pass
	if err := json.Unmarshal(payload, &p); err != nil {
		return ErrBadQR
	}
	if p.TeamID != s.team.ID {
		return &ScanError{Message: fmt.Sprintf("Error: This member is not from team %q.", s.team.TeamName)}
	}
	if p.RegistrationNumber != expected {
		name := "an unknown member"
		if got, ok := s.member(p.RegistrationNumber); ok {
			name = got.Name
		}
		return &ScanError{Message: fmt.Sprintf("Incorrect QR. You scanned %s's code instead of %s's code.", name, want.Name)}
	}
	s.marks[expected] = Present
	return nil
}

// Missing lists registration numbers without a mark, lead first.
func (s *Sheet) Missing() []string {
	var out []string
	for _, m := range s.members {
		if s.marks[m.RegistrationNumber] == "" {
			out = append(out, m.RegistrationNumber)
		}
	}
	return out
}

// Submission builds the request body; every member must be marked.
func (s *Sheet) Submission() (types.AttendanceSubmission, error) {
	if s.locked() {
		return types.AttendanceSubmission{}, ErrLocked
	}
	if len(s.Missing()) > 0 {
		return types.AttendanceSubmission{}, ErrIncomplete
	}
	marks := make(map[string]string, len(s.marks))
	for k, v := range s.marks {
		marks[k] = v
	}
	return types.AttendanceSubmission{TeamID: s.team.ID, Round: s.round, Marks: marks}, nil
}

func (s *Sheet) markSubmitted() {
	s.submitted = true
	s.editing = false
}

// Percentage is the share of member-rounds marked present across every
// round, lead included.
func Percentage(team types.Team) float64 {
	members := team.AllMembers()
	total := len(members) * (LastRound - FirstRound + 1)
	present := 0
	for _, m := range members {
		for r := FirstRound; r <= LastRound; r++ {
			if st, ok := statusFor(m, r); ok && st == Present {
				present++
			}
		}
	}
	return float64(present) / float64(total) * 100
}
