package dashboard

import (
	"github.com/DoyleJ11/hacksail-client/internal/login"
	"github.com/DoyleJ11/hacksail-client/internal/status"
	"github.com/DoyleJ11/hacksail-client/internal/types"
)

type Msg interface{ isDashboardMsg() }

// Operator commands. Reply, when non-nil, must be buffered; it receives
// exactly one value.

type Login struct {
	Token string
	Reply chan error
}

type Logout struct{ Reply chan error }

type Refresh struct{ Reply chan error }

// OpenDomainSet opens the problem-statement picker for one set and asks the
// server for fresh offers.
type OpenDomainSet struct {
	Set   string
	Reply chan error
}

type ChooseDomain struct {
	ID    string
	Reply chan error
}

// RequestConfirm moves a tentative choice to the explicit confirmation step.
type RequestConfirm struct{ Reply chan error }

type CancelConfirm struct{}

type CloseDomain struct{}

// ConfirmDomain sends the selection. Nothing reaches the server before it.
type ConfirmDomain struct{ Reply chan error }

type OpenGame struct {
	Game  types.Game
	Reply chan error
}

type CloseGame struct{ Game types.Game }

type SubmitScore struct {
	Game  types.Game
	Score int
	Reply chan error
}

type OpenIssue struct{}

type CloseIssue struct{}

type SubmitIssue struct {
	Text  string
	Reply chan error
}

type DismissReminder struct{}

type DismissBanner struct{}

type Join struct {
	ClientID string
	Outbox   chan Snapshot
}

type Leave struct{ ClientID string }

type GetState struct{ Reply chan View }

type Shutdown struct{}

// Internal results posted back by goroutines and channel handlers.

type pushed struct{ push status.Push }

type loginChanged struct{ status login.Status }

type graceElapsed struct{ gen uint64 }

type gameSettled struct {
	game types.Game
	gen  uint64
}

type scoreResult struct {
	game  types.Game
	score int
	err   error
}

type issueResult struct{ err error }

type refreshResult struct {
	team *types.Team
	err  error
}

func (Login) isDashboardMsg()           {}
func (Logout) isDashboardMsg()          {}
func (Refresh) isDashboardMsg()         {}
func (OpenDomainSet) isDashboardMsg()   {}
func (ChooseDomain) isDashboardMsg()    {}
func (RequestConfirm) isDashboardMsg()  {}
func (CancelConfirm) isDashboardMsg()   {}
func (CloseDomain) isDashboardMsg()     {}
func (ConfirmDomain) isDashboardMsg()   {}
func (OpenGame) isDashboardMsg()        {}
func (CloseGame) isDashboardMsg()       {}
func (SubmitScore) isDashboardMsg()     {}
func (OpenIssue) isDashboardMsg()       {}
func (CloseIssue) isDashboardMsg()      {}
func (SubmitIssue) isDashboardMsg()     {}
func (DismissReminder) isDashboardMsg() {}
func (DismissBanner) isDashboardMsg()   {}
func (Join) isDashboardMsg()            {}
func (Leave) isDashboardMsg()           {}
func (GetState) isDashboardMsg()        {}
func (Shutdown) isDashboardMsg()        {}
func (pushed) isDashboardMsg()          {}
func (loginChanged) isDashboardMsg()    {}
func (graceElapsed) isDashboardMsg()    {}
func (gameSettled) isDashboardMsg()     {}
func (scoreResult) isDashboardMsg()     {}
func (issueResult) isDashboardMsg()     {}
func (refreshResult) isDashboardMsg()   {}
