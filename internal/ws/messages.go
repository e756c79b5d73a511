// Package ws is the local UI socket: dashboard snapshots out, operator
// commands in.
package ws

import (
	"github.com/DoyleJ11/hacksail-client/internal/dashboard"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

const (
	TypeSnapshot = pkgtypes.LocalSnapshot
	TypeAck      = pkgtypes.LocalAck
	TypeError    = pkgtypes.LocalError
)

type ClientMessage struct {
	Type  string     `json:"type"`
	Ref   string     `json:"ref,omitempty"`
	Token string     `json:"token,omitempty"`
	Set   string     `json:"set,omitempty"`
	ID    string     `json:"id,omitempty"`
	Game  types.Game `json:"game,omitempty"`
	Score int        `json:"score,omitempty"`
	Text  string     `json:"text,omitempty"`
}

type ServerMessage struct {
	Type    string              `json:"type"` // "StateSnapshot" | "Ack" | "Error"
	Ref     string              `json:"ref,omitempty"`
	Version int                 `json:"version,omitempty"`
	State   *dashboard.Snapshot `json:"state,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// ToMsg maps a UI command onto the dashboard message that carries it.
// Commands without a reply are acknowledged once queued.
func ToMsg(m ClientMessage) (func(chan error) dashboard.Msg, bool) {
	var build func(r chan error) dashboard.Msg
	switch m.Type {
	case "Login":
		build = func(r chan error) dashboard.Msg { return dashboard.Login{Token: m.Token, Reply: r} }
	case "Logout":
		build = func(r chan error) dashboard.Msg { return dashboard.Logout{Reply: r} }
	case "Refresh":
		build = func(r chan error) dashboard.Msg { return dashboard.Refresh{Reply: r} }
	case "OpenDomainSet":
		build = func(r chan error) dashboard.Msg { return dashboard.OpenDomainSet{Set: m.Set, Reply: r} }
	case "ChooseDomain":
		build = func(r chan error) dashboard.Msg { return dashboard.ChooseDomain{ID: m.ID, Reply: r} }
	case "RequestConfirm":
		build = func(r chan error) dashboard.Msg { return dashboard.RequestConfirm{Reply: r} }
	case "ConfirmDomain":
		build = func(r chan error) dashboard.Msg { return dashboard.ConfirmDomain{Reply: r} }
	case "OpenGame":
		build = func(r chan error) dashboard.Msg { return dashboard.OpenGame{Game: m.Game, Reply: r} }
	case "SubmitScore":
		build = func(r chan error) dashboard.Msg {
			return dashboard.SubmitScore{Game: m.Game, Score: m.Score, Reply: r}
		}
	case "SubmitIssue":
		build = func(r chan error) dashboard.Msg { return dashboard.SubmitIssue{Text: m.Text, Reply: r} }
	case "CancelConfirm":
		return noReply(dashboard.CancelConfirm{}), true
	case "CloseDomain":
		return noReply(dashboard.CloseDomain{}), true
	case "CloseGame":
		return noReply(dashboard.CloseGame{Game: m.Game}), true
	case "OpenIssue":
		return noReply(dashboard.OpenIssue{}), true
	case "CloseIssue":
		return noReply(dashboard.CloseIssue{}), true
	case "DismissReminder":
		return noReply(dashboard.DismissReminder{}), true
	case "DismissBanner":
		return noReply(dashboard.DismissBanner{}), true
	default:
		return nil, false
	}
	return build, true
}

// noReply wraps a fire-and-forget message so Ask still gets an answer: the
// reply is filled as soon as the message is built, and Ask returns once the
// message is queued.
func noReply(m dashboard.Msg) func(chan error) dashboard.Msg {
	return func(r chan error) dashboard.Msg {
		r <- nil
		return m
	}
}
