// Package status folds the dashboard's server-pushed topics into one
// consistent state value.
package status

import (
	"bytes"
	"encoding/json"
	"time"
)

type FlagKind string

const (
	KindClosed    FlagKind = "closed"
	KindScheduled FlagKind = "scheduled"
	KindOpen      FlagKind = "open"
)

// Flag is one server-owned gate: Closed, ScheduledAt(t) or Open. The zero
// value is Closed.
type Flag struct {
	kind FlagKind
	at   time.Time
}

func Closed() Flag                 { return Flag{kind: KindClosed} }
func Open() Flag                   { return Flag{kind: KindOpen} }
func ScheduledAt(t time.Time) Flag { return Flag{kind: KindScheduled, at: t} }

func (f Flag) Kind() FlagKind {
	if f.kind == "" {
		return KindClosed
	}
	return f.kind
}

func (f Flag) IsOpen() bool { return f.kind == KindOpen }

// Scheduled returns the opening time when the flag is ScheduledAt.
func (f Flag) Scheduled() (time.Time, bool) {
	return f.at, f.kind == KindScheduled
}

// Tick flips a due schedule to Open. Any other flag is returned unchanged.
func (f Flag) Tick(now time.Time) Flag {
	if f.kind == KindScheduled && !now.Before(f.at) {
		return Open()
	}
	return f
}

// Remaining is the countdown to a scheduled opening, zero otherwise.
func (f Flag) Remaining(now time.Time) time.Duration {
	if f.kind != KindScheduled || !now.Before(f.at) {
		return 0
	}
	return f.at.Sub(now)
}

func (f Flag) Equal(o Flag) bool {
	return f.Kind() == o.Kind() && f.at.Equal(o.at)
}

func (f Flag) String() string {
	if f.kind == KindScheduled {
		return "scheduled@" + f.at.UTC().Format(time.RFC3339)
	}
	return string(f.Kind())
}

type flagJSON struct {
	State FlagKind   `json:"state"`
	At    *time.Time `json:"at,omitempty"`
}

func (f Flag) MarshalJSON() ([]byte, error) {
	out := flagJSON{State: f.Kind()}
	if f.kind == KindScheduled {
		at := f.at
		out.At = &at
	}
	return json.Marshal(out)
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	var in flagJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	switch in.State {
	case KindScheduled:
		if in.At == nil {
			*f = Closed()
			return nil
		}
		*f = ScheduledAt(*in.At)
	case KindOpen:
		*f = Open()
	default:
		*f = Closed()
	}
	return nil
}

// futureTime reports a timestamp payload strictly after now.
func futureTime(raw json.RawMessage, now time.Time) (time.Time, bool) {
	var s string
	if json.Unmarshal(raw, &s) != nil || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, t.After(now)
}

// truthy follows the server's loose encoding: null, false, 0 and "" mean no.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// ParseDomain reads a domainStat payload: falsy is Closed, a future
// timestamp is ScheduledAt, anything else is Open.
func ParseDomain(raw json.RawMessage, now time.Time) Flag {
	if !truthy(raw) {
		return Closed()
	}
	if t, ok := futureTime(raw, now); ok {
		return ScheduledAt(t)
	}
	return Open()
}

// ParseGame reads the mini-game status payloads: a future timestamp is
// ScheduledAt, anything else (null included) is Open.
func ParseGame(raw json.RawMessage, now time.Time) Flag {
	if t, ok := futureTime(raw, now); ok {
		return ScheduledAt(t)
	}
	return Open()
}
