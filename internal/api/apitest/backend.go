// Package apitest runs an in-memory HackSail backend on httptest for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/hacksail-client/internal/types"
)

type failure struct {
	status int
	msg    string
}

type Backend struct {
	srv *httptest.Server

	mu          sync.Mutex
	byToken     map[string]*types.Team
	byID        map[string]*types.Team
	calls       map[string]int
	fail        map[string]failure
	hold        map[string]chan struct{}
	attendance  []types.AttendanceSubmission
	reviews     map[string]types.ReviewSubmission
	proofs      []types.PaymentProof
	registered  []types.Team
	linksSent   []string
	editOpen    bool
	reviewTeams map[string][]types.Team
}

func New(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		byToken:     make(map[string]*types.Team),
		byID:        make(map[string]*types.Team),
		calls:       make(map[string]int),
		fail:        make(map[string]failure),
		hold:        make(map[string]chan struct{}),
		reviews:     make(map[string]types.ReviewSubmission),
		reviewTeams: make(map[string][]types.Team),
		editOpen:    true,
	}
	b.srv = httptest.NewServer(b.routes())
	t.Cleanup(b.srv.Close)
	return b
}

func (b *Backend) URL() string { return b.srv.URL }

// AddTeam registers a team reachable by token (and by its _id).
func (b *Backend) AddTeam(token string, t types.Team) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := t
	b.byToken[token] = &cp
	b.byID[t.ID] = &cp
}

// Team returns a copy of the stored record.
func (b *Backend) Team(id string) types.Team {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.byID[id]
}

func (b *Backend) SetReviewTeams(judge string, teams []types.Team) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reviewTeams[judge] = teams
}

func (b *Backend) SetEditOpen(open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.editOpen = open
}

// Fail makes route (e.g. "POST /team/{token}") answer status with
// {"error": msg} until cleared with status 0.
func (b *Backend) Fail(route string, status int, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.fail, route)
		return
	}
	b.fail[route] = failure{status: status, msg: msg}
}

// Hold blocks every request to route until the returned release is called.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.hold[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.hold, route)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Calls reports how many requests hit route.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

func (b *Backend) Attendance() []types.AttendanceSubmission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.AttendanceSubmission(nil), b.attendance...)
}

func (b *Backend) Review(teamID string) (types.ReviewSubmission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reviews[teamID]
	return r, ok
}

func (b *Backend) Proofs() []types.PaymentProof {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.PaymentProof(nil), b.proofs...)
}

func (b *Backend) Registered() []types.Team {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Team(nil), b.registered...)
}

func (b *Backend) LinksSent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.linksSent...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// route wraps h with call counting, failure injection and holds.
func (b *Backend) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	key := method + " " + pattern
	r.MethodFunc(method, pattern, func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		b.calls[key]++
		f, failing := b.fail[key]
		hold := b.hold[key]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-req.Context().Done():
				return
			case <-time.After(10 * time.Second):
			}
		}
		if failing {
			writeErr(w, f.status, f.msg)
			return
		}
		h(w, req)
	})
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()

	b.route(r, http.MethodPost, "/team/{token}", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		t := b.byToken[chi.URLParam(req, "token")]
		var cp types.Team
		if t != nil {
			cp = *t
		}
		b.mu.Unlock()
		if t == nil {
			writeErr(w, http.StatusNotFound, "Team not found")
			return
		}
		writeJSON(w, http.StatusOK, cp)
	})

	for _, g := range []struct {
		path string
		game types.Game
	}{
		{"/team/{id}/game-score", types.GameMemory},
		{"/team/{id}/number-puzzle-score", types.GameNumberPuzzle},
		{"/team/{id}/stop-the-bar-score", types.GameStopTheBar},
	} {
		g := g
		b.route(r, http.MethodPost, g.path, func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Score int `json:"score"`
			}
			_ = json.NewDecoder(req.Body).Decode(&body)
			b.mu.Lock()
			defer b.mu.Unlock()
			t := b.byID[chi.URLParam(req, "id")]
			if t == nil {
				writeErr(w, http.StatusNotFound, "Team not found")
				return
			}
			if t.Played(g.game) {
				writeErr(w, http.StatusForbidden, "Game already played")
				return
			}
			switch g.game {
			case types.GameMemory:
				t.MemoryGamePlayed, t.MemoryGameScore = true, body.Score
			case types.GameNumberPuzzle:
				t.NumberPuzzlePlayed, t.NumberPuzzleScore = true, body.Score
			case types.GameStopTheBar:
				t.StopTheBarPlayed, t.StopTheBarScore = true, body.Score
			}
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		})
	}

	b.route(r, http.MethodPost, "/issue/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			IssueText string `json:"issueText"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		t := b.byID[chi.URLParam(req, "id")]
		if t == nil {
			writeErr(w, http.StatusNotFound, "Team not found")
			return
		}
		t.Issues = append(t.Issues, types.Issue{Text: body.IssueText, Status: "open", Timestamp: time.Now().UTC()})
		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	})

	b.route(r, http.MethodGet, "/students", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]types.Team{"teams": b.teams("")})
	})
	b.route(r, http.MethodGet, "/students/{sector}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]types.Team{"teams": b.teams(chi.URLParam(req, "sector"))})
	})

	b.route(r, http.MethodPost, "/attendance/submit", func(w http.ResponseWriter, req *http.Request) {
		var sub types.AttendanceSubmission
		if err := json.NewDecoder(req.Body).Decode(&sub); err != nil {
			writeErr(w, http.StatusBadRequest, "bad payload")
			return
		}
		b.mu.Lock()
		b.attendance = append(b.attendance, sub)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	b.route(r, http.MethodPost, "/verify/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		t := b.byID[chi.URLParam(req, "id")]
		if t == nil {
			writeErr(w, http.StatusNotFound, "Team not found")
			return
		}
		t.Verified = true
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	b.route(r, http.MethodPost, "/generate-qr-pass/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	b.route(r, http.MethodPost, "/admin/send-payment-link", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			TeamID string `json:"teamId"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.byID[body.TeamID] == nil {
			writeErr(w, http.StatusNotFound, "Team not found")
			return
		}
		b.linksSent = append(b.linksSent, body.TeamID)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	b.route(r, http.MethodPost, "/payment/validate-email", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		t := b.byEmail(body.Email)
		if t == nil {
			writeErr(w, http.StatusNotFound, "Email not registered")
			return
		}
		writeJSON(w, http.StatusOK, types.PaymentLookup{
			AlreadySubmitted: t.ImgURL != "",
			TeamID:           t.ID,
			TeamName:         t.TeamName,
			Name:             t.Name,
			Email:            t.Email,
		})
	})
	b.route(r, http.MethodPost, "/payment/submit-proof", func(w http.ResponseWriter, req *http.Request) {
		var p types.PaymentProof
		_ = json.NewDecoder(req.Body).Decode(&p)
		b.mu.Lock()
		b.proofs = append(b.proofs, p)
		if t := b.byID[p.TeamID]; t != nil {
			t.ImgURL, t.TransactionID, t.UPIID = p.ImgURL, p.TransactionID, p.UPIID
		}
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	b.route(r, http.MethodPost, "/register", func(w http.ResponseWriter, req *http.Request) {
		var t types.Team
		if err := json.NewDecoder(req.Body).Decode(&t); err != nil {
			writeErr(w, http.StatusBadRequest, "bad payload")
			return
		}
		b.mu.Lock()
		b.registered = append(b.registered, t)
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	})
	b.route(r, http.MethodPost, "/team-by-email", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		t := b.byEmail(body.Email)
		if t == nil {
			writeErr(w, http.StatusNotFound, "No team found for this email")
			return
		}
		writeJSON(w, http.StatusOK, map[string]types.Team{"team": *t})
	})
	b.route(r, http.MethodPut, "/update-team/{id}", func(w http.ResponseWriter, req *http.Request) {
		var t types.Team
		_ = json.NewDecoder(req.Body).Decode(&t)
		b.mu.Lock()
		defer b.mu.Unlock()
		cur := b.byID[chi.URLParam(req, "id")]
		if cur == nil {
			writeErr(w, http.StatusNotFound, "Team not found")
			return
		}
		*cur = t
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	b.route(r, http.MethodGet, "/settings/edit-details-status", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		open := b.editOpen
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, types.EditDetailsStatus{Open: open})
	})

	b.route(r, http.MethodGet, "/review/teams/{judge}", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		teams := b.reviewTeams[chi.URLParam(req, "judge")]
		b.mu.Unlock()
		if teams == nil {
			teams = []types.Team{}
		}
		writeJSON(w, http.StatusOK, teams)
	})
	review := func(w http.ResponseWriter, req *http.Request) {
		var sub types.ReviewSubmission
		_ = json.NewDecoder(req.Body).Decode(&sub)
		b.mu.Lock()
		b.reviews[chi.URLParam(req, "id")] = sub
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
	b.route(r, http.MethodPost, "/team/score1/{id}", review)
	b.route(r, http.MethodPost, "/team/score/{id}", review)

	return r
}

func (b *Backend) teams(sector string) []types.Team {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []types.Team{}
	for _, t := range b.byID {
		if sector == "" || t.Sector == sector {
			out = append(out, *t)
		}
	}
	return out
}

func (b *Backend) byEmail(email string) *types.Team {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.byID {
		if t.Email == email {
			cp := *t
			return &cp
		}
	}
	return nil
}
