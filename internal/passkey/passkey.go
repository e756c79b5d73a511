// Package passkey replaces the shared-password screens of the staff tools
// with explicit, expiring sessions. Passwords are never stored in clear;
// each name maps to a bcrypt hash.
package passkey

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/hacksail-client/internal/clock"
)

type Role string

const (
	RoleJudge  Role = "judge"
	RoleSector Role = "sector"
)

var ErrUnknownName = errors.New("unknown name")
var ErrWrongPasskey = errors.New("invalid passkey")
var ErrNoSession = errors.New("no such session")
var ErrExpired = errors.New("session expired")
var ErrWrongRole = errors.New("session belongs to another role")

const DefaultTTL = 8 * time.Hour

type Session struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Name    string    `json:"name"`
	Expires time.Time `json:"expires"`
}

// Gate verifies passkeys for one role and tracks the sessions it handed out.
type Gate struct {
	role   Role
	ttl    time.Duration
	clock  clock.Clock
	hashes map[string][]byte
	names  []string

	mu       sync.Mutex
	sessions map[string]Session
}

// New builds a gate from name -> bcrypt hash. A hash that bcrypt cannot read
// is rejected up front.
func New(role Role, hashes map[string]string, ttl time.Duration, clk clock.Clock) (*Gate, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	g := &Gate{
		role:     role,
		ttl:      ttl,
		clock:    clk,
		hashes:   make(map[string][]byte, len(hashes)),
		sessions: make(map[string]Session),
	}
	for name, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("passkey %s %q: %w", role, name, err)
		}
		g.hashes[name] = []byte(h)
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)
	return g, nil
}

// ParseHashes reads "name:hash,name:hash". Blank entries are skipped.
func ParseHashes(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, hash, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("passkey entry %q: want name:hash", part)
		}
		out[name] = strings.TrimSpace(hash)
	}
	return out, nil
}

func (g *Gate) Role() Role { return g.role }

// Names lists the configured names in order.
func (g *Gate) Names() []string { return append([]string(nil), g.names...) }

// Open starts a session for name when password matches its hash.
func (g *Gate) Open(name, password string) (Session, error) {
	h, ok := g.hashes[name]
	if !ok {
		return Session{}, ErrUnknownName
	}
	if err := bcrypt.CompareHashAndPassword(h, []byte(password)); err != nil {
		return Session{}, ErrWrongPasskey
	}
	return g.start(name), nil
}

// Identify finds whose passkey password is, for screens that ask only for a
// passkey.
func (g *Gate) Identify(password string) (Session, error) {
	for _, name := range g.names {
		if bcrypt.CompareHashAndPassword(g.hashes[name], []byte(password)) == nil {
			return g.start(name), nil
		}
	}
	return Session{}, ErrWrongPasskey
}

func (g *Gate) start(name string) Session {
	s := Session{
		ID:      uuid.NewString(),
		Role:    g.role,
		Name:    name,
		Expires: g.clock.Now().Add(g.ttl),
	}
	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()
	return s
}

// Check returns the live session for id. Expired sessions are dropped.
func (g *Gate) Check(id string) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return Session{}, ErrNoSession
	}
	if !g.clock.Now().Before(s.Expires) {
		delete(g.sessions, id)
		return Session{}, ErrExpired
	}
	return s, nil
}

func (g *Gate) Close(id string) {
	g.mu.Lock()
	delete(g.sessions, id)
	g.mu.Unlock()
}
