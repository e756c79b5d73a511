package channeltest

import (
	"encoding/json"
	"sync"

	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

const AlreadyLoggedIn = "This team is already logged in on another device."

// LockServer arbitrates session locks the way the event-channel server does:
// at most one device holds the lock for a team id at any time.
type LockServer struct {
	mu      sync.Mutex
	holders map[string]*Bus // team id -> holding device
	owned   map[*Bus]string // device -> team id
}

func NewLockServer() *LockServer {
	return &LockServer{
		holders: make(map[string]*Bus),
		owned:   make(map[*Bus]string),
	}
}

// Device returns a new Bus whose emits are answered by the server.
func (s *LockServer) Device() *Bus {
	b := NewBus()
	b.OnEmit = s.handle
	return b
}

func (s *LockServer) handle(b *Bus, topic string, payload json.RawMessage) {
	switch topic {
	case pkgtypes.TopicTeamLogin:
		var teamID string
		if err := json.Unmarshal(payload, &teamID); err != nil || teamID == "" {
			b.Push(pkgtypes.TopicLoginError, types.MessagePayload{Message: "bad login request"})
			return
		}
		s.mu.Lock()
		holder, held := s.holders[teamID]
		granted := !held || holder == b
		if granted {
			s.holders[teamID] = b
			s.owned[b] = teamID
		}
		s.mu.Unlock()

		if granted {
			b.Push(pkgtypes.TopicLoginSuccess, struct{}{})
		} else {
			b.Push(pkgtypes.TopicLoginError, types.MessagePayload{Message: AlreadyLoggedIn})
		}

	case pkgtypes.TopicTeamLogout:
		s.release(b)
	}
}

func (s *LockServer) release(b *Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if teamID, ok := s.owned[b]; ok {
		delete(s.owned, b)
		if s.holders[teamID] == b {
			delete(s.holders, teamID)
		}
	}
}

// Holder returns the device currently holding teamID's lock.
func (s *LockServer) Holder(teamID string) *Bus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders[teamID]
}

// Evict releases the lock and pushes forceLogout to the device that held it.
func (s *LockServer) Evict(teamID, message string) {
	s.mu.Lock()
	b := s.holders[teamID]
	if b != nil {
		delete(s.holders, teamID)
		delete(s.owned, b)
	}
	s.mu.Unlock()
	if b != nil {
		b.Push(pkgtypes.TopicForceLogout, types.MessagePayload{Message: message})
	}
}
