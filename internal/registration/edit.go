package registration

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

// Editor is the self-service details editor. The window is read once over
// HTTP and then follows editDetailsStatusUpdate pushes.
type Editor struct {
	api    API
	domain string
	log    *zap.Logger
	sub    *channel.Subscription

	mu    sync.Mutex
	open  bool
	known bool

	saving inflight
}

func NewEditor(bus channel.Bus, a API, domain string, log *zap.Logger) *Editor {
	if log == nil {
		log = zap.NewNop()
	}
	if domain == "" {
		domain = DefaultEmailDomain
	}
	e := &Editor{api: a, domain: domain, log: log.Named("edit")}
	e.sub = bus.Subscribe(pkgtypes.TopicEditDetailsStatus, e.onStatus)
	return e
}

func (e *Editor) onStatus(data json.RawMessage) {
	var s types.EditDetailsStatus
	if err := json.Unmarshal(data, &s); err != nil {
		e.log.Debug("bad editDetailsStatusUpdate", zap.Error(err))
		return
	}
	e.set(s.Open)
}

func (e *Editor) set(open bool) {
	e.mu.Lock()
	e.open, e.known = open, true
	e.mu.Unlock()
}

// Load fetches the current window state.
func (e *Editor) Load(ctx context.Context) error {
	s, err := e.api.EditDetailsStatus(ctx)
	if err != nil {
		e.log.Warn("edit status fetch failed", zap.Error(err))
		return err
	}
	e.set(s.Open)
	return nil
}

// Open reports the window state and whether it is known yet.
func (e *Editor) Open() (open, known bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open, e.known
}

func (e *Editor) Close() { e.sub.Unsubscribe() }

func (e *Editor) requireOpen() error {
	if open, _ := e.Open(); !open {
		return ErrEditClosed
	}
	return nil
}

// Find loads the team whose lead registered with email.
func (e *Editor) Find(ctx context.Context, email string) (*types.Team, error) {
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if !strings.HasSuffix(strings.ToLower(email), strings.ToLower(e.domain)) {
		return nil, &Error{Message: MsgEditEmailDomain, Err: ErrEmailDomain}
	}
	t, err := e.api.TeamByEmail(ctx, email)
	if err != nil {
		return nil, failed(err, MsgNoTeamForEmail)
	}
	return t, nil
}

// Save writes the edited record back.
func (e *Editor) Save(ctx context.Context, t types.Team) error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	if err := e.saving.begin(); err != nil {
		return err
	}
	defer e.saving.end()
	if err := e.api.UpdateTeam(ctx, t.ID, t); err != nil {
		e.log.Warn("team update failed", zap.String("team_id", t.ID), zap.Error(err))
		return failed(err, MsgSaveFailed)
	}
	e.log.Info("team details updated", zap.String("team_id", t.ID))
	return nil
}
