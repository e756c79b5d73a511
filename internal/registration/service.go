package registration

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/types"
)

const DefaultEmailDomain = "@klu.ac.in"

const (
	MsgClosed          = "Registration is currently closed. Please contact the ScoreCraft team for assistance."
	MsgRegisterFailed  = "Registration Failed"
	MsgInvalidEmail    = "Invalid Email"
	MsgUploadFailed    = "Upload failed. Please try again."
	MsgNoTeamForEmail  = "No team found for this email. Please check and try again."
	MsgSaveFailed      = "Failed to save. Please try again."
	MsgEditEmailDomain = "Please enter a valid KLU email address (@klu.ac.in)."
)

var ErrClosed = errors.New("registration is closed")
var ErrFull = errors.New("registration is full")
var ErrEmailDomain = errors.New("email is outside the allowed domain")
var ErrNoEmail = errors.New("enter an email")
var ErrAlreadySubmitted = errors.New("payment proof already submitted")
var ErrNoImage = errors.New("select a screenshot of the payment")
var ErrNoTransaction = errors.New("enter the transaction id")
var ErrEditClosed = errors.New("editing details is closed")
var ErrBusy = errors.New("a submission is already in flight")

type API interface {
	Register(ctx context.Context, form types.Team) error
	ValidatePaymentEmail(ctx context.Context, email string) (types.PaymentLookup, error)
	SubmitPaymentProof(ctx context.Context, proof types.PaymentProof) error
	TeamByEmail(ctx context.Context, email string) (*types.Team, error)
	UpdateTeam(ctx context.Context, id string, team types.Team) error
	EditDetailsStatus(ctx context.Context) (types.EditDetailsStatus, error)
}

// Uploader hosts an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// inflight lets one call of an action run at a time.
type inflight struct {
	mu   sync.Mutex
	busy bool
}

func (f *inflight) begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	f.busy = true
	return nil
}

func (f *inflight) end() {
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
}

type Service struct {
	api      API
	uploader Uploader
	watcher  *Watcher
	domain   string
	log      *zap.Logger

	registering inflight
	proving     inflight
}

type Option func(*Service)

func WithEmailDomain(d string) Option {
	return func(s *Service) {
		if d != "" {
			s.domain = d
		}
	}
}

func NewService(a API, up Uploader, w *Watcher, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{api: a, uploader: up, watcher: w, domain: DefaultEmailDomain, log: log.Named("registration")}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Error carries the text shown next to the form along with its cause.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// failed prefers the server's own wording over fallback.
func failed(err error, fallback string) error {
	return &Error{Message: api.Message(err, fallback), Err: err}
}

// UserMessage is the text to show for err.
func (s *Service) UserMessage(err error) string {
	var fe *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return fe.Message
	case errors.Is(err, ErrClosed):
		return MsgClosed
	case errors.Is(err, ErrFull):
		return "Registration is full."
	case errors.Is(err, ErrEmailDomain):
		return "Team Lead email must be a valid " + s.domain + " ID."
	case errors.Is(err, ErrNoEmail):
		return "Please enter an email"
	case errors.Is(err, ErrNoImage):
		return "Please select a screenshot of the payment."
	case errors.Is(err, ErrNoTransaction):
		return "Please enter the Transaction ID."
	case errors.Is(err, ErrAlreadySubmitted):
		return "Payment proof was already submitted for this team."
	case errors.Is(err, ErrEditClosed):
		return "Editing details is closed right now."
	case errors.Is(err, ErrBusy):
		return "Please wait, still submitting."
	}
	return err.Error()
}

// Register submits a new team. It refuses while the window is closed and
// when the lead's email is outside the allowed domain.
func (s *Service) Register(ctx context.Context, form types.Team) error {
	if s.watcher != nil {
		st, known := s.watcher.Status()
		if known && st.Closed {
			return ErrClosed
		}
		if s.watcher.Full() {
			return ErrFull
		}
	}
	if !strings.HasSuffix(form.Email, s.domain) {
		return ErrEmailDomain
	}
	if err := s.registering.begin(); err != nil {
		return err
	}
	defer s.registering.end()
	if err := s.api.Register(ctx, form); err != nil {
		s.log.Warn("registration failed", zap.String("team", form.TeamName), zap.Error(err))
		return failed(err, MsgRegisterFailed)
	}
	s.log.Info("team registered", zap.String("team", form.TeamName))
	return nil
}

// LookupPayment resolves the lead's email to a team. A team that already
// sent proof comes back with ErrAlreadySubmitted.
func (s *Service) LookupPayment(ctx context.Context, email string) (types.PaymentLookup, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return types.PaymentLookup{}, ErrNoEmail
	}
	lk, err := s.api.ValidatePaymentEmail(ctx, email)
	if err != nil {
		return types.PaymentLookup{}, failed(err, MsgInvalidEmail)
	}
	if lk.AlreadySubmitted {
		return lk, ErrAlreadySubmitted
	}
	return lk, nil
}

// Proof is what the payer hands over: the screenshot and the transfer ids.
type Proof struct {
	TeamID        string
	UPIID         string
	TransactionID string
	Filename      string
	Image         io.Reader
}

// SubmitProof uploads the screenshot, then records the proof against the
// team.
func (s *Service) SubmitProof(ctx context.Context, p Proof) error {
	if p.Image == nil {
		return ErrNoImage
	}
	if strings.TrimSpace(p.TransactionID) == "" {
		return ErrNoTransaction
	}
	if err := s.proving.begin(); err != nil {
		return err
	}
	defer s.proving.end()
	url, err := s.uploader.Upload(ctx, p.Filename, p.Image)
	if err != nil {
		s.log.Warn("proof upload failed", zap.String("team_id", p.TeamID), zap.Error(err))
		return &Error{Message: MsgUploadFailed, Err: err}
	}
	err = s.api.SubmitPaymentProof(ctx, types.PaymentProof{
		TeamID:        p.TeamID,
		UPIID:         p.UPIID,
		TransactionID: strings.TrimSpace(p.TransactionID),
		ImgURL:        url,
	})
	if err != nil {
		s.log.Warn("proof submission failed", zap.String("team_id", p.TeamID), zap.Error(err))
		return &Error{Message: MsgUploadFailed, Err: err}
	}
	s.log.Info("payment proof submitted", zap.String("team_id", p.TeamID))
	return nil
}
