// Package admin is the organisers' registration desk: sorting sign-ups by
// payment state, verifying teams and sending payment links.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/types"
)

// BulkConcurrency bounds parallel payment-link requests.
const BulkConcurrency = 4

var ErrBusy = errors.New("this action is already in progress")

type API interface {
	Students(ctx context.Context) ([]types.Team, error)
	Verify(ctx context.Context, teamID string) error
	GenerateQRPass(ctx context.Context, teamID string) error
	SendPaymentLink(ctx context.Context, teamID string) error
}

// Buckets splits teams by where they are in the payment pipeline.
type Buckets struct {
	Registered        []types.Team `json:"registered"`
	UnderVerification []types.Team `json:"underVerification"`
	Verified          []types.Team `json:"verified"`
}

func Sort(teams []types.Team) Buckets {
	var b Buckets
	for _, t := range teams {
		switch {
		case t.Verified:
			b.Verified = append(b.Verified, t)
		case t.ImgURL != "":
			b.UnderVerification = append(b.UnderVerification, t)
		default:
			b.Registered = append(b.Registered, t)
		}
	}
	return b
}

type Board struct {
	api API
	log *zap.Logger

	mu   sync.Mutex
	busy map[string]bool
}

func New(a API, log *zap.Logger) *Board {
	if log == nil {
		log = zap.NewNop()
	}
	return &Board{api: a, log: log.Named("admin"), busy: make(map[string]bool)}
}

// begin claims key until the returned func runs. A second claim on the same
// key fails with ErrBusy, so a repeated click never sends twice.
func (b *Board) begin(key string) (done func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy[key] {
		return nil, ErrBusy
	}
	b.busy[key] = true
	return func() {
		b.mu.Lock()
		delete(b.busy, key)
		b.mu.Unlock()
	}, nil
}

// VerifyMessage is the banner text for a failed Verify.
func VerifyMessage(err error) string {
	return "Verification Failed: " + api.Message(err, "Something went wrong")
}

func (b *Board) Load(ctx context.Context) (Buckets, error) {
	teams, err := b.api.Students(ctx)
	if err != nil {
		return Buckets{}, fmt.Errorf("load teams: %w", err)
	}
	return Sort(teams), nil
}

// Verify marks a team's payment as accepted.
func (b *Board) Verify(ctx context.Context, teamID string) error {
	done, err := b.begin("verify:" + teamID)
	if err != nil {
		return err
	}
	defer done()
	if err := b.api.Verify(ctx, teamID); err != nil {
		b.log.Warn("verify failed", zap.String("team_id", teamID), zap.Error(err))
		return fmt.Errorf("verify %s: %w", teamID, err)
	}
	b.log.Info("team verified", zap.String("team_id", teamID))
	return nil
}

// IssuePass asks the backend to generate and mail the team's QR passes.
func (b *Board) IssuePass(ctx context.Context, teamID string) error {
	done, err := b.begin("pass:" + teamID)
	if err != nil {
		return err
	}
	defer done()
	if err := b.api.GenerateQRPass(ctx, teamID); err != nil {
		b.log.Warn("qr pass failed", zap.String("team_id", teamID), zap.Error(err))
		return err
	}
	return nil
}

func (b *Board) SendLink(ctx context.Context, teamID string) error {
	done, err := b.begin("link:" + teamID)
	if err != nil {
		return err
	}
	defer done()
	return b.api.SendPaymentLink(ctx, teamID)
}

// Report is the outcome of a bulk send. Err combines every failure.
type Report struct {
	Sent   int
	Failed int
	Err    error
}

func (r Report) String() string {
	return fmt.Sprintf("Bulk Send Complete! Sent: %d Failed: %d", r.Sent, r.Failed)
}

// SendLinks mails a payment link to each team. One failure does not stop
// the others. Only one bulk send runs at a time.
func (b *Board) SendLinks(ctx context.Context, teams []types.Team) (Report, error) {
	done, err := b.begin("bulk")
	if err != nil {
		return Report{}, err
	}
	defer done()
	return b.sendLinks(ctx, teams), nil
}

func (b *Board) sendLinks(ctx context.Context, teams []types.Team) Report {
	var (
		mu  sync.Mutex
		rep Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(BulkConcurrency)
	for _, t := range teams {
		t := t
		g.Go(func() error {
			err := b.api.SendPaymentLink(gctx, t.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed++
				rep.Err = multierr.Append(rep.Err, fmt.Errorf("%s: %w", t.TeamName, err))
				b.log.Warn("payment link failed", zap.String("team_id", t.ID), zap.Error(err))
				return nil
			}
			rep.Sent++
			return nil
		})
	}
	_ = g.Wait()
	b.log.Info("bulk payment links", zap.Int("sent", rep.Sent), zap.Int("failed", rep.Failed))
	return rep
}

// SendAllLinks sends to every team that registered but has not paid.
func (b *Board) SendAllLinks(ctx context.Context) (Report, error) {
	done, err := b.begin("bulk")
	if err != nil {
		return Report{}, err
	}
	defer done()
	buckets, err := b.Load(ctx)
	if err != nil {
		return Report{}, err
	}
	return b.sendLinks(ctx, buckets.Registered), nil
}
