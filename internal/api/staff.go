package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/DoyleJ11/hacksail-client/internal/types"
)

type teamsEnvelope struct {
	Teams []types.Team `json:"teams"`
}

func (c *Client) Students(ctx context.Context) ([]types.Team, error) {
	var out teamsEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/students", nil, &out); err != nil {
		return nil, err
	}
	return out.Teams, nil
}

func (c *Client) StudentsBySector(ctx context.Context, sector string) ([]types.Team, error) {
	var out teamsEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/students/"+url.PathEscape(sector), nil, &out); err != nil {
		return nil, err
	}
	return out.Teams, nil
}

func (c *Client) SubmitAttendance(ctx context.Context, sub types.AttendanceSubmission) error {
	return c.doJSON(ctx, http.MethodPost, "/attendance/submit", sub, nil)
}

func (c *Client) Verify(ctx context.Context, teamID string) error {
	return c.doJSON(ctx, http.MethodPost, "/verify/"+url.PathEscape(teamID), nil, nil)
}

func (c *Client) GenerateQRPass(ctx context.Context, teamID string) error {
	return c.doJSON(ctx, http.MethodPost, "/generate-qr-pass/"+url.PathEscape(teamID), nil, nil)
}

func (c *Client) SendPaymentLink(ctx context.Context, teamID string) error {
	return c.doJSON(ctx, http.MethodPost, "/admin/send-payment-link", map[string]string{"teamId": teamID}, nil)
}

func (c *Client) ValidatePaymentEmail(ctx context.Context, email string) (types.PaymentLookup, error) {
	var out types.PaymentLookup
	err := c.doJSON(ctx, http.MethodPost, "/payment/validate-email", map[string]string{"email": email}, &out)
	return out, err
}

func (c *Client) SubmitPaymentProof(ctx context.Context, proof types.PaymentProof) error {
	return c.doJSON(ctx, http.MethodPost, "/payment/submit-proof", proof, nil)
}

func (c *Client) ReviewTeams(ctx context.Context, judge string) ([]types.Team, error) {
	var out []types.Team
	if err := c.doJSON(ctx, http.MethodGet, "/review/teams/"+url.PathEscape(judge), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitReview posts a judge's rubric; round 1 goes to score1, round 2 to score.
func (c *Client) SubmitReview(ctx context.Context, round int, teamID string, sub types.ReviewSubmission) error {
	endpoint := "/team/score/"
	if round == 1 {
		endpoint = "/team/score1/"
	}
	return c.doJSON(ctx, http.MethodPost, endpoint+url.PathEscape(teamID), sub, nil)
}
