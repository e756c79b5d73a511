package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/DoyleJ11/hacksail-client/internal/types"
)

// Team validates an access token and returns the team record it names.
// Concurrent lookups of the same token share one request. The shared request
// outlives any one caller's cancellation; each caller stops waiting on its own
// ctx.
func (c *Client) Team(ctx context.Context, token string) (*types.Team, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.lookups.DoChan(token, func() (any, error) {
		var t types.Team
		if err := c.doJSON(shared, http.MethodPost, "/team/"+url.PathEscape(token), nil, &t); err != nil {
			return nil, err
		}
		return &t, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		t := *res.Val.(*types.Team)
		return &t, nil
	}
}

func (c *Client) Register(ctx context.Context, form types.Team) error {
	return c.doJSON(ctx, http.MethodPost, "/register", form, nil)
}

func (c *Client) UpdateTeam(ctx context.Context, id string, team types.Team) error {
	return c.doJSON(ctx, http.MethodPut, "/update-team/"+url.PathEscape(id), team, nil)
}

func (c *Client) TeamByEmail(ctx context.Context, email string) (*types.Team, error) {
	var out struct {
		Team *types.Team `json:"team"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/team-by-email", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	if out.Team == nil {
		return nil, ErrNotFound
	}
	return out.Team, nil
}

func (c *Client) EditDetailsStatus(ctx context.Context) (types.EditDetailsStatus, error) {
	var out types.EditDetailsStatus
	err := c.doJSON(ctx, http.MethodGet, "/settings/edit-details-status", nil, &out)
	return out, err
}

func gamePath(g types.Game) (string, error) {
	switch g {
	case types.GameMemory:
		return "game-score", nil
	case types.GameNumberPuzzle:
		return "number-puzzle-score", nil
	case types.GameStopTheBar:
		return "stop-the-bar-score", nil
	}
	return "", fmt.Errorf("hacksail api: unknown game %q", g)
}

// SubmitGameScore posts a mini-game result. The backend answers 403 when the
// team already played.
func (c *Client) SubmitGameScore(ctx context.Context, teamID string, g types.Game, score int) error {
	p, err := gamePath(g)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, "/team/"+url.PathEscape(teamID)+"/"+p, map[string]int{"score": score}, nil)
}

func (c *Client) CreateIssue(ctx context.Context, teamID, text string) error {
	return c.doJSON(ctx, http.MethodPost, "/issue/"+url.PathEscape(teamID), map[string]string{"issueText": text}, nil)
}
