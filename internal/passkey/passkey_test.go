package passkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/hacksail-client/internal/clock"
)

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newGate(t *testing.T, clk clock.Clock) *Gate {
	t.Helper()
	g, err := New(RoleSector, map[string]string{
		"A": hash(t, "alpha-pass"),
		"B": hash(t, "bravo-pass"),
	}, time.Hour, clk)
	require.NoError(t, err)
	return g
}

func TestOpen(t *testing.T) {
	g := newGate(t, clock.NewFake(time.Unix(0, 0)))

	_, err := g.Open("C", "alpha-pass")
	assert.ErrorIs(t, err, ErrUnknownName)
	_, err = g.Open("A", "bravo-pass")
	assert.ErrorIs(t, err, ErrWrongPasskey)

	s, err := g.Open("A", "alpha-pass")
	require.NoError(t, err)
	assert.Equal(t, "A", s.Name)
	assert.Equal(t, RoleSector, s.Role)
	assert.NotEmpty(t, s.ID)
}

func TestIdentify(t *testing.T) {
	g := newGate(t, nil)
	s, err := g.Identify("bravo-pass")
	require.NoError(t, err)
	assert.Equal(t, "B", s.Name)

	_, err = g.Identify("nope")
	assert.ErrorIs(t, err, ErrWrongPasskey)
}

func TestSessionExpiry(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	g := newGate(t, clk)
	s, err := g.Open("A", "alpha-pass")
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	got, err := g.Check(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	clk.Advance(time.Minute)
	_, err = g.Check(s.ID)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = g.Check(s.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClose(t *testing.T) {
	g := newGate(t, nil)
	s, err := g.Open("A", "alpha-pass")
	require.NoError(t, err)
	g.Close(s.ID)
	_, err = g.Check(s.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestNewRejectsBadHash(t *testing.T) {
	_, err := New(RoleJudge, map[string]string{"x": "plaintext"}, 0, nil)
	assert.Error(t, err)
}

func TestParseHashes(t *testing.T) {
	m, err := ParseHashes(" judge1:$2a$04$abc , ,judge2:$2a$04$def")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"judge1": "$2a$04$abc", "judge2": "$2a$04$def"}, m)

	_, err = ParseHashes("missingcolon")
	assert.Error(t, err)

	m, err = ParseHashes("")
	require.NoError(t, err)
	assert.Empty(t, m)
}
