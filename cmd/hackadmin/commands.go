package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/admin"
	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/attendance"
	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/clock"
	"github.com/DoyleJ11/hacksail-client/internal/config"
	"github.com/DoyleJ11/hacksail-client/internal/judge"
	"github.com/DoyleJ11/hacksail-client/internal/passkey"
	"github.com/DoyleJ11/hacksail-client/internal/registration"
	"github.com/DoyleJ11/hacksail-client/internal/types"
)

var (
	errUsage      = errors.New("usage")
	errNoPush     = errors.New("no answer from the event channel")
	errNoPasskeys = errors.New("no passkeys configured for this role")
)

const usage = `usage: hackadmin [flags] <group> <command> [args]

  admin list
  admin verify <teamId>
  admin pass <teamId>
  admin link <teamId>
  admin links

  judge [-passkey P] [-as NAME] teams [query]
  judge [-passkey P] [-as NAME] score <round> <teamId> key=marks...

  attendance [-passkey P] [-as SECTOR] teams
  attendance [-passkey P] [-as SECTOR] mark <teamId> <round> <reg>=Present|Absent|qr:<payload>...
  attendance [-passkey P] [-as SECTOR] summary <teamId>

  registration status
  registration register <team.json>
  registration pay <email> <upiId> <transactionId> <image>
  registration find <email>
  registration save <team.json>

Staff passkeys may also come from HACKSAIL_PASSKEY.
`

type app struct {
	cfg      config.Config
	api      *api.Client
	bus      channel.Bus
	up       registration.Uploader
	clk      clock.Clock
	log      *zap.Logger
	out      io.Writer
	pushWait time.Duration
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	group, rest := args[0], args[1:]
	switch group {
	case "admin":
		return a.admin(ctx, rest)
	case "judge":
		return a.judge(ctx, rest)
	case "attendance":
		return a.attendance(ctx, rest)
	case "registration":
		return a.registration(ctx, rest)
	}
	return errUsage
}

// staff opens a passkey session from -passkey (or HACKSAIL_PASSKEY) and
// returns the gate holding it with the remaining args. -as pins the name the
// passkey must belong to.
func (a *app) staff(role passkey.Role, hashes map[string]string, args []string) (*passkey.Gate, passkey.Session, []string, error) {
	fs := flag.NewFlagSet(string(role), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	pw := fs.String("passkey", os.Getenv("HACKSAIL_PASSKEY"), "staff passkey")
	as := fs.String("as", "", "name the passkey belongs to")
	if err := fs.Parse(args); err != nil {
		return nil, passkey.Session{}, nil, errUsage
	}
	if len(hashes) == 0 {
		return nil, passkey.Session{}, nil, errNoPasskeys
	}
	gate, err := passkey.New(role, hashes, a.cfg.PasskeyTTL, a.clk)
	if err != nil {
		return nil, passkey.Session{}, nil, err
	}
	var sess passkey.Session
	if *as != "" {
		sess, err = gate.Open(*as, *pw)
		if errors.Is(err, passkey.ErrUnknownName) {
			err = fmt.Errorf("%w %q (known: %s)", err, *as, strings.Join(gate.Names(), ", "))
		}
	} else {
		sess, err = gate.Identify(*pw)
	}
	if err != nil {
		return nil, passkey.Session{}, nil, err
	}
	a.log.Debug("staff session", zap.String("role", string(role)), zap.String("name", sess.Name),
		zap.Time("expires", sess.Expires))
	return gate, sess, fs.Args(), nil
}

func (a *app) admin(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	board := admin.New(a.api, a.log)
	switch cmd := args[0]; {
	case cmd == "list" && len(args) == 1:
		b, err := board.Load(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, g := range []struct {
			name  string
			teams []types.Team
		}{
			{"registered", b.Registered},
			{"under verification", b.UnderVerification},
			{"verified", b.Verified},
		} {
			fmt.Fprintf(tw, "%s (%s)\n", g.name, humanize.Comma(int64(len(g.teams))))
			for _, t := range g.teams {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.ID, t.TeamName, t.Email)
			}
		}
		return tw.Flush()
	case cmd == "verify" && len(args) == 2:
		if err := board.Verify(ctx, args[1]); err != nil {
			return errors.New(admin.VerifyMessage(err))
		}
		fmt.Fprintln(a.out, "Verified.")
		return nil
	case cmd == "pass" && len(args) == 2:
		if err := board.IssuePass(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "QR pass sent.")
		return nil
	case cmd == "link" && len(args) == 2:
		if err := board.SendLink(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Payment link sent.")
		return nil
	case cmd == "links" && len(args) == 1:
		r, err := board.SendAllLinks(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, r)
		return r.Err
	}
	return errUsage
}

func (a *app) waitFor(ctx context.Context, ready <-chan struct{}) error {
	wctx, cancel := context.WithTimeout(ctx, a.pushWait)
	defer cancel()
	select {
	case <-ready:
		return nil
	case <-wctx.Done():
		return errNoPush
	}
}

func (a *app) judge(ctx context.Context, args []string) error {
	gate, sess, args, err := a.staff(passkey.RoleJudge, a.cfg.JudgePasskeys, args)
	if err != nil {
		return err
	}
	if len(args) < 1 {
		return errUsage
	}
	c := judge.New(a.bus, a.api, a.log)
	defer c.Close()
	if err := c.SignIn(ctx, gate, sess.ID); err != nil {
		return err
	}
	defer c.SignOut()

	switch args[0] {
	case "teams":
		query := strings.Join(args[1:], " ")
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, e := range c.Teams(query) {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Number, e.Team.ID, e.Team.TeamName, reviewed(e.Team))
		}
		return tw.Flush()
	case "score":
		if len(args) < 4 {
			return errUsage
		}
		round, err := strconv.Atoi(args[1])
		if err != nil {
			return errUsage
		}
		r, err := judge.NewRubric(round)
		if err != nil {
			return err
		}
		for _, kv := range args[3:] {
			key, v, ok := strings.Cut(kv, "=")
			if !ok {
				return errUsage
			}
			marks, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: marks must be a number", key)
			}
			got, err := r.Set(key, marks)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if got != marks {
				fmt.Fprintf(a.out, "%s clamped to %d\n", key, got)
			}
		}
		if err := a.waitFor(ctx, c.Known()); err != nil {
			return err
		}
		if err := c.Submit(ctx, args[2], r); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Submitted %d/%d.\n", r.Total(), r.Max())
		return nil
	}
	return errUsage
}

func reviewed(t types.Team) string {
	var parts []string
	if t.FirstReview {
		parts = append(parts, fmt.Sprintf("R1 %d", t.FirstReviewScore))
	}
	if t.SecondReview {
		parts = append(parts, fmt.Sprintf("R2 %d", t.SecondReviewScore))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func (a *app) attendance(ctx context.Context, args []string) error {
	gate, sess, args, err := a.staff(passkey.RoleSector, a.cfg.SectorPasskeys, args)
	if err != nil {
		return err
	}
	if len(args) < 1 {
		return errUsage
	}
	desk := attendance.NewDesk(a.api, a.log)
	if err := desk.SignIn(ctx, gate, sess.ID); err != nil {
		return err
	}
	defer desk.SignOut()

	switch args[0] {
	case "teams":
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, t := range desk.Teams() {
			fmt.Fprintf(tw, "%s\t%s\t%d members\t%.0f%%\n", t.ID, t.TeamName, len(t.AllMembers()), attendance.Percentage(t))
		}
		return tw.Flush()
	case "summary":
		if len(args) != 2 {
			return errUsage
		}
		sheets := make([]*attendance.Sheet, 0, attendance.LastRound)
		for round := attendance.FirstRound; round <= attendance.LastRound; round++ {
			s, err := desk.Open(args[1], round)
			if err != nil {
				return err
			}
			sheets = append(sheets, s)
		}
		team := sheets[0].Team()
		fmt.Fprintf(a.out, "%s: %.0f%% present\n", team.TeamName, attendance.Percentage(team))
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, s := range sheets {
			fmt.Fprintf(tw, "%s round", humanize.Ordinal(s.Round()))
			for _, m := range s.Members() {
				st := s.Status(m.RegistrationNumber)
				if st == "" {
					st = "-"
				}
				fmt.Fprintf(tw, "\t%s", st)
			}
			fmt.Fprintln(tw)
		}
		return tw.Flush()
	case "mark":
		if len(args) < 4 {
			return errUsage
		}
		round, err := strconv.Atoi(args[2])
		if err != nil {
			return errUsage
		}
		sheet, err := desk.Open(args[1], round)
		if err != nil {
			return err
		}
		if sheet.Submitted() {
			sheet.Edit()
		}
		for _, kv := range args[3:] {
			reg, v, ok := strings.Cut(kv, "=")
			if !ok {
				return errUsage
			}
			if payload, isQR := strings.CutPrefix(v, "qr:"); isQR {
				err = sheet.Scan(reg, []byte(payload))
			} else {
				err = sheet.Mark(reg, v)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", reg, err)
			}
		}
		if err := desk.Submit(ctx, sheet); err != nil {
			if errors.Is(err, attendance.ErrIncomplete) {
				return fmt.Errorf("%w (missing %s)", err, strings.Join(sheet.Missing(), ", "))
			}
			return errors.New(api.Message(err, attendance.MsgSubmitFailed))
		}
		fmt.Fprintf(a.out, "Attendance for the %s round submitted.\n", humanize.Ordinal(round))
		return nil
	}
	return errUsage
}

func readTeam(path string) (types.Team, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Team{}, err
	}
	var t types.Team
	if err := json.Unmarshal(data, &t); err != nil {
		return types.Team{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (a *app) registration(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case "status", "register", "pay":
		return a.signups(ctx, args)
	case "find", "save":
		return a.edits(ctx, args)
	}
	return errUsage
}

// signups runs a status watcher for the life of the command so the window
// state is known before anything is submitted.
func (a *app) signups(ctx context.Context, args []string) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first := make(chan struct{})
	var once sync.Once
	w := registration.NewWatcher(a.bus, a.clk, a.log, registration.WithOnStatus(func(types.RegistrationStatus) {
		once.Do(func() { close(first) })
	}))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(wctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	if err := a.waitFor(ctx, first); err != nil {
		return err
	}
	svc := registration.NewService(a.api, a.up, w, a.log, registration.WithEmailDomain(a.cfg.EmailDomain))

	switch {
	case args[0] == "status" && len(args) == 1:
		st, _ := w.Status()
		switch {
		case st.Closed && st.OpenTime != nil && w.Countdown() > 0:
			fmt.Fprintf(a.out, "Registration opens %s (%s).\n", humanize.RelTime(*st.OpenTime, a.clk.Now(), "ago", "from now"), st.OpenTime.Local().Format(time.RFC1123))
		case st.Closed:
			fmt.Fprintln(a.out, registration.MsgClosed)
		case w.Full():
			fmt.Fprintf(a.out, "Registration full: %s/%s teams.\n", humanize.Comma(int64(st.Count)), humanize.Comma(int64(st.Limit)))
		default:
			fmt.Fprintf(a.out, "Registration open: %s/%s teams.\n", humanize.Comma(int64(st.Count)), humanize.Comma(int64(st.Limit)))
		}
		return nil
	case args[0] == "register" && len(args) == 2:
		form, err := readTeam(args[1])
		if err != nil {
			return err
		}
		if err := svc.Register(ctx, form); err != nil {
			return errors.New(svc.UserMessage(err))
		}
		fmt.Fprintf(a.out, "Team %q registered.\n", form.TeamName)
		return nil
	case args[0] == "pay" && len(args) == 5:
		lk, err := svc.LookupPayment(ctx, args[1])
		if err != nil {
			return errors.New(svc.UserMessage(err))
		}
		f, err := os.Open(args[4])
		if err != nil {
			return err
		}
		defer f.Close()
		err = svc.SubmitProof(ctx, registration.Proof{
			TeamID:        lk.TeamID,
			UPIID:         args[2],
			TransactionID: args[3],
			Filename:      filepath.Base(args[4]),
			Image:         f,
		})
		if err != nil {
			return errors.New(svc.UserMessage(err))
		}
		fmt.Fprintf(a.out, "Payment proof submitted for %s.\n", lk.TeamName)
		return nil
	}
	return errUsage
}

func (a *app) edits(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	ed := registration.NewEditor(a.bus, a.api, a.cfg.EmailDomain, a.log)
	defer ed.Close()
	if err := ed.Load(ctx); err != nil {
		return err
	}
	svc := registration.NewService(a.api, a.up, nil, a.log, registration.WithEmailDomain(a.cfg.EmailDomain))

	switch args[0] {
	case "find":
		t, err := ed.Find(ctx, args[1])
		if err != nil {
			return errors.New(svc.UserMessage(err))
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case "save":
		t, err := readTeam(args[1])
		if err != nil {
			return err
		}
		if err := ed.Save(ctx, t); err != nil {
			return errors.New(svc.UserMessage(err))
		}
		fmt.Fprintln(a.out, "Details updated.")
		return nil
	}
	return errUsage
}
