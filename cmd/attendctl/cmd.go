package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/share"
)

// CreateSession starts a session from flags and prints its code and link.
func (r *Runner) CreateSession(ctx context.Context, cmd *cli.Command) error {
	date := cmd.String("date")
	if date == "" {
		date = r.today()
	}
	in := attendance.CreateSessionInput{
		CourseName:         cmd.String("course-name"),
		CourseCode:         cmd.String("course-code"),
		Date:               date,
		StartTime:          cmd.String("start"),
		ExpectedStudents:   int(cmd.Int("expected")),
		AttendanceDuration: int(cmd.Int("duration")),
	}
	var pos *attendance.Point
	if cmd.IsSet("lat") && cmd.IsSet("lon") {
		pos = &attendance.Point{Latitude: cmd.Float("lat"), Longitude: cmd.Float("lon")}
	}

	sess, err := r.att.CreateSession(ctx, in, pos)
	if err != nil {
		return err
	}
	link, err := share.Link(r.baseURL, sess.ID)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"session": sess, "link": link})
	}
	r.writePlainln("Session %s created", sess.ID)
	r.writePlainln("  Code:   %s", sess.SessionCode)
	r.writePlainln("  Window: %s %s-%s", sess.Date, sess.TimeStart, sess.TimeEnd)
	return r.writePlainln("  Link:   %s", link)
}

// EndSession ends a session by id.
func (r *Runner) EndSession(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.att.End(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	p, a := sess.PresentStudents, sess.AbsentStudents
	return r.writePlainln("Session %s ended: %d present, %d absent (%d%%)", sess.ID, p, a, attendance.Rate(sess))
}

// ListSessions prints the session history newest first.
func (r *Runner) ListSessions(ctx context.Context, cmd *cli.Command) error {
	sessions, err := r.att.History(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(sessions)
	}
	if len(sessions) == 0 {
		return r.writePlainln("No sessions yet.")
	}
	for _, s := range sessions {
		r.writePlainln("%-24s %-8s %s %s-%s  %s  %d/%d", s.ID, s.CourseCode, s.Date, s.TimeStart, s.TimeEnd, s.Status, s.PresentStudents, s.TotalStudents)
	}
	return nil
}

// SessionQR writes the attendance link QR code as a PNG file.
func (r *Runner) SessionQR(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.att.Session(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	png, err := share.QR(r.baseURL, sess.ID, int(cmd.Int("size")))
	if err != nil {
		return err
	}
	out := cmd.String("out")
	if out == "" {
		out = "session-" + sess.SessionCode + ".png"
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return fmt.Errorf("write qr: %w", err)
	}
	return r.writePlainln("QR code written to %s", out)
}

// Join resolves a session code the way the student page does.
func (r *Runner) Join(ctx context.Context, cmd *cli.Command) error {
	target, err := r.att.ResolveCode(ctx, cmd.String("code"))
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		return r.writePlainln("Session not found. Check the code and try again.")
	case errors.Is(err, attendance.ErrSessionEnded):
		return r.writePlainln("This session has already ended.")
	case err != nil:
		return err
	}
	return r.writePlainln("%s", target.Path)
}

// Students prints one page of the roster.
func (r *Runner) Students(ctx context.Context, cmd *cli.Command) error {
	page, err := r.att.Students(ctx, cmd.String("q"), int(cmd.Int("page")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(page)
	}
	for _, st := range page.Items {
		r.writePlainln("%-14s %-24s %s", st.MatriculationNumber, st.Name, st.Department)
	}
	return r.writePlainln("Page %d of %d (%d students)", page.Page, max(page.TotalPages, 1), page.Total)
}

// Token issues an instructor bearer token.
func (r *Runner) Token(ctx context.Context, cmd *cli.Command) error {
	token, exp, err := auth.Issue(cmd.String("subject"), r.issuer, r.signingKey, cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	r.logger.Info("instructor token issued", "subject", cmd.String("subject"), "expires", exp)
	return r.writePlainln("%s", token)
}

func sessionCommand(r *Runner) *cli.Command {
	idFlag := func() cli.Flag { return &cli.StringFlag{Name: "id", Usage: "Session id", Required: true} }
	jsonFlag := func() cli.Flag { return &cli.BoolFlag{Name: "json", Usage: "Print JSON"} }
	return &cli.Command{
		Name:  "session",
		Usage: "Create, list and end attendance sessions",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Start a new attendance session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "course-name", Usage: "Course name", Required: true},
					&cli.StringFlag{Name: "course-code", Usage: "Course code", Required: true},
					&cli.StringFlag{Name: "date", Usage: "Class date (YYYY-MM-DD), today when empty"},
					&cli.StringFlag{Name: "start", Usage: "Start time (HH:MM)", Required: true},
					&cli.IntFlag{Name: "expected", Usage: "Expected number of students", Required: true},
					&cli.IntFlag{Name: "duration", Usage: "Attendance window in minutes (5-180)", Value: 60},
					&cli.FloatFlag{Name: "lat", Usage: "Venue latitude"},
					&cli.FloatFlag{Name: "lon", Usage: "Venue longitude"},
					jsonFlag(),
				},
				Action: r.CreateSession,
			},
			{
				Name:   "end",
				Usage:  "End a session now",
				Flags:  []cli.Flag{idFlag()},
				Action: r.EndSession,
			},
			{
				Name:    "list",
				Aliases: []string{"history"},
				Usage:   "List sessions, newest first",
				Flags:   []cli.Flag{jsonFlag()},
				Action:  r.ListSessions,
			},
			{
				Name:  "qr",
				Usage: "Write the session QR code to a PNG file",
				Flags: []cli.Flag{
					idFlag(),
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file"},
					&cli.IntFlag{Name: "size", Usage: "Image size in pixels", Value: share.DefaultQRSize},
				},
				Action: r.SessionQR,
			},
		},
	}
}

func joinCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "join",
		Usage:  "Resolve a session code",
		Flags:  []cli.Flag{&cli.StringFlag{Name: "code", Usage: "8-digit session code", Required: true}},
		Action: r.Join,
	}
}

func studentsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "students",
		Usage: "Search the student roster",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "q", Usage: "Name, matriculation number or department"},
			&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: r.Students,
	}
}

func tokenCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue an instructor token for the protected API routes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Usage: "Instructor name or id", Required: true},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: 12 * time.Hour},
		},
		Action: r.Token,
	}
}
