package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"edutrack/internal/attendance"
	"edutrack/internal/logging"
)

// Runner holds the dependencies shared by every command.
type Runner struct {
	att        *attendance.Service
	baseURL    string
	signingKey string
	issuer     string
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts configures a Runner.
type RunnerOpts struct {
	Attendance    *attendance.Service
	PublicBaseURL string
	SigningKey    string
	Issuer        string
	Logger        *log.Logger
	Output        io.Writer
}

// NewRunner creates a Runner; nil logger and output fall back to stderr and
// stdout.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.New(os.Stderr, "info")
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{
		att:        opts.Attendance,
		baseURL:    opts.PublicBaseURL,
		signingKey: opts.SigningKey,
		issuer:     opts.Issuer,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		sessionCommand, joinCommand, studentsCommand, tokenCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

func (r *Runner) writeJSON(data any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintln(r.output, string(out)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format+"\n", args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) today() string {
	return r.att.Now().In(r.att.Location()).Format(time.DateOnly)
}
