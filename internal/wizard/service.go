package wizard

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/biometric"
	"edutrack/internal/metrics"
)

const lockStripes = 64

// saveTimeout bounds the final write of a wizard once the request is gone.
const saveTimeout = 5 * time.Second

// Options tune a Service.
type Options struct {
	Policy             biometric.Policy
	ProximityThreshold float64
	EnforceProximity   bool
	SigningKey         string
	Issuer             string
	Logger             *log.Logger
}

// Service drives wizards against the attendance service and the biometric
// matcher.
type Service struct {
	att     *attendance.Service
	repo    Repository
	matcher biometric.Matcher
	opts    Options
	log     *log.Logger
	locks   [lockStripes]sync.Mutex
}

// NewService wires a wizard service.
func NewService(att *attendance.Service, repo Repository, matcher biometric.Matcher, opts Options) *Service {
	if opts.Policy == (biometric.Policy{}) {
		opts.Policy = biometric.DefaultPolicy
	}
	if opts.ProximityThreshold <= 0 {
		opts.ProximityThreshold = 3000
	}
	l := opts.Logger
	if l == nil {
		l = log.New(io.Discard)
	}
	return &Service{att: att, repo: repo, matcher: matcher, opts: opts, log: l}
}

// Start opens a wizard for an active, unexpired session. pos is the device
// position when known.
func (s *Service) Start(ctx context.Context, sessionID string, pos *attendance.Point) (*Wizard, error) {
	view, err := s.att.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	w := New(uuid.NewString(), view.Session.ID, s.att.Now())
	if pos != nil {
		_ = w.Locate(attendance.CheckProximity(view.Session, *pos, s.opts.ProximityThreshold))
	}
	if err := s.repo.Save(ctx, w); err != nil {
		return nil, err
	}
	metrics.WizardTransitions.WithLabelValues(string(StateSelect)).Inc()
	s.log.Debug("wizard started", "wizard", w.ID, "session", w.SessionID)
	return w, nil
}

// Get returns a wizard by id.
func (s *Service) Get(ctx context.Context, id string) (*Wizard, error) {
	return s.repo.Get(ctx, id)
}

// Select binds the wizard to a roster entry.
func (s *Service) Select(ctx context.Context, id, studentID string) (*Wizard, error) {
	return s.update(ctx, id, func(w *Wizard) error {
		if w.State != StateSelect {
			return w.invalid("select")
		}
		if _, err := s.att.Student(ctx, studentID); err != nil {
			return err
		}
		return w.Select(studentID)
	})
}

// Verify checks the last three characters of the selected student's
// matriculation number.
func (s *Service) Verify(ctx context.Context, id, digits string) (*Wizard, error) {
	return s.update(ctx, id, func(w *Wizard) error {
		if w.State != StateVerify {
			return w.invalid("verify")
		}
		st, err := s.att.Student(ctx, w.StudentID)
		if err != nil {
			return err
		}
		return w.Verify(digits, st.MatriculationNumber)
	})
}

// Back steps back once.
func (s *Service) Back(ctx context.Context, id string) (*Wizard, error) {
	return s.update(ctx, id, func(w *Wizard) error { return w.Back() })
}

// Locate re-evaluates proximity for a new device position.
func (s *Service) Locate(ctx context.Context, id string, pos attendance.Point) (*Wizard, error) {
	return s.update(ctx, id, func(w *Wizard) error {
		sess, err := s.att.Session(ctx, w.SessionID)
		if err != nil {
			return err
		}
		return w.Locate(attendance.CheckProximity(sess, pos, s.opts.ProximityThreshold))
	})
}

// Sample feeds one live detection. Once the selected student has been matched
// confidently for long enough, attendance is submitted.
func (s *Service) Sample(ctx context.Context, id string, sample biometric.Sample) (*Wizard, biometric.Result, error) {
	var res biometric.Result
	w, err := s.update(ctx, id, func(w *Wizard) error {
		if w.State != StateBiometric {
			return w.invalid("sample")
		}
		if w.Submitting {
			return ErrSubmitInProgress
		}
		r, err := s.matcher.Match(ctx, w.StudentID, sample)
		if err != nil {
			return err
		}
		res = r
		since, ok := s.opts.Policy.Step(w.MatchStartedAt, w.StudentID, r, s.att.Now())
		w.MatchStartedAt = since
		if !ok {
			return nil
		}
		return s.submit(ctx, w)
	})
	return w, res, err
}

// Simulate stands in for the face check when no camera or enrollment is
// available.
func (s *Service) Simulate(ctx context.Context, id string, success bool) (*Wizard, error) {
	return s.update(ctx, id, func(w *Wizard) error {
		if w.State != StateBiometric {
			return w.invalid("simulate")
		}
		if !success {
			w.FailSubmit(VerificationMessage)
			return ErrVerification
		}
		return s.submit(ctx, w)
	})
}

// Proof returns the signed receipt of a finished wizard.
func (s *Service) Proof(ctx context.Context, id string) (attendance.Proof, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return attendance.Proof{}, err
	}
	if w.State != StateSuccess {
		return attendance.Proof{}, w.invalid("proof")
	}
	st, err := s.att.Student(ctx, w.StudentID)
	if err != nil {
		return attendance.Proof{}, err
	}
	sess, err := s.att.Session(ctx, w.SessionID)
	if err != nil {
		return attendance.Proof{}, err
	}
	p := attendance.NewProof(st, sess, w.SubmittedAt)
	p.Signature, err = auth.SignProof(s.opts.SigningKey, s.opts.Issuer, sess.ID, st.ID, sess.SessionCode, w.SubmittedAt)
	if err != nil {
		return attendance.Proof{}, fmt.Errorf("sign proof: %w", err)
	}
	return p, nil
}

// VerifyProof checks a proof signature issued by this service.
func (s *Service) VerifyProof(signature string) (auth.ProofClaims, error) {
	return auth.VerifyProof(signature, s.opts.SigningKey, s.opts.Issuer)
}

// submit runs the submission routine for a wizard on the biometric step. The
// Submitting flag is persisted first so a second instance sees it.
func (s *Service) submit(ctx context.Context, w *Wizard) error {
	if s.opts.EnforceProximity && w.Proximity.Checked && !w.Proximity.Within {
		w.Error = w.ProximityWarning
		return ErrTooFar
	}
	if err := w.BeginSubmit(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, w); err != nil {
		w.Submitting = false
		return err
	}

	if _, err := s.att.Load(ctx, w.SessionID); err != nil {
		w.FailSubmit(submitMessage(err))
		return err
	}
	st, err := s.att.Student(ctx, w.StudentID)
	if err != nil {
		w.FailSubmit(submitMessage(err))
		return err
	}
	_, rec, err := s.att.Submit(ctx, w.SessionID, st)
	if err != nil {
		w.FailSubmit(submitMessage(err))
		s.log.Warn("attendance submission failed", "wizard", w.ID, "session", w.SessionID, "err", err)
		return err
	}
	w.Complete(rec, s.att.Now())
	return nil
}

// update loads a wizard, applies fn under the wizard's lock and saves the
// result whether or not fn failed, so step errors stay visible to the client.
// The save outlives the request context: a client that disconnects during a
// submission must not leave the Submitting flag persisted.
func (s *Service) update(ctx context.Context, id string, fn func(w *Wizard) error) (*Wizard, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := w.State
	stepErr := fn(w)
	if errors.Is(stepErr, ErrInvalidTransition) {
		return w, stepErr
	}
	w.UpdatedAt = s.att.Now()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.repo.Save(saveCtx, w); err != nil {
		return nil, err
	}
	if w.State != before {
		metrics.WizardTransitions.WithLabelValues(string(w.State)).Inc()
		s.log.Debug("wizard transition", "wizard", w.ID, "from", before, "to", w.State)
	}
	return w, stepErr
}

func (s *Service) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

func submitMessage(err error) string {
	switch {
	case errors.Is(err, attendance.ErrSessionExpired):
		return "This session has expired."
	case errors.Is(err, attendance.ErrSessionEnded):
		return "This session has ended."
	}
	return "Could not record attendance. Please try again."
}
