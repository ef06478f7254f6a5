package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"edutrack/internal/metrics"
	"edutrack/internal/model"
	"edutrack/internal/queue"
	"edutrack/internal/storeclient"
)

var (
	ErrInvalidCode     = errors.New("session code required")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has already ended")
	ErrSessionExpired  = errors.New("session has expired")
	ErrStudentNotFound = errors.New("student not found")
)

// MockScanCode is returned by the placeholder QR scanner.
const MockScanCode = "10333499"

const (
	codeMin          = 10000000
	codeSpan         = 90000000
	codeAttempts     = 5
	sessionIDPrefix  = "sess_"
	attendancePrefix = "/attend/"
)

// ValidationError lists field-level input problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// CreateSessionInput is the instructor form.
type CreateSessionInput struct {
	CourseName         string `json:"courseName" validate:"required"`
	CourseCode         string `json:"courseCode" validate:"required"`
	Date               string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime          string `json:"startTime" validate:"required,datetime=15:04"`
	ExpectedStudents   int    `json:"expectedStudents" validate:"required,min=1"`
	AttendanceDuration int    `json:"attendanceDuration" validate:"required,min=5,max=180"`
}

// Target is where a resolved code sends the student.
type Target struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
}

// View is what the attendance page needs once a session is loaded.
type View struct {
	Session          model.AttendanceSession `json:"session"`
	Roster           []model.Student         `json:"roster"`
	Deadline         time.Time               `json:"deadline"`
	RemainingSeconds int                     `json:"remainingSeconds"`
}

// Options tune a Service.
type Options struct {
	Location *time.Location
	Events   queue.Publisher
	Logger   *log.Logger
	Now      func() time.Time
	Rand     io.Reader
}

// Service implements the session lifecycle on top of the REST store.
type Service struct {
	store    storeclient.Store
	validate *validator.Validate
	loc      *time.Location
	events   queue.Publisher
	log      *log.Logger
	now      func() time.Time
	rand     io.Reader
	expiring singleflight.Group
}

// NewService creates a service backed by a store.
func NewService(store storeclient.Store, opts Options) *Service {
	s := &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		loc:      opts.Location,
		events:   opts.Events,
		log:      opts.Logger,
		now:      opts.Now,
		rand:     opts.Rand,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	return s
}

// Store exposes the underlying store for read-only collaborators.
func (s *Service) Store() storeclient.Store { return s.store }

// Location is the zone session windows are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now() }

// GenerateCode draws an 8-digit code uniformly from [10000000, 99999999].
func GenerateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// CreateSession validates the form, computes the window and stores a new
// active session. pos may be nil when the instructor location is unknown.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput, pos *Point) (model.AttendanceSession, error) {
	if err := s.validate.Struct(in); err != nil {
		return model.AttendanceSession{}, toValidationError(err)
	}
	timeEnd, err := EndTime(in.StartTime, in.AttendanceDuration)
	if err != nil {
		return model.AttendanceSession{}, err
	}
	code, err := s.uniqueCode(ctx)
	if err != nil {
		return model.AttendanceSession{}, err
	}

	sess := model.AttendanceSession{
		ID:              newSessionID(s.now()),
		CourseCode:      in.CourseCode,
		CourseName:      in.CourseName,
		Date:            in.Date,
		TimeStart:       in.StartTime,
		TimeEnd:         timeEnd,
		Duration:        float64(in.AttendanceDuration) / 60,
		TotalStudents:   in.ExpectedStudents,
		PresentStudents: 0,
		AbsentStudents:  in.ExpectedStudents,
		Students:        []model.SessionStudent{},
		SessionCode:     code,
		Status:          model.SessionActive,
	}
	if pos != nil {
		lat, lon := pos.Latitude, pos.Longitude
		sess.Latitude, sess.Longitude = &lat, &lon
	}

	created, err := s.store.CreateSession(ctx, sess)
	if err != nil {
		return model.AttendanceSession{}, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsCreated.Inc()
	s.log.Info("session created", "id", created.ID, "course", created.CourseCode, "code", created.SessionCode, "ends", created.TimeEnd)

	if deadline, err := Deadline(created, s.loc); err == nil {
		s.publish(ctx, queue.Message{Type: queue.SessionCreated, SessionID: created.ID, Deadline: deadline})
	}
	return created, nil
}

// newSessionID keeps the creation time for ordering and adds a random suffix so
// sessions created in the same millisecond do not collide.
func newSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return sessionIDPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// uniqueCode avoids handing out a code that an active session still uses.
func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	var code string
	for i := 0; i < codeAttempts; i++ {
		c, err := GenerateCode(s.rand)
		if err != nil {
			return "", err
		}
		code = c
		existing, err := s.store.ListSessions(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check session code: %w", err)
		}
		if !anyActive(existing, code) {
			return code, nil
		}
		s.log.Debug("session code collision, retrying", "code", code)
	}
	return code, nil
}

func anyActive(sessions []model.AttendanceSession, code string) bool {
	for _, s := range sessions {
		if s.SessionCode == code && s.Active() {
			return true
		}
	}
	return false
}

// ResolveCode maps a user-entered code to the attendance page of an active
// session. Matching is exact and case-sensitive.
func (s *Service) ResolveCode(ctx context.Context, code string) (Target, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		metrics.CodeResolutions.WithLabelValues("invalid").Inc()
		return Target{}, ErrInvalidCode
	}
	sessions, err := s.store.ListSessions(ctx, code)
	if err != nil {
		metrics.CodeResolutions.WithLabelValues("error").Inc()
		return Target{}, fmt.Errorf("lookup session code: %w", err)
	}
	// Codes are only unique among active sessions, so an ended session may
	// share one with a live session.
	var found *model.AttendanceSession
	for i := range sessions {
		if sessions[i].SessionCode != code {
			continue
		}
		if found == nil || (sessions[i].Active() && !found.Active()) {
			found = &sessions[i]
		}
	}
	switch {
	case found == nil:
		metrics.CodeResolutions.WithLabelValues("not_found").Inc()
		return Target{}, ErrSessionNotFound
	case !found.Active():
		metrics.CodeResolutions.WithLabelValues("ended").Inc()
		return Target{}, ErrSessionEnded
	}
	metrics.CodeResolutions.WithLabelValues("ok").Inc()
	return Target{SessionID: found.ID, Path: attendancePrefix + found.ID}, nil
}

// ResolveScan resolves a scanned QR payload: either a raw code or an
// attendance link. An empty payload stands in for the mocked scanner.
func (s *Service) ResolveScan(ctx context.Context, payload string) (Target, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return s.ResolveCode(ctx, MockScanCode)
	}
	if i := strings.Index(payload, attendancePrefix); i >= 0 {
		id := strings.Trim(payload[i+len(attendancePrefix):], "/")
		sess, err := s.getSession(ctx, id)
		if err != nil {
			return Target{}, err
		}
		if !sess.Active() {
			return Target{}, ErrSessionEnded
		}
		return Target{SessionID: sess.ID, Path: attendancePrefix + sess.ID}, nil
	}
	return s.ResolveCode(ctx, payload)
}

// Load fetches a session and the roster for the attendance page. An active
// session whose window has run out is ended on the way.
func (s *Service) Load(ctx context.Context, id string) (View, error) {
	sess, err := s.getSession(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !sess.Active() {
		return View{}, ErrSessionEnded
	}
	deadline, err := Deadline(sess, s.loc)
	if err != nil {
		return View{}, err
	}
	remaining := Remaining(deadline, s.now())
	if remaining == 0 {
		if _, err := s.Expire(ctx, sess.ID); err != nil && !errors.Is(err, ErrSessionEnded) {
			s.log.Error("failed to end expired session", "id", sess.ID, "err", err)
		}
		return View{}, ErrSessionExpired
	}
	roster, err := s.store.ListStudents(ctx)
	if err != nil {
		return View{}, fmt.Errorf("load roster: %w", err)
	}
	return View{Session: sess, Roster: roster, Deadline: deadline, RemainingSeconds: remaining}, nil
}

// Submit appends a present record for st and recomputes the counts. Repeated
// submissions for the same student are stored as separate records.
func (s *Service) Submit(ctx context.Context, sessionID string, st model.Student) (model.AttendanceSession, model.SessionStudent, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		metrics.Submissions.WithLabelValues("error").Inc()
		return model.AttendanceSession{}, model.SessionStudent{}, err
	}
	if !sess.Active() {
		metrics.Submissions.WithLabelValues("ended").Inc()
		return model.AttendanceSession{}, model.SessionStudent{}, ErrSessionEnded
	}

	rec := model.SessionStudent{
		ID:           st.ID,
		Name:         st.Name,
		MatricNumber: st.MatriculationNumber,
		TimeJoined:   s.now().In(s.loc).Format(clockLayout),
		Status:       model.Present,
	}
	students := make([]model.SessionStudent, 0, len(sess.Students)+1)
	students = append(students, sess.Students...)
	students = append(students, rec)
	present, absent := Tally(sess.TotalStudents, students)

	updated, err := s.store.PatchSession(ctx, sess.ID, model.SessionPatch{
		Students:        students,
		PresentStudents: &present,
		AbsentStudents:  &absent,
	})
	if err != nil {
		metrics.Submissions.WithLabelValues("error").Inc()
		return model.AttendanceSession{}, model.SessionStudent{}, fmt.Errorf("submit attendance: %w", err)
	}
	metrics.Submissions.WithLabelValues("ok").Inc()
	s.log.Info("attendance recorded", "session", sess.ID, "student", st.ID, "present", present, "absent", absent)
	s.publish(ctx, queue.Message{Type: queue.AttendanceRecorded, SessionID: sess.ID})
	return updated, rec, nil
}

// End marks a session ended on instructor request. Ending twice writes the
// same terminal value again.
func (s *Service) End(ctx context.Context, id string) (model.AttendanceSession, error) {
	if _, err := s.getSession(ctx, id); err != nil {
		return model.AttendanceSession{}, err
	}
	updated, err := s.markEnded(ctx, id)
	if err != nil {
		return model.AttendanceSession{}, err
	}
	metrics.SessionsEnded.WithLabelValues("manual").Inc()
	s.log.Info("session ended", "id", id, "trigger", "manual")
	return updated, nil
}

// Expire ends an active session whose window has run out. It reports whether
// this call performed the transition; an already ended session yields
// ErrSessionEnded and no write. Concurrent calls for one id share one store
// round trip.
func (s *Service) Expire(ctx context.Context, id string) (bool, error) {
	v, err, _ := s.expiring.Do(id, func() (any, error) {
		sess, err := s.getSession(ctx, id)
		if err != nil {
			return false, err
		}
		if !sess.Active() {
			return false, ErrSessionEnded
		}
		if _, err := s.markEnded(ctx, id); err != nil {
			return false, err
		}
		metrics.SessionsEnded.WithLabelValues("expiry").Inc()
		s.log.Info("session ended", "id", id, "trigger", "expiry")
		return true, nil
	})
	ended, _ := v.(bool)
	return ended, err
}

// ExpireDue ends every active session whose deadline has passed and returns
// the ids it ended.
func (s *Service) ExpireDue(ctx context.Context) ([]string, error) {
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.now()
	var ended []string
	for _, sess := range sessions {
		if !sess.Active() {
			continue
		}
		deadline, err := Deadline(sess, s.loc)
		if err != nil {
			s.log.Warn("skipping session with unreadable window", "id", sess.ID, "err", err)
			continue
		}
		if Remaining(deadline, now) > 0 {
			continue
		}
		ok, err := s.Expire(ctx, sess.ID)
		if err != nil && !errors.Is(err, ErrSessionEnded) {
			s.log.Error("failed to expire session", "id", sess.ID, "err", err)
			continue
		}
		if ok {
			ended = append(ended, sess.ID)
		}
	}
	return ended, nil
}

// Active returns the first active session, or nil when none runs.
func (s *Service) Active(ctx context.Context) (*model.AttendanceSession, error) {
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for i := range sessions {
		if sessions[i].Active() {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// History returns all sessions newest first.
func (s *Service) History(ctx context.Context) ([]model.AttendanceSession, error) {
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	SortHistory(sessions)
	return sessions, nil
}

// Students returns one page of the roster filtered by q.
func (s *Service) Students(ctx context.Context, q string, page int) (Page[model.Student], error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return Page[model.Student]{}, fmt.Errorf("list students: %w", err)
	}
	return Paginate(FilterStudents(students, q), page, PageSize), nil
}

// Session returns a session by id.
func (s *Service) Session(ctx context.Context, id string) (model.AttendanceSession, error) {
	return s.getSession(ctx, id)
}

// Student returns a roster entry by id.
func (s *Service) Student(ctx context.Context, id string) (model.Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	if errors.Is(err, storeclient.ErrNotFound) {
		return model.Student{}, ErrStudentNotFound
	}
	return st, err
}

func (s *Service) getSession(ctx context.Context, id string) (model.AttendanceSession, error) {
	if id == "" {
		return model.AttendanceSession{}, ErrSessionNotFound
	}
	sess, err := s.store.GetSession(ctx, id)
	if errors.Is(err, storeclient.ErrNotFound) {
		return model.AttendanceSession{}, ErrSessionNotFound
	}
	if err != nil {
		return model.AttendanceSession{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Service) markEnded(ctx context.Context, id string) (model.AttendanceSession, error) {
	ended := model.SessionEnded
	updated, err := s.store.PatchSession(ctx, id, model.SessionPatch{Status: &ended})
	if err != nil {
		return model.AttendanceSession{}, fmt.Errorf("end session: %w", err)
	}
	s.publish(ctx, queue.Message{Type: queue.SessionEnded, SessionID: id})
	return updated, nil
}

func (s *Service) publish(ctx context.Context, msg queue.Message) {
	if s.events == nil {
		return
	}
	if msg.At.IsZero() {
		msg.At = s.now().UTC()
	}
	if err := s.events.Publish(ctx, msg); err != nil {
		s.log.Warn("event publish failed", "type", msg.Type, "session", msg.SessionID, "err", err)
	}
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonName(fe.Field())] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must match " + fe.Param()
	}
	return "is invalid"
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
