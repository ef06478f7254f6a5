// Package storeclient talks to the external REST store that owns students and
// attendance sessions.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edutrack/internal/model"
)

var (
	// ErrNotFound is returned when the store answers 404.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable wraps transport failures reaching the store.
	ErrUnavailable = errors.New("store: unavailable")
)

// StatusError carries a non-2xx store response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store: %s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// Store is the set of operations the application performs against the store.
type Store interface {
	ListStudents(ctx context.Context) ([]model.Student, error)
	GetStudent(ctx context.Context, id string) (model.Student, error)
	CreateStudent(ctx context.Context, s model.Student) (model.Student, error)
	UpdateStudent(ctx context.Context, id string, s model.Student) (model.Student, error)
	DeleteStudent(ctx context.Context, id string) error

	ListSessions(ctx context.Context, sessionCode string) ([]model.AttendanceSession, error)
	CreateSession(ctx context.Context, s model.AttendanceSession) (model.AttendanceSession, error)
	GetSession(ctx context.Context, id string) (model.AttendanceSession, error)
	PatchSession(ctx context.Context, id string, patch model.SessionPatch) (model.AttendanceSession, error)
}

// HTTP implements Store over the REST collaborator.
type HTTP struct {
	BaseURL string
	Client  *http.Client
}

// New creates a client; timeout bounds every request.
func New(baseURL string, timeout time.Duration) *HTTP {
	if baseURL == "" {
		baseURL = "http://localhost:4000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTP) ListStudents(ctx context.Context) ([]model.Student, error) {
	var out []model.Student
	if err := c.do(ctx, http.MethodGet, "/students", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) GetStudent(ctx context.Context, id string) (model.Student, error) {
	var out model.Student
	err := c.do(ctx, http.MethodGet, "/students/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *HTTP) CreateStudent(ctx context.Context, s model.Student) (model.Student, error) {
	s.ID = ""
	var out model.Student
	err := c.do(ctx, http.MethodPost, "/students", s, &out)
	return out, err
}

func (c *HTTP) UpdateStudent(ctx context.Context, id string, s model.Student) (model.Student, error) {
	s.ID = id
	var out model.Student
	err := c.do(ctx, http.MethodPut, "/students/"+url.PathEscape(id), s, &out)
	return out, err
}

func (c *HTTP) DeleteStudent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/students/"+url.PathEscape(id), nil, nil)
}

// ListSessions lists sessions, filtered by sessionCode when non-empty.
func (c *HTTP) ListSessions(ctx context.Context, sessionCode string) ([]model.AttendanceSession, error) {
	path := "/sessions"
	if sessionCode != "" {
		path += "?" + url.Values{"sessionCode": {sessionCode}}.Encode()
	}
	var out []model.AttendanceSession
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) CreateSession(ctx context.Context, s model.AttendanceSession) (model.AttendanceSession, error) {
	var out model.AttendanceSession
	err := c.do(ctx, http.MethodPost, "/sessions", s, &out)
	return out, err
}

func (c *HTTP) GetSession(ctx context.Context, id string) (model.AttendanceSession, error) {
	var out model.AttendanceSession
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *HTTP) PatchSession(ctx context.Context, id string, patch model.SessionPatch) (model.AttendanceSession, error) {
	var out model.AttendanceSession
	err := c.do(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("store: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("store: decode %s %s: %w", method, path, err)
	}
	return nil
}
