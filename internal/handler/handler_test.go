package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/biometric"
	"edutrack/internal/dashboard"
	"edutrack/internal/faceclient"
	"edutrack/internal/model"
	"edutrack/internal/storeclient"
	"edutrack/internal/wizard"
)

const (
	signingKey = "handler-test-key"
	issuer     = "edutrack"
)

type testEnv struct {
	router *gin.Engine
	store  *storeclient.Memory
	att    *attendance.Service
	dash   *dashboard.Poller
	now    time.Time
}

func newEnv(t *testing.T, guard gin.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{now: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)}

	store := storeclient.NewMemory(
		model.Student{ID: "st_ada", Name: "Ada Obi", MatriculationNumber: "CSC/2021/123", Department: "Computer Science"},
		model.Student{ID: "st_ben", Name: "Ben Eze", MatriculationNumber: "MTH/2021/456", Department: "Mathematics"},
	)
	att := attendance.NewService(store, attendance.Options{Location: time.UTC, Now: func() time.Time { return env.now }})
	faces := biometric.NewMemoryRepository()
	wiz := wizard.NewService(att, wizard.NewMemoryRepository(time.Hour), biometric.NewDescriptorMatcher(faces, 0.6), wizard.Options{
		SigningKey: signingKey,
		Issuer:     issuer,
	})
	enroll := biometric.NewEnroller(faces, nil, faceclient.New("", true))
	dash := dashboard.NewPoller(att, time.Hour, nil)

	h := New(att, wiz, enroll, dash, "https://attend.example.edu", nil)
	r := NewRouter(h, RouterConfig{
		Instructor: guard,
		Health: map[string]func(*gin.Context) bool{
			"store": func(*gin.Context) bool { return true },
		},
	})
	env.router, env.store, env.att, env.dash = r, store, att, dash
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) createSession(t *testing.T) model.AttendanceSession {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/sessions", gin.H{
		"courseName": "Computer Science", "courseCode": "CSC 101", "date": "2026-10-15",
		"startTime": "09:00", "expectedStudents": 50, "attendanceDuration": 60,
		"latitude": 6.5244, "longitude": 3.3792,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[struct {
		Session model.AttendanceSession `json:"session"`
	}](t, w).Session
}

func TestCreateSession(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(t, http.MethodPost, "/v1/sessions", gin.H{
		"courseName": "Computer Science", "courseCode": "CSC 101", "date": "2026-10-15",
		"startTime": "09:00", "expectedStudents": 50, "attendanceDuration": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Session model.AttendanceSession `json:"session"`
		Link    string                  `json:"link"`
		QR      string                  `json:"qr"`
	}](t, w)
	assert.Equal(t, "10:00", resp.Session.TimeEnd)
	assert.Equal(t, 50, resp.Session.TotalStudents)
	assert.Equal(t, 50, resp.Session.AbsentStudents)
	assert.Equal(t, 0, resp.Session.PresentStudents)
	assert.Len(t, resp.Session.SessionCode, 8)
	assert.Nil(t, resp.Session.Latitude)
	assert.Equal(t, "https://attend.example.edu/attend/"+resp.Session.ID, resp.Link)

	t.Run("QR", func(t *testing.T) {
		w := env.do(t, http.MethodGet, resp.QR, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
	})

	t.Run("Validation", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/sessions", gin.H{
			"courseName": "Computer Science", "date": "15/10/2026",
			"startTime": "09:00", "expectedStudents": 50, "attendanceDuration": 200,
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decode[struct {
			Fields map[string]string `json:"fields"`
		}](t, w)
		assert.Contains(t, body.Fields, "courseCode")
		assert.Contains(t, body.Fields, "date")
		assert.Contains(t, body.Fields, "attendanceDuration")
	})

	t.Run("History", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/sessions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Sessions []model.AttendanceSession `json:"sessions"`
		}](t, w)
		assert.Len(t, body.Sessions, 1)
	})
}

func TestJoin(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()
	mocked, err := env.store.CreateSession(ctx, model.AttendanceSession{
		ID: "sess_mock", Date: "2026-10-15", TimeStart: "09:00", TimeEnd: "10:00",
		TotalStudents: 10, AbsentStudents: 10, SessionCode: attendance.MockScanCode, Status: model.SessionActive,
	})
	require.NoError(t, err)
	_, err = env.store.CreateSession(ctx, model.AttendanceSession{
		ID: "sess_old", Date: "2026-10-14", TimeStart: "09:00", TimeEnd: "10:00",
		SessionCode: "55555555", Status: model.SessionEnded,
	})
	require.NoError(t, err)

	cases := []struct {
		name string
		code string
		want int
	}{
		{"Active", attendance.MockScanCode, http.StatusOK},
		{"Ended", "55555555", http.StatusGone},
		{"Unknown", "12345678", http.StatusNotFound},
		{"Prefix Is Not A Match", "1033349", http.StatusNotFound},
		{"Empty", "  ", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/join", gin.H{"code": tc.code})
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	t.Run("Scan Placeholder", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/join/scan", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		target := decode[attendance.Target](t, w)
		assert.Equal(t, "/attend/"+mocked.ID, target.Path)
	})

	t.Run("Scan Link", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/join/scan", gin.H{"payload": "https://attend.example.edu/attend/sess_mock"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "sess_mock", decode[attendance.Target](t, w).SessionID)
	})
}

func TestWizardFlow(t *testing.T) {
	env := newEnv(t, nil)
	sess := env.createSession(t)

	w := env.do(t, http.MethodGet, "/v1/attend/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Roster           []model.Student `json:"roster"`
		RemainingSeconds int             `json:"remainingSeconds"`
	}](t, w)
	assert.Len(t, page.Roster, 2)
	assert.Equal(t, 1800, page.RemainingSeconds)

	w = env.do(t, http.MethodPost, "/v1/attend/"+sess.ID+"/wizards", gin.H{"latitude": 6.5245, "longitude": 3.3792})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wz := decode[wizard.Wizard](t, w)
	assert.Equal(t, wizard.StateSelect, wz.State)
	assert.True(t, wz.Proximity.Checked)
	assert.True(t, wz.Proximity.NearVenue)

	base := "/v1/wizards/" + wz.ID
	w = env.do(t, http.MethodPost, base+"/verify", gin.H{"digits": "123"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "verify before select")

	w = env.do(t, http.MethodPost, base+"/select", gin.H{"studentId": "st_ada"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, base+"/verify", gin.H{"digits": "124"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	failed := decode[struct {
		Error  string        `json:"error"`
		Wizard wizard.Wizard `json:"wizard"`
	}](t, w)
	assert.Equal(t, wizard.DigitsMismatchMessage, failed.Error)
	assert.Equal(t, wizard.StateVerify, failed.Wizard.State)

	w = env.do(t, http.MethodPost, base+"/verify", gin.H{"digits": "123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, wizard.StateBiometric, decode[wizard.Wizard](t, w).State)

	w = env.do(t, http.MethodPost, base+"/biometric/sample", gin.H{"descriptor": []float32{0.1, 0.2}, "confidence": 0.9})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "no enrollment")

	w = env.do(t, http.MethodPost, base+"/proof", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "proof is GET only")

	w = env.do(t, http.MethodPost, base+"/biometric/simulate", gin.H{"success": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[wizard.Wizard](t, w)
	assert.Equal(t, wizard.StateSuccess, done.State)
	assert.Equal(t, "09:30", done.Record.TimeJoined)

	stored, err := env.att.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PresentStudents)
	assert.Equal(t, 49, stored.AbsentStudents)

	w = env.do(t, http.MethodGet, base+"/proof", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="attendance-proof-`+sess.SessionCode+`-CSC/2021/123.json"`, w.Header().Get("Content-Disposition"))
	proof := decode[attendance.Proof](t, w)
	assert.Equal(t, "verified", proof.Status)
	assert.Equal(t, "st_ada", proof.Student.ID)

	w = env.do(t, http.MethodPost, "/v1/proofs/verify", gin.H{"signature": proof.Signature})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	w = env.do(t, http.MethodPost, "/v1/proofs/verify", gin.H{"signature": proof.Signature + "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
}

func TestSustainedMatchOverHTTP(t *testing.T) {
	env := newEnv(t, nil)
	sess := env.createSession(t)

	desc := []float32{0.11, 0.22, 0.33, 0.44}
	w := env.do(t, http.MethodPost, "/v1/students/st_ada/enrollments", gin.H{"descriptor": desc})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/students/st_ada/enrollments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"studentId":"st_ada"`)

	w = env.do(t, http.MethodPost, "/v1/students/st_ada/enrollments", gin.H{"descriptor": []float32{0.1, 0.2, 0.3}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "descriptor length differs from enrollment")

	w = env.do(t, http.MethodPost, "/v1/attend/"+sess.ID+"/wizards", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	base := "/v1/wizards/" + decode[wizard.Wizard](t, w).ID
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/select", gin.H{"studentId": "st_ada"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/verify", gin.H{"digits": "123"}).Code)

	w = env.do(t, http.MethodPost, base+"/biometric/sample", gin.H{"descriptor": desc, "confidence": 0.95})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[struct {
		Wizard wizard.Wizard    `json:"wizard"`
		Match  biometric.Result `json:"match"`
	}](t, w)
	assert.Equal(t, "st_ada", first.Match.Label)
	assert.Equal(t, wizard.StateBiometric, first.Wizard.State)

	env.now = env.now.Add(time.Second)
	w = env.do(t, http.MethodPost, base+"/biometric/sample", gin.H{"descriptor": desc, "confidence": 0.95})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"state":"biometric"`)

	env.now = env.now.Add(1100 * time.Millisecond)
	w = env.do(t, http.MethodPost, base+"/biometric/sample", gin.H{"descriptor": desc, "confidence": 0.95})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"state":"success"`)

	stored, err := env.att.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Students, 1)
	assert.Equal(t, "st_ada", stored.Students[0].ID)
}

func TestAttendExpiredSession(t *testing.T) {
	env := newEnv(t, nil)
	_, err := env.store.CreateSession(context.Background(), model.AttendanceSession{
		ID: "sess_early", Date: "2026-10-15", TimeStart: "07:00", TimeEnd: "08:00",
		TotalStudents: 5, AbsentStudents: 5, SessionCode: "22222222", Status: model.SessionActive,
	})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/attend/sess_early", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "This session has expired.")

	stored, err := env.att.Session(context.Background(), "sess_early")
	require.NoError(t, err)
	assert.Equal(t, model.SessionEnded, stored.Status)

	w = env.do(t, http.MethodGet, "/v1/attend/sess_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndSessionAndDashboard(t *testing.T) {
	env := newEnv(t, nil)
	sess := env.createSession(t)

	w := env.do(t, http.MethodGet, "/v1/dashboard?page=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[struct {
		Session          *model.AttendanceSession `json:"session"`
		RemainingSeconds int                      `json:"remainingSeconds"`
		Rate             int                      `json:"rate"`
		CheckIns         struct {
			Total int `json:"total"`
		} `json:"checkIns"`
	}](t, w)
	require.NotNil(t, view.Session)
	assert.Equal(t, sess.ID, view.Session.ID)
	assert.Equal(t, 1800, view.RemainingSeconds)
	assert.Equal(t, 0, view.CheckIns.Total)

	w = env.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.SessionEnded, decode[model.AttendanceSession](t, w).Status)

	w = env.do(t, http.MethodPost, "/v1/join", gin.H{"code": sess.SessionCode})
	assert.Equal(t, http.StatusGone, w.Code)

	_, err := env.dash.Refresh(context.Background())
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session":null`)
}

func TestDashboardStream(t *testing.T) {
	env := newEnv(t, nil)
	env.createSession(t)

	// a subscriber that arrives after a poll receives the latest snapshot
	_, err := env.dash.Refresh(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	sc := bufio.NewScanner(strings.NewReader(w.Body.String()))
	var events []string
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "event:") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}
	assert.Contains(t, events, "snapshot")
}

func TestStudentsPage(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(t, http.MethodGet, "/v1/students?q=math", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[attendance.Page[model.Student]](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "st_ben", page.Items[0].ID)

	w = env.do(t, http.MethodPost, "/v1/students/st_nobody/enrollments", gin.H{"descriptor": []float32{1}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInstructorGuard(t *testing.T) {
	env := newEnv(t, auth.RequireInstructor(signingKey, issuer))

	w := env.do(t, http.MethodGet, "/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := auth.Issue("lecturer", issuer, signingKey, time.Hour)
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/v1/sessions", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/v1/join", gin.H{"code": "12345678"})
	assert.Equal(t, http.StatusNotFound, w.Code, "student routes stay open")
}

func TestHealthz(t *testing.T) {
	env := newEnv(t, nil)
	w := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":true`)
}
