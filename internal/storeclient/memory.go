package storeclient

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"edutrack/internal/model"
)

// Memory is an in-process Store for dev and tests. It mimics the REST store:
// ids are assigned on create when missing and PATCH merges set fields.
type Memory struct {
	mu       sync.Mutex
	students []model.Student
	sessions []model.AttendanceSession
}

// NewMemory creates an empty store seeded with the given students.
func NewMemory(students ...model.Student) *Memory {
	m := &Memory{}
	for _, s := range students {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		m.students = append(m.students, s)
	}
	return m
}

func (m *Memory) ListStudents(ctx context.Context) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Student, len(m.students))
	copy(out, m.students)
	return out, nil
}

func (m *Memory) GetStudent(ctx context.Context, id string) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Student{}, ErrNotFound
}

func (m *Memory) CreateStudent(ctx context.Context, s model.Student) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.NewString()
	m.students = append(m.students, s)
	return s, nil
}

func (m *Memory) UpdateStudent(ctx context.Context, id string, s model.Student) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.students {
		if m.students[i].ID == id {
			s.ID = id
			m.students[i] = s
			return s, nil
		}
	}
	return model.Student{}, ErrNotFound
}

func (m *Memory) DeleteStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.students {
		if m.students[i].ID == id {
			m.students = append(m.students[:i], m.students[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ListSessions(ctx context.Context, sessionCode string) ([]model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AttendanceSession{}
	for _, s := range m.sessions {
		if sessionCode != "" && s.SessionCode != sessionCode {
			continue
		}
		out = append(out, cloneSession(s))
	}
	return out, nil
}

func (m *Memory) CreateSession(ctx context.Context, s model.AttendanceSession) (model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Students == nil {
		s.Students = []model.SessionStudent{}
	}
	m.sessions = append(m.sessions, cloneSession(s))
	return s, nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return cloneSession(s), nil
		}
	}
	return model.AttendanceSession{}, ErrNotFound
}

func (m *Memory) PatchSession(ctx context.Context, id string, patch model.SessionPatch) (model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			patch.Apply(&m.sessions[i])
			m.sessions[i] = cloneSession(m.sessions[i])
			return cloneSession(m.sessions[i]), nil
		}
	}
	return model.AttendanceSession{}, ErrNotFound
}

func cloneSession(s model.AttendanceSession) model.AttendanceSession {
	students := make([]model.SessionStudent, len(s.Students))
	copy(students, s.Students)
	s.Students = students
	return s
}
