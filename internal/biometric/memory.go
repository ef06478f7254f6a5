package biometric

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps templates in process; used in dev and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	templates map[string][]FaceTemplate
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{templates: make(map[string][]FaceTemplate)}
}

func (r *MemoryRepository) Add(ctx context.Context, tpl FaceTemplate) (FaceTemplate, error) {
	if len(tpl.Descriptor) == 0 {
		return FaceTemplate{}, ErrEmptyDescriptor
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	tpl.Descriptor = append([]float32(nil), tpl.Descriptor...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tpl.StudentID] = append(r.templates[tpl.StudentID], tpl)
	return tpl, nil
}

func (r *MemoryRepository) ForStudent(ctx context.Context, studentID string) ([]FaceTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FaceTemplate, len(r.templates[studentID]))
	copy(out, r.templates[studentID])
	return out, nil
}

func (r *MemoryRepository) DeleteStudent(ctx context.Context, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, studentID)
	return nil
}
