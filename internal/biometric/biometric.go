// Package biometric holds face enrollment records and the matching capability
// the attendance wizard depends on.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotEnrolled        = errors.New("student has no enrolled face templates")
	ErrDescriptorMismatch = errors.New("descriptor length does not match template")
	ErrEmptyDescriptor    = errors.New("descriptor required")
)

// UnknownLabel is reported for faces that match no enrolled template.
const UnknownLabel = "unknown"

// FaceTemplate is one enrolled reference descriptor for a student.
type FaceTemplate struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"studentId"`
	Descriptor []float32 `json:"descriptor"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	Quality    float64   `json:"quality"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository stores enrollment records, StudentID → []FaceTemplate.
type Repository interface {
	Add(ctx context.Context, tpl FaceTemplate) (FaceTemplate, error)
	ForStudent(ctx context.Context, studentID string) ([]FaceTemplate, error)
	DeleteStudent(ctx context.Context, studentID string) error
}

// Sample is one detection taken from the live camera feed.
type Sample struct {
	Descriptor []float32 `json:"descriptor"`
	Confidence float64   `json:"confidence"`
}

// Result is the best match of a sample against a student's templates.
type Result struct {
	Label      string  `json:"label"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Matcher labels live samples for a target student.
type Matcher interface {
	Match(ctx context.Context, studentID string, s Sample) (Result, error)
}

// DescriptorMatcher compares descriptors by Euclidean distance, labelling a
// sample with the student id when the closest template lies within MaxDistance.
type DescriptorMatcher struct {
	Repo        Repository
	MaxDistance float64
}

// NewDescriptorMatcher creates a matcher; maxDistance <= 0 uses 0.6.
func NewDescriptorMatcher(repo Repository, maxDistance float64) *DescriptorMatcher {
	if maxDistance <= 0 {
		maxDistance = 0.6
	}
	return &DescriptorMatcher{Repo: repo, MaxDistance: maxDistance}
}

func (m *DescriptorMatcher) Match(ctx context.Context, studentID string, s Sample) (Result, error) {
	if len(s.Descriptor) == 0 {
		return Result{}, ErrEmptyDescriptor
	}
	templates, err := m.Repo.ForStudent(ctx, studentID)
	if err != nil {
		return Result{}, fmt.Errorf("load templates: %w", err)
	}
	if len(templates) == 0 {
		return Result{}, ErrNotEnrolled
	}

	// Templates from another descriptor model are skipped; only a student with
	// no comparable template is a mismatch.
	best := math.Inf(1)
	compared := 0
	for _, tpl := range templates {
		d, err := Euclidean(tpl.Descriptor, s.Descriptor)
		if errors.Is(err, ErrDescriptorMismatch) {
			continue
		}
		if err != nil {
			return Result{}, err
		}
		compared++
		if d < best {
			best = d
		}
	}
	if compared == 0 {
		return Result{}, ErrDescriptorMismatch
	}
	res := Result{Label: UnknownLabel, Distance: best, Confidence: s.Confidence}
	if best <= m.MaxDistance {
		res.Label = studentID
	}
	return res, nil
}

// Euclidean is the L2 distance between two descriptors of equal length.
func Euclidean(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDescriptorMismatch
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Policy decides when a run of matches is long enough to accept.
type Policy struct {
	MinConfidence float64
	Sustain       time.Duration
}

// DefaultPolicy requires confidence above 0.4 held for more than two seconds.
var DefaultPolicy = Policy{MinConfidence: 0.4, Sustain: 2 * time.Second}

// Step advances a match run. since is the start of the current run (zero when
// no run is in progress). It returns the new run start and whether the run has
// been held long enough. Any miss resets the run.
func (p Policy) Step(since time.Time, target string, r Result, now time.Time) (time.Time, bool) {
	if r.Label != target || r.Confidence <= p.MinConfidence {
		return time.Time{}, false
	}
	if since.IsZero() {
		return now, false
	}
	if now.Sub(since) > p.Sustain {
		return time.Time{}, true
	}
	return since, false
}
