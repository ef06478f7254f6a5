package biometric

import (
	"context"
	"errors"
	"fmt"

	"edutrack/internal/cloudinary"
	"edutrack/internal/faceclient"
)

// ErrUploadUnavailable is returned for image enrollment without image storage.
var ErrUploadUnavailable = errors.New("image storage not configured")

// Uploader stores reference images and returns their public URL.
type Uploader interface {
	UploadFace(ctx context.Context, studentID string, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// Embedder turns an image URL into a face descriptor.
type Embedder interface {
	EmbedWithScore(ctx context.Context, imageURL string) (*faceclient.EmbedResult, error)
}

// Enroller builds enrollment records from reference images or descriptors.
type Enroller struct {
	repo     Repository
	uploader Uploader
	embedder Embedder
}

// NewEnroller wires an enroller; uploader may be nil when images are not stored.
func NewEnroller(repo Repository, uploader Uploader, embedder Embedder) *Enroller {
	return &Enroller{repo: repo, uploader: uploader, embedder: embedder}
}

// EnrollImage uploads a reference photo, extracts its descriptor and stores
// the template.
func (e *Enroller) EnrollImage(ctx context.Context, studentID string, data []byte, filename string) (FaceTemplate, error) {
	if e.uploader == nil {
		return FaceTemplate{}, ErrUploadUnavailable
	}
	up, err := e.uploader.UploadFace(ctx, studentID, data, filename)
	if err != nil {
		return FaceTemplate{}, fmt.Errorf("upload reference image: %w", err)
	}
	emb, err := e.embedder.EmbedWithScore(ctx, up.SecureURL)
	if err != nil {
		return FaceTemplate{}, fmt.Errorf("extract descriptor: %w", err)
	}
	if err := e.checkLength(ctx, studentID, emb.Embedding); err != nil {
		return FaceTemplate{}, err
	}
	return e.repo.Add(ctx, FaceTemplate{
		StudentID:  studentID,
		Descriptor: emb.Embedding,
		ImageURL:   up.SecureURL,
		Quality:    emb.Score,
	})
}

// EnrollDescriptor stores a descriptor computed client-side.
func (e *Enroller) EnrollDescriptor(ctx context.Context, studentID string, descriptor []float32) (FaceTemplate, error) {
	if err := e.checkLength(ctx, studentID, descriptor); err != nil {
		return FaceTemplate{}, err
	}
	return e.repo.Add(ctx, FaceTemplate{StudentID: studentID, Descriptor: descriptor, Quality: 1})
}

// checkLength rejects a descriptor whose dimension differs from the student's
// existing templates.
func (e *Enroller) checkLength(ctx context.Context, studentID string, descriptor []float32) error {
	if len(descriptor) == 0 {
		return ErrEmptyDescriptor
	}
	existing, err := e.repo.ForStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	for _, tpl := range existing {
		if len(tpl.Descriptor) != len(descriptor) {
			return ErrDescriptorMismatch
		}
	}
	return nil
}

// Templates lists a student's enrollment.
func (e *Enroller) Templates(ctx context.Context, studentID string) ([]FaceTemplate, error) {
	return e.repo.ForStudent(ctx, studentID)
}

// Reset drops every template of a student.
func (e *Enroller) Reset(ctx context.Context, studentID string) error {
	return e.repo.DeleteStudent(ctx, studentID)
}
