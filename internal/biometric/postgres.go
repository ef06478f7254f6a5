package biometric

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS face_templates (
	id          UUID PRIMARY KEY,
	student_id  TEXT NOT NULL,
	descriptor  JSONB NOT NULL,
	image_url   TEXT NOT NULL DEFAULT '',
	quality     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_face_templates_student ON face_templates(student_id);
`

// PostgresRepository persists templates in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo over an open pgx-backed *sql.DB.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the templates table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create face_templates: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Add(ctx context.Context, tpl FaceTemplate) (FaceTemplate, error) {
	if len(tpl.Descriptor) == 0 {
		return FaceTemplate{}, ErrEmptyDescriptor
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	desc, err := json.Marshal(tpl.Descriptor)
	if err != nil {
		return FaceTemplate{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO face_templates (id, student_id, descriptor, image_url, quality, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tpl.ID, tpl.StudentID, string(desc), tpl.ImageURL, tpl.Quality, tpl.CreatedAt)
	if err != nil {
		return FaceTemplate{}, fmt.Errorf("insert face template: %w", err)
	}
	return tpl, nil
}

func (r *PostgresRepository) ForStudent(ctx context.Context, studentID string) ([]FaceTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, descriptor, image_url, quality, created_at
		FROM face_templates
		WHERE student_id = $1
		ORDER BY created_at
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FaceTemplate
	for rows.Next() {
		var (
			tpl  FaceTemplate
			desc []byte
		)
		if err := rows.Scan(&tpl.ID, &tpl.StudentID, &desc, &tpl.ImageURL, &tpl.Quality, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(desc, &tpl.Descriptor); err != nil {
			return nil, fmt.Errorf("decode descriptor %s: %w", tpl.ID, err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteStudent(ctx context.Context, studentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM face_templates WHERE student_id = $1`, studentID)
	return err
}
