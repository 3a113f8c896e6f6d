package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stencil/internal/httpkit"
	"stencil/internal/models"
)

var ErrTemplateNotFound = errors.New("template not found")
var ErrTemplateNameExists = errors.New("template name already exists")

// TemplateRepository persists template records as jsonb documents:
//
//	CREATE TABLE templates (
//	    id         text PRIMARY KEY,
//	    name       text NOT NULL UNIQUE,
//	    doc        jsonb NOT NULL,
//	    created_at timestamptz NOT NULL DEFAULT now(),
//	    updated_at timestamptz NOT NULL DEFAULT now(),
//	    deleted_at timestamptz
//	);
//
// The registry never queries inside doc: the list endpoint fetches every
// live record and filters in memory.
type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO templates (id, name, doc)
		VALUES ($1,$2,$3::jsonb)
		RETURNING created_at, updated_at
	`, t.ID, t.Name, doc).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrTemplateNameExists
		}
		return err
	}
	return nil
}

// ListAll returns every live record; filtering and sorting happen in the
// caller.
func (r *TemplateRepository) ListAll(ctx context.Context) ([]models.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT doc, created_at, updated_at
		FROM templates
		WHERE deleted_at IS NULL
		ORDER BY created_at
	`)
	if err != nil {
		if httpkit.IsUndefinedTable(err) {
			return nil, errors.New("templates table does not exist, run migrations first")
		}
		return nil, err
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var (
			doc                  []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&doc, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		var t models.Template
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, err
		}
		t.CreatedAt = createdAt
		t.UpdatedAt = updatedAt
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepository) GetByName(ctx context.Context, name string) (*models.Template, error) {
	var (
		doc                  []byte
		createdAt, updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT doc, created_at, updated_at
		FROM templates
		WHERE name=$1 AND deleted_at IS NULL
	`, name).Scan(&doc, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	var t models.Template
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, err
	}
	t.CreatedAt = createdAt
	t.UpdatedAt = updatedAt
	return &t, nil
}

// Update replaces the stored document under the record's existing id and
// name. Callers merge fields before calling; id and name never change.
func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET doc=$2::jsonb, updated_at=now()
		WHERE id=$1 AND deleted_at IS NULL
	`, t.ID, doc)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) DeleteByName(ctx context.Context, name string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET deleted_at=now()
		WHERE name=$1 AND deleted_at IS NULL
	`, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) DeleteByID(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET deleted_at=now()
		WHERE id=$1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
