package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"stencil/internal/console"
	"stencil/internal/models"
	"stencil/internal/pkg/logger"
	"stencil/internal/review"
)

// TemplateStore is the persistence surface the handlers need. Implemented
// by repositories.TemplateRepository.
type TemplateStore interface {
	Create(ctx context.Context, t *models.Template) error
	GetByName(ctx context.Context, name string) (*models.Template, error)
	ListAll(ctx context.Context) ([]models.Template, error)
	Update(ctx context.Context, t *models.Template) error
	DeleteByName(ctx context.Context, name string) error
}

// Entitlements annotates templates with per-org entitlement flags.
type Entitlements interface {
	Evaluate(ctx context.Context, templates []models.Template, orgID, userToken string) ([]models.Template, error)
}

// Installer creates developer-console projects from templates.
type Installer interface {
	CreateProject(ctx context.Context, userToken, orgID string, req console.ProjectRequest) (*console.Project, error)
}

// Reviews manages template review issues on the issue tracker.
type Reviews interface {
	CreateIssue(ctx context.Context, templateName, repoURL string) (*review.Issue, error)
	OpenIssue(ctx context.Context, templateName string) (*review.Issue, error)
}

type Deps struct {
	Store        TemplateStore
	Entitlements Entitlements
	Console      Installer
	Reviews      Reviews
	Pool         *pgxpool.Pool
	RDB          *redis.Client
	Log          *logger.Logger
}

type Handler struct {
	store        TemplateStore
	entitlements Entitlements
	console      Installer
	reviews      Reviews
	pool         *pgxpool.Pool
	rdb          *redis.Client
	log          *logger.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		store:        d.Store,
		entitlements: d.Entitlements,
		console:      d.Console,
		reviews:      d.Reviews,
		pool:         d.Pool,
		rdb:          d.RDB,
		log:          d.Log,
	}
}
