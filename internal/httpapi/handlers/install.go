package handlers

import (
	"errors"
	"net/http"
	"strings"

	"stencil/internal/console"
	"stencil/internal/httpkit"
	"stencil/internal/ims"
	"stencil/internal/models"
	"stencil/internal/pkg/middleware"
	"stencil/internal/repositories"
)

type InstallTemplateRequest struct {
	ProjectName string `json:"projectName,omitempty"`
	Description string `json:"description,omitempty"`
}

// InstallTemplate creates a developer-console project from a template,
// wired with the template's credentials and required APIs, on behalf of
// the calling user.
func (h *Handler) InstallTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := templateName(r)
	log := h.log.FromContext(ctx)

	orgID := strings.TrimSpace(r.Header.Get(OrgIDHeader))
	if orgID == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "x-org-id header is required", map[string]any{"field": OrgIDHeader})
		return
	}

	var req InstallTemplateRequest
	if r.ContentLength > 0 {
		if err := httpkit.DecodeJSON(r, &req); err != nil {
			httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
			return
		}
	}

	t, err := h.store.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrTemplateNotFound) {
			httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", "template not found", map[string]any{"name": name})
			return
		}
		log.LogError(ctx, "template fetch failed", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db query failed", nil)
		return
	}

	// Only approved templates are installable.
	if t.Status != models.StatusApproved {
		httpkit.WriteErr(w, 409, "TEMPLATE_NOT_APPROVED", "template has not been approved", map[string]any{"status": t.Status})
		return
	}

	projectName := strings.TrimSpace(req.ProjectName)
	if projectName == "" {
		projectName = t.Name
	}

	project, err := h.console.CreateProject(ctx, ims.TokenFromContext(ctx), orgID, console.ProjectRequest{
		Name:        projectName,
		Title:       t.Name,
		Description: req.Description,
		Credentials: t.Credentials,
		APIs:        t.APIs,
	})
	if err != nil {
		middleware.HandleError(w, r, h.log, err)
		return
	}

	log.Info("template installed", "template", t.Name, "org_id", orgID, "project_id", project.ID)
	httpkit.WriteJSON(w, 201, map[string]any{"project": project})
}
