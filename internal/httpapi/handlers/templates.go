package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stencil/internal/httpapi/util"
	"stencil/internal/httpkit"
	"stencil/internal/ims"
	"stencil/internal/models"
	"stencil/internal/pkg/middleware"
	"stencil/internal/query"
	"stencil/internal/repositories"
)

// OrgIDHeader carries the caller's organization id for entitlement checks.
const OrgIDHeader = "x-org-id"

type link struct {
	Href string `json:"href"`
}

type templateLinks struct {
	Self   link  `json:"self"`
	Review *link `json:"review,omitempty"`
}

type templateEnvelope struct {
	models.Template
	Links templateLinks `json:"_links"`
}

type listLinks struct {
	Self link `json:"self"`
}

type listEnvelope struct {
	Items []models.Template `json:"items"`
	Links listLinks         `json:"_links"`
}

type CreateTemplateRequest struct {
	Name               string               `json:"name"`
	Description        string               `json:"description,omitempty"`
	Author             string               `json:"author,omitempty"`
	Latest             string               `json:"latest,omitempty"`
	PublishDate        string               `json:"publishDate,omitempty"`
	Links              *models.Links        `json:"links,omitempty"`
	Categories         []string             `json:"categories,omitempty"`
	Keywords           []string             `json:"keywords,omitempty"`
	APIs               []models.TemplateAPI `json:"apis,omitempty"`
	Extensions         []models.Extension   `json:"extensions,omitempty"`
	Credentials        []models.Credential  `json:"credentials,omitempty"`
	Runtime            *bool                `json:"runtime,omitempty"`
	Events             json.RawMessage      `json:"events,omitempty"`
	RequestAccessAppID string               `json:"requestAccessAppId,omitempty"`
}

type UpdateTemplateRequest struct {
	Status             *models.TemplateStatus `json:"status,omitempty"`
	Description        *string                `json:"description,omitempty"`
	Author             *string                `json:"author,omitempty"`
	Latest             *string                `json:"latest,omitempty"`
	PublishDate        *string                `json:"publishDate,omitempty"`
	AdobeRecommended   *bool                  `json:"adobeRecommended,omitempty"`
	Links              *models.Links          `json:"links,omitempty"`
	Categories         *[]string              `json:"categories,omitempty"`
	Keywords           *[]string              `json:"keywords,omitempty"`
	APIs               *[]models.TemplateAPI  `json:"apis,omitempty"`
	Extensions         *[]models.Extension    `json:"extensions,omitempty"`
	Credentials        *[]models.Credential   `json:"credentials,omitempty"`
	Runtime            *bool                  `json:"runtime,omitempty"`
	Events             json.RawMessage        `json:"events,omitempty"`
	RequestAccessAppID *string                `json:"requestAccessAppId,omitempty"`
}

// templateName reassembles the record name from the URL: names may be
// scoped as "org/templateName".
func templateName(r *http.Request) string {
	name := chi.URLParam(r, "templateName")
	if org := chi.URLParam(r, "orgName"); org != "" {
		return org + "/" + name
	}
	return name
}

func selfHref(name string) string {
	return "/templates/" + name
}

// PostTemplate registers a new template and opens a review issue for it.
func (h *Handler) PostTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	var req CreateTemplateRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "name is required", map[string]any{"field": "name"})
		return
	}
	if req.Links == nil || strings.TrimSpace(req.Links.GitHub) == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "links.github is required", map[string]any{"field": "links.github"})
		return
	}

	t := models.Template{
		ID:                 util.NewID("tpl"),
		Name:               req.Name,
		Status:             models.StatusInVerification,
		AdobeRecommended:   false,
		Description:        req.Description,
		Author:             req.Author,
		Latest:             req.Latest,
		PublishDate:        req.PublishDate,
		Links:              req.Links,
		Categories:         req.Categories,
		Keywords:           req.Keywords,
		APIs:               req.APIs,
		Extensions:         req.Extensions,
		Credentials:        req.Credentials,
		Runtime:            req.Runtime,
		Events:             req.Events,
		RequestAccessAppID: req.RequestAccessAppID,
	}

	if err := h.store.Create(ctx, &t); err != nil {
		if errors.Is(err, repositories.ErrTemplateNameExists) {
			httpkit.WriteErr(w, 409, "TEMPLATE_NAME_EXISTS", "template name already exists", map[string]any{"field": "name"})
			return
		}
		log.LogError(ctx, "template insert failed", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db insert failed", nil)
		return
	}

	env := templateEnvelope{Template: t, Links: templateLinks{Self: link{Href: selfHref(t.Name)}}}

	// Review issue creation is best-effort: the submission stands even if
	// the tracker is down, and re-submission can re-open the issue.
	if h.reviews != nil {
		issue, err := h.reviews.CreateIssue(ctx, t.Name, t.Links.GitHub)
		if err != nil {
			log.Warn("review issue creation failed", "template", t.Name, "error", err.Error())
		} else {
			env.Links.Review = &link{Href: issue.HTMLURL}
		}
	}

	httpkit.WriteJSON(w, 201, env)
}

// ListTemplates returns the filtered, sorted registry contents.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	templates, err := h.store.ListAll(ctx)
	if err != nil {
		h.log.FromContext(ctx).LogError(ctx, "template list failed", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db query failed", nil)
		return
	}

	params := r.URL.Query()
	items, echo := query.Apply(templates, params)

	if params.Has("size") {
		if size, err := strconv.Atoi(params.Get("size")); err == nil && size >= 0 && size < len(items) {
			items = items[:size]
		}
	}

	href := r.URL.Path
	if echo != "" {
		href += "?" + echo
	}

	httpkit.WriteJSON(w, 200, listEnvelope{
		Items: items,
		Links: listLinks{Self: link{Href: href}},
	})
}

// GetTemplate returns a single template. When the caller supplies an org
// id and a bearer token, the record is annotated with entitlement flags;
// without an org id the record is returned as stored.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := templateName(r)
	log := h.log.FromContext(ctx)

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

	out := *t
	if orgID := strings.TrimSpace(r.Header.Get(OrgIDHeader)); orgID != "" && h.entitlements != nil {
		evaluated, err := h.entitlements.Evaluate(ctx, []models.Template{*t}, orgID, ims.TokenFromContext(ctx))
		if err != nil {
			middleware.HandleError(w, r, h.log, err)
			return
		}
		out = evaluated[0]
	}

	env := templateEnvelope{Template: out, Links: templateLinks{Self: link{Href: selfHref(out.Name)}}}

	// The review link only exists while a human decision is outstanding.
	if h.reviews != nil && (out.Status == models.StatusInVerification || out.Status == models.StatusRejected) {
		issue, err := h.reviews.OpenIssue(ctx, out.Name)
		if err != nil {
			log.Warn("review issue lookup failed", "template", out.Name, "error", err.Error())
		} else if issue != nil {
			env.Links.Review = &link{Href: issue.HTMLURL}
		}
	}

	httpkit.WriteJSON(w, 200, env)
}

// PutTemplate merges the supplied fields into an existing record. Only
// service tokens may update records; id and name are immutable.
func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := templateName(r)
	log := h.log.FromContext(ctx)

	claims, ok := ims.ClaimsFromContext(ctx)
	if !ok || !claims.IsService {
		httpkit.WriteErr(w, 403, "FORBIDDEN", "template updates require a service token", nil)
		return
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

	var req UpdateTemplateRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	if req.Status != nil {
		switch *req.Status {
		case models.StatusInVerification, models.StatusApproved, models.StatusRejected:
			t.Status = *req.Status
		default:
			httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid status", map[string]any{"field": "status"})
			return
		}
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Author != nil {
		t.Author = *req.Author
	}
	if req.Latest != nil {
		t.Latest = *req.Latest
	}
	if req.PublishDate != nil {
		t.PublishDate = *req.PublishDate
	}
	if req.AdobeRecommended != nil {
		t.AdobeRecommended = *req.AdobeRecommended
	}
	if req.Links != nil {
		t.Links = req.Links
	}
	if req.Categories != nil {
		t.Categories = *req.Categories
	}
	if req.Keywords != nil {
		t.Keywords = *req.Keywords
	}
	if req.APIs != nil {
		t.APIs = *req.APIs
	}
	if req.Extensions != nil {
		t.Extensions = *req.Extensions
	}
	if req.Credentials != nil {
		t.Credentials = *req.Credentials
	}
	if req.Runtime != nil {
		t.Runtime = req.Runtime
	}
	if len(req.Events) > 0 {
		t.Events = req.Events
	}
	if req.RequestAccessAppID != nil {
		t.RequestAccessAppID = *req.RequestAccessAppID
	}

	if err := h.store.Update(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTemplateNotFound) {
			httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", "template not found", map[string]any{"name": name})
			return
		}
		log.LogError(ctx, "template update failed", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db update failed", nil)
		return
	}

	httpkit.WriteJSON(w, 200, templateEnvelope{
		Template: *t,
		Links:    templateLinks{Self: link{Href: selfHref(t.Name)}},
	})
}

// DeleteTemplate removes a template by name. Service tokens only.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := templateName(r)

	claims, ok := ims.ClaimsFromContext(ctx)
	if !ok || !claims.IsService {
		httpkit.WriteErr(w, 403, "FORBIDDEN", "template deletion requires a service token", nil)
		return
	}

	if err := h.store.DeleteByName(ctx, name); err != nil {
		if errors.Is(err, repositories.ErrTemplateNotFound) {
			httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", "template not found", map[string]any{"name": name})
			return
		}
		h.log.FromContext(ctx).LogError(ctx, "template delete failed", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db delete failed", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
