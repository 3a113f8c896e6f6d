package entitlement

import (
	"context"
	"strings"

	"stencil/internal/models"
	apperrors "stencil/internal/pkg/errors"
	"stencil/internal/pkg/logger"
)

// Evaluator annotates templates with per-org entitlement flags. It makes
// one batched provider call per evaluation and, only when some template
// qualifies, one pending-access-request lookup. Errors from either call
// propagate; nothing in the entitlement path is swallowed.
type Evaluator struct {
	provider Provider
	pending  PendingChecker
	log      *logger.Logger
}

// New creates an Evaluator.
func New(provider Provider, pending PendingChecker, log *logger.Logger) *Evaluator {
	return &Evaluator{provider: provider, pending: pending, log: log.WithComponent("entitlement")}
}

// Evaluate returns a projection of templates carrying userEntitled,
// orgEntitled, canRequestAccess, disEntitledReasons and, where applicable,
// isRequestPending. The input slice and its records are never modified.
//
// When orgID is empty the check is inapplicable and the input is returned
// unchanged, regardless of whether templates is empty. When orgID is
// present, a missing user token or an empty template list is an input
// error.
func (e *Evaluator) Evaluate(ctx context.Context, templates []models.Template, orgID, userToken string) ([]models.Template, error) {
	if orgID == "" {
		e.log.FromContext(ctx).Debug("entitlement check skipped, no org id")
		return templates, nil
	}
	if userToken == "" || len(templates) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid user token or templates")
	}

	codes := collectCodes(templates)
	resp, err := e.provider.Services(ctx, orgID, strings.Join(codes, ","))
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Services) == 0 {
		err := apperrors.New(apperrors.CodeProvider, "entitlement provider returned no services")
		if resp != nil && len(resp.Raw) > 0 {
			err = err.WithField("payload", string(resp.Raw))
		}
		return nil, err
	}

	byCode := make(map[string]Service, len(resp.Services))
	for _, s := range resp.Services {
		byCode[s.Code] = s
	}
	if missing := missingCodes(codes, byCode); len(missing) > 0 {
		return nil, apperrors.Newf(apperrors.CodeMissingServices,
			"entitlement provider did not return services for: %s", strings.Join(missing, ", ")).
			WithField("missing", missing)
	}

	out := make([]models.Template, len(templates))
	needPending := false
	for i := range templates {
		out[i] = annotate(&templates[i], byCode)
		if *out[i].CanRequestAccess && out[i].RequestAccessAppID != "" {
			needPending = true
		}
	}

	// The pending lookup is an extra round-trip; skip it entirely when no
	// template can request access.
	if needPending {
		pending, err := e.pending.PendingAppIDs(ctx, userToken, orgID)
		if err != nil {
			return nil, err
		}
		for i := range out {
			if !*out[i].CanRequestAccess || out[i].RequestAccessAppID == "" {
				continue
			}
			_, isPending := pending[out[i].RequestAccessAppID]
			out[i].IsRequestPending = &isPending
		}
	}

	return out, nil
}

// collectCodes returns the deduplicated union of required API codes across
// all templates, in first-seen order so provider requests and error
// messages are deterministic.
func collectCodes(templates []models.Template) []string {
	seen := make(map[string]struct{})
	var codes []string
	for i := range templates {
		for _, code := range templates[i].APICodes() {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	return codes
}

func missingCodes(requested []string, byCode map[string]Service) []string {
	var missing []string
	for _, code := range requested {
		if _, ok := byCode[code]; !ok {
			missing = append(missing, code)
		}
	}
	return missing
}

// annotate folds the matching services over one template: every flag is
// the AND across the template's required codes, and disEntitledReasons is
// the deduplicated union of the services' disabled reasons.
func annotate(t *models.Template, byCode map[string]Service) models.Template {
	out := t.Clone()

	userEntitled := true
	orgEntitled := true
	canRequest := true
	var reasons []string
	seenReason := make(map[string]struct{})

	for i := range out.APIs {
		svc, ok := byCode[out.APIs[i].Code]
		if !ok {
			continue
		}
		userEntitled = userEntitled && svc.Enabled
		orgEntitled = orgEntitled && svc.EntitledForOrg
		canRequest = canRequest && svc.CanRequestAccess
		for _, r := range svc.DisabledReasons {
			if _, ok := seenReason[r]; ok {
				continue
			}
			seenReason[r] = struct{}{}
			reasons = append(reasons, r)
		}
		if svc.Properties != nil && len(svc.Properties.LicenseConfigs) > 0 {
			out.APIs[i].LicenseConfigs = svc.Properties.LicenseConfigs
		}
	}

	out.UserEntitled = &userEntitled
	out.OrgEntitled = &orgEntitled
	out.CanRequestAccess = &canRequest
	out.DisEntitledReasons = reasons
	return out
}
