// Package entitlement evaluates per-template entitlement flags for an
// organization by cross-referencing each template's required API codes
// against the console services catalog.
package entitlement

import (
	"context"
	"encoding/json"

	"stencil/internal/models"
)

// Service is one entry of the console services catalog, keyed by API code.
type Service struct {
	Code             string             `json:"code"`
	Enabled          bool               `json:"enabled"`
	EntitledForOrg   bool               `json:"entitledForOrg"`
	CanRequestAccess bool               `json:"canRequestAccess"`
	DisabledReasons  []string           `json:"disabledReasons,omitempty"`
	Properties       *ServiceProperties `json:"properties,omitempty"`
}

// ServiceProperties carries catalog metadata copied through onto matching
// template API entries.
type ServiceProperties struct {
	LicenseConfigs []models.LicenseConfig `json:"licenseConfigs,omitempty"`
}

// ServicesResponse is a provider reply: the decoded services list plus the
// raw payload, kept for diagnostics when the list is unusable.
type ServicesResponse struct {
	Services []Service
	Raw      json.RawMessage
}

// Provider returns the entitlement state of the given comma-joined API
// codes for an organization, in a single batched call.
type Provider interface {
	Services(ctx context.Context, orgID, codes string) (*ServicesResponse, error)
}

// PendingChecker returns the set of application ids that currently have a
// PENDING access request for the calling user's organization.
type PendingChecker interface {
	PendingAppIDs(ctx context.Context, userToken, orgID string) (map[string]struct{}, error)
}
