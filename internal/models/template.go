package models

import (
	"encoding/json"
	"time"
)

// TemplateStatus is the review lifecycle state of a template submission.
type TemplateStatus string

const (
	StatusInVerification TemplateStatus = "InVerification"
	StatusApproved       TemplateStatus = "Approved"
	StatusRejected       TemplateStatus = "Rejected"
)

// LicenseConfig describes a license configuration attached to a service API.
type LicenseConfig struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ProductID string `json:"productId,omitempty"`
}

// TemplateAPI is one entitlement code a template requires, plus the
// credential flow it expects.
type TemplateAPI struct {
	Code           string          `json:"code"`
	CredentialType string          `json:"credentialType,omitempty"`
	FlowType       string          `json:"flowType,omitempty"`
	LicenseConfigs []LicenseConfig `json:"licenseConfigs,omitempty"`
}

// Extension names an extension point a template plugs into.
type Extension struct {
	ExtensionPointID string `json:"extensionPointId"`
}

// Credential is a credential shape the template's install flow provisions.
type Credential struct {
	Type     string `json:"type"`
	FlowType string `json:"flowType,omitempty"`
}

// Links holds the external locations of a template's sources.
type Links struct {
	NPM    string `json:"npm,omitempty"`
	GitHub string `json:"github,omitempty"`
}

// Template is a registry record describing a reusable project scaffold and
// the service entitlements it requires.
//
// Runtime is tri-state: nil means the field is absent, which is itself a
// filterable state distinct from false. Events is opaque; only its
// presence or absence is meaningful to the registry.
type Template struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Status             TemplateStatus  `json:"status"`
	Description        string          `json:"description,omitempty"`
	Author             string          `json:"author,omitempty"`
	Latest             string          `json:"latest,omitempty"`
	PublishDate        string          `json:"publishDate,omitempty"`
	AdobeRecommended   bool            `json:"adobeRecommended"`
	Links              *Links          `json:"links,omitempty"`
	Categories         []string        `json:"categories,omitempty"`
	Keywords           []string        `json:"keywords,omitempty"`
	APIs               []TemplateAPI   `json:"apis,omitempty"`
	Extensions         []Extension     `json:"extensions,omitempty"`
	Credentials        []Credential    `json:"credentials,omitempty"`
	Runtime            *bool           `json:"runtime,omitempty"`
	Events             json.RawMessage `json:"events,omitempty"`
	RequestAccessAppID string          `json:"requestAccessAppId,omitempty"`

	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
	DeletedAt *time.Time `json:"-"`

	// Entitlement annotations, set only on evaluated projections.
	UserEntitled       *bool    `json:"userEntitled,omitempty"`
	OrgEntitled        *bool    `json:"orgEntitled,omitempty"`
	CanRequestAccess   *bool    `json:"canRequestAccess,omitempty"`
	DisEntitledReasons []string `json:"disEntitledReasons,omitempty"`
	IsRequestPending   *bool    `json:"isRequestPending,omitempty"`
}

// APICodes returns the template's required entitlement codes in order.
func (t *Template) APICodes() []string {
	if len(t.APIs) == 0 {
		return nil
	}
	codes := make([]string, 0, len(t.APIs))
	for _, a := range t.APIs {
		codes = append(codes, a.Code)
	}
	return codes
}

// Clone returns a copy of the template whose APIs slice is independent of
// the receiver, so annotation never mutates the caller's record.
func (t *Template) Clone() Template {
	out := *t
	if t.APIs != nil {
		out.APIs = make([]TemplateAPI, len(t.APIs))
		copy(out.APIs, t.APIs)
	}
	return out
}
