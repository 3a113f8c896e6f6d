package query

import (
	"net/url"
	"strings"

	"stencil/internal/models"
)

// Apply narrows templates by every recognized filter parameter present in
// params, then orders the result by orderBy. It returns the result and the
// canonical echo of the applied parameters for self-link construction. The
// input slice is never modified.
func Apply(templates []models.Template, params url.Values) ([]models.Template, string) {
	out := Filter(templates, params)
	out = Sort(out, first(params, "orderBy"))
	return out, Echo(params)
}

// Filter returns the subset of templates passing every recognized filter
// parameter in params. Filters combine with AND across parameters; each
// parameter applies its own include/exclude/or logic. Unrecognized
// parameters are ignored.
func Filter(templates []models.Template, params url.Values) []models.Template {
	type active struct {
		spec   filterSpec
		tokens tokenSet
	}
	var filters []active
	for _, f := range filterTable {
		if !params.Has(f.param) {
			continue
		}
		filters = append(filters, active{spec: f, tokens: parseTokens(first(params, f.param))})
	}

	out := make([]models.Template, 0, len(templates))
	for i := range templates {
		t := &templates[i]
		pass := true
		for _, f := range filters {
			if !f.spec.matches(f.tokens, t) {
				pass = false
				break
			}
		}
		if pass {
			out = append(out, *t)
		}
	}
	return out
}

// Echo renders the recognized, applied parameters as a canonical
// "key=value&key=value" string. Filter values are echoed verbatim,
// preserving the caller's token order; orderBy echoes only the tokens that
// survived parsing, with the default ascending direction left implicit.
func Echo(params url.Values) string {
	var parts []string
	for _, f := range filterTable {
		if params.Has(f.param) {
			parts = append(parts, f.param+"="+first(params, f.param))
		}
	}
	if params.Has("orderBy") {
		if keys := parseOrderBy(first(params, "orderBy")); len(keys) > 0 {
			toks := make([]string, len(keys))
			for i, k := range keys {
				toks[i] = k.alias
				if k.desc {
					toks[i] += " desc"
				}
			}
			parts = append(parts, "orderBy="+strings.Join(toks, ","))
		}
	}
	return strings.Join(parts, "&")
}

// first returns the first value for key. Repeated parameters beyond the
// first are ignored.
func first(params url.Values, key string) string {
	vs := params[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
