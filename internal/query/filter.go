// Package query implements the declarative filter-and-sort engine behind
// the template list endpoint. It is pure: it operates on an in-memory
// slice of records supplied by the caller and performs no I/O.
package query

import (
	"strconv"
	"strings"

	"stencil/internal/models"
)

// FilterKind selects the matching strategy for a query parameter.
type FilterKind int

const (
	// KindArray applies set-membership semantics with "!"/"|" token prefixes.
	KindArray FilterKind = iota
	// KindBoolean matches a single "true"/"false" value against a boolean field.
	KindBoolean
	// KindStub excludes every record once a concrete value is supplied.
	// Reserved for fields whose internal shape is not finalized, where only
	// presence ("*") and absence ("") filtering is supported.
	KindStub
)

// FieldValue is a tagged view of a record field: absent, a single scalar,
// or a sequence of values.
type FieldValue struct {
	Present bool
	Scalar  string
	Seq     []string
	IsSeq   bool
}

func scalar(v string) FieldValue { return FieldValue{Present: true, Scalar: v} }
func seq(vs []string) FieldValue { return FieldValue{Present: true, Seq: vs, IsSeq: true} }
func presentOnly() FieldValue    { return FieldValue{Present: true} }
func absent() FieldValue         { return FieldValue{} }

type filterSpec struct {
	param string
	kind  FilterKind
	value func(*models.Template) FieldValue
}

// filterTable drives the list endpoint: one entry per recognized query
// parameter, in the order they are echoed back for self links. Parameters
// not listed here are silently ignored.
var filterTable = []filterSpec{
	{param: "names", kind: KindArray, value: func(t *models.Template) FieldValue {
		if t.Name == "" {
			return absent()
		}
		return scalar(t.Name)
	}},
	{param: "categories", kind: KindArray, value: func(t *models.Template) FieldValue {
		if t.Categories == nil {
			return absent()
		}
		return seq(t.Categories)
	}},
	{param: "apis", kind: KindArray, value: func(t *models.Template) FieldValue {
		if t.APIs == nil {
			return absent()
		}
		return seq(t.APICodes())
	}},
	{param: "statuses", kind: KindArray, value: func(t *models.Template) FieldValue {
		if t.Status == "" {
			return absent()
		}
		return scalar(string(t.Status))
	}},
	{param: "adobeRecommended", kind: KindBoolean, value: func(t *models.Template) FieldValue {
		return scalar(strconv.FormatBool(t.AdobeRecommended))
	}},
	{param: "extensions", kind: KindArray, value: func(t *models.Template) FieldValue {
		if t.Extensions == nil {
			return absent()
		}
		vals := make([]string, len(t.Extensions))
		for i, e := range t.Extensions {
			vals[i] = e.ExtensionPointID
		}
		return seq(vals)
	}},
	{param: "events", kind: KindStub, value: func(t *models.Template) FieldValue {
		if len(t.Events) == 0 {
			return absent()
		}
		return presentOnly()
	}},
	{param: "runtime", kind: KindBoolean, value: func(t *models.Template) FieldValue {
		if t.Runtime == nil {
			return absent()
		}
		return scalar(strconv.FormatBool(*t.Runtime))
	}},
}

// tokenSet partitions a comma-separated filter value by prefix: tokens
// prefixed "!" form the exclude set, "|" the or set, everything else the
// include (AND) set.
type tokenSet struct {
	raw     string
	include []string
	exclude map[string]struct{}
	or      map[string]struct{}
}

func parseTokens(raw string) tokenSet {
	ts := tokenSet{
		raw:     raw,
		exclude: make(map[string]struct{}),
		or:      make(map[string]struct{}),
	}
	if raw == "" {
		return ts
	}
	for _, tok := range strings.Split(raw, ",") {
		switch {
		case strings.HasPrefix(tok, "!"):
			ts.exclude[tok[1:]] = struct{}{}
		case strings.HasPrefix(tok, "|"):
			ts.or[tok[1:]] = struct{}{}
		default:
			ts.include = append(ts.include, tok)
		}
	}
	return ts
}

func (ts tokenSet) plain() bool {
	return len(ts.exclude) == 0 && len(ts.or) == 0
}

// matches reports whether a record passes this filter for the given tokens.
func (f filterSpec) matches(ts tokenSet, t *models.Template) bool {
	v := f.value(t)

	// A value of exactly "*" means the field must be present; exactly ""
	// means it must be absent. These override per-kind matching entirely.
	if ts.raw == "*" && ts.plain() {
		return v.Present
	}
	if ts.raw == "" && ts.plain() {
		return !v.Present
	}

	if !v.Present {
		return false
	}

	switch f.kind {
	case KindStub:
		return false
	case KindBoolean:
		if ts.raw != "true" && ts.raw != "false" {
			return false
		}
		return v.Scalar == ts.raw
	default:
		if v.IsSeq {
			return matchSeq(ts, v.Seq)
		}
		return matchScalar(ts, v.Scalar)
	}
}

// matchSeq applies exclude, then or, then AND-include semantics to a
// sequence-valued field.
func matchSeq(ts tokenSet, vals []string) bool {
	for _, v := range vals {
		if _, ok := ts.exclude[v]; ok {
			return false
		}
	}
	if len(ts.include) == 0 && len(ts.or) == 0 {
		return true
	}
	for _, v := range vals {
		if _, ok := ts.or[v]; ok {
			return true
		}
	}
	if len(ts.include) == 0 {
		return false
	}
	for _, inc := range ts.include {
		if !contains(vals, inc) {
			return false
		}
	}
	return true
}

// matchScalar mirrors matchSeq for single-valued fields. The or-set applies
// to scalars the same way it does to sequences, and the AND-include check
// only holds when every include token equals the value.
func matchScalar(ts tokenSet, val string) bool {
	if _, ok := ts.exclude[val]; ok {
		return false
	}
	if len(ts.include) == 0 && len(ts.or) == 0 {
		return true
	}
	if _, ok := ts.or[val]; ok {
		return true
	}
	if len(ts.include) == 0 {
		return false
	}
	for _, inc := range ts.include {
		if inc != val {
			return false
		}
	}
	return true
}

func contains(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}
