package query

import (
	"sort"
	"strings"

	"stencil/internal/models"
)

// sortAliases maps orderBy aliases to field comparators.
var sortAliases = map[string]func(a, b *models.Template) int{
	"names": func(a, b *models.Template) int {
		return strings.Compare(a.Name, b.Name)
	},
	"statuses": func(a, b *models.Template) int {
		return strings.Compare(string(a.Status), string(b.Status))
	},
	"adobeRecommended": func(a, b *models.Template) int {
		return boolCompare(a.AdobeRecommended, b.AdobeRecommended)
	},
	// ISO8601 date strings order correctly under lexicographic comparison.
	"publishDate": func(a, b *models.Template) int {
		return strings.Compare(a.PublishDate, b.PublishDate)
	},
}

type sortKey struct {
	alias string
	cmp   func(a, b *models.Template) int
	desc  bool
}

// parseOrderBy parses comma-separated "alias[ asc|desc]" tokens. Unknown
// aliases and malformed direction words drop the whole token; direction
// defaults to ascending.
func parseOrderBy(raw string) []sortKey {
	if raw == "" {
		return nil
	}
	var keys []sortKey
	for _, tok := range strings.Split(raw, ",") {
		fields := strings.Fields(strings.TrimSpace(tok))
		if len(fields) == 0 || len(fields) > 2 {
			continue
		}
		cmp, ok := sortAliases[fields[0]]
		if !ok {
			continue
		}
		desc := false
		if len(fields) == 2 {
			switch fields[1] {
			case "asc":
			case "desc":
				desc = true
			default:
				continue
			}
		}
		keys = append(keys, sortKey{alias: fields[0], cmp: cmp, desc: desc})
	}
	return keys
}

// Sort orders templates in place by the comma-separated orderBy value,
// primary key first. The sort is stable: records with equal keys keep
// their input order.
func Sort(templates []models.Template, orderBy string) []models.Template {
	keys := parseOrderBy(orderBy)
	if len(keys) == 0 {
		return templates
	}
	sort.SliceStable(templates, func(i, j int) bool {
		for _, k := range keys {
			c := k.cmp(&templates[i], &templates[j])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return templates
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}
