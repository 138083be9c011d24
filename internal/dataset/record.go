package dataset

import "github.com/FranksOps/brandwatch/internal/provenance"

// Record is one scraped item. Keys depend on the platform; every record
// carries "url" when known and always carries "provenance".
type Record map[string]any

const provenanceKey = "provenance"

// textKeys are checked in order by Text.
var textKeys = []string{"post_text", "description", "transcript", "markdown"}

// URL returns the record's source URL, or "" when absent.
func (r Record) URL() string {
	s, _ := r["url"].(string)
	return s
}

// Text returns the first non-empty textual body of the record.
func (r Record) Text() string {
	for _, k := range textKeys {
		if s, ok := r[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Provenance reports where the record came from.
func (r Record) Provenance() provenance.Source {
	switch v := r[provenanceKey].(type) {
	case provenance.Source:
		return v
	case string:
		return provenance.Source(v)
	}
	return ""
}

func (r Record) tag(src provenance.Source) {
	r[provenanceKey] = string(src)
}
