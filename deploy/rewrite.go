package deploy

import "strings"

// Rewrite applies mf's GUID mapping and additional string mapping to
// a TML document's serialized text, in that order: mapping (GUID
// substitution) first, then additional_mapping (literal string
// substitution), per Design Notes' stated ordering. A source GUID
// with no known target is left untouched, so the platform creates a
// new object for it on import.
func Rewrite(doc string, mf *MappingFile) string {
	out := doc
	for sourceGUID, target := range mf.Mapping {
		if target == nil || *target == "" {
			continue
		}
		out = strings.ReplaceAll(out, sourceGUID, *target)
	}
	for from, to := range mf.AdditionalMapping {
		out = strings.ReplaceAll(out, from, to)
	}
	return out
}
