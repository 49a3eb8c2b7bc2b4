package epubreplace

import (
	"sort"
	"strconv"
	"strings"
)

// extractBookInfo condenses the OPF metadata into a BookInfo.
func extractBookInfo(opf *opfPackage) BookInfo {
	om := &opf.Metadata

	// Build a refines lookup for ePub 3: "#id" → []opfMeta.
	refinesMap := buildRefinesMap(om.Metas)

	var info BookInfo
	if titles := extractTitles(om.Titles, refinesMap); len(titles) > 0 {
		info.Title = titles[0]
	}

	for _, l := range om.Languages {
		if v := strings.TrimSpace(l.Value); v != "" {
			info.Language = v
			break
		}
	}

	if id, ok := uniqueIdentifier(om.Identifiers, opf.UniqueIdentifier); ok {
		info.Identifier = strings.TrimSpace(id.Value)
		info.IdentifierScheme = id.Scheme
		// ePub 3: check refines for scheme.
		if info.IdentifierScheme == "" && id.ID != "" {
			if s, ok := findRefine(refinesMap, id.ID, "identifier-type"); ok {
				info.IdentifierScheme = s
			}
		}
	}
	return info
}

// uniqueIdentifier picks the dc:identifier named by the package's
// unique-identifier attribute, falling back to the first non-empty one.
func uniqueIdentifier(ids []opfDCElement, uniqueID string) (opfDCElement, bool) {
	if uniqueID != "" {
		for _, id := range ids {
			if id.ID == uniqueID && strings.TrimSpace(id.Value) != "" {
				return id, true
			}
		}
	}
	for _, id := range ids {
		if strings.TrimSpace(id.Value) != "" {
			return id, true
		}
	}
	return opfDCElement{}, false
}

// buildRefinesMap builds a map from element ID (without "#") to the list of
// <meta refines="#id" ...> elements that refine it.
func buildRefinesMap(metas []opfMeta) map[string][]opfMeta {
	m := make(map[string][]opfMeta)
	for _, meta := range metas {
		ref := meta.Refines
		if !strings.HasPrefix(ref, "#") {
			continue
		}
		m[ref[1:]] = append(m[ref[1:]], meta)
	}
	return m
}

// findRefine looks up a single refining property value for the given element ID.
func findRefine(refinesMap map[string][]opfMeta, id, property string) (string, bool) {
	for _, m := range refinesMap[id] {
		if m.Property == property {
			if v := strings.TrimSpace(m.Value); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// extractTitles returns the non-empty dc:title values. For ePub 3, titles
// carrying a display-seq refinement sort first, in sequence order.
func extractTitles(titles []opfDCElement, refinesMap map[string][]opfMeta) []string {
	type titleEntry struct {
		value string
		seq   int
	}

	entries := make([]titleEntry, 0, len(titles))
	for _, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		e := titleEntry{value: v}
		if t.ID != "" {
			if seqStr, ok := findRefine(refinesMap, t.ID, "display-seq"); ok {
				if n, err := strconv.Atoi(seqStr); err == nil && n > 0 {
					e.seq = n
				}
			}
		}
		entries = append(entries, e)
	}

	// Titles without seq (0) go after titles with seq.
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].seq, entries[j].seq
		switch {
		case si == 0:
			return false
		case sj == 0:
			return true
		}
		return si < sj
	})

	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.value
	}
	return result
}
