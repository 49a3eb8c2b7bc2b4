package epubreplace

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

// documentMediaTypes are the manifest media types of content documents.
var documentMediaTypes = map[string]bool{
	"application/xhtml+xml": true,
	"text/html":             true,
}

// documentExtensions identify content documents when no manifest is available.
var documentExtensions = map[string]bool{
	".xhtml": true,
	".html":  true,
	".htm":   true,
}

// opfPackage is the subset of the OPF <package> element needed to find
// content documents and describe the book in reports.
type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
	Spine            opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	Titles      []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Languages   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Metas       []opfMeta      `xml:"meta"`
}

// opfDCElement holds a Dublin Core element. ePub 2 carries the scheme as
// an opf:scheme attribute; ePub 3 uses <meta refines="...">.
type opfDCElement struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	Scheme string `xml:"scheme,attr"`
}

// opfMeta is an ePub 3 <meta property="..." refines="...">value</meta>.
type opfMeta struct {
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Value    string `xml:",chardata"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

type opfSpineItemRef struct {
	IDRef string `xml:"idref,attr"`
}

// parseOPF parses package document content.
func parseOPF(data []byte) (*opfPackage, error) {
	data = preprocessHTMLEntities(stripBOM(data))

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("epubreplace: parse OPF: %v: %w", err, ErrInvalidEPub)
	}
	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

// isDocumentMediaType reports whether a manifest media type denotes a
// content document. Parameters such as "; charset=utf-8" are ignored.
func isDocumentMediaType(mediaType string) bool {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return documentMediaTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

func isDocumentName(name string) bool {
	return documentExtensions[strings.ToLower(path.Ext(name))]
}

// readingOrder returns the manifest items with spine items first, in spine
// order, followed by the remaining items in manifest order.
func (p *opfPackage) readingOrder() []opfManifestItem {
	byID := make(map[string]int, len(p.Manifest.Items))
	for i, item := range p.Manifest.Items {
		if item.ID != "" {
			if _, dup := byID[item.ID]; !dup {
				byID[item.ID] = i
			}
		}
	}

	used := make([]bool, len(p.Manifest.Items))
	items := make([]opfManifestItem, 0, len(p.Manifest.Items))
	for _, ref := range p.Spine.ItemRefs {
		i, ok := byID[ref.IDRef]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		items = append(items, p.Manifest.Items[i])
	}
	for i, item := range p.Manifest.Items {
		if !used[i] {
			items = append(items, item)
		}
	}
	return items
}
