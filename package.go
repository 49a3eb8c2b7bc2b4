package epubreplace

import (
	"archive/zip"
	"fmt"
	"strings"
)

// mimetypeName is the archive name of the ePub type marker entry.
const mimetypeName = "mimetype"

// expectedMimetype is the required content of the "mimetype" file in a valid ePub.
const expectedMimetype = "application/epub+zip"

// documentEntry is a content document selected for rewriting.
type documentEntry struct {
	Name      string
	MediaType string
}

// packageInfo describes the parts of a package the rewriter cares about.
type packageInfo struct {
	opfPath   string
	version   string
	book      BookInfo
	documents []documentEntry
	warnings  []string
}

func (p *packageInfo) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// zipIndex provides exact and case-insensitive O(1) entry lookups.
type zipIndex struct {
	exact map[string]*zip.File
	lower map[string]*zip.File
}

func newZipIndex(zr *zip.Reader) *zipIndex {
	idx := &zipIndex{
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if _, ok := idx.exact[f.Name]; !ok {
			idx.exact[f.Name] = f
		}
		lower := strings.ToLower(f.Name)
		if _, ok := idx.lower[lower]; !ok {
			idx.lower[lower] = f
		}
	}
	return idx
}

func (idx *zipIndex) find(name string) *zip.File {
	if f, ok := idx.exact[name]; ok {
		return f
	}
	return idx.lower[strings.ToLower(name)]
}

// inspectPackage validates the mimetype marker, rejects DRM-protected
// packages and enumerates the content documents listed in the OPF manifest,
// in reading order.
// Structural problems short of DRM are recorded as warnings; when the
// manifest cannot be used, documents are selected by file extension.
func inspectPackage(zr *zip.Reader, limit int64) (*packageInfo, error) {
	info := &packageInfo{}
	info.validateMimetype(zr, limit)

	fontObfuscation, err := checkDRM(zr, limit)
	if err != nil {
		return nil, err
	}
	if fontObfuscation {
		info.warn("font obfuscation detected; obfuscated fonts are copied unchanged")
	}

	idx := newZipIndex(zr)

	opfPath, err := locateOPF(zr, limit)
	if err != nil {
		info.warn("%v; selecting documents by extension", err)
		info.documents = documentsByName(zr)
		return info, nil
	}
	opfFile := idx.find(opfPath)
	if opfFile == nil {
		info.warn("OPF file %s not found in archive; selecting documents by extension", opfPath)
		info.documents = documentsByName(zr)
		return info, nil
	}
	data, err := readZipFile(opfFile, limit)
	if err != nil {
		return nil, err
	}
	pkg, err := parseOPF(data)
	if err != nil {
		info.warn("%v; selecting documents by extension", err)
		info.documents = documentsByName(zr)
		return info, nil
	}

	info.opfPath = opfFile.Name
	info.version = pkg.Version
	info.book = extractBookInfo(pkg)

	seen := make(map[string]bool)
	for _, item := range pkg.readingOrder() {
		if !isDocumentMediaType(item.MediaType) || strings.Contains(item.Href, "://") {
			continue
		}
		target := resolveRelativePath(opfFile.Name, item.Href)
		if target == "" {
			info.warn("manifest item %q has unusable href %q", item.ID, item.Href)
			continue
		}
		f := idx.find(target)
		if f == nil {
			info.warn("manifest item %q refers to missing entry %s", item.ID, target)
			continue
		}
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		info.documents = append(info.documents, documentEntry{Name: f.Name, MediaType: item.MediaType})
	}
	return info, nil
}

// validateMimetype checks that the first ZIP entry is named "mimetype" and
// contains "application/epub+zip". Deviations are recorded as warnings; the
// repacked output always starts with a stored mimetype entry.
func (p *packageInfo) validateMimetype(zr *zip.Reader, limit int64) {
	if len(zr.File) == 0 {
		p.warn("empty ZIP archive; mimetype entry missing")
		return
	}

	first := zr.File[0]
	if first.Name != mimetypeName {
		p.warn("first ZIP entry is %q, not %q", first.Name, mimetypeName)
		return
	}
	if first.Method != zip.Store {
		p.warn("mimetype entry is compressed")
	}

	data, err := readZipFile(first, limit)
	if err != nil {
		p.warn("cannot read mimetype entry: %v", err)
		return
	}
	if string(data) != expectedMimetype {
		p.warn("unexpected mimetype: %q", string(data))
	}
}

// documentsByName selects content documents by extension, in archive order.
func documentsByName(zr *zip.Reader) []documentEntry {
	var docs []documentEntry
	seen := make(map[string]bool)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isDocumentName(f.Name) || seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		docs = append(docs, documentEntry{Name: f.Name, MediaType: "application/xhtml+xml"})
	}
	return docs
}
