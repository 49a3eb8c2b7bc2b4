package epubreplace

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// defaultMaxEntrySize is the default cap on the decompressed size of a
// single ZIP entry. It guards against zip bombs.
const defaultMaxEntrySize int64 = 256 * 1024 * 1024

// findFileInsensitive looks up a ZIP entry by path, first trying an exact match,
// then falling back to a case-insensitive comparison.
// Returns nil if no match is found.
func findFileInsensitive(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	lower := strings.ToLower(name)
	for _, f := range zr.File {
		if strings.ToLower(f.Name) == lower {
			return f
		}
	}
	return nil
}

// resolveRelativePath resolves href relative to the directory of basePath.
// Both are ZIP-internal, forward-slash paths. Fragments and percent-encoding
// are removed. An empty string is returned when the result would escape the
// archive root.
func resolveRelativePath(basePath, href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if href == "" || strings.HasPrefix(href, "/") {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	cleaned := path.Clean(path.Join(path.Dir(basePath), href))
	if !isSafePath(cleaned) {
		return ""
	}
	return cleaned
}

// isSafePath checks whether p is a ZIP-internal path that stays inside the
// archive root (no "../" traversal, not absolute).
func isSafePath(p string) bool {
	if p == "" || strings.Contains(p, "\\") {
		return false
	}
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// readZipFile reads the full contents of a ZIP entry, refusing entries whose
// path is unsafe or whose decompressed size exceeds limit.
func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("epubreplace: unsafe zip entry path %q: %w", f.Name, ErrArchiveCorrupt)
	}

	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("epubreplace: zip entry %s too large: %d bytes (max %d): %w",
			f.Name, f.UncompressedSize64, limit, ErrArchiveCorrupt)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epubreplace: open zip entry %s: %v: %w", f.Name, err, ErrArchiveCorrupt)
	}
	defer rc.Close()

	// The declared size may be forged; read one byte past the limit to
	// detect that.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("epubreplace: read zip entry %s: %v: %w", f.Name, err, ErrArchiveCorrupt)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("epubreplace: zip entry %s decompressed size exceeds limit (%d bytes): %w",
			f.Name, limit, ErrArchiveCorrupt)
	}

	return data, nil
}
