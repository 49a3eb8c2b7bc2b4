package epubreplace

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// testEntry is one file of a test archive. Entries are written in slice
// order; Method defaults to Deflate.
type testEntry struct {
	Name   string
	Body   string
	Method uint16
}

// testContainerXML points at OEBPS/content.opf.
const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// buildTestZipBytes writes entries into an in-memory ZIP archive.
func buildTestZipBytes(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		method := e.Method
		if method == 0 && e.Name != "mimetype" {
			method = zip.Deflate
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: method})
		if err != nil {
			t.Fatalf("buildTestZipBytes: create %s: %v", e.Name, err)
		}
		if _, err := io.WriteString(fw, e.Body); err != nil {
			t.Fatalf("buildTestZipBytes: write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestZipBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestZip creates an in-memory ZIP archive from the provided files map
// (path → content), written in lexical order, and returns a reader over it.
func buildTestZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]testEntry, len(names))
	for i, name := range names {
		entries[i] = testEntry{Name: name, Body: files[name]}
	}
	return openTestZip(t, buildTestZipBytes(t, entries))
}

func openTestZip(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("openTestZip: %v", err)
	}
	return r
}

// testOPF builds a package document listing docs (hrefs relative to OEBPS/)
// in manifest and spine order.
func testOPF(docs ...string) string {
	var manifest, spine strings.Builder
	for i, href := range docs {
		fmt.Fprintf(&manifest, `    <item id="doc%d" href="%s" media-type="application/xhtml+xml"/>`+"\n", i, href)
		fmt.Fprintf(&spine, `    <itemref idref="doc%d"/>`+"\n", i)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">urn:uuid:12345678-1234-1234-1234-123456789abc</dc:identifier>
  </metadata>
  <manifest>
    <item id="css" href="style.css" media-type="text/css"/>
%s  </manifest>
  <spine>
%s  </spine>
</package>`, manifest.String(), spine.String())
}

// xhtmlDoc wraps body markup in a complete XHTML document.
func xhtmlDoc(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Chapter</title></head>
<body>` + body + `</body>
</html>`
}

// buildTestEPub returns the entries of a minimal valid ePub whose content
// documents live under OEBPS/ with the given names and bodies.
func buildTestEPub(docs map[string]string) []testEntry {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := []testEntry{
		{Name: "mimetype", Body: expectedMimetype, Method: zip.Store},
		{Name: "META-INF/container.xml", Body: testContainerXML},
		{Name: "OEBPS/content.opf", Body: testOPF(names...)},
		{Name: "OEBPS/style.css", Body: "p { margin: 0 }"},
	}
	for _, name := range names {
		entries = append(entries, testEntry{Name: "OEBPS/" + name, Body: docs[name]})
	}
	return entries
}

// buildTestEPubFile writes entries as an archive in a temporary directory
// and returns its path.
func buildTestEPubFile(t *testing.T, entries []testEntry) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "book.epub")
	if err := os.WriteFile(fp, buildTestZipBytes(t, entries), 0644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// zipEntry returns the content of the named entry, failing if absent.
func zipEntry(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("zipEntry: open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("zipEntry: read %s: %v", name, err)
		}
		return string(data)
	}
	t.Fatalf("zipEntry: %s not in archive", name)
	return ""
}

func zipNames(zr *zip.Reader) []string {
	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names
}

// mustPlan builds a plan from comma-separated lists or fails the test.
func mustPlan(t *testing.T, search, replace string, mode Mode) *Plan {
	t.Helper()
	p, err := ParsePlan(search, replace, PlanOptions{Mode: mode})
	if err != nil {
		t.Fatalf("ParsePlan(%q, %q): %v", search, replace, err)
	}
	return p
}

// rewriteBytes runs a Rewriter over an in-memory archive.
func rewriteBytes(t *testing.T, plan *Plan, archive []byte) ([]byte, *Report) {
	t.Helper()
	rw, err := NewRewriter(plan, Options{TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewRewriter: %v", err)
	}
	var out bytes.Buffer
	report, err := rw.Rewrite(t.Context(), bytes.NewReader(archive), int64(len(archive)), &out)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	return out.Bytes(), report
}
