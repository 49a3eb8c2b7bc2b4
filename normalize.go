package epubreplace

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

// canonicalPrologue is written in front of every rewritten document,
// replacing whatever declaration and doctype the original carried.
const canonicalPrologue = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" + `<!DOCTYPE html>` + "\n"

var (
	xmlDeclOpen  = []byte("<?xml")
	xmlDeclClose = []byte("?>")
)

// declEncodingPattern extracts the encoding pseudo-attribute of an XML
// declaration.
var declEncodingPattern = regexp.MustCompile(`encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// stripPrologue removes a leading BOM and XML declaration. When the
// declaration names an encoding other than UTF-8, the remaining content is
// transcoded to UTF-8, since the declaration announcing it is gone.
func stripPrologue(data []byte) ([]byte, error) {
	data = stripBOM(data)
	if !hasXMLDecl(data) {
		return data, nil
	}
	end := bytes.Index(data, xmlDeclClose)
	if end < 0 {
		return data, nil
	}
	decl, rest := data[:end+len(xmlDeclClose)], data[end+len(xmlDeclClose):]

	enc := declaredEncoding(decl)
	if enc == "" || isUTF8Label(enc) {
		return rest, nil
	}
	r, err := charset.NewReaderLabel(enc, bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("epubreplace: unsupported document encoding %q: %w", enc, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("epubreplace: transcode %s: %w", enc, err)
	}
	return out, nil
}

// hasXMLDecl reports whether data starts with "<?xml" as a complete target
// name, so "<?xml-stylesheet ...?>" is not mistaken for a declaration.
func hasXMLDecl(data []byte) bool {
	if !bytes.HasPrefix(data, xmlDeclOpen) || len(data) == len(xmlDeclOpen) {
		return false
	}
	switch data[len(xmlDeclOpen)] {
	case ' ', '\t', '\r', '\n', '?':
		return true
	}
	return false
}

func declaredEncoding(decl []byte) string {
	m := declEncodingPattern.FindSubmatch(decl)
	if m == nil {
		return ""
	}
	return string(m[1])
}

func isUTF8Label(label string) bool {
	switch strings.ToLower(label) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

// withPrologue prepends the canonical declaration and doctype to body.
func withPrologue(body []byte) []byte {
	out := make([]byte, 0, len(canonicalPrologue)+len(body))
	out = append(out, canonicalPrologue...)
	return append(out, body...)
}
