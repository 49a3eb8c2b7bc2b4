package epubreplace

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
)

// Diagnostic is a non-fatal problem found while rewriting a package. Entry
// is empty for package-level findings.
type Diagnostic struct {
	Entry   string `json:"entry,omitempty"`
	Message string `json:"message"`
}

// DocumentReport summarizes the rewrite of one content document.
type DocumentReport struct {
	Name         string `json:"name"`
	MediaType    string `json:"media_type"`
	Replacements int    `json:"replacements"`

	// Degraded is set when the document was recovered by the HTML parser.
	Degraded bool `json:"degraded,omitempty"`

	// Skipped is set when the document could not be rewritten and was
	// copied through unchanged.
	Skipped bool `json:"skipped,omitempty"`

	InputChecksum  string `json:"input_xxh3"`
	OutputChecksum string `json:"output_xxh3,omitempty"`
}

// Report describes a completed rewrite.
type Report struct {
	Source      string   `json:"source,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Version     string   `json:"epub_version,omitempty"`
	Book        BookInfo `json:"book"`
	Mode        string   `json:"mode"`
	Pairs       []Pair   `json:"pairs"`

	// Entries is the number of file entries in the package.
	Entries int `json:"entries"`

	// Replacements is the total number of substitutions across documents.
	Replacements int `json:"replacements"`

	Documents []DocumentReport `json:"documents"`
	Warnings  []Diagnostic     `json:"warnings,omitempty"`

	// OutputDigest is the BLAKE2b-256 digest of the written archive.
	OutputDigest string `json:"output_blake2b,omitempty"`
}

func newReport(plan *Plan) *Report {
	return &Report{
		Mode:      plan.Mode().String(),
		Pairs:     plan.Pairs(),
		Documents: []DocumentReport{},
	}
}

func (r *Report) warn(entry, format string, args ...any) {
	r.Warnings = append(r.Warnings, Diagnostic{Entry: entry, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) addDocument(d DocumentReport) {
	r.Documents = append(r.Documents, d)
	r.Replacements += d.Replacements
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// checksum fingerprints entry content for the report.
func checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}
