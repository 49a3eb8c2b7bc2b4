package epubreplace

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/simp-lee/epubreplace/internal/storage"
)

// Options configures a Rewriter. The zero value is usable.
type Options struct {
	// CompressionLevel is the deflate level for repacked entries, from
	// flate.HuffmanOnly (-2) to flate.BestCompression (9). Zero selects the
	// default level.
	CompressionLevel int

	// MaxEntrySize caps the decompressed size of a single archive entry.
	// Zero selects 256 MiB.
	MaxEntrySize int64

	// TempDir is the parent of per-run workspaces and of staged output
	// files. Empty selects the system temporary directory.
	TempDir string

	// Logger receives progress and diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Rewriter applies a replacement plan to ePub packages. A Rewriter holds no
// per-run state and may be used from multiple goroutines; every run gets
// its own workspace.
type Rewriter struct {
	plan *Plan
	opts Options
	log  *slog.Logger
}

// NewRewriter validates opts and returns a Rewriter for plan.
func NewRewriter(plan *Plan, opts Options) (*Rewriter, error) {
	if plan == nil || plan.Len() == 0 {
		return nil, ErrEmptyPlan
	}
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = defaultCompressionLevel
	}
	if !validCompressionLevel(opts.CompressionLevel) {
		return nil, fmt.Errorf("%w: compression level %d out of range", ErrConfiguration, opts.CompressionLevel)
	}
	if opts.MaxEntrySize < 0 {
		return nil, fmt.Errorf("%w: negative max entry size", ErrConfiguration)
	}
	if opts.MaxEntrySize == 0 {
		opts.MaxEntrySize = defaultMaxEntrySize
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Rewriter{plan: plan, opts: opts, log: log}, nil
}

// Plan returns the plan the Rewriter applies.
func (r *Rewriter) Plan() *Plan { return r.plan }

// Rewrite reads the ePub in src, applies the plan to every content document
// and writes the repacked package to dst.
//
// A document that cannot be read, parsed or serialized is logged, recorded
// as a warning and copied unchanged; the remaining documents are still
// processed. Errors about the package as a whole (unreadable archive, DRM,
// missing mimetype) abort the run and nothing useful is written to dst.
func (r *Rewriter) Rewrite(ctx context.Context, src io.ReaderAt, size int64, dst io.Writer) (*Report, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	useInflate(zr)

	info, err := inspectPackage(zr, r.opts.MaxEntrySize)
	if err != nil {
		return nil, err
	}

	report := newReport(r.plan)
	report.Version = info.version
	report.Book = info.book
	for _, w := range info.warnings {
		r.log.Warn("package problem", "warning", w)
		report.warn("", "%s", w)
	}

	ws, err := newWorkspace(r.opts.TempDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			r.log.Warn("workspace cleanup failed", "dir", ws.dir, "error", err)
		}
	}()
	r.log.Debug("workspace created", "dir", ws.dir)

	entries, err := unpack(ctx, zr, ws, r.opts.MaxEntrySize)
	if err != nil {
		return nil, err
	}
	report.Entries = len(entries)

	if len(info.documents) == 0 {
		r.log.Info("no content documents found")
	}
	for _, doc := range info.documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.rewriteEntry(ws, doc, report)
	}

	digest, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	if err := repack(ctx, ws, entries, io.MultiWriter(dst, digest), r.opts.CompressionLevel); err != nil {
		return nil, err
	}
	report.OutputDigest = hex.EncodeToString(digest.Sum(nil))

	r.log.Info("rewrite complete",
		"documents", len(report.Documents),
		"replacements", report.Replacements,
		"warnings", len(report.Warnings))
	return report, nil
}

// RewriteFile rewrites the ePub at srcPath into dstPath. The output is
// staged and moved into place only after the whole package was written,
// so dstPath never holds a partial archive. srcPath and dstPath may be
// the same file.
func (r *Rewriter) RewriteFile(ctx context.Context, srcPath, dstPath string) (*Report, error) {
	f, err := os.Open(srcPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, srcPath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrArchiveCorrupt, srcPath)
	}

	staged, err := os.CreateTemp(r.opts.TempDir, "epubreplace-out-*.epub")
	if err != nil {
		return nil, fmt.Errorf("epubreplace: stage output: %w", err)
	}
	defer os.Remove(staged.Name())
	defer staged.Close()

	report, err := r.Rewrite(ctx, f, st.Size(), staged)
	if err != nil {
		return nil, err
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("epubreplace: stage output: %w", err)
	}

	out, err := storage.NewLocalAdapter(filepath.Dir(dstPath))
	if err != nil {
		return nil, fmt.Errorf("epubreplace: open output directory: %w", err)
	}
	defer out.Close()
	if err := out.Put(ctx, filepath.Base(dstPath), staged); err != nil {
		return nil, fmt.Errorf("epubreplace: publish %s: %w", dstPath, err)
	}

	report.Source = srcPath
	report.Destination = dstPath
	r.log.Info("output written", "path", dstPath)
	return report, nil
}

// rewriteEntry rewrites one document inside the workspace. Failures leave
// the entry as it was.
func (r *Rewriter) rewriteEntry(ws *workspace, entry documentEntry, report *Report) {
	log := r.log.With("entry", entry.Name)
	dr := DocumentReport{Name: entry.Name, MediaType: entry.MediaType}

	data, err := ws.readFile(entry.Name)
	if err != nil {
		log.Warn("document unreadable; left unchanged", "error", err)
		report.warn(entry.Name, "read failed: %v; left unchanged", err)
		dr.Skipped = true
		report.addDocument(dr)
		return
	}
	dr.InputChecksum = checksum(data)

	out, doc, n, err := rewriteDocument(data, r.plan)
	if err != nil {
		log.Warn("document not rewritten; left unchanged", "error", err)
		report.warn(entry.Name, "%v; left unchanged", err)
		dr.Skipped = true
		report.addDocument(dr)
		return
	}
	for _, d := range doc.Diagnostics {
		log.Warn("document repaired", "diagnostic", d)
		report.warn(entry.Name, "%s", d)
	}

	if err := ws.writeFile(entry.Name, out); err != nil {
		log.Warn("document not stored; left unchanged", "error", err)
		report.warn(entry.Name, "write failed: %v; left unchanged", err)
		dr.Skipped = true
		report.addDocument(dr)
		return
	}

	dr.Replacements = n
	dr.Degraded = doc.Degraded
	dr.OutputChecksum = checksum(out)
	report.addDocument(dr)
	log.Debug("document rewritten", "replacements", n, "degraded", doc.Degraded)
}

// rewriteDocument normalizes, parses, edits and re-serializes one document.
// Content that is not well-formed XML is recovered with the HTML parser and
// the recovery is noted in the returned document's diagnostics.
func rewriteDocument(data []byte, plan *Plan) ([]byte, *Document, int, error) {
	body, err := stripPrologue(data)
	if err != nil {
		return nil, nil, 0, err
	}

	doc, err := parseXML(body)
	if err != nil {
		xmlErr := err
		doc, err = parseHTML(body)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("epubreplace: parse document: %w", err)
		}
		doc.diagnose("not well-formed XML (%v); recovered with the HTML parser", xmlErr)
	}

	n := Walk(doc, plan)

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, nil, 0, fmt.Errorf("epubreplace: serialize document: %w", err)
	}
	return withPrologue(buf.Bytes()), doc, n, nil
}
