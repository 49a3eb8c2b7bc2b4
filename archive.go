package epubreplace

import (
	"archive/zip"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"path"
	"strings"
	"time"
)

// archiveEntry records where a file sat in the input archive.
type archiveEntry struct {
	Name     string
	Modified time.Time
}

// unpack extracts every file entry of zr into ws and returns the entries in
// archive order. Directory entries only create directories. A repeated name
// keeps its first position and its last content. Names that are not in
// clean slash-separated form are rejected.
func unpack(ctx context.Context, zr *zip.Reader, ws *workspace, limit int64) ([]archiveEntry, error) {
	entries := make([]archiveEntry, 0, len(zr.File))
	seen := make(map[string]bool, len(zr.File))

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(f.Name, "/")
		if !isSafePath(name) {
			return nil, fmt.Errorf("%w: unsafe entry name %q", ErrArchiveCorrupt, f.Name)
		}
		// "a//b" or "a/./b" would land on the same workspace file as "a/b".
		if path.Clean(name) != name {
			return nil, fmt.Errorf("%w: non-canonical entry name %q", ErrArchiveCorrupt, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := ws.mkdirAll(name); err != nil {
				return nil, fmt.Errorf("%w: extract %s: %v", ErrArchiveCorrupt, f.Name, err)
			}
			continue
		}

		data, err := readZipFile(f, limit)
		if err != nil {
			return nil, err
		}
		if err := ws.writeFile(name, data); err != nil {
			return nil, fmt.Errorf("%w: extract %s: %v", ErrArchiveCorrupt, f.Name, err)
		}

		if seen[name] {
			continue
		}
		seen[name] = true
		entries = append(entries, archiveEntry{Name: name, Modified: f.Modified})
	}
	return entries, nil
}

// repack writes the workspace contents as an ePub container. The mimetype
// entry comes first, stored without compression or extra fields. The
// remaining entries follow in their original order and are deflated;
// files that appeared in the workspace after extraction are appended in
// lexical order.
func repack(ctx context.Context, ws *workspace, entries []archiveEntry, w io.Writer, level int) error {
	mimetype, err := ws.readFile(mimetypeName)
	if err != nil {
		if ok, _ := ws.exists(mimetypeName); !ok {
			return ErrMissingMimetype
		}
		return fmt.Errorf("epubreplace: read %s: %w", mimetypeName, err)
	}

	order, err := repackOrder(ws, entries)
	if err != nil {
		return fmt.Errorf("epubreplace: list workspace: %w", err)
	}

	zw := zip.NewWriter(w)
	useDeflate(zw, level)

	if err := writeMimetype(zw, mimetype, modifiedOf(entries, mimetypeName)); err != nil {
		return err
	}

	for _, e := range order {
		if e.Name == mimetypeName {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := ws.readFile(e.Name)
		if err != nil {
			return fmt.Errorf("epubreplace: read %s: %w", e.Name, err)
		}
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: e.Modified,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("epubreplace: write %s: %w", e.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("epubreplace: write %s: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("epubreplace: finish archive: %w", err)
	}
	return nil
}

// writeMimetype emits the mimetype entry as a raw stored record so the
// local header carries its sizes and no data descriptor or extra field
// follows.
func writeMimetype(zw *zip.Writer, data []byte, modified time.Time) error {
	hdr := &zip.FileHeader{
		Name:               mimetypeName,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}
	// Setting Modified would add an extended timestamp extra field.
	hdr.ModifiedDate, hdr.ModifiedTime = msDosTime(modified)

	fw, err := zw.CreateRaw(hdr)
	if err != nil {
		return fmt.Errorf("epubreplace: write %s: %w", mimetypeName, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("epubreplace: write %s: %w", mimetypeName, err)
	}
	return nil
}

// repackOrder returns the extracted entries still present in the
// workspace, followed by any files not seen during extraction.
func repackOrder(ws *workspace, entries []archiveEntry) ([]archiveEntry, error) {
	files, err := ws.files()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(files))
	for _, name := range files {
		present[name] = true
	}

	order := make([]archiveEntry, 0, len(files))
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.Name] = true
		if present[e.Name] {
			order = append(order, e)
		}
	}
	now := time.Now()
	for _, name := range files {
		if !known[name] {
			order = append(order, archiveEntry{Name: name, Modified: now})
		}
	}
	return order, nil
}

func modifiedOf(entries []archiveEntry, name string) time.Time {
	for _, e := range entries {
		if e.Name == name {
			return e.Modified
		}
	}
	return time.Time{}
}

// msDosTime converts t to the MS-DOS date and time fields of a ZIP header.
// Times before 1980 clamp to the format's epoch.
func msDosTime(t time.Time) (date, clock uint16) {
	if t.IsZero() || t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	date = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	clock = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return date, clock
}
