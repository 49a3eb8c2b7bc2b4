package epubreplace

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"
)

// fiveEntryEPub is a small package with the mimetype entry first.
func fiveEntryEPub() []testEntry {
	return []testEntry{
		{Name: "mimetype", Body: expectedMimetype, Method: zip.Store},
		{Name: "META-INF/container.xml", Body: testContainerXML},
		{Name: "OEBPS/content.opf", Body: testOPF("ch1.xhtml")},
		{Name: "OEBPS/style.css", Body: "p { margin: 0 }"},
		{Name: "OEBPS/ch1.xhtml", Body: xhtmlDoc(`<p>The cat sat.</p>`)},
	}
}

func TestRepack_ArchiveIntegrity(t *testing.T) {
	in := buildTestZipBytes(t, fiveEntryEPub())
	out, _ := rewriteBytes(t, mustPlan(t, "cat", "dog", ModeSequential), in)

	zr := openTestZip(t, out)
	if len(zr.File) != 5 {
		t.Fatalf("entries = %d, want 5: %v", len(zr.File), zipNames(zr))
	}

	first := zr.File[0]
	if first.Name != "mimetype" {
		t.Fatalf("first entry = %q, want mimetype", first.Name)
	}
	if first.Method != zip.Store {
		t.Errorf("mimetype method = %d, want Store", first.Method)
	}
	if len(first.Extra) != 0 {
		t.Errorf("mimetype has %d bytes of extra field", len(first.Extra))
	}
	if got := zipEntry(t, zr, "mimetype"); got != expectedMimetype {
		t.Errorf("mimetype = %q", got)
	}

	// The local header must be directly readable: no data descriptor flag,
	// no extra field, and the content right after the name.
	if !bytes.HasPrefix(out, []byte("PK\x03\x04")) {
		t.Fatal("archive does not start with a local file header")
	}
	if flags := binary.LittleEndian.Uint16(out[6:8]); flags&0x8 != 0 {
		t.Errorf("mimetype header flags = %#x, data descriptor set", flags)
	}
	if method := binary.LittleEndian.Uint16(out[8:10]); method != 0 {
		t.Errorf("mimetype local method = %d", method)
	}
	if extra := binary.LittleEndian.Uint16(out[28:30]); extra != 0 {
		t.Errorf("mimetype local extra length = %d", extra)
	}
	if got := string(out[30:38]); got != "mimetype" {
		t.Errorf("local header name = %q", got)
	}
	if got := string(out[38 : 38+len(expectedMimetype)]); got != expectedMimetype {
		t.Errorf("bytes after header = %q", got)
	}

	for _, f := range zr.File[1:] {
		if f.Method != zip.Deflate {
			t.Errorf("%s method = %d, want Deflate", f.Name, f.Method)
		}
	}
}

func TestRepack_PreservesOrderAndUntouchedContent(t *testing.T) {
	entries := fiveEntryEPub()
	in := buildTestZipBytes(t, entries)
	out, _ := rewriteBytes(t, mustPlan(t, "cat", "dog", ModeSequential), in)

	zr := openTestZip(t, out)
	var want []string
	for _, e := range entries {
		want = append(want, e.Name)
	}
	if got := zipNames(zr); !reflect.DeepEqual(got, want) {
		t.Errorf("entry order = %v, want %v", got, want)
	}
	for _, e := range entries[:4] {
		if got := zipEntry(t, zr, e.Name); got != e.Body {
			t.Errorf("%s changed:\n got: %q\nwant: %q", e.Name, got, e.Body)
		}
	}
}

func TestRepack_MimetypeMovedToFront(t *testing.T) {
	entries := fiveEntryEPub()
	// Put the mimetype last and compress it.
	entries = append(entries[1:], testEntry{Name: "mimetype", Body: expectedMimetype, Method: zip.Deflate})
	out, report := rewriteBytes(t, mustPlan(t, "cat", "dog", ModeSequential), buildTestZipBytes(t, entries))

	zr := openTestZip(t, out)
	if zr.File[0].Name != "mimetype" || zr.File[0].Method != zip.Store {
		t.Errorf("first entry = %s method %d", zr.File[0].Name, zr.File[0].Method)
	}
	if len(zr.File) != 5 {
		t.Errorf("entries = %v", zipNames(zr))
	}
	if len(report.Warnings) == 0 {
		t.Error("no warning about the misplaced mimetype")
	}
}

func TestRepack_KeepsModifiedTimes(t *testing.T) {
	ts := time.Date(2021, 6, 15, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range fiveEntryEPub() {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: ts}
		if e.Name == "mimetype" {
			hdr.Method = zip.Store
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(e.Body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	out, _ := rewriteBytes(t, mustPlan(t, "cat", "dog", ModeSequential), buf.Bytes())
	for _, f := range openTestZip(t, out).File {
		if !f.Modified.Equal(ts) {
			t.Errorf("%s modified = %v, want %v", f.Name, f.Modified, ts)
		}
	}
}

func TestRewrite_MissingMimetype(t *testing.T) {
	entries := fiveEntryEPub()[1:]
	in := buildTestZipBytes(t, entries)

	rw, err := NewRewriter(mustPlan(t, "cat", "dog", ModeSequential), Options{TempDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	_, err = rw.Rewrite(t.Context(), bytes.NewReader(in), int64(len(in)), &out)
	if !errors.Is(err, ErrMissingMimetype) {
		t.Fatalf("Rewrite() error = %v, want ErrMissingMimetype", err)
	}
	if !errors.Is(err, ErrArchive) {
		t.Errorf("error %v does not wrap ErrArchive", err)
	}
}

func TestUnpack(t *testing.T) {
	tests := []struct {
		name    string
		entries []testEntry
		want    []string
		wantErr error
	}{
		{
			name: "directories skipped",
			entries: []testEntry{
				{Name: "mimetype", Body: expectedMimetype},
				{Name: "OEBPS/", Method: zip.Store},
				{Name: "OEBPS/a.xhtml", Body: "a"},
			},
			want: []string{"mimetype", "OEBPS/a.xhtml"},
		},
		{
			name: "duplicate keeps first position",
			entries: []testEntry{
				{Name: "a.txt", Body: "first"},
				{Name: "b.txt", Body: "b"},
				{Name: "a.txt", Body: "second"},
			},
			want: []string{"a.txt", "b.txt"},
		},
		{
			name:    "path traversal",
			entries: []testEntry{{Name: "../evil.txt", Body: "x"}},
			wantErr: ErrArchiveCorrupt,
		},
		{
			name:    "absolute path",
			entries: []testEntry{{Name: "/etc/evil", Body: "x"}},
			wantErr: ErrArchiveCorrupt,
		},
		{
			name: "doubled slash",
			entries: []testEntry{
				{Name: "OEBPS/style.css", Body: "p {}"},
				{Name: "OEBPS//style.css", Body: "x"},
			},
			wantErr: ErrArchiveCorrupt,
		},
		{
			name:    "dot segment",
			entries: []testEntry{{Name: "OEBPS/./img.txt", Body: "x"}},
			wantErr: ErrArchiveCorrupt,
		},
		{
			name:    "dot-dot inside",
			entries: []testEntry{{Name: "OEBPS/text/../ch1.xhtml", Body: "x"}},
			wantErr: ErrArchiveCorrupt,
		},
		{
			name:    "leading dot",
			entries: []testEntry{{Name: "./mimetype", Body: expectedMimetype}},
			wantErr: ErrArchiveCorrupt,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zr := openTestZip(t, buildTestZipBytes(t, tt.entries))
			ws, err := newWorkspace(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			defer ws.Close()

			got, err := unpack(t.Context(), zr, ws, defaultMaxEntrySize)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("unpack() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unpack() error = %v", err)
			}
			var names []string
			for _, e := range got {
				names = append(names, e.Name)
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("unpack() = %v, want %v", names, tt.want)
			}
		})
	}
}

func TestUnpack_DuplicateKeepsLastContent(t *testing.T) {
	zr := openTestZip(t, buildTestZipBytes(t, []testEntry{
		{Name: "a.txt", Body: "first"},
		{Name: "a.txt", Body: "second"},
	}))
	ws, err := newWorkspace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	if _, err := unpack(t.Context(), zr, ws, defaultMaxEntrySize); err != nil {
		t.Fatal(err)
	}
	if data, _ := ws.readFile("a.txt"); string(data) != "second" {
		t.Errorf("a.txt = %q, want %q", data, "second")
	}
}

func TestRepackOrder_AppendsNewFiles(t *testing.T) {
	ws, err := newWorkspace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	for _, name := range []string{"mimetype", "z.txt", "b/new.txt", "a/new.txt"} {
		if err := ws.writeFile(name, []byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	entries := []archiveEntry{{Name: "mimetype"}, {Name: "z.txt"}, {Name: "gone.txt"}}

	order, err := repackOrder(ws, entries)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range order {
		got = append(got, e.Name)
	}
	if want := []string{"mimetype", "z.txt", "a/new.txt", "b/new.txt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("repackOrder() = %v, want %v", got, want)
	}
}

func TestMsDosTime(t *testing.T) {
	date, clock := msDosTime(time.Date(2024, 3, 9, 14, 25, 36, 0, time.UTC))
	if want := uint16(9 | 3<<5 | 44<<9); date != want {
		t.Errorf("date = %#x, want %#x", date, want)
	}
	if want := uint16(18 | 25<<5 | 14<<11); clock != want {
		t.Errorf("time = %#x, want %#x", clock, want)
	}

	date, clock = msDosTime(time.Time{})
	if date != 1|1<<5 || clock != 0 {
		t.Errorf("zero time = %#x %#x, want the 1980 epoch", date, clock)
	}
}
