package epubreplace

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

// packageMediaType identifies the OPF rootfile in container.xml.
const packageMediaType = "application/oebps-package+xml"

type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// locateOPF returns the archive path of the package document. It reads
// META-INF/container.xml when present and otherwise falls back to the first
// ".opf" entry. Failure wraps ErrInvalidEPub.
func locateOPF(zr *zip.Reader, limit int64) (string, error) {
	if f := findFileInsensitive(zr, containerPath); f != nil {
		return parseContainerXML(f, limit)
	}
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("epubreplace: no OPF file found in archive: %w", ErrInvalidEPub)
}

// parseContainerXML returns the full-path of the rootfile declared with the
// OPF media type, or of the first non-empty rootfile.
func parseContainerXML(f *zip.File, limit int64) (string, error) {
	data, err := readZipFile(f, limit)
	if err != nil {
		return "", err
	}

	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("epubreplace: parse container.xml: %v: %w", err, ErrInvalidEPub)
	}

	var fallback string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), packageMediaType) {
			return fullPath, nil
		}
		if fallback == "" {
			fallback = fullPath
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("epubreplace: container.xml lists no usable rootfile: %w", ErrInvalidEPub)
	}
	return fallback, nil
}
