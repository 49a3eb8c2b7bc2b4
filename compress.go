package epubreplace

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// defaultCompressionLevel is used when Options.CompressionLevel is zero.
const defaultCompressionLevel = flate.DefaultCompression

// validCompressionLevel reports whether level is accepted by the deflate
// compressor.
func validCompressionLevel(level int) bool {
	return level >= flate.HuffmanOnly && level <= flate.BestCompression
}

// useDeflate makes zw compress Deflate entries with klauspost/compress at
// the given level.
func useDeflate(zw *zip.Writer, level int) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		fw, err := flate.NewWriter(w, level)
		if err != nil {
			return nil, fmt.Errorf("epubreplace: deflate level %d: %w", level, err)
		}
		return fw, nil
	})
}

// useInflate makes zr decompress Deflate entries with klauspost/compress.
func useInflate(zr *zip.Reader) {
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
}
