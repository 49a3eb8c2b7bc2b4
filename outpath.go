package epubreplace

import (
	"path"
	"path/filepath"
	"strings"
)

// outputPrefix marks files produced by a rewrite.
const outputPrefix = "out."

// DefaultOutputPath returns the output path used when none is given:
// "out.<name>" beside the source. Leading "out." prefixes already on the
// name are dropped first, so rewriting an output again does not stack
// them. URLs such as "s3://bucket/key" are split on "/".
func DefaultOutputPath(src string) string {
	var dir, base string
	if strings.Contains(src, "://") {
		dir, base = path.Split(src)
	} else {
		dir, base = filepath.Split(src)
	}
	for strings.HasPrefix(base, outputPrefix) && len(base) > len(outputPrefix) {
		base = base[len(outputPrefix):]
	}
	return dir + outputPrefix + base
}
