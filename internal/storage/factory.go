package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

const s3Scheme = "s3://"

// Location identifies a package either on disk or in a bucket.
type Location struct {
	// Bucket is empty for local paths.
	Bucket string

	// Key is the object key, or the file path for local locations.
	Key string
}

// ParseLocation accepts "s3://bucket/key" or a local file path.
func ParseLocation(s string) (Location, error) {
	if !strings.HasPrefix(s, s3Scheme) {
		if s == "" {
			return Location{}, fmt.Errorf("empty location")
		}
		return Location{Key: s}, nil
	}
	rest := strings.TrimPrefix(s, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("invalid s3 location %q (want s3://bucket/key)", s)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// IsRemote reports whether the location refers to a bucket.
func (l Location) IsRemote() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsRemote() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// NewAdapter creates a storage adapter serving loc and returns the path to
// use with it. Local adapters are rooted at the file's directory.
func NewAdapter(ctx context.Context, loc Location, s3opts S3Options) (Adapter, string, error) {
	if !loc.IsRemote() {
		a, err := NewLocalAdapter(filepath.Dir(loc.Key))
		if err != nil {
			return nil, "", err
		}
		return a, filepath.Base(loc.Key), nil
	}
	s3opts.Bucket = loc.Bucket
	a, err := NewS3Adapter(ctx, s3opts)
	if err != nil {
		return nil, "", err
	}
	return a, loc.Key, nil
}
