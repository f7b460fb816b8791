package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const uriScheme = "s3://"

var (
	bucketPattern        = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
)

// Location addresses one object in a bucket.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return uriScheme + l.Bucket + "/" + l.Key
}

// IsObjectURI reports whether raw names an object store location rather than a local path.
func IsObjectURI(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), uriScheme)
}

// ParseURI parses s3://bucket/key.
func ParseURI(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, uriScheme) {
		return Location{}, fmt.Errorf("invalid object uri %q: scheme must be s3", raw)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(raw, uriScheme), "/")
	if !ok || strings.Trim(key, "/") == "" {
		return Location{}, fmt.Errorf("invalid object uri %q: key is required", raw)
	}
	if !bucketPattern.MatchString(bucket) {
		return Location{}, fmt.Errorf("invalid object uri %q: bad bucket name", raw)
	}
	return Location{Bucket: bucket, Key: strings.TrimPrefix(key, "/")}, nil
}

// ExemplarKey is where a published exemplar artifact lives inside the bucket.
func ExemplarKey(name string) (string, error) {
	name = path.Base(strings.TrimSpace(name))
	if err := validatePathComponent(name, "artifact name"); err != nil {
		return "", err
	}
	return path.Join("exemplars", name), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
