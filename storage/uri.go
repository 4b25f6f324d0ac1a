package storage

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

type Scheme string

const (
	FileScheme Scheme = "file"
	S3Scheme   Scheme = "s3"
)

type URI url.URL

// ParseURI parses path with url.Parse.  A path without a known scheme
// is treated as a file and resolved to an absolute path, so bare
// relative paths (and Windows-style paths with embedded colons) work.
func ParseURI(path string) (*URI, error) {
	if path == "" {
		return &URI{}, nil
	}
	u, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if !knownScheme(Scheme(u.Scheme)) {
		return parseBarePath(path)
	}
	return (*URI)(u), nil
}

func MustParseURI(path string) *URI {
	u, err := ParseURI(path)
	if err != nil {
		panic(err)
	}
	return u
}

func parseBarePath(path string) (*URI, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &URI{Scheme: string(FileScheme), Path: filepath.ToSlash(abs)}, nil
}

func knownScheme(s Scheme) bool {
	return s == FileScheme || s == S3Scheme
}

func (u URI) String() string {
	return (*url.URL)(&u).String()
}

func (u *URI) HasScheme(s Scheme) bool {
	return Scheme(u.Scheme) == s
}

// Filepath returns the file system path of a file URI.
func (u *URI) Filepath() string {
	return filepath.FromSlash(u.Path)
}

func (p *URI) JoinPath(elem ...string) *URI {
	u := *p
	for _, el := range elem {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + el
	}
	return &u
}

func (u *URI) IsZero() bool {
	return *u == URI{}
}

func (u *URI) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *URI) UnmarshalText(b []byte) error {
	uri, err := ParseURI(string(b))
	if err != nil {
		return err
	}
	*u = *uri
	return nil
}

func (u *URI) Validate() error {
	if !knownScheme(Scheme(u.Scheme)) {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}
