// Package storage provides a small object-storage abstraction with
// file system and S3 engines, addressed by URI.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
)

var ErrNotSupported = errors.New("method call on storage engine not supported")

type Engine interface {
	Get(context.Context, *URI) (io.ReadCloser, error)
	Put(context.Context, *URI) (io.WriteCloser, error)
	Exists(context.Context, *URI) (bool, error)
	Delete(context.Context, *URI) error
	Size(context.Context, *URI) (int64, error)
}

// NewEngine returns the engine serving u's scheme.
func NewEngine(u *URI) (Engine, error) {
	switch Scheme(u.Scheme) {
	case S3Scheme:
		return NewS3(nil), nil
	case FileScheme:
		return NewFileSystem(), nil
	}
	return nil, ErrNotSupported
}

func Put(ctx context.Context, engine Engine, u *URI, r io.Reader) error {
	w, err := engine.Put(ctx, u)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	return err
}

func PutBytes(ctx context.Context, engine Engine, u *URI, b []byte) error {
	return Put(ctx, engine, u, bytes.NewReader(b))
}

func Get(ctx context.Context, engine Engine, u *URI) ([]byte, error) {
	r, err := engine.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if closeErr := r.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
