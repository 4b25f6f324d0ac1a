package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type FileSystem struct {
	perm os.FileMode
}

var _ Engine = (*FileSystem)(nil)

func NewFileSystem() *FileSystem {
	return &FileSystem{perm: 0666}
}

func (f *FileSystem) Get(_ context.Context, u *URI) (io.ReadCloser, error) {
	r, err := os.Open(u.Filepath())
	return r, wrapFileError(u, err)
}

func (f *FileSystem) Put(_ context.Context, u *URI) (io.WriteCloser, error) {
	path := u.Filepath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, wrapFileError(u, err)
	}
	w, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, f.perm)
	return w, wrapFileError(u, err)
}

func (f *FileSystem) Exists(_ context.Context, u *URI) (bool, error) {
	_, err := os.Stat(u.Filepath())
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (f *FileSystem) Delete(_ context.Context, u *URI) error {
	return wrapFileError(u, os.Remove(u.Filepath()))
}

func (f *FileSystem) Size(_ context.Context, u *URI) (int64, error) {
	info, err := os.Stat(u.Filepath())
	if err != nil {
		return 0, wrapFileError(u, err)
	}
	return info.Size(), nil
}

func wrapFileError(u *URI, err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", u, os.ErrNotExist)
	}
	return err
}
