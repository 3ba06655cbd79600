package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	ErrCantCreateStorage  = errors.New("can't create blob storage dir")
	ErrCantCreateBlobFile = errors.New("can't create blob file")
	ErrCantWriteBlobFile  = errors.New("can't write blob file")
	ErrCantCreateBlobDir  = errors.New("can't create blob dir")
	ErrNothingToSave      = errors.New("nothing to save")
	ErrInvalidPath        = errors.New("invalid blob path")
	ErrIsNotAFile         = errors.New("blob path is not a file")

	ErrCantFindBlob   = errors.New("can't find the blob")
	ErrCantReadBlob   = errors.New("can't read the blob file")
	ErrCantRemoveBlob = errors.New("can't remove the blob file")
)

// Storage keeps blobs as plain files under a base directory.
type Storage struct {
	path string
	l    *log.Entry
}

func NewStorage(basePath string, l *log.Entry) (*Storage, error) {
	storagePath := filepath.Join(basePath, "blobs")
	if err := os.MkdirAll(storagePath, fs.ModePerm); err != nil {
		l.WithError(err).WithField("storage_path", storagePath).Error(ErrCantCreateStorage)
		return nil, fmt.Errorf("%w: %w", ErrCantCreateStorage, err)
	}
	return &Storage{path: storagePath, l: l.WithField("storage_base_path", storagePath)}, nil
}

// resolve maps a blob path to a file path inside the storage dir.
func (s *Storage) resolve(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(p, "/")))
	if p == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.path, clean), nil
}

func (s *Storage) GetFile(_ context.Context, p string) (io.ReadCloser, error) {
	blobPath, err := s.resolve(p)
	if err != nil {
		if p == "" {
			return nil, ErrIsNotAFile
		}
		return nil, err
	}
	l := s.l.WithField("blob_path", blobPath)

	st, err := os.Stat(blobPath)
	if err != nil {
		l.WithError(err).Warn(ErrCantFindBlob)
		return nil, fmt.Errorf("%w: %w", ErrCantFindBlob, fs.ErrNotExist)
	}
	if st.IsDir() {
		return nil, ErrIsNotAFile
	}
	f, err := os.Open(blobPath)
	if err != nil {
		l.WithError(err).Error(ErrCantReadBlob)
		return nil, ErrCantReadBlob
	}
	return f, nil
}

// SaveFile writes the blob through a temp file so a reader never sees a
// partially written blob.
func (s *Storage) SaveFile(ctx context.Context, p string, file io.Reader) (int64, error) {
	if file == nil {
		return 0, ErrNothingToSave
	}
	blobPath, err := s.resolve(p)
	if err != nil {
		if p == "" {
			return 0, ErrNothingToSave
		}
		return 0, err
	}
	if err = ctx.Err(); err != nil {
		return 0, err
	}

	blobDir := filepath.Dir(blobPath)
	if err := os.MkdirAll(blobDir, fs.ModePerm); err != nil {
		s.l.
			WithField("blob_dir", blobDir).
			WithError(err).
			Error(ErrCantCreateBlobDir)
		return 0, ErrCantCreateBlobDir
	}

	tmp, err := os.CreateTemp(blobDir, ".upload-*")
	if err != nil {
		s.l.WithField("blob_path", blobPath).WithError(err).Error(ErrCantCreateBlobFile)
		return 0, ErrCantCreateBlobFile
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.l.WithField("blob_path", blobPath).WithError(err).Error(ErrCantWriteBlobFile)
		return 0, ErrCantWriteBlobFile
	}
	if err = os.Rename(tmp.Name(), blobPath); err != nil {
		s.l.WithField("blob_path", blobPath).WithError(err).Error(ErrCantCreateBlobFile)
		return 0, ErrCantCreateBlobFile
	}
	return n, nil
}

// RemoveFile deletes a blob. Removing a missing blob is not an error.
func (s *Storage) RemoveFile(_ context.Context, p string) error {
	blobPath, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err = os.Remove(blobPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.l.WithField("blob_path", blobPath).WithError(err).Error(ErrCantRemoveBlob)
		return ErrCantRemoveBlob
	}
	return nil
}
