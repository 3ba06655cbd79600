// Package storage stores file contents as opaque blobs addressed by a handle.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
)

var (
	ErrCantSaveBlob   = errors.New("can't save blob")
	ErrCantOpenBlob   = errors.New("can't open blob")
	ErrCantRemoveBlob = errors.New("can't remove blob")
)

// Backend is either a local directory or a remote storage-service node.
type Backend interface {
	SaveFile(ctx context.Context, path string, file io.Reader) (int64, error)
	GetFile(ctx context.Context, path string) (io.ReadCloser, error)
	RemoveFile(ctx context.Context, path string) error
}

type Blobs struct {
	b   Backend
	l   *log.Entry
	now func() time.Time
}

func NewBlobs(b Backend, l *log.Entry) *Blobs {
	return &Blobs{b: b, l: l, now: time.Now}
}

// Put stores r under a fresh handle of the form yyyy/mm/<uuid>/<name>.
func (s *Blobs) Put(ctx context.Context, r io.Reader, name string) (string, int64, error) {
	handle := s.newHandle(name)
	n, err := s.b.SaveFile(ctx, handle, r)
	if err != nil {
		s.l.WithError(err).WithField("blob", handle).Error(ErrCantSaveBlob)
		return "", 0, ErrCantSaveBlob
	}
	return handle, n, nil
}

func (s *Blobs) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	f, err := s.b.GetFile(ctx, handle)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", handle, apperr.ErrNotFound)
		}
		s.l.WithError(err).WithField("blob", handle).Error(ErrCantOpenBlob)
		return nil, ErrCantOpenBlob
	}
	return f, nil
}

func (s *Blobs) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := s.b.RemoveFile(ctx, handle); err != nil {
		s.l.WithError(err).WithField("blob", handle).Error(ErrCantRemoveBlob)
		return ErrCantRemoveBlob
	}
	return nil
}

// DeleteAll removes every handle concurrently and reports the first failure.
// Failing removals don't stop the others.
func (s *Blobs) DeleteAll(ctx context.Context, handles []string) error {
	g := new(errgroup.Group)
	g.SetLimit(8)
	for _, h := range handles {
		h := h
		g.Go(func() error {
			return s.Delete(ctx, h)
		})
	}
	return g.Wait()
}

func (s *Blobs) newHandle(name string) string {
	return path.Join(s.now().UTC().Format("2006/01"), uuid.NewString(), sanitize(name))
}

func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "blob"
	}
	return name
}
