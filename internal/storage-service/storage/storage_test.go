package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getLogger() *log.Logger {
	l := log.New()
	l.SetLevel(log.FatalLevel)
	return l
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), getLogger().WithField("test", t.Name()))
	require.NoError(t, err)
	return s
}

func TestNewStorage_CantCreate(t *testing.T) {
	base := t.TempDir()
	// a regular file where the blobs dir should be
	require.NoError(t, os.WriteFile(filepath.Join(base, "blobs"), nil, 0o600))

	_, err := NewStorage(base, getLogger().WithField("test", t.Name()))
	if !errors.Is(err, ErrCantCreateStorage) {
		t.Errorf("unexpected error:\n%s", cmp.Diff(ErrCantCreateStorage, err, cmpopts.EquateErrors()))
	}
}

func TestStorage_GetFile(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.path, "dir"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(s.path, "file1.txt"), []byte("Now you see me"), 0o600))

	tests := []struct {
		name    string
		p       string
		want    string
		wantErr error
	}{
		{name: "empty", wantErr: ErrIsNotAFile},
		{name: "valid file", p: "file1.txt", want: "Now you see me"},
		{name: "can't find", p: "file2.txt", wantErr: ErrCantFindBlob},
		{name: "directory", p: "dir", wantErr: ErrIsNotAFile},
		{name: "escape", p: "../file1.txt", wantErr: ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetFile(context.Background(), tt.p)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got == nil {
				return
			}
			defer got.Close()
			b, err := io.ReadAll(got)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, string(b)); diff != "" {
				t.Errorf("GetFile()\n%s", diff)
			}
		})
	}

	_, err := s.GetFile(context.Background(), "missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

type readerWithError struct {
}

func (readerWithError) Read(_ []byte) (n int, err error) {
	return 0, errors.New("test error")
}

func TestStorage_SaveFile(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.path, "failedDir"), nil, 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(s.path, "dir"), os.ModePerm))

	dummyFile := strings.NewReader("won't be needed")
	tests := []struct {
		name     string
		fileName string
		file     io.Reader
		wantErr  error
		want     string
	}{
		{name: "empty", wantErr: ErrNothingToSave},
		{name: "empty name", file: dummyFile, wantErr: ErrNothingToSave},
		{name: "escape", fileName: "../../etc/passwd", file: dummyFile, wantErr: ErrInvalidPath},
		{name: "failed dir", fileName: "failedDir/testFile/sdf", file: dummyFile, wantErr: ErrCantCreateBlobDir},
		{name: "file in place of dir", fileName: "dir", file: dummyFile, wantErr: ErrCantCreateBlobFile},
		{name: "can't write", fileName: "cantWrite.file", file: readerWithError{}, wantErr: ErrCantWriteBlobFile},
		{name: "success", fileName: "a/b/success.txt", file: strings.NewReader("success"), want: "success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.SaveFile(context.Background(), tt.fileName, tt.file)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("unexpected error:\n%s", cmp.Diff(tt.wantErr, err, cmpopts.EquateErrors()))
			}
			if tt.wantErr != nil {
				return
			}
			assert.Equal(t, int64(len(tt.want)), n)
			got, err := os.ReadFile(filepath.Join(s.path, tt.fileName))
			assert.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	t.Run("no temp files left", func(t *testing.T) {
		matches, err := filepath.Glob(filepath.Join(s.path, ".upload-*"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestStorage_RemoveFile(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_, err := s.SaveFile(ctx, "x/y.bin", strings.NewReader("bytes"))
	require.NoError(t, err)

	assert.NoError(t, s.RemoveFile(ctx, "x/y.bin"))
	_, err = s.GetFile(ctx, "x/y.bin")
	assert.ErrorIs(t, err, ErrCantFindBlob)
	assert.NoError(t, s.RemoveFile(ctx, "x/y.bin"), "removing twice is fine")
	assert.ErrorIs(t, s.RemoveFile(ctx, ".."), ErrInvalidPath)
}
