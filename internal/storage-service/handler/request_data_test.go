package handler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.FatalLevel)
	return logger.WithField("in_test", true)
}

// blobRequest builds an upload for p. A nil content sends an empty form.
func blobRequest(t *testing.T, p string, content []byte) *http.Request {
	t.Helper()
	var buffer bytes.Buffer
	mw := multipart.NewWriter(&buffer)
	if content != nil {
		fw, err := mw.CreateFormFile(fieldNameBlob, "blob")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "http://example.com/object/"+p, &buffer)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.SetPathValue(fieldNamePath, p)
	return r
}

func plainRequest(method, p string) *http.Request {
	r := httptest.NewRequest(method, "http://example.com/object/"+p, nil)
	r.SetPathValue(fieldNamePath, p)
	return r
}

func TestNewRequestData(t *testing.T) {
	tests := []struct {
		name     string
		request  func(t *testing.T) *http.Request
		wantErr  error
		wantPath string
		wantBody *string
	}{
		{
			name:     "upload",
			request:  func(t *testing.T) *http.Request { return blobRequest(t, "2026/01/id/report.pdf", []byte("%PDF")) },
			wantPath: "2026/01/id/report.pdf",
			wantBody: ptr("%PDF"),
		},
		{
			name:     "empty blob is still a blob",
			request:  func(t *testing.T) *http.Request { return blobRequest(t, "a/empty", []byte{}) },
			wantPath: "a/empty",
			wantBody: ptr(""),
		},
		{
			name:    "upload without path",
			request: func(t *testing.T) *http.Request { return blobRequest(t, "", []byte("x")) },
			wantErr: errNoPath,
		},
		{
			name:     "read",
			request:  func(*testing.T) *http.Request { return plainRequest(http.MethodGet, "x/y") },
			wantPath: "x/y",
		},
		{
			name:     "remove",
			request:  func(*testing.T) *http.Request { return plainRequest(http.MethodDelete, "x/y") },
			wantPath: "x/y",
		},
		{
			name: "not a form",
			request: func(*testing.T) *http.Request {
				r := httptest.NewRequest(http.MethodPost, "http://example.com/object/a", strings.NewReader("raw bytes"))
				r.SetPathValue(fieldNamePath, "a")
				return r
			},
			wantErr: errCantParseForm,
		},
		{
			name:    "form without blob",
			request: func(t *testing.T) *http.Request { return blobRequest(t, "a", nil) },
			wantErr: errNoFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rd, err := newRequestData(tt.request(t), getLogger())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rd)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, rd.path)
			if tt.wantBody == nil {
				assert.Nil(t, rd.file)
				return
			}
			require.NotNil(t, rd.file)
			defer rd.file.Close()
			b, err := io.ReadAll(rd.file)
			require.NoError(t, err)
			assert.Equal(t, *tt.wantBody, string(b))
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
