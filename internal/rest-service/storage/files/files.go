package files

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrCantGetBlob    = errors.New("can't get blob from storage")
	ErrCantSendBlob   = errors.New("can't send blob to storage")
	ErrCantRemoveBlob = errors.New("can't remove blob from storage")
	ErrBlobNotFound   = errors.New("blob not found in storage")
)

type requester interface {
	Do(req *http.Request) (*http.Response, error)
}

// Files talks to a storage-service node over HTTP.
type Files struct {
	r    requester
	base string
	l    *log.Entry
}

func NewFiles(baseUrl string, l *log.Entry) *Files {
	return &Files{r: getHTTPClient(), base: strings.TrimSuffix(baseUrl, "/"), l: l.WithField("storage_url", baseUrl)}
}

// objectUrl escapes every segment of the handle, so names keep their %, # and
// spaces on the node.
func (f *Files) objectUrl(p string) (string, error) {
	u, err := url.Parse(f.base)
	if err != nil {
		return "", err
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return u.String() + "/object/" + strings.Join(segments, "/"), nil
}

func (f *Files) GetFile(ctx context.Context, p string) (io.ReadCloser, error) {
	l := f.l.WithField("blob_path", p)
	u, err := f.objectUrl(p)
	if err != nil {
		l.WithError(err).Error("can't combine url parts")
		return nil, ErrCantGetBlob
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantGetBlob, err)
	}
	res, err := f.r.Do(req)
	if err != nil {
		l.WithError(err).Error(ErrCantGetBlob)
		return nil, ErrCantGetBlob
	}
	switch res.StatusCode {
	case http.StatusOK:
		return res.Body, nil
	case http.StatusNotFound:
		_ = res.Body.Close()
		return nil, fmt.Errorf("%w: %w", ErrBlobNotFound, fs.ErrNotExist)
	default:
		body, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()
		l.WithField("status", res.StatusCode).WithField("body", string(body)).Error(ErrCantGetBlob)
		return nil, ErrCantGetBlob
	}
}

// SaveFile streams file to the node as a multipart upload.
func (f *Files) SaveFile(ctx context.Context, p string, file io.Reader) (int64, error) {
	l := f.l.WithField("blob_path", p)
	u, err := f.objectUrl(p)
	if err != nil {
		l.WithError(err).Error("can't combine url parts")
		return 0, ErrCantSendBlob
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	written := make(chan int64, 1)
	go func() {
		var n int64
		formFile, err := writer.CreateFormFile("blob", p)
		if err == nil {
			n, err = io.Copy(formFile, file)
		}
		if err == nil {
			err = writer.Close()
		}
		written <- n
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return 0, fmt.Errorf("%w: %w", ErrCantSendBlob, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := f.r.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		l.WithError(err).Error(ErrCantSendBlob)
		return 0, ErrCantSendBlob
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, err := io.ReadAll(res.Body)
		if err != nil {
			l.WithError(err).Error("can't read response body")
		}
		_ = pr.CloseWithError(ErrCantSendBlob)
		l.WithField("status", res.StatusCode).WithField("body", string(body)).Error(ErrCantSendBlob)
		return 0, ErrCantSendBlob
	}
	return <-written, nil
}

func (f *Files) RemoveFile(ctx context.Context, p string) error {
	l := f.l.WithField("blob_path", p)
	u, err := f.objectUrl(p)
	if err != nil {
		l.WithError(err).Error("can't combine url parts")
		return ErrCantRemoveBlob
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCantRemoveBlob, err)
	}
	res, err := f.r.Do(req)
	if err != nil {
		l.WithError(err).Error(ErrCantRemoveBlob)
		return ErrCantRemoveBlob
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		l.WithField("status", res.StatusCode).Error(ErrCantRemoveBlob)
		return ErrCantRemoveBlob
	}
	return nil
}

func getHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}
}
