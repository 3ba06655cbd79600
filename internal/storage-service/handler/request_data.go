package handler

import (
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

const (
	fieldNamePath = "path"
	fieldNameBlob = "blob"
)

var (
	errCantParseForm = errors.New("can't parse request form")
	errNoFile        = errors.New("file has not been provided")
	errNoPath        = errors.New("blob path has not been provided")
	errCantReadBlob  = errors.New("can't read file from request")
)

type requestData struct {
	path string
	file io.ReadCloser
}

func newRequestData(r *http.Request, logger *log.Entry) (*requestData, error) {
	rd := &requestData{
		path: r.PathValue(fieldNamePath),
	}
	if rd.path == "" {
		return nil, errNoPath
	}
	if r.Method != http.MethodPost {
		return rd, nil
	}
	l := logger.WithField(fieldNamePath, rd.path)

	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		l.WithError(err).Error(errCantParseForm)
		return nil, errCantParseForm
	}

	headers, ok := r.MultipartForm.File[fieldNameBlob]
	if !ok || len(headers) == 0 {
		l.WithField("field", fieldNameBlob).Error(errNoFile)
		return nil, errNoFile
	}

	f, err := headers[0].Open()
	if err != nil {
		l.WithError(err).Error(errCantReadBlob)
		return nil, errCantReadBlob
	}
	rd.file = f
	return rd, nil
}
