package handler

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"

	log "github.com/sirupsen/logrus"
)

const (
	urlPatternGetBlob    = "GET /object/{path...}"
	urlPatternSaveBlob   = "POST /object/{path...}"
	urlPatternRemoveBlob = "DELETE /object/{path...}"
)

type Storage interface {
	SaveFile(ctx context.Context, path string, file io.Reader) (int64, error)
	GetFile(ctx context.Context, path string) (io.ReadCloser, error)
	RemoveFile(ctx context.Context, path string) error
}

func NewHandler(storage Storage, logger *log.Entry) *http.ServeMux {
	handler := http.NewServeMux()

	handler.HandleFunc(urlPatternGetBlob, func(rw http.ResponseWriter, r *http.Request) {
		l := logger.WithField("client", r.RemoteAddr)
		rd, err := newRequestData(r, l)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		l = l.WithField(fieldNamePath, rd.path)

		f, err := storage.GetFile(r.Context(), rd.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				http.NotFound(rw, r)
				return
			}
			l.WithError(err).Error("can't get blob")
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		if i, err := io.Copy(rw, f); err != nil {
			l.WithError(err).Error("can't send blob")
			return
		} else {
			l.WithField("size", i).Debug("blob sent")
		}
	})

	handler.HandleFunc(urlPatternSaveBlob, func(rw http.ResponseWriter, r *http.Request) {
		l := logger.WithField("client", r.RemoteAddr)
		rd, err := newRequestData(r, l)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		defer rd.file.Close()
		l = l.WithField(fieldNamePath, rd.path)

		n, err := storage.SaveFile(r.Context(), rd.path, rd.file)
		if err != nil {
			l.WithError(err).Error("can't save blob")
			http.Error(rw, "can't save blob", http.StatusInternalServerError)
			return
		}

		l.WithField("size", n).Info("blob saved")
		_, _ = rw.Write([]byte("blob saved"))
	})

	handler.HandleFunc(urlPatternRemoveBlob, func(rw http.ResponseWriter, r *http.Request) {
		l := logger.WithField("client", r.RemoteAddr)
		rd, err := newRequestData(r, l)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		if err := storage.RemoveFile(r.Context(), rd.path); err != nil {
			l.WithError(err).WithField(fieldNamePath, rd.path).Error("can't remove blob")
			http.Error(rw, "can't remove blob", http.StatusInternalServerError)
			return
		}
		l.WithField(fieldNamePath, rd.path).Info("blob removed")
		rw.WriteHeader(http.StatusNoContent)
	})

	return handler
}
