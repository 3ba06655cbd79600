package handler

import (
	"fmt"
	"net/http"

	"github.com/konorlevich/resource_center/internal/rest-service/ledger"
)

func (s *server) uploadNewVersion(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFileID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	vd, err := newNewVersionData(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	defer vd.file.Close()

	v, err := s.versions.UploadNewVersion(r.Context(), id, u.ID, ledger.Upload{
		Name:       vd.name,
		Content:    vd.file,
		ChangeNote: vd.changeNote,
	})
	if err != nil {
		writeError(rw, l, err)
		return
	}
	v.UploadedBy = u
	writeJSON(rw, http.StatusCreated, map[string]interface{}{
		"message": "New version uploaded successfully",
		"version": newVersionView(v),
	})
}

func (s *server) versionHistory(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFileID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	h, err := s.versions.ListHistory(r.Context(), id, u.ID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	versions := make([]*versionView, 0, len(h.Versions))
	for _, v := range h.Versions {
		versions = append(versions, newVersionView(v))
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"file":     newFileView(h.File, u.ID),
		"versions": versions,
		"is_owner": h.IsOwner,
	})
}

func (s *server) revertVersion(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	fileID, err := pathID(r, fieldNameFileID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	versionID, err := pathID(r, fieldNameVersionID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	v, err := s.versions.Revert(r.Context(), fileID, versionID, u.ID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Reverted to version %d", v.VersionNumber),
		"version": newVersionView(v),
	})
}
