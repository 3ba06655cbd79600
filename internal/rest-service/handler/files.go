package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/konorlevich/resource_center/internal/rest-service/hierarchy"
)

const rootFolderName = "Root"

func (s *server) uploadFiles(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	ud, err := newUploadData(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	defer ud.Close()

	res, err := s.tree.Upload(r.Context(), u.ID, ud.req)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	folderName := rootFolderName
	if res.Folder != nil {
		folderName = res.Folder.Name
	}
	all := res.Files
	if c, err := s.tree.ListContents(r.Context(), u.ID, ud.req.Folder, hierarchy.Filter{}); err != nil {
		l.WithError(err).Warn("can't list the target folder after upload")
	} else {
		all = c.Files
	}
	writeJSON(rw, http.StatusCreated, map[string]interface{}{
		"message":        "Files uploaded successfully",
		"folder_name":    folderName,
		"uploaded_files": newFileViews(res.Files, u.ID),
		"files":          newFileViews(all, u.ID),
	})
}

func (s *server) listContents(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	folder, err := optionalPathID(r, fieldNameFolderID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	filter, err := listFilter(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	c, err := s.tree.ListContents(r.Context(), u.ID, folder, filter)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"folder":         newFolderView(c.Folder, u.ID),
		"current_folder": folder,
		"folders":        newFolderViews(c.Folders, u.ID),
		"files":          newFileViews(c.Files, u.ID),
	})
}

func (s *server) getFile(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFileID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	f, err := s.tree.GetFile(r.Context(), u.ID, id)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newFileView(f, u.ID))
}

func (s *server) updateFile(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFileID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	upd, err := newFileUpdate(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	f, err := s.tree.UpdateFile(r.Context(), u.ID, id, upd)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newFileView(f, u.ID))
}

func (s *server) toggleFileStar(rw http.ResponseWriter, r *http.Request) {
	s.toggle(rw, r, fieldNameFileID, "is_starred", s.tree.ToggleFileStar)
}

func (s *server) toggleFileArchive(rw http.ResponseWriter, r *http.Request) {
	s.toggle(rw, r, fieldNameFileID, "is_archived", s.tree.ToggleFileArchive)
}

func (s *server) deleteFile(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFileID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	if err = s.tree.DeleteFile(r.Context(), u.ID, id); err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

func (s *server) downloadFile(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFileID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	f, content, err := s.tree.Download(r.Context(), u.ID, id)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	defer content.Close()

	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	rw.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	if n, err := io.Copy(rw, content); err != nil {
		l.WithError(err).WithField("file_id", f.ID).Error("can't send file")
	} else {
		l.WithField("file_id", f.ID).WithField("size", n).Debug("file sent")
	}
}

func (s *server) listCategories(rw http.ResponseWriter, r *http.Request) {
	_, l := s.request(r)
	cats, err := s.tree.ListCategories(r.Context())
	if err != nil {
		writeError(rw, l, err)
		return
	}
	res := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		res = append(res, categoryView{ID: c.ID, Name: c.Name})
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"categories": res})
}

