package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

func (s *server) createFolder(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	name, parent, err := newFolderData(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	f, err := s.tree.CreateFolder(r.Context(), u.ID, name, parent)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusCreated, newFolderView(f, u.ID))
}

func (s *server) getFolder(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFolderID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	f, err := s.tree.GetFolder(r.Context(), u.ID, id)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newFolderView(f, u.ID))
}

func (s *server) updateFolder(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFolderID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	upd, err := newFolderUpdate(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	f, err := s.tree.UpdateFolder(r.Context(), u.ID, id, upd)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newFolderView(f, u.ID))
}

func (s *server) deleteFolder(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameFolderID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	if err = s.tree.DeleteFolder(r.Context(), u.ID, id); err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"message": "Folder deleted successfully"})
}

func (s *server) toggleFolderStar(rw http.ResponseWriter, r *http.Request) {
	s.toggle(rw, r, fieldNameFolderID, "is_starred", s.tree.ToggleFolderStar)
}

// toggle flips a flag of the item named by the path value and returns the
// new value under key.
func (s *server) toggle(rw http.ResponseWriter, r *http.Request, pathValue, key string,
	fn func(ctx context.Context, principal, id uuid.UUID) (bool, error)) {
	u, l := s.request(r)
	id, err := pathID(r, pathValue)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	v, err := fn(r.Context(), u.ID, id)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"id": id, key: v})
}
