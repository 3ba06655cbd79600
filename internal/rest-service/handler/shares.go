package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/konorlevich/resource_center/internal/rest-service/sharing"
)

type shareData struct {
	ID        string   `json:"id"`
	Emails    []string `json:"emails"`
	Email     string   `json:"email"`
	Message   string   `json:"message"`
	ShareType string   `json:"share_type"`
}

func newShareRequest(r *http.Request) (sharing.Request, error) {
	d := &shareData{}
	if err := decodeJSON(r, d); err != nil {
		return sharing.Request{}, err
	}
	id, err := uuid.Parse(strings.TrimSpace(d.ID))
	if err != nil {
		return sharing.Request{}, invalid(fmt.Errorf("id must be a file or folder id, got %q", d.ID))
	}
	emails := d.Emails
	if d.Email != "" {
		emails = append(emails, d.Email)
	}
	return sharing.Request{
		ItemID:    id,
		ShareType: strings.ToUpper(strings.TrimSpace(d.ShareType)),
		Emails:    emails,
		Message:   d.Message,
	}, nil
}

// shareStatus is 201 when every recipient got access, 207 when only some did
// and 400 when nobody did.
func shareStatus(res *sharing.Result) int {
	switch {
	case len(res.Shared) == 0:
		return http.StatusBadRequest
	case len(res.Errors) > 0:
		return http.StatusMultiStatus
	}
	return http.StatusCreated
}

func (s *server) share(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	req, err := newShareRequest(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	res, err := s.sharing.Share(r.Context(), u, req)
	if err != nil {
		writeError(rw, l, err)
		return
	}

	status := shareStatus(res)
	body := map[string]interface{}{
		"shared_with": append([]string{}, res.Shared...),
		"errors":      append([]sharing.RecipientError{}, res.Errors...),
	}
	switch status {
	case http.StatusCreated:
		body["message"] = "Shared successfully"
	case http.StatusMultiStatus:
		body["message"] = "Shared with some recipients"
	default:
		body["error"] = "could not share with any recipient"
	}
	writeJSON(rw, status, body)
}

func (s *server) sharedWithMe(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	shares, err := s.sharing.ListSharedWithMe(r.Context(), u.ID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"files": newShareViews(shares, u.ID)})
}

func (s *server) unseenCount(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	n, err := s.sharing.UnseenCount(r.Context(), u.ID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]int64{"count": n})
}

func (s *server) markSeen(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	n, err := s.sharing.MarkAllSeen(r.Context(), u.ID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"status": "marked_as_seen", "marked": n})
}
