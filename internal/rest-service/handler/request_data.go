package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/hierarchy"
)

const (
	fieldNameFileID     = "fileId"
	fieldNameFolderID   = "folderId"
	fieldNameParentID   = "parentId"
	fieldNameVersionID  = "versionId"
	fieldNameReminderID = "reminderId"

	formFieldFiles      = "files"
	formFieldFolderID   = "folder_id"
	formFieldCategoryID = "category_id"
	formFieldIsPublic   = "is_public"
	formFieldNewVersion = "new_version"
	formFieldChangeNote = "change_note"
	formFieldName       = "name"
	formFieldParent     = "parent"

	maxMemory = 32 << 20
)

var (
	errCantParseForm = errors.New("can't parse request form")
	errNoFile        = errors.New("file has not been provided")
	errBadJSON       = errors.New("can't parse request body")
)

func invalid(err error) error {
	return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
}

// pathID reads a uuid path value. A malformed id can't name anything, so it is
// reported as not found.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q: %w", name, r.PathValue(name), apperr.ErrNotFound)
	}
	return id, nil
}

// optionalPathID is pathID for routes that exist with and without the id.
func optionalPathID(r *http.Request, name string) (*uuid.UUID, error) {
	if r.PathValue(name) == "" {
		return nil, nil
	}
	id, err := pathID(r, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseOptionalID reads an id from a form or body field. "", "null" and "None"
// mean no id.
func parseOptionalID(field, v string) (*uuid.UUID, error) {
	v = strings.TrimSpace(v)
	switch v {
	case "", "null", "None", "undefined":
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, invalid(fmt.Errorf("%s must be an id, got %q", field, v))
	}
	return &id, nil
}

func parseBool(field, v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true, nil
	case "", "0", "false", "off", "no":
		return false, nil
	}
	return false, invalid(fmt.Errorf("%s must be true or false, got %q", field, v))
}

func listFilter(r *http.Request) (hierarchy.Filter, error) {
	q := r.URL.Query()
	f := hierarchy.Filter{}
	var err error
	if f.StarredOnly, err = parseBool("starred", q.Get("starred")); err != nil {
		return f, err
	}
	if q.Has("archived") {
		archived, err := parseBool("archived", q.Get("archived"))
		if err != nil {
			return f, err
		}
		f.Archived = &archived
	}
	return f, nil
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return invalid(fmt.Errorf("%w: %w", errBadJSON, err))
	}
	return nil
}

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return invalid(fmt.Errorf("%w: %w", errCantParseForm, err))
	}
	return nil
}

// uploadData is the parsed body of a file upload.
type uploadData struct {
	req   hierarchy.UploadRequest
	files []multipart.File
}

func (u *uploadData) Close() {
	for _, f := range u.files {
		_ = f.Close()
	}
}

func newUploadData(r *http.Request) (*uploadData, error) {
	if err := parseMultipart(r); err != nil {
		return nil, err
	}
	folder, err := optionalPathID(r, fieldNameFolderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		if folder, err = parseOptionalID(formFieldFolderID, r.FormValue(formFieldFolderID)); err != nil {
			return nil, err
		}
	}
	category, err := parseOptionalID(formFieldCategoryID, r.FormValue(formFieldCategoryID))
	if err != nil {
		return nil, err
	}
	public, err := parseBool(formFieldIsPublic, r.FormValue(formFieldIsPublic))
	if err != nil {
		return nil, err
	}

	ud := &uploadData{req: hierarchy.UploadRequest{Folder: folder, CategoryID: category, IsPublic: public}}
	headers := append(r.MultipartForm.File[formFieldFiles], r.MultipartForm.File[formFieldFiles+"[]"]...)
	if len(headers) == 0 {
		return nil, invalid(errNoFile)
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			ud.Close()
			return nil, invalid(fmt.Errorf("%w: %w", errNoFile, err))
		}
		ud.files = append(ud.files, f)
		ud.req.Files = append(ud.req.Files, hierarchy.UploadFile{Name: fh.Filename, Content: f})
	}
	return ud, nil
}

type newVersionData struct {
	name       string
	changeNote string
	file       multipart.File
}

func newNewVersionData(r *http.Request) (*newVersionData, error) {
	if err := parseMultipart(r); err != nil {
		return nil, err
	}
	f, fh, err := r.FormFile(formFieldNewVersion)
	if err != nil {
		return nil, invalid(errNoFile)
	}
	return &newVersionData{name: fh.Filename, changeNote: r.FormValue(formFieldChangeNote), file: f}, nil
}

type folderData struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

// newFolderData reads the folder name and parent from a JSON or form body.
// A parent in the path wins over the body.
func newFolderData(r *http.Request) (string, *uuid.UUID, error) {
	fd := &folderData{}
	if isJSON(r) {
		if err := decodeJSON(r, fd); err != nil {
			return "", nil, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return "", nil, invalid(fmt.Errorf("%w: %w", errCantParseForm, err))
		}
		fd.Name, fd.Parent = r.PostFormValue(formFieldName), r.PostFormValue(formFieldParent)
	}
	parent, err := optionalPathID(r, fieldNameParentID)
	if err != nil || parent != nil {
		return fd.Name, parent, err
	}
	parent, err = parseOptionalID(formFieldParent, fd.Parent)
	return fd.Name, parent, err
}

type fileUpdateData struct {
	Name         *string   `json:"name"`
	IsPublic     *bool     `json:"is_public"`
	CategoryID   *string   `json:"category_id"`
	MetaTagNames *[]string `json:"meta_tag_names"`
}

func newFileUpdate(r *http.Request) (hierarchy.FileUpdate, error) {
	u := hierarchy.FileUpdate{}
	d := &fileUpdateData{}
	if isJSON(r) {
		if err := decodeJSON(r, d); err != nil {
			return u, err
		}
	} else {
		if err := r.ParseMultipartForm(maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return u, invalid(fmt.Errorf("%w: %w", errCantParseForm, err))
		}
		if err := r.ParseForm(); err != nil {
			return u, invalid(fmt.Errorf("%w: %w", errCantParseForm, err))
		}
		form := r.Form
		if form.Has(formFieldName) {
			d.Name = ptr(form.Get(formFieldName))
		}
		if form.Has(formFieldIsPublic) {
			public, err := parseBool(formFieldIsPublic, form.Get(formFieldIsPublic))
			if err != nil {
				return u, err
			}
			d.IsPublic = &public
		}
		if form.Has(formFieldCategoryID) {
			d.CategoryID = ptr(form.Get(formFieldCategoryID))
		}
		if form.Has("meta_tag_names") || form.Has("meta_tag_names[]") {
			d.MetaTagNames = ptr(append(form["meta_tag_names"], form["meta_tag_names[]"]...))
		}
	}

	u.Name, u.IsPublic = d.Name, d.IsPublic
	if d.CategoryID != nil {
		id, err := parseOptionalID(formFieldCategoryID, *d.CategoryID)
		if err != nil {
			return u, err
		}
		u.CategoryID = id
	}
	if d.MetaTagNames != nil {
		u.Tags, u.SetTags = *d.MetaTagNames, true
	}
	return u, nil
}

type folderUpdateData struct {
	Name     *string `json:"name"`
	IsPublic *bool   `json:"is_public"`
}

func newFolderUpdate(r *http.Request) (hierarchy.FolderUpdate, error) {
	d := &folderUpdateData{}
	if err := decodeJSON(r, d); err != nil {
		return hierarchy.FolderUpdate{}, err
	}
	return hierarchy.FolderUpdate{Name: d.Name, IsPublic: d.IsPublic}, nil
}

func ptr[T any](v T) *T {
	return &v
}
