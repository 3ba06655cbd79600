package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

const msgInternal = "something went wrong, please try later"

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(rw).Encode(v)
}

// writeError answers with the status of err. Internal errors are logged and
// hidden behind a generic message.
func writeError(rw http.ResponseWriter, l *log.Entry, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		l.WithError(err).Error("request failed")
		msg = msgInternal
	}
	writeJSON(rw, status, map[string]string{"error": msg})
}

type categoryView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type tagView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type fileView struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"name"`
	File           string        `json:"file"`
	FileType       string        `json:"file_type"`
	FileSize       int64         `json:"file_size"`
	Category       *categoryView `json:"category"`
	UploadedAt     time.Time     `json:"uploaded_at"`
	Folder         *uuid.UUID    `json:"folder"`
	IsStarred      bool          `json:"is_starred"`
	IsArchived     bool          `json:"is_archived"`
	IsPublic       bool          `json:"is_public"`
	OwnerEmail     *string       `json:"owner_email"`
	OwnerFirstName *string       `json:"owner_first_name"`
	MetaTags       []tagView     `json:"meta_tags"`
	IsOwner        bool          `json:"is_owner"`
}

func downloadURL(id uuid.UUID) string {
	return fmt.Sprintf("/files/%s/download/", id)
}

func ownerFields(u *database.User) (*string, *string) {
	if u == nil {
		return nil, nil
	}
	return &u.Email, &u.FirstName
}

func newFileView(f *database.File, principal uuid.UUID) *fileView {
	v := &fileView{
		ID:         f.ID,
		Name:       f.Name,
		File:       downloadURL(f.ID),
		FileType:   f.Type,
		FileSize:   f.Size,
		UploadedAt: f.UploadedAt,
		Folder:     f.FolderID,
		IsStarred:  f.IsStarred,
		IsArchived: f.IsArchived,
		IsPublic:   f.IsPublic,
		MetaTags:   make([]tagView, 0, len(f.Tags)),
		IsOwner:    f.OwnerID == principal,
	}
	v.OwnerEmail, v.OwnerFirstName = ownerFields(f.Owner)
	if f.Category != nil {
		v.Category = &categoryView{ID: f.Category.ID, Name: f.Category.Name}
	}
	for _, t := range f.Tags {
		v.MetaTags = append(v.MetaTags, tagView{ID: t.ID, Name: t.Name})
	}
	return v
}

func newFileViews(files []*database.File, principal uuid.UUID) []*fileView {
	res := make([]*fileView, 0, len(files))
	for _, f := range files {
		res = append(res, newFileView(f, principal))
	}
	return res
}

type folderView struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Parent         *uuid.UUID `json:"parent"`
	CreatedAt      time.Time  `json:"created_at"`
	IsStarred      bool       `json:"is_starred"`
	IsPublic       bool       `json:"is_public"`
	OwnerEmail     *string    `json:"owner_email"`
	OwnerFirstName *string    `json:"owner_first_name"`
	IsOwner        bool       `json:"is_owner"`
}

func newFolderView(f *database.Folder, principal uuid.UUID) *folderView {
	if f == nil {
		return nil
	}
	v := &folderView{
		ID:        f.ID,
		Name:      f.Name,
		Parent:    f.ParentID,
		CreatedAt: f.CreatedAt,
		IsStarred: f.IsStarred,
		IsPublic:  f.IsPublic,
		IsOwner:   f.OwnerID == principal,
	}
	v.OwnerEmail, v.OwnerFirstName = ownerFields(f.Owner)
	return v
}

func newFolderViews(folders []*database.Folder, principal uuid.UUID) []*folderView {
	res := make([]*folderView, 0, len(folders))
	for _, f := range folders {
		res = append(res, newFolderView(f, principal))
	}
	return res
}

type versionView struct {
	ID             uuid.UUID `json:"id"`
	VersionNumber  uint      `json:"version_number"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	FileType       string    `json:"file_type"`
	UploadedBy     *string   `json:"uploaded_by"`
	UploadedByName string    `json:"uploaded_by_name"`
	ChangeNote     string    `json:"change_note"`
	UploadedAt     time.Time `json:"uploaded_at"`
	IsCurrent      bool      `json:"is_current"`
}

func newVersionView(v *database.FileVersion) *versionView {
	res := &versionView{
		ID:             v.ID,
		VersionNumber:  v.VersionNumber,
		FileName:       v.FileName,
		FileSize:       v.FileSize,
		FileType:       v.FileType,
		UploadedByName: "Unknown",
		ChangeNote:     v.ChangeNote,
		UploadedAt:     v.UploadedAt,
		IsCurrent:      v.IsCurrent,
	}
	if v.UploadedBy != nil {
		res.UploadedBy = &v.UploadedBy.Email
		res.UploadedByName = v.UploadedBy.FirstName
		if res.UploadedByName == "" {
			res.UploadedByName = v.UploadedBy.Username
		}
	}
	return res
}

type shareView struct {
	ID        uuid.UUID   `json:"id"`
	File      *fileView   `json:"file"`
	Folder    *folderView `json:"folder"`
	SharedBy  *string     `json:"shared_by"`
	SharedAt  time.Time   `json:"shared_at"`
	Message   string      `json:"message"`
	ShareType string      `json:"share_type"`
	IsSeen    bool        `json:"is_seen"`
}

func newShareViews(shares []*database.FileSharing, principal uuid.UUID) []*shareView {
	res := make([]*shareView, 0, len(shares))
	for _, s := range shares {
		v := &shareView{
			ID:        s.ID,
			SharedAt:  s.SharedAt,
			Message:   s.Message,
			ShareType: s.ShareType,
			IsSeen:    s.IsSeen,
			Folder:    newFolderView(s.Folder, principal),
		}
		if s.File != nil {
			v.File = newFileView(s.File, principal)
		}
		if s.SharedBy != nil {
			v.SharedBy = &s.SharedBy.Email
		}
		res = append(res, v)
	}
	return res
}

var repeatDisplay = map[string]string{
	database.RepeatNone:    "Does not repeat",
	database.RepeatDaily:   "Daily",
	database.RepeatWeekly:  "Weekly",
	database.RepeatMonthly: "Monthly",
	database.RepeatYearly:  "Yearly",
}

type reminderView struct {
	ID            uuid.UUID `json:"id"`
	File          uuid.UUID `json:"file"`
	FileName      string    `json:"file_name,omitempty"`
	Note          string    `json:"note"`
	RemindAt      time.Time `json:"remind_at"`
	Repeat        string    `json:"repeat"`
	RepeatDisplay string    `json:"repeat_display"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newReminderView(rm *database.Reminder) *reminderView {
	v := &reminderView{
		ID:            rm.ID,
		File:          rm.FileID,
		Note:          rm.Note,
		RemindAt:      rm.RemindAt,
		Repeat:        rm.Repeat,
		RepeatDisplay: repeatDisplay[rm.Repeat],
		CreatedAt:     rm.CreatedAt,
		UpdatedAt:     rm.UpdatedAt,
	}
	if rm.File != nil {
		v.FileName = rm.File.Name
	}
	return v
}

func newReminderViews(rms []*database.Reminder) []*reminderView {
	res := make([]*reminderView, 0, len(rms))
	for _, rm := range rms {
		res = append(res, newReminderView(rm))
	}
	return res
}
