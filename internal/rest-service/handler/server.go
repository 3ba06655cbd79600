package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/rest-service/database"
	"github.com/konorlevich/resource_center/internal/rest-service/handler/middleware"
	"github.com/konorlevich/resource_center/internal/rest-service/hierarchy"
	"github.com/konorlevich/resource_center/internal/rest-service/ledger"
	"github.com/konorlevich/resource_center/internal/rest-service/reminder"
	"github.com/konorlevich/resource_center/internal/rest-service/sharing"
)

type Hierarchy interface {
	CreateFolder(ctx context.Context, owner uuid.UUID, name string, parent *uuid.UUID) (*database.Folder, error)
	UpdateFolder(ctx context.Context, principal, id uuid.UUID, u hierarchy.FolderUpdate) (*database.Folder, error)
	GetFolder(ctx context.Context, principal, id uuid.UUID) (*database.Folder, error)
	DeleteFolder(ctx context.Context, principal, id uuid.UUID) error
	ToggleFolderStar(ctx context.Context, principal, id uuid.UUID) (bool, error)
	ListContents(ctx context.Context, principal uuid.UUID, folder *uuid.UUID, filter hierarchy.Filter) (*hierarchy.Contents, error)
	Upload(ctx context.Context, principal uuid.UUID, req hierarchy.UploadRequest) (*hierarchy.UploadResult, error)
	GetFile(ctx context.Context, principal, id uuid.UUID) (*database.File, error)
	UpdateFile(ctx context.Context, principal, id uuid.UUID, u hierarchy.FileUpdate) (*database.File, error)
	ToggleFileStar(ctx context.Context, principal, id uuid.UUID) (bool, error)
	ToggleFileArchive(ctx context.Context, principal, id uuid.UUID) (bool, error)
	DeleteFile(ctx context.Context, principal, id uuid.UUID) error
	Download(ctx context.Context, principal, id uuid.UUID) (*database.File, io.ReadCloser, error)
	ListCategories(ctx context.Context) ([]*database.Category, error)
}

type Versions interface {
	UploadNewVersion(ctx context.Context, fileID, uploader uuid.UUID, up ledger.Upload) (*database.FileVersion, error)
	Revert(ctx context.Context, fileID, versionID, principal uuid.UUID) (*database.FileVersion, error)
	ListHistory(ctx context.Context, fileID, principal uuid.UUID) (*ledger.History, error)
}

type Sharing interface {
	Share(ctx context.Context, from *database.User, req sharing.Request) (*sharing.Result, error)
	ListSharedWithMe(ctx context.Context, user uuid.UUID) ([]*database.FileSharing, error)
	UnseenCount(ctx context.Context, user uuid.UUID) (int64, error)
	MarkAllSeen(ctx context.Context, user uuid.UUID) (int64, error)
}

type Reminders interface {
	Create(ctx context.Context, user uuid.UUID, in reminder.Input) (*database.Reminder, error)
	Get(ctx context.Context, user, id uuid.UUID) (*database.Reminder, error)
	List(ctx context.Context, user uuid.UUID) ([]*database.Reminder, error)
	Update(ctx context.Context, user, id uuid.UUID, in reminder.Input) (*database.Reminder, error)
	Replace(ctx context.Context, user, id uuid.UUID, in reminder.Input) (*database.Reminder, error)
	Delete(ctx context.Context, user, id uuid.UUID) error
	Upcoming(ctx context.Context, user uuid.UUID) ([]*database.Reminder, error)
}

type server struct {
	tree      Hierarchy
	versions  Versions
	sharing   Sharing
	reminders Reminders
	l         *log.Entry
}

// NewHandler builds the API. auth resolves the principal of every route.
func NewHandler(tree Hierarchy, versions Versions, shares Sharing, reminders Reminders, auth func(http.Handler) http.Handler, l *log.Entry) http.Handler {
	s := &server{tree: tree, versions: versions, sharing: shares, reminders: reminders, l: l}
	handler := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		handler.Handle(pattern, auth(fn))
	}

	handle("POST /file-upload/{$}", s.uploadFiles)
	handle("POST /file-upload/{folderId}/{$}", s.uploadFiles)
	handle("GET /file-upload/{$}", s.listContents)
	handle("GET /folder-contents/{$}", s.listContents)
	handle("GET /folder-contents/{folderId}/{$}", s.listContents)
	handle("PATCH /file/update/{fileId}/{$}", s.updateFile)

	handle("POST /folders/{$}", s.createFolder)
	handle("POST /folders/{parentId}/{$}", s.createFolder)
	handle("GET /folders/{folderId}/{$}", s.getFolder)
	handle("PATCH /folders/{folderId}/{$}", s.updateFolder)
	handle("DELETE /folders/{folderId}/delete/{$}", s.deleteFolder)
	handle("POST /folders/{folderId}/toggle-star/{$}", s.toggleFolderStar)

	handle("GET /files/{fileId}/{$}", s.getFile)
	handle("POST /files/{fileId}/toggle-star/{$}", s.toggleFileStar)
	handle("POST /files/{fileId}/toggle-archive/{$}", s.toggleFileArchive)
	handle("DELETE /files/{fileId}/delete/{$}", s.deleteFile)
	handle("GET /files/{fileId}/download/{$}", s.downloadFile)

	handle("POST /files/{fileId}/upload-new-version/{$}", s.uploadNewVersion)
	handle("GET /files/{fileId}/version-history/{$}", s.versionHistory)
	handle("POST /files/{fileId}/revert-version/{versionId}/{$}", s.revertVersion)

	handle("POST /share/{$}", s.share)
	handle("GET /shared-with-me/{$}", s.sharedWithMe)
	handle("GET /shared-with-me/unseen-count/{$}", s.unseenCount)
	handle("POST /shared-with-me/mark-seen/{$}", s.markSeen)

	handle("GET /reminders/{$}", s.listReminders)
	handle("POST /reminders/{$}", s.createReminder)
	handle("GET /reminders/upcoming/{$}", s.upcomingReminders)
	handle("GET /reminders/{reminderId}/{$}", s.getReminder)
	handle("PATCH /reminders/{reminderId}/{$}", s.updateReminder)
	handle("PUT /reminders/{reminderId}/{$}", s.replaceReminder)
	handle("DELETE /reminders/{reminderId}/{$}", s.deleteReminder)

	handle("GET /get-categories/{$}", s.listCategories)
	handle("GET /categories/{$}", s.listCategories)

	return middleware.Chain(handler, middleware.Logging(l), middleware.Recover(l))
}

// request returns the principal and a logger tagged with the request.
func (s *server) request(r *http.Request) (*database.User, *log.Entry) {
	u := middleware.User(r.Context())
	l := s.l.WithField("request_id", middleware.RequestID(r.Context()))
	if u != nil {
		l = l.WithField("username", u.Username)
	}
	return u, l
}
