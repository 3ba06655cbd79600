package database

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ShareTypeFile   = "FILE"
	ShareTypeFolder = "FOLDER"

	DefaultCategoryName = "General"
)

const (
	RepeatNone    = "none"
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
	RepeatYearly  = "yearly"
)

type Model struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:(gen_random_uuid())"`
}

func (m *Model) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type User struct {
	Model
	Username  string `gorm:"not null;uniqueIndex"`
	Email     string `gorm:"index"`
	FirstName string
	CreatedAt time.Time
}

type Category struct {
	Model
	Name string `gorm:"not null;uniqueIndex"`
}

type Tag struct {
	Model
	Name string `gorm:"not null;uniqueIndex"`
}

// Folder is a node of the folder tree. ParentKey mirrors ParentID ("" for
// root) so the (name, parent) uniqueness also holds at the root level.
type Folder struct {
	Model
	Name      string     `gorm:"not null;index:,unique,composite:folder_scope_name"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index"`
	ParentKey string     `gorm:"not null;index:,unique,composite:folder_scope_name"`
	OwnerID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Owner     *User
	IsStarred bool
	IsPublic  bool
	CreatedAt time.Time
}

func (f *Folder) BeforeSave(*gorm.DB) error {
	f.ParentKey = ScopeKey(f.ParentID)
	return nil
}

// File keeps a denormalized copy of its current version (name, blob, size,
// type) for fast reads.
type File struct {
	Model
	Name       string     `gorm:"not null;index:,unique,composite:file_scope_name"`
	FolderID   *uuid.UUID `gorm:"type:uuid;index"`
	FolderKey  string     `gorm:"not null;index:,unique,composite:file_scope_name"`
	Folder     *Folder
	BlobHandle string `gorm:"not null"`
	Size       int64
	Type       string `gorm:"size:50"`
	OwnerID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Owner      *User
	CategoryID uuid.UUID `gorm:"type:uuid;not null"`
	Category   *Category
	IsStarred  bool
	IsArchived bool
	IsPublic   bool
	Tags       []*Tag `gorm:"many2many:file_tags"`
	UploadedAt time.Time
}

func (f *File) BeforeSave(*gorm.DB) error {
	f.FolderKey = ScopeKey(f.FolderID)
	return nil
}

type FileVersion struct {
	Model
	FileID        uuid.UUID `gorm:"type:uuid;not null;index:,unique,composite:file_version"`
	VersionNumber uint      `gorm:"not null;index:,unique,composite:file_version"`
	BlobHandle    string    `gorm:"not null"`
	FileName      string
	FileSize      int64
	FileType      string     `gorm:"size:50"`
	UploadedByID  *uuid.UUID `gorm:"type:uuid"`
	UploadedBy    *User
	ChangeNote    string
	UploadedAt    time.Time `gorm:"index"`
	IsCurrent     bool
}

// FileSharing is a read grant on exactly one file or folder.
type FileSharing struct {
	Model
	FileID     *uuid.UUID `gorm:"type:uuid;index:,unique,composite:file_recipient"`
	File       *File
	FolderID   *uuid.UUID `gorm:"type:uuid;index:,unique,composite:folder_recipient"`
	Folder     *Folder
	SharedByID uuid.UUID `gorm:"type:uuid;not null"`
	SharedBy   *User
	SharedToID uuid.UUID `gorm:"type:uuid;not null;index:,unique,composite:file_recipient;index:,unique,composite:folder_recipient"`
	SharedTo   *User
	Message    string
	SharedAt   time.Time
	ShareType  string `gorm:"size:10;not null;check:share_target,(file_id IS NULL) <> (folder_id IS NULL)"`
	IsSeen     bool
}

type Reminder struct {
	Model
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	FileID    uuid.UUID `gorm:"type:uuid;not null;index"`
	File      *File
	Note      string
	RemindAt  time.Time `gorm:"not null;index"`
	Repeat    string    `gorm:"size:20;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScopeKey is the value stored in the uniqueness scope column for a parent
// folder id.
func ScopeKey(parent *uuid.UUID) string {
	if parent == nil {
		return ""
	}
	return parent.String()
}

// TypeOf derives the stored file type from a file name: whatever follows the
// last dot, or the whole name when there is none.
func TypeOf(name string) string {
	return strings.ToLower(name[strings.LastIndex(name, ".")+1:])
}

func ValidRepeat(r string) bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return true
	}
	return false
}
