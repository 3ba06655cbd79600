// Package sharing records read grants on files and folders.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/rest-service/acl"
	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
	"github.com/konorlevich/resource_center/internal/rest-service/events"
)

var (
	ErrCantShare      = errors.New("can't share")
	ErrCantReadShares = errors.New("can't read shared items")
)

const (
	errNoSuchUser    = "user with this email does not exist"
	errSelf          = "you can't share with yourself"
	errAlreadyShared = "user already has access"
	errShareFailed   = "could not share with this user"
)

type Cache interface {
	Get(ctx context.Context, user uuid.UUID) (int64, bool)
	Set(ctx context.Context, user uuid.UUID, n int64)
	Invalidate(ctx context.Context, users ...uuid.UUID)
}

type Ledger struct {
	repo  *database.Repository
	cache Cache
	pub   events.Publisher
	l     *log.Entry
}

func NewLedger(repo *database.Repository, cache Cache, pub events.Publisher, l *log.Entry) *Ledger {
	return &Ledger{repo: repo, cache: cache, pub: pub, l: l}
}

type Request struct {
	ItemID uuid.UUID
	// ShareType is database.ShareTypeFile (default) or database.ShareTypeFolder.
	ShareType string
	Emails    []string
	Message   string
}

type RecipientError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Result lists the outcome per recipient. A failed recipient never stops the
// others.
type Result struct {
	Shared []string
	Errors []RecipientError
}

func normalizeEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	res := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res = append(res, e)
	}
	return res
}

// Share grants read access on one item owned by from to every recipient.
func (s *Ledger) Share(ctx context.Context, from *database.User, req Request) (*Result, error) {
	l := s.l.WithField("user_id", from.ID).WithField("item_id", req.ItemID)
	if req.ShareType == "" {
		req.ShareType = database.ShareTypeFile
	}
	emails := normalizeEmails(req.Emails)
	if len(emails) == 0 {
		return nil, fmt.Errorf("at least one email is required: %w", apperr.ErrInvalidInput)
	}

	grant := database.FileSharing{
		SharedByID: from.ID,
		Message:    req.Message,
		ShareType:  req.ShareType,
	}
	var itemName string
	switch req.ShareType {
	case database.ShareTypeFile:
		f, err := s.repo.GetFile(ctx, req.ItemID)
		if err != nil {
			return nil, s.fail(l, err, ErrCantShare)
		}
		if err = acl.RequireOwner(from.ID, f.OwnerID); err != nil {
			return nil, err
		}
		grant.FileID, itemName = &f.ID, f.Name
	case database.ShareTypeFolder:
		f, err := s.repo.GetFolder(ctx, req.ItemID)
		if err != nil {
			return nil, s.fail(l, err, ErrCantShare)
		}
		if err = acl.RequireOwner(from.ID, f.OwnerID); err != nil {
			return nil, err
		}
		grant.FolderID, itemName = &f.ID, f.Name
	default:
		return nil, fmt.Errorf("unknown share type %q: %w", req.ShareType, apperr.ErrInvalidInput)
	}

	res := &Result{}
	for _, email := range emails {
		to, msg := s.shareOne(ctx, l.WithField("recipient", email), grant, email)
		if msg != "" {
			res.Errors = append(res.Errors, RecipientError{Email: email, Error: msg})
			continue
		}
		res.Shared = append(res.Shared, email)
		s.cache.Invalidate(ctx, to.ID)
		events.Notify(ctx, s.pub, l, &events.Event{
			Type:      events.TypeFileShared,
			ItemID:    req.ItemID.String(),
			ItemType:  req.ShareType,
			ItemName:  itemName,
			Actor:     from.Email,
			Recipient: to.Email,
			Message:   req.Message,
		})
	}
	l.WithField("shared", len(res.Shared)).WithField("failed", len(res.Errors)).Info("item shared")
	return res, nil
}

// shareOne creates one grant. A non-empty message describes why it wasn't.
func (s *Ledger) shareOne(ctx context.Context, l *log.Entry, grant database.FileSharing, email string) (*database.User, string) {
	to, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, errNoSuchUser
		}
		l.WithError(err).Error(ErrCantShare)
		return nil, errShareFailed
	}
	if to.ID == grant.SharedByID {
		return nil, errSelf
	}

	var exists bool
	if grant.FileID != nil {
		exists, err = s.repo.HasFileGrant(ctx, *grant.FileID, to.ID)
	} else {
		exists, err = s.repo.HasFolderGrant(ctx, *grant.FolderID, to.ID)
	}
	if err != nil {
		l.WithError(err).Error(ErrCantShare)
		return nil, errShareFailed
	}
	if exists {
		return nil, errAlreadyShared
	}

	grant.SharedToID = to.ID
	grant.SharedAt = s.repo.Now()
	if err = s.repo.CreateShare(ctx, &grant); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, errAlreadyShared
		}
		l.WithError(err).Error(ErrCantShare)
		return nil, errShareFailed
	}
	return to, ""
}

// ListSharedWithMe returns the grants received by user, newest first.
func (s *Ledger) ListSharedWithMe(ctx context.Context, user uuid.UUID) ([]*database.FileSharing, error) {
	res, err := s.repo.ListSharesTo(ctx, user)
	if err != nil {
		return nil, s.fail(s.l.WithField("user_id", user), err, ErrCantReadShares)
	}
	return res, nil
}

func (s *Ledger) UnseenCount(ctx context.Context, user uuid.UUID) (int64, error) {
	if n, ok := s.cache.Get(ctx, user); ok {
		return n, nil
	}
	n, err := s.repo.CountUnseen(ctx, user)
	if err != nil {
		return 0, s.fail(s.l.WithField("user_id", user), err, ErrCantReadShares)
	}
	s.cache.Set(ctx, user, n)
	return n, nil
}

// MarkAllSeen flags every unseen grant of user as seen and returns how many
// changed.
func (s *Ledger) MarkAllSeen(ctx context.Context, user uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllSeen(ctx, user)
	if err != nil {
		return 0, s.fail(s.l.WithField("user_id", user), err, ErrCantShare)
	}
	s.cache.Invalidate(ctx, user)
	return n, nil
}

func (s *Ledger) fail(l *log.Entry, err error, unexpected error) error {
	if errors.Is(err, database.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	l.WithError(err).Error(unexpected)
	return unexpected
}
