// Package reminder keeps per-user reminders attached to files.
//
// The repeat cadence is stored as given; no future occurrences are generated
// from it.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

const (
	upcomingBefore = 10 * time.Minute
	upcomingAfter  = time.Hour
)

var ErrCantSaveReminder = errors.New("can't save reminder")

type Access interface {
	RequireReadFile(ctx context.Context, principal uuid.UUID, f *database.File) error
}

type Scheduler struct {
	repo   *database.Repository
	access Access
	l      *log.Entry
	now    func() time.Time
}

func NewScheduler(repo *database.Repository, access Access, l *log.Entry) *Scheduler {
	return &Scheduler{repo: repo, access: access, l: l, now: time.Now}
}

// Input carries reminder fields; nil fields are left as they are.
type Input struct {
	FileID   *uuid.UUID
	Note     *string
	RemindAt *time.Time
	Repeat   *string
}

func (s *Scheduler) Create(ctx context.Context, user uuid.UUID, in Input) (*database.Reminder, error) {
	if in.FileID == nil || in.RemindAt == nil {
		return nil, fmt.Errorf("file and remind_at are required: %w", apperr.ErrInvalidInput)
	}
	rm := &database.Reminder{UserID: user, Repeat: database.RepeatNone}
	if err := s.apply(ctx, user, rm, in); err != nil {
		return nil, err
	}
	if err := s.repo.CreateReminder(ctx, rm); err != nil {
		return nil, s.fail(user, err)
	}
	s.l.WithField("user_id", user).WithField("reminder_id", rm.ID).Info("reminder created")
	return s.Get(ctx, user, rm.ID)
}

// apply validates in and copies it onto rm.
func (s *Scheduler) apply(ctx context.Context, user uuid.UUID, rm *database.Reminder, in Input) error {
	if in.FileID != nil {
		f, err := s.repo.GetFile(ctx, *in.FileID)
		if err != nil {
			if errors.Is(err, database.ErrRecordNotFound) {
				return fmt.Errorf("file %s does not exist: %w", *in.FileID, apperr.ErrInvalidInput)
			}
			return s.fail(user, err)
		}
		if err = s.access.RequireReadFile(ctx, user, f); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return fmt.Errorf("file %s does not exist: %w", *in.FileID, apperr.ErrInvalidInput)
			}
			return err
		}
		rm.FileID = f.ID
	}
	if in.Repeat != nil {
		repeat := strings.ToLower(strings.TrimSpace(*in.Repeat))
		if repeat == "" {
			repeat = database.RepeatNone
		}
		if !database.ValidRepeat(repeat) {
			return fmt.Errorf("unknown repeat %q: %w", *in.Repeat, apperr.ErrInvalidInput)
		}
		rm.Repeat = repeat
	}
	if in.Note != nil {
		rm.Note = *in.Note
	}
	if in.RemindAt != nil {
		if in.RemindAt.IsZero() {
			return fmt.Errorf("remind_at is required: %w", apperr.ErrInvalidInput)
		}
		rm.RemindAt = in.RemindAt.UTC()
	}
	return nil
}

// Get returns the user's reminder. Reminders of other users don't exist for
// the caller.
func (s *Scheduler) Get(ctx context.Context, user, id uuid.UUID) (*database.Reminder, error) {
	rm, err := s.repo.GetReminder(ctx, id, user)
	if err != nil {
		return nil, s.fail(user, err)
	}
	return rm, nil
}

func (s *Scheduler) List(ctx context.Context, user uuid.UUID) ([]*database.Reminder, error) {
	res, err := s.repo.ListReminders(ctx, user)
	if err != nil {
		return nil, s.fail(user, err)
	}
	return res, nil
}

// Update changes the given fields of a reminder.
func (s *Scheduler) Update(ctx context.Context, user, id uuid.UUID, in Input) (*database.Reminder, error) {
	rm, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err = s.apply(ctx, user, rm, in); err != nil {
		return nil, err
	}
	if err = s.repo.UpdateReminder(ctx, rm); err != nil {
		return nil, s.fail(user, err)
	}
	return s.Get(ctx, user, id)
}

// Replace is Update where file and remind_at must be present.
func (s *Scheduler) Replace(ctx context.Context, user, id uuid.UUID, in Input) (*database.Reminder, error) {
	if in.FileID == nil || in.RemindAt == nil {
		return nil, fmt.Errorf("file and remind_at are required: %w", apperr.ErrInvalidInput)
	}
	if in.Repeat == nil {
		repeat := database.RepeatNone
		in.Repeat = &repeat
	}
	if in.Note == nil {
		note := ""
		in.Note = &note
	}
	return s.Update(ctx, user, id, in)
}

func (s *Scheduler) Delete(ctx context.Context, user, id uuid.UUID) error {
	if err := s.repo.DeleteReminder(ctx, id, user); err != nil {
		return s.fail(user, err)
	}
	return nil
}

// Upcoming returns the reminders due from ten minutes ago up to an hour from
// now, soonest first.
func (s *Scheduler) Upcoming(ctx context.Context, user uuid.UUID) ([]*database.Reminder, error) {
	now := s.now().UTC()
	res, err := s.repo.ListRemindersBetween(ctx, user, now.Add(-upcomingBefore), now.Add(upcomingAfter))
	if err != nil {
		return nil, s.fail(user, err)
	}
	return res, nil
}

func (s *Scheduler) fail(user uuid.UUID, err error) error {
	if errors.Is(err, database.ErrRecordNotFound) {
		return fmt.Errorf("reminder: %w", apperr.ErrNotFound)
	}
	s.l.WithError(err).WithField("user_id", user).Error(ErrCantSaveReminder)
	return ErrCantSaveReminder
}
