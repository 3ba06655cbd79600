package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func (r *Repository) CreateReminder(ctx context.Context, rm *Reminder) error {
	return r.conn(ctx).Omit("File").Create(rm).Error
}

// GetReminder returns a reminder only if it belongs to user.
func (r *Repository) GetReminder(ctx context.Context, id, user uuid.UUID) (*Reminder, error) {
	rm := &Reminder{}
	return rm, r.conn(ctx).Preload("File").Where("id = ? AND user_id = ?", id, user).First(rm).Error
}

func (r *Repository) ListReminders(ctx context.Context, user uuid.UUID) ([]*Reminder, error) {
	var res []*Reminder
	return res, r.conn(ctx).Preload("File").Where("user_id = ?", user).Order("remind_at").Find(&res).Error
}

// ListRemindersBetween returns user's reminders with from <= remind_at <= to,
// soonest first.
func (r *Repository) ListRemindersBetween(ctx context.Context, user uuid.UUID, from, to time.Time) ([]*Reminder, error) {
	var res []*Reminder
	return res, r.conn(ctx).
		Preload("File").
		Where("user_id = ? AND remind_at >= ? AND remind_at <= ?", user, from.UTC(), to.UTC()).
		Order("remind_at").
		Find(&res).Error
}

func (r *Repository) UpdateReminder(ctx context.Context, rm *Reminder) error {
	rm.UpdatedAt = r.Now()
	return r.conn(ctx).Model(&Reminder{}).
		Where("id = ? AND user_id = ?", rm.ID, rm.UserID).
		UpdateColumns(map[string]interface{}{
			"note":       rm.Note,
			"remind_at":  rm.RemindAt.UTC(),
			"repeat":     rm.Repeat,
			"file_id":    rm.FileID,
			"updated_at": rm.UpdatedAt,
		}).Error
}

func (r *Repository) DeleteReminder(ctx context.Context, id, user uuid.UUID) error {
	res := r.conn(ctx).Where("id = ? AND user_id = ?", id, user).Delete(&Reminder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
