package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/konorlevich/resource_center/internal/rest-service/database"
	"github.com/konorlevich/resource_center/internal/rest-service/reminder"
)

type reminderData struct {
	File     *string    `json:"file"`
	Note     *string    `json:"note"`
	RemindAt *time.Time `json:"remind_at"`
	Repeat   *string    `json:"repeat"`
}

func newReminderInput(r *http.Request) (reminder.Input, error) {
	d := &reminderData{}
	if err := decodeJSON(r, d); err != nil {
		return reminder.Input{}, err
	}
	in := reminder.Input{Note: d.Note, RemindAt: d.RemindAt, Repeat: d.Repeat}
	if d.File != nil {
		id, err := parseOptionalID("file", *d.File)
		if err != nil {
			return in, err
		}
		in.FileID = id
	}
	return in, nil
}

func (s *server) listReminders(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	rms, err := s.reminders.List(r.Context(), u.ID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newReminderViews(rms))
}

func (s *server) upcomingReminders(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	rms, err := s.reminders.Upcoming(r.Context(), u.ID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newReminderViews(rms))
}

func (s *server) createReminder(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	in, err := newReminderInput(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	rm, err := s.reminders.Create(r.Context(), u.ID, in)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusCreated, newReminderView(rm))
}

func (s *server) getReminder(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameReminderID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	rm, err := s.reminders.Get(r.Context(), u.ID, id)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newReminderView(rm))
}

func (s *server) updateReminder(rw http.ResponseWriter, r *http.Request) {
	s.changeReminder(rw, r, s.reminders.Update)
}

func (s *server) replaceReminder(rw http.ResponseWriter, r *http.Request) {
	s.changeReminder(rw, r, s.reminders.Replace)
}

func (s *server) changeReminder(rw http.ResponseWriter, r *http.Request, fn func(ctx context.Context, user, id uuid.UUID, in reminder.Input) (*database.Reminder, error)) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameReminderID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	in, err := newReminderInput(r)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	rm, err := fn(r.Context(), u.ID, id, in)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	writeJSON(rw, http.StatusOK, newReminderView(rm))
}

func (s *server) deleteReminder(rw http.ResponseWriter, r *http.Request) {
	u, l := s.request(r)
	id, err := pathID(r, fieldNameReminderID)
	if err != nil {
		writeError(rw, l, err)
		return
	}
	if err = s.reminders.Delete(r.Context(), u.ID, id); err != nil {
		writeError(rw, l, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}
