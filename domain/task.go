package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// Task is a single card on a board.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TaskDraft carries the client supplied fields of a new task.
type TaskDraft struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// NewTask builds a task from a normalized draft.
func NewTask(id string, d TaskDraft, now time.Time) Task {
	return Task{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		DueDate:     d.DueDate,
		CreatedAt:   now.UTC(),
	}
}

// TaskPatch carries an edit. Nil fields are left untouched; ClearDueDate
// removes the due date.
type TaskPatch struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	ClearDueDate bool
}

// NormalizeTaskDraft trims and validates a draft against now.
func NormalizeTaskDraft(d TaskDraft, now time.Time) (TaskDraft, error) {
	title, err := normalizeTaskTitle(d.Title)
	if err != nil {
		return TaskDraft{}, err
	}
	desc, err := normalizeDescription(d.Description)
	if err != nil {
		return TaskDraft{}, err
	}
	out := TaskDraft{Title: title, Description: desc}
	if d.DueDate != nil {
		if !d.DueDate.After(now) {
			return TaskDraft{}, ErrDueDateNotInFuture
		}
		due := d.DueDate.UTC()
		out.DueDate = &due
	}
	return out, nil
}

// Apply validates the patch and returns the edited copy of t.
func (p TaskPatch) Apply(t Task, now time.Time) (Task, error) {
	if p.Title != nil {
		title, err := normalizeTaskTitle(*p.Title)
		if err != nil {
			return Task{}, err
		}
		t.Title = title
	}
	if p.Description != nil {
		desc, err := normalizeDescription(*p.Description)
		if err != nil {
			return Task{}, err
		}
		t.Description = desc
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		if !p.DueDate.After(now) {
			return Task{}, ErrDueDateNotInFuture
		}
		due := p.DueDate.UTC()
		t.DueDate = &due
	}
	return t, nil
}

// IsOverdue reports whether t has a due date strictly before now. Whether the
// task sits in the done list is the caller's concern.
func (t Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now)
}

func normalizeTaskTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrTaskTitleRequired
	}
	if utf8.RuneCountInString(s) > MaxTitleLength {
		return "", ErrTaskTitleTooLong
	}
	return s, nil
}

func normalizeDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxDescriptionLength {
		return "", ErrDescriptionTooLong
	}
	return s, nil
}
