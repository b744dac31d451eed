package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ListID identifies one of the fixed lists of a board.
type ListID string

const (
	ListTodo       ListID = "todo"
	ListInProgress ListID = "inprogress"
	ListDone       ListID = "done"
)

const MaxTasksPerList = 100

// ListIDs holds the fixed lists in board order.
var ListIDs = [...]ListID{ListTodo, ListInProgress, ListDone}

var defaultListTitles = map[ListID]string{
	ListTodo:       "To Do",
	ListInProgress: "In Progress",
	ListDone:       "Done",
}

// ParseListID validates s against the fixed list identifiers.
func ParseListID(s string) (ListID, error) {
	id := ListID(s)
	if !id.Valid() {
		return "", ErrInvalidListID
	}
	return id, nil
}

func (id ListID) Valid() bool {
	_, ok := defaultListTitles[id]
	return ok
}

// List is an ordered column of tasks.
type List struct {
	ID    ListID `json:"id"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

// Board is a user's kanban board. Lists always holds the three fixed lists in
// ListIDs order.
type Board struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Lists     []List    `json:"lists"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoardSummary is the listing view of a board.
type BoardSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeBoardTitle trims and validates a board title.
func NormalizeBoardTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrBoardTitleRequired
	}
	if utf8.RuneCountInString(s) > MaxTitleLength {
		return "", ErrBoardTitleTooLong
	}
	return s, nil
}

// NewBoard returns a board with the three empty default lists.
func NewBoard(id, userID, title string, now time.Time) Board {
	now = now.UTC()
	return Board{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Lists:     DefaultLists(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DefaultLists returns fresh empty lists with their default titles.
func DefaultLists() []List {
	lists := make([]List, len(ListIDs))
	for i, id := range ListIDs {
		lists[i] = List{ID: id, Title: defaultListTitles[id], Tasks: []Task{}}
	}
	return lists
}

// Summary returns the listing view of b.
func (b Board) Summary() BoardSummary {
	return BoardSummary{ID: b.ID, Title: b.Title, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}

// CanonicalLists reshapes stored lists into the fixed layout without losing
// tasks. The fixed lists come first in ListIDs order; lists repeating an id
// are merged into the first one and lists with other ids are kept after the
// fixed ones in their stored order. Nil task slices become empty.
func CanonicalLists(lists []List) []List {
	out := DefaultLists()
	index := make(map[ListID]int, len(out))
	for i, l := range out {
		index[l.ID] = i
	}
	titled := make(map[ListID]bool, len(lists))
	for _, l := range lists {
		i, ok := index[l.ID]
		if !ok {
			i = len(out)
			index[l.ID] = i
			out = append(out, List{ID: l.ID, Title: l.Title, Tasks: []Task{}})
		}
		if l.Title != "" && !titled[l.ID] {
			out[i].Title = l.Title
			titled[l.ID] = true
		}
		out[i].Tasks = append(out[i].Tasks, l.Tasks...)
	}
	return out
}

// IsCanonical reports whether lists already has the layout CanonicalLists
// produces.
func IsCanonical(lists []List) bool {
	if len(lists) < len(ListIDs) {
		return false
	}
	for i, id := range ListIDs {
		if lists[i].ID != id {
			return false
		}
	}
	seen := make(map[ListID]bool, len(lists))
	for _, l := range lists[len(ListIDs):] {
		if l.ID.Valid() || seen[l.ID] {
			return false
		}
		seen[l.ID] = true
	}
	return true
}

// normalize brings b.Lists into the canonical layout. Pointers into b.Lists
// taken before the call may be stale afterwards.
func (b *Board) normalize() {
	if !IsCanonical(b.Lists) {
		b.Lists = CanonicalLists(b.Lists)
	}
}

// list returns the list with the given id. Callers normalize first.
func (b *Board) list(id ListID) (*List, error) {
	for i := range b.Lists {
		if b.Lists[i].ID == id {
			return &b.Lists[i], nil
		}
	}
	return nil, ErrInvalidListID
}

// AddTask appends t to the end of the given list.
func (b *Board) AddTask(id ListID, t Task) error {
	if !id.Valid() {
		return ErrInvalidListID
	}
	b.normalize()
	l, err := b.list(id)
	if err != nil {
		return err
	}
	if len(l.Tasks) >= MaxTasksPerList {
		return ErrListFull
	}
	l.Tasks = append(l.Tasks, t)
	return nil
}

// FindTask locates a task by id.
func (b *Board) FindTask(taskID string) (ListID, int, bool) {
	for _, l := range b.Lists {
		for j, t := range l.Tasks {
			if t.ID == taskID {
				return l.ID, j, true
			}
		}
	}
	return "", -1, false
}

// UpdateTask applies p to the task with the given id.
func (b *Board) UpdateTask(taskID string, p TaskPatch, now time.Time) (Task, error) {
	b.normalize()
	listID, idx, ok := b.FindTask(taskID)
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	l, _ := b.list(listID)
	updated, err := p.Apply(l.Tasks[idx], now)
	if err != nil {
		return Task{}, err
	}
	l.Tasks[idx] = updated
	return updated, nil
}

// RemoveTask deletes the task with the given id.
func (b *Board) RemoveTask(taskID string) error {
	b.normalize()
	listID, idx, ok := b.FindTask(taskID)
	if !ok {
		return ErrTaskNotFound
	}
	l, _ := b.list(listID)
	tasks := make([]Task, 0, len(l.Tasks)-1)
	tasks = append(tasks, l.Tasks[:idx]...)
	tasks = append(tasks, l.Tasks[idx+1:]...)
	l.Tasks = tasks
	return nil
}

// ReplaceLists swaps the whole list structure for lists. The last writer wins:
// nothing is merged with concurrent edits, and stored lists outside the fixed
// set are dropped because the client replaces the structure explicitly. Tasks already on the board keep
// their creation time, tasks without an id get one.
func (b *Board) ReplaceLists(lists []List, now time.Time) error {
	created := make(map[string]time.Time)
	for _, l := range b.Lists {
		for _, t := range l.Tasks {
			created[t.ID] = t.CreatedAt
		}
	}

	seenLists := make(map[ListID]bool, len(lists))
	seenTasks := make(map[string]bool)
	next := make([]List, 0, len(lists))
	for _, l := range lists {
		if !l.ID.Valid() {
			return ErrInvalidListID
		}
		if seenLists[l.ID] {
			return ErrDuplicateListID
		}
		seenLists[l.ID] = true
		if len(l.Tasks) > MaxTasksPerList {
			return ErrListFull
		}
		tasks := make([]Task, 0, len(l.Tasks))
		for _, t := range l.Tasks {
			title, err := normalizeTaskTitle(t.Title)
			if err != nil {
				return err
			}
			desc, err := normalizeDescription(t.Description)
			if err != nil {
				return err
			}
			t.Title, t.Description = title, desc
			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			if seenTasks[t.ID] {
				return ErrDuplicateTaskID
			}
			seenTasks[t.ID] = true
			if at, ok := created[t.ID]; ok {
				t.CreatedAt = at
			} else {
				t.CreatedAt = now.UTC()
			}
			if t.DueDate != nil {
				due := t.DueDate.UTC()
				t.DueDate = &due
			}
			tasks = append(tasks, t)
		}
		next = append(next, List{ID: l.ID, Title: strings.TrimSpace(l.Title), Tasks: tasks})
	}
	b.Lists = CanonicalLists(next)
	return nil
}
