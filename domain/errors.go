package domain

import "regexp"

// ValidationError reports bad or missing client input. It maps to HTTP 400.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// NotFoundError reports a missing resource. Boards owned by somebody else and
// malformed identifiers produce the same error so callers cannot tell them apart.
type NotFoundError string

func (e NotFoundError) Error() string { return string(e) }

var (
	ErrBoardNotFound = NotFoundError("Board not found")
	ErrTaskNotFound  = NotFoundError("Task not found")
)

var (
	ErrBoardTitleRequired  = ValidationError("Board title is required")
	ErrBoardTitleTooLong   = ValidationError("Board title must be 100 characters or fewer")
	ErrTaskTitleRequired   = ValidationError("Task title is required")
	ErrTaskTitleTooLong    = ValidationError("Task title must be 100 characters or fewer")
	ErrDescriptionTooLong  = ValidationError("Task description must be 500 characters or fewer")
	ErrInvalidDueDate      = ValidationError("Invalid due date")
	ErrDueDateNotInFuture  = ValidationError("Due date must be in the future")
	ErrInvalidListID       = ValidationError("Invalid list id")
	ErrDuplicateListID     = ValidationError("Duplicate list id")
	ErrListFull            = ValidationError("List has reached the maximum of 100 tasks")
	ErrInvalidLists        = ValidationError("Invalid lists data")
	ErrDuplicateTaskID     = ValidationError("Duplicate task id")
	ErrInvalidMovePosition = ValidationError("Invalid position")
)

var boardIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// ValidBoardID reports whether id has the shape of a board identifier.
func ValidBoardID(id string) bool {
	return boardIDPattern.MatchString(id)
}
