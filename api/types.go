package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"workboard-api/domain"
)

// Storage abstracts board persistence for handlers. Every lookup is scoped by
// owner; boards of other users are reported as not found.
type Storage interface {
	CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error)
	ListBoards(ctx context.Context, userID string) ([]domain.BoardSummary, error)
	GetBoard(ctx context.Context, userID, boardID string) (domain.Board, error)
	SaveBoard(ctx context.Context, b domain.Board) error
	DeleteBoard(ctx context.Context, userID, boardID string) error
}

// Summarizer computes the analytics of one user.
type Summarizer interface {
	Summarize(ctx context.Context, userID string) (domain.Analytics, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation fails.
	Remove(ctx context.Context, userID, key string) error
}

// Deps bundles what Register needs. Deduper and Activity are optional.
type Deps struct {
	Store     Storage
	Analytics Summarizer
	Auth      Authenticator
	Deduper   Deduper
	Activity  *ActivityFeed
	Logger    *log.Logger
	// Now is the clock used for validation and timestamps; defaults to time.Now.
	Now func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type createBoardRequest struct {
	Title string `json:"title"`
}

type patchBoardRequest struct {
	Lists *[]listPayload `json:"lists"`
}

type listPayload struct {
	ID    string        `json:"id"`
	Title string        `json:"title"`
	Tasks []taskPayload `json:"tasks"`
}

type taskPayload struct {
	ID          string     `json:"id"`
	LegacyID    string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   *time.Time `json:"createdAt"`
}

type createTaskRequest struct {
	ListID      string  `json:"listId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	DueDate     *string `json:"dueDate"`
}

type patchTaskRequest struct {
	ListID      *string `json:"listId"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"dueDate"`
}

type moveTaskRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Position *int   `json:"position"`
}
