package domain

// Activity types published after successful mutations.
const (
	ActivityBoardCreated = "board-created"
	ActivityBoardUpdated = "board-updated"
	ActivityBoardDeleted = "board-deleted"
	ActivityTaskCreated  = "task-created"
	ActivityTaskUpdated  = "task-updated"
	ActivityTaskMoved    = "task-moved"
	ActivityTaskDeleted  = "task-deleted"
)

// Activity records a change made to a board.
type Activity struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	BoardID string `json:"boardId"`
	TaskID  string `json:"taskId,omitempty"`
	Time    int64  `json:"time"`
}
