package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"workboard-api/domain"
)

var dueDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// parseDueDate accepts RFC 3339 timestamps and bare dates (midnight UTC).
func parseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.ErrInvalidDueDate
}

func createTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userFrom(c)
		var req createTaskRequest
		if err := decodeJSON(c.Request().Body, &req, true); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		}
		listID, err := domain.ParseListID(req.ListID)
		if err != nil {
			return writeError(c, d.Logger, "validation", err)
		}
		draft := domain.TaskDraft{Title: req.Title, Description: req.Description}
		if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
			due, err := parseDueDate(*req.DueDate)
			if err != nil {
				return writeError(c, d.Logger, "validation", err)
			}
			draft.DueDate = &due
		}
		now := d.Now().UTC()
		draft, err = domain.NormalizeTaskDraft(draft, now)
		if err != nil {
			return writeError(c, d.Logger, "validation", err)
		}

		board, err := loadBoard(c, d, userID)
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		release, err := claimIdempotencyKey(c, d.Deduper, userID, d.Logger)
		if err != nil {
			return writeError(c, d.Logger, "idempotency", err)
		}
		task := domain.NewTask(uuid.NewString(), draft, now)
		if err := board.AddTask(listID, task); err != nil {
			release()
			return writeError(c, d.Logger, "validation", err)
		}
		board.UpdatedAt = now
		if err := saveBoard(c, d, board); err != nil {
			release()
			return writeError(c, d.Logger, "storage", err)
		}
		emit(d, domain.ActivityTaskCreated, userID, board.ID, task.ID)
		return c.JSON(http.StatusCreated, board)
	}
}

func patchTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userFrom(c)
		data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
		if err != nil {
			return writeError(c, d.Logger, "decode", err)
		}
		var req patchTaskRequest
		var fields map[string]any
		if err := decodeJSON(bytes.NewReader(data), &req, true); err != nil || sonic.Unmarshal(data, &fields) != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		}
		_, dueDateSent := fields["dueDate"]
		// listId is accepted for compatibility with older clients; tasks are
		// located by id.
		if req.ListID != nil {
			if _, err := domain.ParseListID(*req.ListID); err != nil {
				return writeError(c, d.Logger, "validation", err)
			}
		}
		patch := domain.TaskPatch{Title: req.Title, Description: req.Description}
		// an explicit null or empty dueDate clears it
		if dueDateSent {
			if req.DueDate == nil || strings.TrimSpace(*req.DueDate) == "" {
				patch.ClearDueDate = true
			} else {
				due, err := parseDueDate(*req.DueDate)
				if err != nil {
					return writeError(c, d.Logger, "validation", err)
				}
				patch.DueDate = &due
			}
		}

		board, err := loadBoard(c, d, userID)
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		now := d.Now().UTC()
		taskID := c.Param("taskId")
		if _, err := board.UpdateTask(taskID, patch, now); err != nil {
			return writeError(c, d.Logger, "validation", err)
		}
		board.UpdatedAt = now
		if err := saveBoard(c, d, board); err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		emit(d, domain.ActivityTaskUpdated, userID, board.ID, taskID)
		return c.JSON(http.StatusOK, board)
	}
}

func deleteTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userFrom(c)
		board, err := loadBoard(c, d, userID)
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		taskID := c.Param("taskId")
		if err := board.RemoveTask(taskID); err != nil {
			return writeError(c, d.Logger, "validation", err)
		}
		board.UpdatedAt = d.Now().UTC()
		if err := saveBoard(c, d, board); err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		emit(d, domain.ActivityTaskDeleted, userID, board.ID, taskID)
		return c.JSON(http.StatusOK, board)
	}
}

// moveTask relocates a task. When "from" is omitted the task's current list
// is used.
func moveTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userFrom(c)
		var req moveTaskRequest
		if err := decodeJSON(c.Request().Body, &req, true); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		}
		to, err := domain.ParseListID(req.To)
		if err != nil {
			return writeError(c, d.Logger, "validation", err)
		}
		if req.Position == nil {
			return writeError(c, d.Logger, "validation", domain.ErrInvalidMovePosition)
		}
		var from domain.ListID
		if req.From != "" {
			if from, err = domain.ParseListID(req.From); err != nil {
				return writeError(c, d.Logger, "validation", err)
			}
		}

		board, err := loadBoard(c, d, userID)
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		taskID := c.Param("taskId")
		if from == "" {
			current, _, ok := board.FindTask(taskID)
			if !ok {
				return writeError(c, d.Logger, "validation", domain.ErrTaskNotFound)
			}
			from = current
		}
		if err := board.MoveTask(domain.Move{TaskID: taskID, From: from, To: to, Position: *req.Position}); err != nil {
			return writeError(c, d.Logger, "validation", err)
		}
		board.UpdatedAt = d.Now().UTC()
		if err := saveBoard(c, d, board); err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		emit(d, domain.ActivityTaskMoved, userID, board.ID, taskID)
		return c.JSON(http.StatusOK, board)
	}
}

// searchTasks returns the board's lists with only the tasks matching query.
// A blank query returns every task.
func searchTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, err := loadBoard(c, d, userFrom(c))
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		return c.JSON(http.StatusOK, domain.FilterLists(board.Lists, c.QueryParam("query")))
	}
}
