package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"workboard-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.New()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	e.GET("/health", health())

	g := e.Group("/api", requestObservability(d.Logger), GzipRequestMiddleware(), requireUser(d.Auth))
	g.POST("/boards", createBoard(d))
	g.GET("/boards", listBoards(d))
	g.GET("/boards/:id", getBoard(d))
	g.PATCH("/boards/:id", patchBoard(d))
	g.DELETE("/boards/:id", deleteBoard(d))

	g.POST("/boards/:id/tasks", createTask(d))
	g.GET("/boards/:id/tasks", searchTasks(d))
	g.PATCH("/boards/:id/tasks/:taskId", patchTask(d))
	g.DELETE("/boards/:id/tasks/:taskId", deleteTask(d))
	g.POST("/boards/:id/tasks/:taskId/move", moveTask(d))

	g.GET("/analytics", getAnalytics(d))
}

func health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// loadBoard fetches the caller's board, timing the store call.
func loadBoard(c echo.Context, d Deps, userID string) (domain.Board, error) {
	start := time.Now()
	b, err := d.Store.GetBoard(c.Request().Context(), userID, c.Param("id"))
	metricsFrom(c).ObserveStore(time.Since(start))
	return b, err
}

func saveBoard(c echo.Context, d Deps, b domain.Board) error {
	start := time.Now()
	err := d.Store.SaveBoard(c.Request().Context(), b)
	metricsFrom(c).ObserveStore(time.Since(start))
	return err
}

func emit(d Deps, kind, userID, boardID, taskID string) {
	d.Activity.Emit(domain.Activity{
		Type:    kind,
		UserID:  userID,
		BoardID: boardID,
		TaskID:  taskID,
		Time:    nextTimestamp(),
	})
}

func createBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userFrom(c)
		var req createBoardRequest
		if err := decodeJSON(c.Request().Body, &req, true); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		}
		title, err := domain.NormalizeBoardTitle(req.Title)
		if err != nil {
			return writeError(c, d.Logger, "validation", err)
		}

		release, err := claimIdempotencyKey(c, d.Deduper, userID, d.Logger)
		if err != nil {
			return writeError(c, d.Logger, "idempotency", err)
		}

		start := time.Now()
		board, err := d.Store.CreateBoard(c.Request().Context(), domain.NewBoard("", userID, title, d.Now().UTC()))
		metricsFrom(c).ObserveStore(time.Since(start))
		if err != nil {
			release()
			return writeError(c, d.Logger, "storage", err)
		}
		emit(d, domain.ActivityBoardCreated, userID, board.ID, "")
		return c.JSON(http.StatusCreated, board)
	}
}

func listBoards(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		boards, err := d.Store.ListBoards(c.Request().Context(), userFrom(c))
		metricsFrom(c).ObserveStore(time.Since(start))
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		if boards == nil {
			boards = []domain.BoardSummary{}
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func getBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, err := loadBoard(c, d, userFrom(c))
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		return c.JSON(http.StatusOK, board)
	}
}

// patchBoard replaces the board's lists wholesale. The body is validated
// before the board id so a malformed body is always a 400.
func patchBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userFrom(c)
		var req patchBoardRequest
		if err := decodeJSON(c.Request().Body, &req, false); err != nil || req.Lists == nil {
			return writeError(c, d.Logger, "decode", domain.ErrInvalidLists)
		}
		lists, err := listsFromPayload(*req.Lists)
		if err != nil {
			return writeError(c, d.Logger, "validation", err)
		}

		board, err := loadBoard(c, d, userID)
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		now := d.Now().UTC()
		if err := board.ReplaceLists(lists, now); err != nil {
			return writeError(c, d.Logger, "validation", err)
		}
		board.UpdatedAt = now
		if err := saveBoard(c, d, board); err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		emit(d, domain.ActivityBoardUpdated, userID, board.ID, "")
		return c.JSON(http.StatusOK, board)
	}
}

func listsFromPayload(in []listPayload) ([]domain.List, error) {
	out := make([]domain.List, 0, len(in))
	for _, l := range in {
		id, err := domain.ParseListID(l.ID)
		if err != nil {
			return nil, err
		}
		tasks := make([]domain.Task, 0, len(l.Tasks))
		for _, t := range l.Tasks {
			task := domain.Task{ID: t.ID, Title: t.Title, Description: t.Description, DueDate: t.DueDate}
			if task.ID == "" {
				task.ID = t.LegacyID
			}
			tasks = append(tasks, task)
		}
		out = append(out, domain.List{ID: id, Title: l.Title, Tasks: tasks})
	}
	return out, nil
}

func deleteBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userFrom(c)
		start := time.Now()
		err := d.Store.DeleteBoard(c.Request().Context(), userID, c.Param("id"))
		metricsFrom(c).ObserveStore(time.Since(start))
		if err != nil {
			return writeError(c, d.Logger, "storage", err)
		}
		emit(d, domain.ActivityBoardDeleted, userID, c.Param("id"), "")
		return c.JSON(http.StatusOK, messageResponse{Message: "Board deleted"})
	}
}

func getAnalytics(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		out, err := d.Analytics.Summarize(c.Request().Context(), userFrom(c))
		metricsFrom(c).ObserveStore(time.Since(start))
		if err != nil {
			return writeError(c, d.Logger, "analytics", err)
		}
		return c.JSON(http.StatusOK, out)
	}
}
