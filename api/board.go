package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"workboard/domain"
)

type boardResponse struct {
	Columns map[domain.TaskStatus][]domain.Task `json:"columns"`
}

type moveResponse struct {
	Columns map[domain.TaskStatus][]domain.Task `json:"columns"`
	Updates []domain.PositionUpdate              `json:"updates"`
	Tasks   []domain.Task                        `json:"tasks"`
}

func getBoard(svc TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		f, err := filterFromQuery(c)
		if err != nil {
			return errorResponse(c, "validate", err)
		}
		m := requestMetricsFrom(c)
		start := time.Now()
		b, err := svc.Board(c.Request().Context(), userID, f)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		m.SetTasksReturned(len(b.Tasks()))
		return dataResponse(c, http.StatusOK, boardResponse{Columns: b.Columns()})
	}
}

// moveTask applies one drag and drop gesture to the board selected by the
// query filters and persists the renumbered destination column.
func moveTask(svc TaskService, auth Authenticator, limit int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		f, err := filterFromQuery(c)
		if err != nil {
			return errorResponse(c, "validate", err)
		}
		var mv domain.Move
		if err := decodeBody(c, limit, &mv); err != nil {
			return errorResponse(c, "decode", err)
		}

		m := requestMetricsFrom(c)
		start := time.Now()
		res, err := svc.Move(c.Request().Context(), userID, f, mv)
		m.ObserveStore(time.Since(start))

		var partial *domain.PartialCommitError
		if errors.As(err, &partial) {
			m.SetPartial(true)
			m.SetErrorStage("partial_commit")
			m.SetError(err)
			c.Logger().Errorf("move for %s: %v", userID, err)
			return c.JSON(http.StatusOK, envelope{
				Data:    moveResponse{Updates: res.Updates, Tasks: partial.Committed},
				Partial: true,
				Error:   partialMessage(partial),
			})
		}
		if err != nil {
			return errorResponse(c, "store", err)
		}
		m.SetTasksReturned(len(res.Tasks))
		return dataResponse(c, http.StatusOK, moveResponse{
			Columns: res.Board.Columns(),
			Updates: res.Updates,
			Tasks:   res.Tasks,
		})
	}
}
