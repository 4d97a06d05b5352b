package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"workboard/domain"
)

type createTaskRequest struct {
	Name        string            `json:"name"`
	Status      domain.TaskStatus `json:"status"`
	WorkspaceID string            `json:"workspaceId"`
	ProjectID   string            `json:"projectId"`
	AssigneeID  string            `json:"assigneeId"`
	Description string            `json:"description"`
	DueDate     string            `json:"dueDate"`
	// Position is accepted for compatibility and ignored; the server
	// appends new tasks to the end of their column.
	Position *int `json:"position,omitempty"`
}

type updateTaskRequest struct {
	Name        *string            `json:"name"`
	Status      *domain.TaskStatus `json:"status"`
	ProjectID   *string            `json:"projectId"`
	AssigneeID  *string            `json:"assigneeId"`
	Description *string            `json:"description"`
	DueDate     *string            `json:"dueDate"`
}

type bulkUpdateRequest struct {
	Tasks []domain.PositionUpdate `json:"tasks"`
}

func createTask(svc TaskService, auth Authenticator, limit int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		var req createTaskRequest
		if err := decodeBody(c, limit, &req); err != nil {
			return errorResponse(c, "decode", err)
		}
		in := domain.CreateTaskInput{
			Name:        req.Name,
			Status:      req.Status,
			WorkspaceID: req.WorkspaceID,
			ProjectID:   req.ProjectID,
			AssigneeID:  req.AssigneeID,
			Description: req.Description,
		}
		if strings.TrimSpace(req.DueDate) != "" {
			if in.DueDate, err = domain.ParseDueDate(req.DueDate); err != nil {
				return errorResponse(c, "validate", err)
			}
		}
		task, err := svc.Create(c.Request().Context(), userID, in)
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusCreated, task)
	}
}

func listTasks(svc TaskService, auth Authenticator) echo.HandlerFunc {
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
		tasks, err := svc.List(c.Request().Context(), userID, f)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		m.SetTasksReturned(len(tasks))
		return dataResponse(c, http.StatusOK, tasks)
	}
}

func getTask(svc TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		task, err := svc.Details(c.Request().Context(), userID, c.Param("taskId"))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, task)
	}
}

func updateTask(svc TaskService, auth Authenticator, limit int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		var req updateTaskRequest
		if err := decodeBody(c, limit, &req); err != nil {
			return errorResponse(c, "decode", err)
		}
		patch := domain.TaskPatch{
			Name:        req.Name,
			Status:      req.Status,
			ProjectID:   req.ProjectID,
			AssigneeID:  req.AssigneeID,
			Description: req.Description,
		}
		if req.DueDate != nil {
			d, err := domain.ParseDueDate(*req.DueDate)
			if err != nil {
				return errorResponse(c, "validate", err)
			}
			patch.DueDate = &d
		}
		task, err := svc.Update(c.Request().Context(), userID, c.Param("taskId"), patch)
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, task)
	}
}

func deleteTask(svc TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		task, err := svc.Delete(c.Request().Context(), userID, c.Param("taskId"))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, map[string]string{"id": task.ID})
	}
}

// bulkUpdateTasks commits a client computed position batch. A batch that
// stops part way answers 200 with the committed prefix and partial set.
func bulkUpdateTasks(svc TaskService, auth Authenticator, dedupe Deduper, limit int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		var req bulkUpdateRequest
		if err := decodeBody(c, limit, &req); err != nil {
			return errorResponse(c, "decode", err)
		}
		m := requestMetricsFrom(c)
		m.SetTasksRequested(len(req.Tasks))
		if err := domain.ValidatePositionUpdates(req.Tasks); err != nil {
			return errorResponse(c, "validate", err)
		}

		ctx := c.Request().Context()
		release, err := claimIdempotencyKey(ctx, dedupe, userID, c.Request().Header.Get(HeaderIdempotencyKey))
		if err != nil {
			return errorResponse(c, "dedupe", err)
		}

		start := time.Now()
		tasks, err := svc.BulkUpdate(ctx, userID, req.Tasks)
		m.ObserveStore(time.Since(start))
		m.SetTasksReturned(len(tasks))

		var partial *domain.PartialCommitError
		if errors.As(err, &partial) {
			release()
			m.SetPartial(true)
			m.SetErrorStage("partial_commit")
			m.SetError(err)
			c.Logger().Errorf("bulk update for %s: %v", userID, err)
			return c.JSON(http.StatusOK, envelope{Data: partial.Committed, Partial: true, Error: partialMessage(partial)})
		}
		if err != nil {
			release()
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, tasks)
	}
}

func partialMessage(p *domain.PartialCommitError) string {
	return fmt.Sprintf("updated %d tasks before task %s failed", len(p.Committed), p.FailedID)
}
