package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"workboard/domain"
)

const defaultBodyLimit = 1 << 20

// Deps carries everything the handlers need. Deduper and Broker are optional.
type Deps struct {
	Tasks     TaskService
	Projects  ProjectService
	Members   MemberService
	Auth      Authenticator
	Deduper   Deduper
	Broker    *Broker
	Logger    *log.Logger
	BodyLimit int64
	// Ping reports whether the backing services are reachable.
	Ping func(ctx context.Context) error
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.BodyLimit <= 0 {
		d.BodyLimit = defaultBodyLimit
	}
	e.JSONSerializer = sonicSerializer{}

	g := e.Group("/api", RequestMetricsMiddleware(d.Logger), DecodeRequestBody())

	g.POST("/tasks/bulk-update", bulkUpdateTasks(d.Tasks, d.Auth, d.Deduper, d.BodyLimit))
	g.POST("/tasks", createTask(d.Tasks, d.Auth, d.BodyLimit))
	g.GET("/tasks", listTasks(d.Tasks, d.Auth))
	g.GET("/tasks/:taskId", getTask(d.Tasks, d.Auth))
	g.PATCH("/tasks/:taskId", updateTask(d.Tasks, d.Auth, d.BodyLimit))
	g.DELETE("/tasks/:taskId", deleteTask(d.Tasks, d.Auth))

	g.GET("/board", getBoard(d.Tasks, d.Auth))
	g.POST("/board/move", moveTask(d.Tasks, d.Auth, d.BodyLimit))

	g.POST("/projects", createProject(d.Projects, d.Auth, d.BodyLimit))
	g.GET("/projects", listProjects(d.Projects, d.Auth))
	g.GET("/projects/:projectId", getProject(d.Projects, d.Auth))
	g.PATCH("/projects/:projectId", updateProject(d.Projects, d.Auth, d.BodyLimit))
	g.DELETE("/projects/:projectId", deleteProject(d.Projects, d.Auth))

	g.GET("/members", listMembers(d.Members, d.Auth))
	g.PATCH("/members/:memberId", updateMember(d.Members, d.Auth, d.BodyLimit))
	g.DELETE("/members/:memberId", removeMember(d.Members, d.Auth))

	// streams are long lived and stay out of the request metrics
	e.GET("/api/board/stream", streamBoard(d.Tasks, d.Auth, d.Broker, d.Logger))

	e.GET("/healthz", healthz(d.Ping))
}

type envelope struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

func dataResponse(c echo.Context, status int, v any) error {
	m := requestMetricsFrom(c)
	start := time.Now()
	err := c.JSON(status, envelope{Data: v})
	m.ObserveEncode(time.Since(start))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

// errorResponse maps domain errors onto HTTP statuses.
func errorResponse(c echo.Context, stage string, err error) error {
	status, msg := statusFor(err)
	m := requestMetricsFrom(c)
	m.SetErrorStage(stage)
	m.SetError(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, envelope{Error: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrCrossWorkspace),
		errors.Is(err, domain.ErrUnknownTask):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized), isAuthError(err):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInconsistentBoard):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrLastMember):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errDuplicateRequest):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errUnsupportedEncoding):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

// authenticate resolves the caller. Failures are wrapped in *authError and
// answered with 401 by errorResponse.
func authenticate(c echo.Context, auth Authenticator) (string, error) {
	m := requestMetricsFrom(c)
	start := time.Now()
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	m.ObserveAuth(time.Since(start))
	if err != nil {
		return "", &authError{err: err}
	}
	return userID, nil
}

type authError struct{ err error }

func (e *authError) Error() string { return e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

func isAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

var errBodyTooLarge = errors.New("request body too large")

// decodeBody reads a JSON body of at most limit bytes into dst. Unknown fields
// are rejected.
func decodeBody(c echo.Context, limit int64, dst any) error {
	body := c.Request().Body
	if body == nil {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidInput)
	}
	lr := &io.LimitedReader{R: body, N: limit + 1}
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if lr.N <= 0 {
		return errBodyTooLarge
	}
	if err != nil {
		return fmt.Errorf("%w: invalid body", domain.ErrInvalidInput)
	}
	return nil
}

// filterFromQuery reads the task list filters shared by list, board and move.
func filterFromQuery(c echo.Context) (domain.TaskFilter, error) {
	f := domain.TaskFilter{
		WorkspaceID: strings.TrimSpace(c.QueryParam("workspaceId")),
		ProjectID:   strings.TrimSpace(c.QueryParam("projectId")),
		AssigneeID:  strings.TrimSpace(c.QueryParam("assigneeId")),
		Search:      strings.TrimSpace(c.QueryParam("search")),
	}
	if raw := c.QueryParam("status"); raw != "" {
		s, err := domain.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	if raw := c.QueryParam("dueDate"); raw != "" {
		d, err := domain.ParseDueDate(raw)
		if err != nil {
			return f, err
		}
		f.DueDate = &d
	}
	if f.WorkspaceID == "" {
		return f, fmt.Errorf("%w: workspaceId is required", domain.ErrInvalidInput)
	}
	return f, nil
}

func healthz(ping func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ping == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			c.Logger().Warn(err)
			return c.JSON(http.StatusServiceUnavailable, envelope{Error: "unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

// sonicSerializer replaces echo's encoding/json serializer.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}
