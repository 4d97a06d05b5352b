package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"workboard/domain"
)

func createProject(svc ProjectService, auth Authenticator, limit int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		var in domain.CreateProjectInput
		if err := decodeBody(c, limit, &in); err != nil {
			return errorResponse(c, "decode", err)
		}
		p, err := svc.Create(c.Request().Context(), userID, in)
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusCreated, p)
	}
}

func listProjects(svc ProjectService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		projects, err := svc.List(c.Request().Context(), userID, c.QueryParam("workspaceId"))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, projects)
	}
}

func getProject(svc ProjectService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		p, err := svc.Get(c.Request().Context(), userID, c.Param("projectId"))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, p)
	}
}

func updateProject(svc ProjectService, auth Authenticator, limit int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		var patch domain.ProjectPatch
		if err := decodeBody(c, limit, &patch); err != nil {
			return errorResponse(c, "decode", err)
		}
		p, err := svc.Update(c.Request().Context(), userID, c.Param("projectId"), patch)
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, p)
	}
}

func deleteProject(svc ProjectService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		id := c.Param("projectId")
		if err := svc.Delete(c.Request().Context(), userID, id); err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, map[string]string{"id": id})
	}
}

func listMembers(svc MemberService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		members, err := svc.List(c.Request().Context(), userID, c.QueryParam("workspaceId"))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, members)
	}
}

type updateMemberRequest struct {
	Role domain.MemberRole `json:"role"`
}

func updateMember(svc MemberService, auth Authenticator, limit int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		var req updateMemberRequest
		if err := decodeBody(c, limit, &req); err != nil {
			return errorResponse(c, "decode", err)
		}
		m, err := svc.UpdateRole(c.Request().Context(), userID, c.Param("memberId"), req.Role)
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, m)
	}
}

func removeMember(svc MemberService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return errorResponse(c, "auth", err)
		}
		m, err := svc.Remove(c.Request().Context(), userID, c.Param("memberId"))
		if err != nil {
			return errorResponse(c, "store", err)
		}
		return dataResponse(c, http.StatusOK, map[string]string{"id": m.ID})
	}
}
