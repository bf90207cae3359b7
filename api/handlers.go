package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"wisher-api/domain"
	"wisher-api/repository"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, repo *repository.Repository, auth Authenticator, issuer *TokenIssuer, logger *log.Logger) {
	e.POST("/api/auth/signup", signUp(repo, issuer))
	e.POST("/api/auth/signin", signIn(repo, issuer))
	e.POST("/api/auth/signout", signOut(repo, auth))
	e.GET("/api/events", listEvents(repo, auth, logger))
	e.POST("/api/events", createEvent(repo, auth))
	e.GET("/api/events/:id", getEvent(repo, auth))
	e.PUT("/api/events/:id", updateEvent(repo, auth))
	e.DELETE("/api/events/:id", deleteEvent(repo, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// errorStatus maps the repository failure taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch repository.KindOf(err) {
	case repository.KindAuthorization:
		return http.StatusForbidden
	case repository.KindValidation:
		return http.StatusBadRequest
	case repository.KindNotFound:
		return http.StatusNotFound
	case repository.KindNetwork, repository.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func repoError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func signUp(repo *repository.Repository, issuer *TokenIssuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		user, err := repo.SignUp(c.Request().Context(), req.Email, req.Password, req.Name)
		if err != nil {
			return repoError(c, err)
		}
		return sessionJSON(c, http.StatusCreated, user, issuer)
	}
}

func signIn(repo *repository.Repository, issuer *TokenIssuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		user, err := repo.SignIn(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			return repoError(c, err)
		}
		return sessionJSON(c, http.StatusOK, user, issuer)
	}
}

func sessionJSON(c echo.Context, status int, user domain.User, issuer *TokenIssuer) error {
	resp := sessionResponse{User: user}
	if issuer != nil {
		token, err := issuer.IssueToken(user)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to issue session token"})
		}
		resp.Token = token
	}
	return c.JSON(status, resp)
}

func signOut(repo *repository.Repository, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		if err := repo.SignOut(c.Request().Context()); err != nil {
			return repoError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listEvents(repo *repository.Repository, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newListRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		pageToken := c.QueryParam("pageToken")
		metrics.SetPageTokenProvided(pageToken != "")

		pageSize := 0
		if raw := strings.TrimSpace(c.QueryParam("pageSize")); raw != "" {
			var parseErr error
			pageSize, parseErr = strconv.Atoi(raw)
			if parseErr != nil || pageSize <= 0 {
				metrics.SetErrorStage("invalid_page_size")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid page size"})
				return err
			}
		}

		query := c.QueryParam("q")
		metrics.SetSearchProvided(query != "")

		scoped := repo.WithCaller(domain.User{ID: userID})
		fetchStart := time.Now()
		page, fetchErr := scoped.GetEvents(c.Request().Context(), userID, pageToken, pageSize)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("fetch")
			err = repoError(c, fetchErr)
			return err
		}

		if query != "" {
			// Filtering applies per fetched page, matching the client behavior.
			page.Events = filterEvents(page.Events, query)
		}
		metrics.SetEventsReturned(len(page.Events))
		metrics.SetHasNextPage(page.HasMore)

		err = c.JSON(http.StatusOK, page)
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func filterEvents(events []domain.Event, query string) []domain.Event {
	q := strings.ToLower(query)
	matched := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Title), q) ||
			strings.Contains(strings.ToLower(ev.Recipient), q) ||
			strings.Contains(strings.ToLower(ev.EventType), q) {
			matched = append(matched, ev)
		}
	}
	return matched
}

func createEvent(repo *repository.Repository, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var ev domain.Event
		if err := decodeBody(c, &ev); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.OwnerID == "" {
			ev.OwnerID = userID
		}

		scoped := repo.WithCaller(domain.User{ID: userID})
		if err := scoped.AddEvent(c.Request().Context(), ev); err != nil {
			return repoError(c, err)
		}
		return c.JSON(http.StatusCreated, ev)
	}
}

func getEvent(repo *repository.Repository, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		ev, found, err := repo.GetEvent(c.Request().Context(), c.Param("id"))
		if err != nil {
			return repoError(c, err)
		}
		if !found || ev.OwnerID != userID {
			// A foreign event reads as absent rather than confirming it exists.
			return c.JSON(http.StatusNotFound, errorResponse{Error: "Event not found"})
		}
		return c.JSON(http.StatusOK, ev)
	}
}

func updateEvent(repo *repository.Repository, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var ev domain.Event
		if err := decodeBody(c, &ev); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		ev.ID = c.Param("id")
		if ev.OwnerID == "" {
			ev.OwnerID = userID
		}

		scoped := repo.WithCaller(domain.User{ID: userID})
		if err := scoped.UpdateEvent(c.Request().Context(), ev); err != nil {
			return repoError(c, err)
		}
		return c.JSON(http.StatusOK, ev)
	}
}

func deleteEvent(repo *repository.Repository, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		scoped := repo.WithCaller(domain.User{ID: userID})
		if err := scoped.DeleteEvent(c.Request().Context(), c.Param("id")); err != nil {
			return repoError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
