package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatsync/internal/auth"
	"github.com/memohai/chatsync/internal/directory"
)

// UsersHandler lists chat candidates and records the caller's profile.
type UsersHandler struct {
	directory *directory.Service
	logger    *slog.Logger
}

type listUsersResponse struct {
	Items []directory.Candidate `json:"items"`
}

type upsertProfileRequest struct {
	Name  string `json:"name" validate:"required,max=128"`
	Email string `json:"email" validate:"omitempty,email"`
}

// NewUsersHandler creates a UsersHandler.
func NewUsersHandler(log *slog.Logger, dir *directory.Service) *UsersHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UsersHandler{
		directory: dir,
		logger:    log.With(slog.String("handler", "users")),
	}
}

func (h *UsersHandler) Register(e *echo.Echo) {
	group := e.Group("/users")
	group.GET("", h.ListUsers)
	group.PUT("/me", h.UpsertMe)
}

// ListUsers godoc
// @Summary List chat candidates
// @Description Every known user except the caller, with the shared channel id
// @Tags users
// @Success 200 {object} listUsersResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users [get]
func (h *UsersHandler) ListUsers(c echo.Context) error {
	self, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	items, err := h.directory.ListCandidates(c.Request().Context(), self)
	if err != nil {
		return httpError(err, http.StatusInternalServerError)
	}
	if items == nil {
		items = []directory.Candidate{}
	}
	return c.JSON(http.StatusOK, listUsersResponse{Items: items})
}

// UpsertMe godoc
// @Summary Record the caller's profile
// @Tags users
// @Param payload body upsertProfileRequest true "Profile"
// @Success 200 {object} docstore.Profile
// @Failure 400 {object} ErrorResponse
// @Router /users/me [put]
func (h *UsersHandler) UpsertMe(c echo.Context) error {
	self, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	var req upsertProfileRequest
	if req.Name == "" {
		req.Name = auth.NameFromContext(c)
	}
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	profile, err := h.directory.UpsertSelf(c.Request().Context(), self, req.Name, req.Email)
	if err != nil {
		return httpError(err, http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, profile)
}
