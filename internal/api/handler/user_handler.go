package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/api/metrics"
	"github.com/99minutos/userdesk/internal/core/domain"
	"github.com/99minutos/userdesk/internal/core/ports"
)

// UserHandler serves the users resource. Errors are returned to echo and
// rendered by the central error handler.
type UserHandler struct {
	repo    ports.UserRepository
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewUserHandler(repo ports.UserRepository, m *metrics.Metrics, log zerolog.Logger) *UserHandler {
	return &UserHandler{repo: repo, metrics: m, log: log}
}

// userRequest is the body of create and update. id and image are not
// accepted from clients.
type userRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Birthdate string `json:"birthdate"`
}

func (r userRequest) toInput() domain.UserInput {
	return domain.UserInput{
		Name:      r.Name,
		Email:     r.Email,
		Address:   r.Address,
		Birthdate: r.Birthdate,
	}
}

// bindInput decodes and validates the request body.
func bindInput(c echo.Context) (domain.UserInput, error) {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return domain.UserInput{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in := req.toInput()
	if err := c.Validate(in); err != nil {
		return domain.UserInput{}, err
	}
	return in, nil
}

func (h *UserHandler) observe(operation string, err error) {
	result := "ok"
	var ve *domain.ValidationError
	var he *echo.HTTPError
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUserNotFound):
		result = "not_found"
	case errors.As(err, &ve), errors.As(err, &he):
		result = "invalid"
	default:
		result = "error"
	}
	h.metrics.UserOperationsTotal.WithLabelValues(operation, result).Inc()
}

func (h *UserHandler) refreshStored(c echo.Context) {
	users, err := h.repo.List(c.Request().Context())
	if err != nil {
		return
	}
	h.metrics.UsersStored.Set(float64(len(users)))
}

// List handles GET /users.
func (h *UserHandler) List(c echo.Context) error {
	users, err := h.repo.List(c.Request().Context())
	h.observe("list", err)
	if err != nil {
		return err
	}
	if users == nil {
		users = []domain.User{}
	}
	return c.JSON(http.StatusOK, users)
}

// Get handles GET /users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	u, err := h.repo.FindByID(c.Request().Context(), c.Param("id"))
	h.observe("get", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// Create handles POST /users.
func (h *UserHandler) Create(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		h.observe("create", err)
		return err
	}

	u, err := h.repo.Create(c.Request().Context(), in)
	h.observe("create", err)
	if err != nil {
		return err
	}
	h.refreshStored(c)
	h.log.Info().Str("user_id", u.ID).Msg("user created")
	return c.JSON(http.StatusCreated, u)
}

// Update handles PUT /users/:id.
func (h *UserHandler) Update(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		h.observe("update", err)
		return err
	}

	u, err := h.repo.Update(c.Request().Context(), c.Param("id"), in)
	h.observe("update", err)
	if err != nil {
		return err
	}
	h.log.Info().Str("user_id", u.ID).Msg("user updated")
	return c.JSON(http.StatusOK, u)
}

// Delete handles DELETE /users/:id.
func (h *UserHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	err := h.repo.Delete(c.Request().Context(), id)
	h.observe("delete", err)
	if err != nil {
		return err
	}
	h.refreshStored(c)
	h.log.Info().Str("user_id", id).Msg("user deleted")
	return c.NoContent(http.StatusNoContent)
}
