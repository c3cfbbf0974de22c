package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/dpatel-io/clinicbook/internal/middleware"
	"github.com/dpatel-io/clinicbook/internal/service"
)

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) ListDoctors(c *gin.Context) {
	claims := middleware.MustClaims(c)

	doctors, err := h.users.ListDoctors(c.Request.Context(), string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]userResponse, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, toUserResponse(d))
	}
	respondOK(c, out)
}

func (h *UserHandler) Me(c *gin.Context) {
	claims := middleware.MustClaims(c)

	u, err := h.users.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, toUserResponse(u))
}

func (h *UserHandler) VerifyDoctor(c *gin.Context) {
	claims := middleware.MustClaims(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	u, err := h.users.VerifyDoctor(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, toUserResponse(u))
}
