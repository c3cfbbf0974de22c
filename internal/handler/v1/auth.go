package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/internal/middleware"
	"github.com/dpatel-io/clinicbook/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Email           string  `json:"email" binding:"required,email"`
	Password        string  `json:"password" binding:"required"`
	FirstName       string  `json:"first_name" binding:"required"`
	LastName        string  `json:"last_name" binding:"required"`
	Phone           string  `json:"phone"`
	Role            string  `json:"role" binding:"required"`
	Specialization  string  `json:"specialization"`
	ConsultationFee float64 `json:"consultation_fee"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type userResponse struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	Phone           string  `json:"phone,omitempty"`
	Role            string  `json:"role"`
	Specialization  string  `json:"specialization,omitempty"`
	ConsultationFee float64 `json:"consultation_fee,omitempty"`
	IsVerified      bool    `json:"is_verified"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:              u.ID.String(),
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Phone:           u.Phone,
		Role:            string(u.Role),
		Specialization:  u.Specialization,
		ConsultationFee: u.ConsultationFee,
		IsVerified:      u.IsVerified,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := h.auth.Register(c.Request.Context(), &service.RegisterCommand{
		Email:           req.Email,
		Password:        req.Password,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		Role:            domain.Role(req.Role),
		Specialization:  req.Specialization,
		ConsultationFee: req.ConsultationFee,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, toUserResponse(u))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, pair)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, pair)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := middleware.MustClaims(c)

	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse[any]{Message: "password updated"})
}
