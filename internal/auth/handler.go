package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
	"github.com/inquiro/backend/pkg/response"
	"github.com/inquiro/backend/pkg/utils"
)

var (
	ErrEmailTaken         = apperr.New(apperr.KindInvalid, "email_taken", "Email already registered")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "Invalid email or password")
	ErrInvalidRole        = apperr.New(apperr.KindInvalid, "invalid_role", "Role must be CREATOR or RESPONDENT")
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "user_not_found", "User not found")
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role"` // optional, defaults to RESPONDENT
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   Store
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo Store, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleRespondent
	if req.Role != "" {
		role = models.Role(strings.ToUpper(req.Role))
		if !role.Valid() {
			response.Error(c, ErrInvalidRole)
			return
		}
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.repo.Create(c.Request.Context(), strings.TrimSpace(req.Email), hash, strings.TrimSpace(req.Name), role)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))

	h.issue(c, user, true)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	if user == nil {
		response.Error(c, ErrInvalidCredentials)
		return
	}
	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		if errors.Is(err, utils.ErrPasswordMismatch) {
			response.Error(c, ErrInvalidCredentials)
			return
		}
		h.logger.Error("unusable password hash", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Error(c, err)
		return
	}

	h.issue(c, user, false)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := c.Get(ContextUserID)
	if !ok {
		response.Error(c, apperr.ErrUnauthorized)
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}
	if user == nil {
		response.Error(c, ErrUserNotFound)
		return
	}
	response.OK(c, user.ToPublic())
}

func (h *Handler) issue(c *gin.Context, user *models.User, created bool) {
	token, err := h.jwt.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	body := TokenResponse{Token: token, User: user.ToPublic()}
	if created {
		response.Created(c, body)
		return
	}
	response.OK(c, body)
}
