package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/store"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequest struct {
	Name     string  `json:"name" binding:"required,notblank,max=100"`
	Email    string  `json:"email" binding:"required,email,max=320"`
	Avatar   *string `json:"avatar" binding:"omitempty,max=1024"`
	Password string  `json:"password" binding:"omitempty,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type googleRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
	Credential string `json:"credential"`
}

// publicUser is the only user shape the API returns.
type publicUser struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar"`
}

type userResponse struct {
	User publicUser `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newUserResponse(user store.User) userResponse {
	return userResponse{User: publicUser{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Avatar,
	}}
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, bindingMessage(err))
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.Registration{
		Name:     request.Name,
		Email:    request.Email,
		Avatar:   request.Avatar,
		Password: request.Password,
	})
	if errors.Is(err, users.ErrDuplicateEmail) {
		writeError(c, http.StatusBadRequest, codeDuplicateUser, "User already exists")
		return
	}
	// The binding counts characters; bcrypt's limit is in bytes.
	if errors.Is(err, auth.ErrPasswordTooLong) {
		writeError(c, http.StatusBadRequest, codeValidation, messagePasswordTooLong)
		return
	}
	if err != nil {
		h.logger.Error("failed to register user", zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, "Failed to register user")
		return
	}

	h.signIn(c, user, "Failed to register user")
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, bindingMessage(err))
		return
	}

	user, err := h.users.Login(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		h.logger.Error("failed to login", zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, "Failed to login")
		return
	}

	h.signIn(c, user, "Failed to login")
}

func (h *httpHandler) handleGoogle(c *gin.Context) {
	var request googleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, "Invalid Google user data")
		return
	}

	var (
		user store.User
		err  error
	)
	if credential := strings.TrimSpace(request.Credential); credential != "" {
		user, err = h.users.GoogleSignInWithToken(c.Request.Context(), credential)
	} else {
		user, err = h.users.GoogleSignIn(c.Request.Context(), users.GoogleProfile{
			Name:   request.Name,
			Email:  request.Email,
			Avatar: request.Avatar,
		})
	}
	switch {
	case errors.Is(err, users.ErrInvalidGoogleProfile), errors.Is(err, users.ErrGoogleTokenUnsupported):
		writeError(c, http.StatusBadRequest, codeValidation, "Invalid Google user data")
		return
	case errors.Is(err, users.ErrGoogleTokenRejected):
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "Invalid Google credential")
		return
	case err != nil:
		h.logger.Error("google sign-in failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, "Failed to authenticate with Google")
		return
	}

	h.signIn(c, user, "Failed to authenticate with Google")
}

func (h *httpHandler) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, newUserResponse(userFrom(c)))
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := sessionFrom(c).Destroy(c.Request.Context()); err != nil {
		h.logger.Error("failed to destroy session", zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, "Failed to logout")
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// signIn binds the user to the request session and writes the user response.
func (h *httpHandler) signIn(c *gin.Context, user store.User, failureMessage string) {
	if err := sessionFrom(c).SetUserID(c.Request.Context(), user.ID); err != nil {
		h.logger.Error("failed to bind session", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, failureMessage)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
