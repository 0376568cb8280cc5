package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/sessions"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/store"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionContextKey = "skillmate_session"
	userContextKey    = "skillmate_user"
)

var (
	errMissingUsersService = errors.New("users service dependency required")
	errMissingNotesService = errors.New("notes service dependency required")
	errMissingSessions     = errors.New("session manager dependency required")
	errMissingRealtime     = errors.New("realtime handler dependency required")
	errMissingOrigins      = errors.New("at least one allowed origin required")
)

// Dependencies wires the services behind the HTTP API.
type Dependencies struct {
	Users          *users.Service
	Notes          *notes.Service
	Sessions       *sessions.Manager
	Realtime       http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the REST and websocket surface wrapped in the access log.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}
	if len(deps.AllowedOrigins) == 0 {
		return nil, errMissingOrigins
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registerValidations()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		users:    deps.Users,
		notes:    deps.Notes,
		sessions: deps.Sessions,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/ws", gin.WrapH(deps.Realtime))

	api := router.Group("/api")
	api.Use(handler.loadSession)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", handler.handleRegister)
	authGroup.POST("/login", handler.handleLogin)
	authGroup.POST("/google", handler.handleGoogle)

	protected := api.Group("/")
	protected.Use(handler.requireUser)
	protected.GET("/auth/me", handler.handleMe)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)

	return withAccessLog(router, logger), nil
}

type httpHandler struct {
	users    *users.Service
	notes    *notes.Service
	sessions *sessions.Manager
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) loadSession(c *gin.Context) {
	session, err := h.sessions.Load(c.Writer, c.Request)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	c.Set(sessionContextKey, session)
	c.Next()
}

// requireUser rejects requests whose session is anonymous or points at a user
// that no longer exists.
func (h *httpHandler) requireUser(c *gin.Context) {
	session := sessionFrom(c)
	userID, ok := session.UserID()
	if !ok {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, messageNotAuthenticated)
		return
	}
	user, found, err := h.users.Current(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to resolve session user", zap.Int64("user_id", userID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, codeInternal, "Failed to get user")
		return
	}
	if !found {
		h.logger.Info("session references missing user", zap.Int64("user_id", userID))
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, messageNotAuthenticated)
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func sessionFrom(c *gin.Context) *sessions.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := value.(*sessions.Session)
	return session
}

func userFrom(c *gin.Context) store.User {
	value, _ := c.Get(userContextKey)
	user, _ := value.(store.User)
	return user
}
