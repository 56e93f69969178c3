package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingModels       = errors.New("model manager dependency required")
)

// TokenManager issues and validates bearer tokens for authors.
type TokenManager interface {
	Issue(authorID int64, email string) (string, int64, error)
	ValidateToken(token string) (auth.Principal, error)
}

type Dependencies struct {
	TokenManager   TokenManager
	Models         *model.Manager
	Logger         *zap.Logger
	AllowedOrigins []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Models == nil {
		return nil, errMissingModels
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens: deps.TokenManager,
		models: deps.Models,
		logger: logger,
	}

	router.GET("/healthz", handler.handleHealth)

	router.POST("/auth/signup", handler.handleSignup)
	router.POST("/auth/login", handler.handleLogin)
	router.GET("/authors", handler.handleListAuthors)
	router.GET("/authors/:id", handler.handleGetAuthor)
	router.GET("/posts", handler.handleListPosts)
	router.GET("/posts/:id", handler.handleGetPost)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/posts", handler.handleCreatePost)
	protected.PATCH("/posts/:id", handler.handleUpdatePost)
	protected.DELETE("/posts/:id", handler.handleDeletePost)
	protected.GET("/edits", handler.handleListEdits)
	protected.POST("/edits", handler.handleCreateEdit)
	protected.GET("/edits/:id", handler.handleGetEdit)
	protected.PATCH("/edits/:id", handler.handleUpdateEdit)
	protected.DELETE("/edits/:id", handler.handleDeleteEdit)
	protected.POST("/edits/:id/accept", handler.handleAcceptEdit)
	protected.POST("/edits/:id/reject", handler.handleRejectEdit)

	return router, nil
}

type httpHandler struct {
	tokens TokenManager
	models *model.Manager
	logger *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	sqlDB, err := h.models.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respond(c, http.StatusOK, "ok", nil)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}
