package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "inkwell_request_id"
	actorContextKey     = "inkwell_actor"
)

var errInvalidAuthorization = errors.New("authorization header missing or invalid")

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, totalCountHeader, cacheHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// requestLogger tags each request with an id and writes one access log entry.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		respondError(c, http.StatusUnauthorized, errInvalidAuthorization.Error())
		return
	}
	principal, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	actor, err := model.NewCtx(principal.AuthorID)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	c.Set(actorContextKey, actor)
	c.Request = c.Request.WithContext(model.WithCtx(c.Request.Context(), actor))
	c.Next()
}

// actorFrom returns the authenticated author, or the root context for public routes.
func actorFrom(c *gin.Context) model.Ctx {
	if value, ok := c.Get(actorContextKey); ok {
		if actor, ok := value.(model.Ctx); ok {
			return actor
		}
	}
	return model.RootCtx()
}
