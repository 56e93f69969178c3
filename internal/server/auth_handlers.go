package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponsePayload struct {
	Author      model.AuthorForResult `json:"author"`
	AccessToken string                `json:"access_token"`
	ExpiresIn   int64                 `json:"expires_in"`
	TokenType   string                `json:"token_type"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request model.AuthorForCreate
	if !bindJSON(c, &request) {
		return
	}

	ctx := c.Request.Context()
	id, err := h.models.Authors.Create(ctx, model.RootCtx(), request)
	if err != nil {
		h.respondModelError(c, "auth.signup", err)
		return
	}
	author, err := h.models.Authors.Get(ctx, model.RootCtx(), id)
	if err != nil {
		h.respondModelError(c, "auth.signup", err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, "Author Created", author)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if !bindJSON(c, &request) {
		return
	}

	author, err := h.models.Authors.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, model.ErrInvalidCredentials) {
		respondError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.respondModelError(c, "auth.login", err)
		return
	}
	h.respondWithToken(c, http.StatusOK, "Logged In", author)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, message string, author model.Author) {
	token, expiresIn, err := h.tokens.Issue(author.ID, author.Email)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Int64("author_id", author.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "token_issue_failed")
		return
	}
	respond(c, status, message, authResponsePayload{
		Author:      author.Result(),
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}
