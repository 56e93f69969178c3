package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

func (h *httpHandler) handleListAuthors(c *gin.Context) {
	listRoute[model.Author, model.AuthorForResult]{
		controller: h.models.Authors.Controller,
		fields:     authorQueryFields,
		project:    model.Author.Result,
		message:    "Authors Retrieved",
	}.serve(h, c)
}

func (h *httpHandler) handleGetAuthor(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	author, err := h.models.Authors.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondModelError(c, "authors.get", err)
		return
	}
	respond(c, http.StatusOK, "Author Retrieved", author.Result())
}
