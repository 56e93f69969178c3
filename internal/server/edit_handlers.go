package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

func (h *httpHandler) handleListEdits(c *gin.Context) {
	listRoute[model.Edit, model.Edit]{
		controller: h.models.Edits.Controller,
		fields:     editQueryFields,
		project:    identity[model.Edit],
		message:    "Edits Retrieved",
	}.serve(h, c)
}

func (h *httpHandler) handleGetEdit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	edit, err := h.models.Edits.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondModelError(c, "edits.get", err)
		return
	}
	respond(c, http.StatusOK, "Edit Retrieved", edit)
}

func (h *httpHandler) handleCreateEdit(c *gin.Context) {
	var request model.EditForCreate
	if !bindJSON(c, &request) {
		return
	}
	actor := actorFrom(c)
	request.EditorID = actor.AuthorID()

	ctx := c.Request.Context()
	id, err := h.models.Edits.Create(ctx, actor, request)
	if err != nil {
		h.respondModelError(c, "edits.create", err)
		return
	}
	edit, err := h.models.Edits.Get(ctx, actor, id)
	if err != nil {
		h.respondModelError(c, "edits.create", err)
		return
	}
	respond(c, http.StatusCreated, "Edit Created", edit)
}

// handleUpdateEdit lets the editor revise content. Status changes are
// reserved for the author of the target post.
func (h *httpHandler) handleUpdateEdit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var request model.EditForUpdate
	if !bindJSON(c, &request) {
		return
	}

	ctx := c.Request.Context()
	actor := actorFrom(c)
	edit, post, ok := h.loadEdit(c, actor, id)
	if !ok {
		return
	}
	if request.NewContent != nil && edit.EditorID != actor.AuthorID() {
		respondError(c, http.StatusForbidden, "forbidden")
		return
	}
	if request.Status != nil && !authoredBy(post, actor) {
		respondError(c, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.models.Edits.Update(ctx, actor, id, request); err != nil {
		h.respondModelError(c, "edits.update", err)
		return
	}
	updated, err := h.models.Edits.Get(ctx, actor, id)
	if err != nil {
		h.respondModelError(c, "edits.update", err)
		return
	}
	respond(c, http.StatusOK, "Edit Updated", updated)
}

func (h *httpHandler) handleAcceptEdit(c *gin.Context) {
	h.reviewEdit(c, "Edit Accepted", h.models.Edits.Accept)
}

func (h *httpHandler) handleRejectEdit(c *gin.Context) {
	h.reviewEdit(c, "Edit Rejected", h.models.Edits.Reject)
}

func (h *httpHandler) reviewEdit(c *gin.Context, message string, apply func(context.Context, model.Ctx, int64) error) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)
	_, post, ok := h.loadEdit(c, actor, id)
	if !ok {
		return
	}
	if !authoredBy(post, actor) {
		respondError(c, http.StatusForbidden, "forbidden")
		return
	}
	if err := apply(ctx, actor, id); err != nil {
		h.respondModelError(c, "edits.review", err)
		return
	}
	reviewed, err := h.models.Edits.Get(ctx, actor, id)
	if err != nil {
		h.respondModelError(c, "edits.review", err)
		return
	}
	respond(c, http.StatusOK, message, reviewed.Result())
}

func (h *httpHandler) handleDeleteEdit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)
	edit, post, ok := h.loadEdit(c, actor, id)
	if !ok {
		return
	}
	if edit.EditorID != actor.AuthorID() && !authoredBy(post, actor) {
		respondError(c, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.models.Edits.Delete(ctx, actor, id); err != nil {
		h.respondModelError(c, "edits.delete", err)
		return
	}
	respond(c, http.StatusOK, "Edit Deleted", nil)
}

// loadEdit fetches the edit and the post it targets.
func (h *httpHandler) loadEdit(c *gin.Context, actor model.Ctx, id int64) (model.Edit, model.Post, bool) {
	ctx := c.Request.Context()
	edit, err := h.models.Edits.Get(ctx, actor, id)
	if err != nil {
		h.respondModelError(c, "edits.get", err)
		return model.Edit{}, model.Post{}, false
	}
	post, err := h.models.Posts.Get(ctx, actor, edit.PostID)
	if err != nil {
		h.respondModelError(c, "edits.get", err)
		return model.Edit{}, model.Post{}, false
	}
	return edit, post, true
}
