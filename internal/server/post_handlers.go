package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

func (h *httpHandler) handleListPosts(c *gin.Context) {
	listRoute[model.Post, model.Post]{
		controller: h.models.Posts.Controller,
		fields:     postQueryFields,
		project:    identity[model.Post],
		message:    "Posts Retrieved",
	}.serve(h, c)
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	post, err := h.models.Posts.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondModelError(c, "posts.get", err)
		return
	}
	respond(c, http.StatusOK, "Post Retrieved", post)
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request model.PostForCreate
	if !bindJSON(c, &request) {
		return
	}
	// Posts are always owned by the caller.
	request.AuthorID = nil

	ctx := c.Request.Context()
	actor := actorFrom(c)
	id, err := h.models.Posts.Create(ctx, actor, request)
	if err != nil {
		h.respondModelError(c, "posts.create", err)
		return
	}
	post, err := h.models.Posts.Get(ctx, actor, id)
	if err != nil {
		h.respondModelError(c, "posts.create", err)
		return
	}
	respond(c, http.StatusCreated, "Post Created", post)
}

func (h *httpHandler) handleUpdatePost(c *gin.Context) {
	post, ok := h.ownedPost(c)
	if !ok {
		return
	}
	var request model.PostForUpdate
	if !bindJSON(c, &request) {
		return
	}

	ctx := c.Request.Context()
	actor := actorFrom(c)
	if err := h.models.Posts.Update(ctx, actor, post.ID, request); err != nil {
		h.respondModelError(c, "posts.update", err)
		return
	}
	updated, err := h.models.Posts.Get(ctx, actor, post.ID)
	if err != nil {
		h.respondModelError(c, "posts.update", err)
		return
	}
	respond(c, http.StatusOK, "Post Updated", updated)
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	post, ok := h.ownedPost(c)
	if !ok {
		return
	}
	if err := h.models.Posts.Delete(c.Request.Context(), actorFrom(c), post.ID); err != nil {
		h.respondModelError(c, "posts.delete", err)
		return
	}
	respond(c, http.StatusOK, "Post Deleted", nil)
}

// ownedPost loads the post named in the path and checks the caller authored it.
func (h *httpHandler) ownedPost(c *gin.Context) (model.Post, bool) {
	id, ok := pathID(c)
	if !ok {
		return model.Post{}, false
	}
	post, err := h.models.Posts.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondModelError(c, "posts.get", err)
		return model.Post{}, false
	}
	if !authoredBy(post, actorFrom(c)) {
		respondError(c, http.StatusForbidden, "forbidden")
		return model.Post{}, false
	}
	return post, true
}

func authoredBy(post model.Post, actor model.Ctx) bool {
	return post.AuthorID != nil && *post.AuthorID == actor.AuthorID()
}
