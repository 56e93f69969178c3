package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

const (
	totalCountHeader = "X-Total-Count"
	cacheHeader      = "X-Inkwell-Cache"
)

type listRoute[E model.Entity, R any] struct {
	controller *model.Controller[E]
	fields     queryFields
	project    func(E) R
	message    string
}

// serve answers a collection request. Unfiltered requests on cached entities
// are served from the snapshot; everything else queries the store.
func (r listRoute[E, R]) serve(h *httpHandler, c *gin.Context) {
	desc := r.controller.Descriptor()
	ctx := c.Request.Context()

	if desc.Cached && len(c.Request.URL.Query()) == 0 {
		if records, ok := model.CachedList[E](ctx, h.models.Synchronizer(), desc.Entity); ok {
			c.Header(cacheHeader, "hit")
			c.Header(totalCountHeader, strconv.Itoa(len(records)))
			if len(records) > model.DefaultListLimit {
				records = records[:model.DefaultListLimit]
			}
			respond(c, http.StatusOK, r.message, r.projectAll(records))
			return
		}
		c.Header(cacheHeader, "miss")
	}

	filter, options, err := parseListQuery(c.Request.URL.Query(), r.fields)
	if err != nil {
		var qErr *queryError
		if errors.As(err, &qErr) {
			respondError(c, http.StatusBadRequest, qErr.Error())
			return
		}
		h.respondModelError(c, desc.Entity+".list", err)
		return
	}

	actor := actorFrom(c)
	records, err := r.controller.List(ctx, actor, filter, options)
	if err != nil {
		h.respondModelError(c, desc.Entity+".list", err)
		return
	}
	total, err := r.controller.Count(ctx, actor, filter)
	if err != nil {
		h.respondModelError(c, desc.Entity+".count", err)
		return
	}
	c.Header(totalCountHeader, strconv.FormatInt(total, 10))
	respond(c, http.StatusOK, r.message, r.projectAll(records))
}

func (r listRoute[E, R]) projectAll(records []E) []R {
	out := make([]R, 0, len(records))
	for _, record := range records {
		out = append(out, r.project(record))
	}
	return out
}

func identity[E any](record E) E { return record }
