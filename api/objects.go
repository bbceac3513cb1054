package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/scope"
	"github.com/xraph/paysim/store"
)

// putObject seeds a domain object under /_config/objects/:kind/:id.
func (h *Handler) putObject(c *gin.Context) {
	ctx := c.Request.Context()
	kind := object.Kind(c.Param("kind"))
	oid := c.Param("id")

	if !object.Known(kind) {
		writeParamError(c, http.StatusBadRequest, "Unknown object kind: "+string(kind), "kind")
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		writeError(c, http.StatusBadRequest, "Bad request: body must be a JSON object")
		return
	}

	idField := object.IDField(kind)
	if rawID, ok := fields[idField]; ok {
		var bodyID string
		if err := json.Unmarshal(rawID, &bodyID); err != nil || bodyID != oid {
			writeParamError(c, http.StatusBadRequest, "Body "+idField+" does not match the URL", idField)
			return
		}
	}
	fields[idField], _ = json.Marshal(oid)

	if account := scope.Account(ctx); account != "" {
		if _, ok := fields["account"]; !ok {
			fields["account"], _ = json.Marshal(account)
		}
	}
	if _, ok := fields["created"]; !ok {
		fields["created"], _ = json.Marshal(h.engine.Now().Unix())
	}

	normalized, err := json.Marshal(fields)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	obj, err := object.Decode(kind, normalized)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}
	if !scope.Visible(ctx, obj.Account()) {
		writeParamError(c, http.StatusBadRequest, "Object account does not match Stripe-Account", "account")
		return
	}

	if err := h.engine.Store().Set(ctx, obj); err != nil {
		if errors.Is(err, store.ErrEmptyID) {
			writeParamError(c, http.StatusBadRequest, "Missing required param: "+idField, idField)
			return
		}
		h.logger.ErrorContext(ctx, "seed object failed", "key", object.KeyOf(obj), "error", err)
		writeError(c, http.StatusInternalServerError, "An error occurred with our API.")
		return
	}
	h.writeResource(c, obj)
}

func (h *Handler) getObject(c *gin.Context) {
	ctx := c.Request.Context()
	kind := object.Kind(c.Param("kind"))
	oid := c.Param("id")

	obj, err := h.engine.Store().Get(ctx, object.Key(kind, oid))
	if errors.Is(err, store.ErrNotFound) || (err == nil && !scope.Visible(ctx, obj.Account())) {
		writeParamError(c, http.StatusNotFound, "No such "+string(kind)+": '"+oid+"'", "id")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "read object failed", "kind", kind, "id", oid, "error", err)
		writeError(c, http.StatusInternalServerError, "An error occurred with our API.")
		return
	}
	h.writeResource(c, obj)
}

func (h *Handler) writeResource(c *gin.Context, obj object.Object) {
	body, err := object.Resource(obj)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
