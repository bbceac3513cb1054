package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/paysim"
	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/scope"
)

type createEventRequest struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Account *string         `json:"account"`
	Created int64           `json:"created"`
}

// createEvent stores an event and schedules its delivery. The event belongs
// to the requester's account unless the body names one.
func (h *Handler) createEvent(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}
	doc, err := toJSONValue(decodeBody(raw))
	if err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}
	if err := h.validator.Validate(eventSchema, doc); err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}

	var req createEventRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}

	account := scope.Account(ctx)
	if req.Account != nil && *req.Account != "" {
		if account != "" && *req.Account != account {
			writeParamError(c, http.StatusBadRequest, "Event account does not match Stripe-Account", "account")
			return
		}
		account = *req.Account
	}

	evt := &object.Event{
		Entity: paysim.Entity{Created: req.Created, AccountID: account},
		ID:     req.ID,
		Type:   req.Type,
		Data:   req.Data,
	}
	if _, err := h.engine.Publish(ctx, evt); err != nil {
		if errors.Is(err, paysim.ErrInvalidEvent) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(ctx, "publish event failed", "error", err)
		writeError(c, http.StatusInternalServerError, "An error occurred with our API.")
		return
	}

	exp, err := evt.Export()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, exp)
}
