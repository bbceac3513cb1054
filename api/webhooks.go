package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/paysim"
	"github.com/xraph/paysim/delivery"
	"github.com/xraph/paysim/scope"
	"github.com/xraph/paysim/webhook"
)

func (h *Handler) registerWebhook(c *gin.Context) {
	doc, err := h.webhookDocument(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}
	if err := h.validator.Validate(webhookSchema, doc); err != nil {
		writeError(c, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}

	in := inputFromDocument(doc)
	if err := in.Validate(); err != nil {
		var ve *webhook.ValidationError
		if errors.As(err, &ve) {
			writeParamError(c, http.StatusBadRequest, "Bad request: "+ve.Message, ve.Field)
			return
		}
		writeError(c, http.StatusBadRequest, "Bad request")
		return
	}

	wh := webhook.Webhook{
		ID:        c.Param("id"),
		URL:       in.URL,
		Secret:    in.Secret,
		Events:    in.Events,
		AccountID: scope.Account(c.Request.Context()),
	}
	h.engine.RegisterWebhook(wh)

	h.logger.InfoContext(c.Request.Context(), "webhook registered",
		"webhook_id", wh.ID, "url", wh.URL, "account", wh.AccountID)
	c.JSON(http.StatusOK, wh)
}

// webhookDocument decodes the registration body, JSON or form encoded, into a
// generic JSON value for schema validation.
func (h *Handler) webhookDocument(c *gin.Context) (any, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		if len(strings.TrimSpace(string(raw))) == 0 {
			return map[string]any{}, nil
		}
		return toJSONValue(decodeBody(raw))
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if v := c.Request.PostForm.Get("url"); v != "" {
		doc["url"] = v
	}
	if v := c.Request.PostForm.Get("secret"); v != "" {
		doc["secret"] = v
	}
	if events, ok := formEvents(c.Request.PostForm); ok {
		list := make([]any, len(events))
		for i, e := range events {
			list[i] = e
		}
		doc["events"] = list
	}
	return doc, nil
}

// formEvents collects the event list from "events", "events[]" or indexed
// "events[N]" form keys. Indexed keys are ordered by N.
func formEvents(form url.Values) ([]string, bool) {
	type indexed struct {
		n int
		v string
	}
	var (
		out     []string
		byIndex []indexed
		found   bool
	)
	for key, vals := range form {
		switch {
		case key == "events" || key == "events[]":
			out = append(out, vals...)
			found = true
		case strings.HasPrefix(key, "events[") && strings.HasSuffix(key, "]"):
			n, err := strconv.Atoi(key[len("events[") : len(key)-1])
			if err != nil {
				continue
			}
			for _, v := range vals {
				byIndex = append(byIndex, indexed{n: n, v: v})
			}
			found = true
		}
	}
	sort.SliceStable(byIndex, func(i, j int) bool { return byIndex[i].n < byIndex[j].n })
	for _, e := range byIndex {
		out = append(out, e.v)
	}
	if found && out == nil {
		out = []string{}
	}
	return out, found
}

func inputFromDocument(doc any) webhook.Input {
	var in webhook.Input
	m, ok := doc.(map[string]any)
	if !ok {
		return in
	}
	in.URL, _ = m["url"].(string)
	in.Secret, _ = m["secret"].(string)
	if list, ok := m["events"].([]any); ok {
		in.Events = make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				in.Events = append(in.Events, s)
			}
		}
	}
	return in
}

func (h *Handler) listWebhooks(c *gin.Context) {
	ctx := c.Request.Context()
	out := make(map[string]webhook.Webhook)
	for _, wh := range h.engine.Webhooks() {
		if scope.Visible(ctx, wh.AccountID) {
			out[wh.ID] = wh
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) deleteWebhook(c *gin.Context) {
	webhookID := c.Param("id")
	wh, err := h.engine.Registry().Get(webhookID)
	if err != nil || !scope.Visible(c.Request.Context(), wh.AccountID) {
		writeError(c, http.StatusNotFound, "Webhook not found")
		return
	}
	if err := h.engine.UnregisterWebhook(webhookID); err != nil {
		writeError(c, http.StatusNotFound, "Webhook not found")
		return
	}
	h.logger.InfoContext(c.Request.Context(), "webhook unregistered", "webhook_id", webhookID)
	c.Status(http.StatusOK)
}

func (h *Handler) listWebhookLogs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		writeParamError(c, http.StatusBadRequest, "Invalid integer: "+c.Query("limit"), "limit")
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		writeParamError(c, http.StatusBadRequest, "Invalid integer: "+c.Query("offset"), "offset")
		return
	}

	page := h.engine.Logs(delivery.ListOpts{
		Limit:   limit,
		Offset:  offset,
		Account: scope.Account(c.Request.Context()),
	})
	if limit == 0 {
		page.Data = []delivery.Entry{}
		page.HasMore = page.TotalCount > offset
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) retryWebhookLog(c *gin.Context) {
	ctx := c.Request.Context()
	logID := c.Param("log_id")

	entry, err := h.engine.Dispatcher().Log().Get(logID)
	if err != nil || !scope.Visible(ctx, entry.AccountID) {
		writeError(c, http.StatusNotFound, "Webhook log not found")
		return
	}

	if _, err := h.engine.RetryLog(context.WithoutCancel(ctx), logID); err != nil {
		switch {
		case errors.Is(err, paysim.ErrLogNotFound):
			writeError(c, http.StatusNotFound, "Webhook log not found")
		default:
			writeError(c, http.StatusBadRequest, "Failed to retry webhook: "+err.Error())
		}
		return
	}

	h.logger.InfoContext(ctx, "webhook delivery retried", "log_id", logID, "event_id", entry.EventID)
	c.Status(http.StatusOK)
}
