package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/paysim/scope"
)

const accountHeader = "Stripe-Account"

// maxLoggedBody caps the request and response bodies kept in the API log.
const maxLoggedBody = 64 << 10

func (h *Handler) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"account", scope.Account(c.Request.Context()),
		)
	}
}

func (h *Handler) metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.opts.Metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		h.opts.Metrics.RecordHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

func (h *Handler) bodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes)
		}
		c.Next()
	}
}

// account scopes the request context to the Stripe-Account header.
func (h *Handler) account() gin.HandlerFunc {
	return func(c *gin.Context) {
		if acct := strings.TrimSpace(c.GetHeader(accountHeader)); acct != "" {
			c.Request = c.Request.WithContext(scope.WithAccount(c.Request.Context(), acct))
		}
		c.Next()
	}
}

func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter.Unlimited() {
			c.Next()
			return
		}
		key := scope.Account(c.Request.Context())
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !h.limiter.Allow(key) {
			c.Header("Retry-After", "1")
			writeError(c, http.StatusTooManyRequests, "Too many requests hit the API too quickly.")
			return
		}
		c.Next()
	}
}

// recordAPILog records every request outside the config surface, health and
// metrics endpoints.
func (h *Handler) recordAPILog() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/_config/") || path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}

		query := make(map[string]string, len(c.Request.URL.Query()))
		for k, v := range c.Request.URL.Query() {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}

		var reqBody any
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			reqBody = captureRequestBody(c)
		}

		logID := h.apiLog.Begin(c.Request.Method, path, query, reqBody)

		bw := &bodyWriter{ResponseWriter: c.Writer}
		c.Writer = bw
		c.Next()

		var errInfo any
		if len(c.Errors) > 0 {
			errInfo = gin.H{"message": c.Errors.String()}
		}
		h.apiLog.Complete(logID, c.Writer.Status(), decodeBody(bw.buf.Bytes()), errInfo)
	}
}

// captureRequestBody reads the body for logging and puts it back.
func captureRequestBody(c *gin.Context) any {
	if c.Request.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return nil
	}

	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		if err := c.Request.ParseForm(); err == nil {
			form := make(map[string]string, len(c.Request.PostForm))
			for k, v := range c.Request.PostForm {
				if len(v) > 0 {
					form[k] = v[0]
				}
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			return form
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	}
	if len(raw) > maxLoggedBody {
		raw = raw[:maxLoggedBody]
	}
	return decodeBody(raw)
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}

// bodyWriter keeps a copy of the response body.
type bodyWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.buf.Len(); room > 0 {
		w.buf.Write(b[:min(len(b), room)])
	}
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
